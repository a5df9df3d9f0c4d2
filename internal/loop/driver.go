// Package loop drives a coordinator at a fixed time step.
//
// Each frame synchronizes, steps the application only when a tick was
// released, then broadcasts the next tick. The group stands still while any
// peer is missing: the driver reports the first failed frame as a pause and
// the next release as a resume.
package loop

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultTimeStep is the duration of one frame.
const DefaultTimeStep = 15 * time.Millisecond

// Coordinator is the part of network.Coordinator the driver uses.
type Coordinator interface {
	Synchronize(ctx context.Context) bool
	BroadcastTick()
	SyncID() uint64
}

// Frame describes one run of the frame loop.
type Frame struct {
	// Number counts frames from 1.
	Number uint64

	// TickID is the coordinator's SyncID during the frame; on release it is
	// the id of the released tick.
	TickID uint64

	// Released reports whether the frame released a tick.
	Released bool

	// Delta is the wall time since the previous frame, zero for the first.
	Delta time.Duration
}

// Stepper advances the application by one released tick. Messages sent
// during Step are stamped with frame.TickID.
type Stepper interface {
	Step(ctx context.Context, frame Frame) error
}

// StepperFunc adapts a function to the Stepper interface.
type StepperFunc func(ctx context.Context, frame Frame) error

// Step calls f.
func (f StepperFunc) Step(ctx context.Context, frame Frame) error {
	return f(ctx, frame)
}

// Pauser is implemented by steppers that want to know when the group stops
// and starts advancing.
type Pauser interface {
	Pause(frame Frame)
	Resume(frame Frame)
}

// Option configures a Driver.
type Option func(*Driver)

// WithTimeStep sets the frame duration used by Run.
func WithTimeStep(d time.Duration) Option {
	return func(dr *Driver) {
		if d > 0 {
			dr.timeStep = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(dr *Driver) {
		if l != nil {
			dr.logger = l
		}
	}
}

// WithClock replaces time.Now for frame deltas.
func WithClock(now func() time.Time) Option {
	return func(dr *Driver) {
		if now != nil {
			dr.now = now
		}
	}
}

// WithObserver registers fn to run at the end of every frame.
func WithObserver(fn func(Frame)) Option {
	return func(dr *Driver) {
		dr.observers = append(dr.observers, fn)
	}
}

// Driver runs frames against a coordinator.
//
// A Driver is not safe for concurrent use; Run and RunFrame belong to the
// goroutine that owns the coordinator.
type Driver struct {
	coord     Coordinator
	stepper   Stepper
	timeStep  time.Duration
	logger    *slog.Logger
	now       func() time.Time
	observers []func(Frame)

	frames uint64
	last   time.Time
	paused bool
}

// New creates a driver.
func New(coord Coordinator, stepper Stepper, opts ...Option) *Driver {
	d := &Driver{
		coord:    coord,
		stepper:  stepper,
		timeStep: DefaultTimeStep,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// TimeStep returns the frame duration.
func (d *Driver) TimeStep() time.Duration { return d.timeStep }

// Paused reports whether the last frame failed to release a tick.
func (d *Driver) Paused() bool { return d.paused }

// RunFrame runs one frame. A step error is returned without broadcasting
// the next tick.
func (d *Driver) RunFrame(ctx context.Context) (Frame, error) {
	now := d.now()
	var delta time.Duration
	if d.frames > 0 {
		delta = now.Sub(d.last)
	}
	d.last = now
	d.frames++

	f := Frame{
		Number:   d.frames,
		Released: d.coord.Synchronize(ctx),
		TickID:   d.coord.SyncID(),
		Delta:    delta,
	}

	if f.Released {
		if d.paused {
			d.paused = false
			d.logger.Info("resumed", "tick_id", f.TickID, "frame", f.Number)
			if p, ok := d.stepper.(Pauser); ok {
				p.Resume(f)
			}
		}
		if err := d.stepper.Step(ctx, f); err != nil {
			return f, fmt.Errorf("step tick %d: %w", f.TickID, err)
		}
	} else if !d.paused {
		d.paused = true
		d.logger.Info("paused", "tick_id", f.TickID, "frame", f.Number)
		if p, ok := d.stepper.(Pauser); ok {
			p.Pause(f)
		}
	}

	d.coord.BroadcastTick()

	for _, fn := range d.observers {
		fn(f)
	}
	return f, nil
}

// Run runs a frame every time step until ctx is done or a step fails.
// Returns nil when ctx ends.
func (d *Driver) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.timeStep)
	defer ticker.Stop()

	for {
		if _, err := d.RunFrame(ctx); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
