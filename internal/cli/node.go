package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/lockstep/internal/loop"
	"github.com/roach88/lockstep/internal/network"
	"github.com/roach88/lockstep/internal/wire"
)

// echoApp is the application run by "lockstep run": every released tick it
// sends one text on each service, and it logs the texts peers deliver.
type echoApp struct {
	coord    *network.Coordinator
	services []string
	logger   *slog.Logger

	sent     int
	received int
	pauses   int
}

func newEchoApp(coord *network.Coordinator, services []string, logger *slog.Logger) *echoApp {
	a := &echoApp{coord: coord, services: services, logger: logger}
	for _, p := range coord.Peers() {
		a.watch(p)
	}
	return a
}

func (a *echoApp) watch(p *network.Peer) {
	from := p.Endpoint().String()
	network.Subscribe(p, func(t *wire.Text) {
		a.received++
		a.logger.Info("text received", "peer", from, "date", t.Date(), "body", t.Body)
	})
}

// Step implements loop.Stepper.
func (a *echoApp) Step(ctx context.Context, frame loop.Frame) error {
	for _, name := range a.services {
		body := fmt.Sprintf("%s tick %d", a.coord.Session(), frame.TickID)
		if err := a.coord.Send(name, wire.NewText(body)); err != nil {
			return err
		}
		a.sent++
	}
	return nil
}

// Pause implements loop.Pauser.
func (a *echoApp) Pause(frame loop.Frame) {
	a.pauses++
	a.logger.Debug("waiting for peers", "tick_id", frame.TickID, "waiting", len(a.coord.Waiting()))
}

// Resume implements loop.Pauser.
func (a *echoApp) Resume(frame loop.Frame) {
	a.logger.Debug("group advancing", "tick_id", frame.TickID)
}
