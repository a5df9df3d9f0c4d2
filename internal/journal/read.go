package journal

import (
	"context"
	"fmt"

	"github.com/roach88/lockstep/internal/wire"
)

// Session summarizes one recorded session.
type Session struct {
	ID        string `json:"id"`
	Ticks     int    `json:"ticks"`
	FirstTick uint64 `json:"first_tick"`
	LastTick  uint64 `json:"last_tick"`
}

// Tick is one recorded tick.
type Tick struct {
	Session string  `json:"session"`
	ID      uint64  `json:"tick_id"`
	Peers   int     `json:"peers"`
	Entries []Entry `json:"entries"`
}

// Entry is one recorded message.
type Entry struct {
	Peer     string `json:"peer"`
	Position int    `json:"position"`
	Name     string `json:"name"`
	Date     uint64 `json:"date"`
	Fields   string `json:"fields"`
}

// IsMarker reports whether the entry is the tick marker closing a batch.
func (e Entry) IsMarker() bool {
	return e.Name == wire.SyncName
}

// Decode rebuilds the recorded message using registry.
func (e Entry) Decode(registry *wire.Registry) (wire.Message, error) {
	m, err := registry.New(e.Name)
	if err != nil {
		return nil, err
	}
	if err := m.UnmarshalFields(e.Fields); err != nil {
		return nil, &wire.ProtocolError{Code: wire.ErrCodeMalformed, Name: e.Name, Err: err}
	}
	m.SetDate(e.Date)
	return m, nil
}

// Sessions lists recorded sessions ordered by id. UUIDv7 ids sort by start
// time.
//
// Returns an empty slice (not nil) if nothing was recorded.
func (j *Journal) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT session, COUNT(*), MIN(tick_id), MAX(tick_id)
		FROM ticks
		GROUP BY session
		ORDER BY session COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		var s Session
		var first, last int64
		if err := rows.Scan(&s.ID, &s.Ticks, &first, &last); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		s.FirstTick = uint64(first)
		s.LastTick = uint64(last)
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// ReadTicks returns every tick of a session with its entries.
// Results are ordered by tick_id ASC, peer ASC, position ASC.
//
// Returns an empty slice (not nil) for an unknown session.
func (j *Journal) ReadTicks(ctx context.Context, session string) ([]Tick, error) {
	ticks, err := j.readTickRows(ctx, session)
	if err != nil {
		return nil, err
	}
	if len(ticks) == 0 {
		return ticks, nil
	}

	index := make(map[uint64]int, len(ticks))
	for i, t := range ticks {
		index[t.ID] = i
	}

	rows, err := j.db.QueryContext(ctx, `
		SELECT tick_id, peer, position, name, date, fields
		FROM messages
		WHERE session = ?
		ORDER BY tick_id ASC, peer COLLATE BINARY ASC, position ASC
	`, session)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e Entry
		var tickID, date int64
		if err := rows.Scan(&tickID, &e.Peer, &e.Position, &e.Name, &date, &e.Fields); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		e.Date = uint64(date)

		i, ok := index[uint64(tickID)]
		if !ok {
			return nil, fmt.Errorf("message for unknown tick %d", tickID)
		}
		ticks[i].Entries = append(ticks[i].Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return ticks, nil
}

func (j *Journal) readTickRows(ctx context.Context, session string) ([]Tick, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT tick_id, peers
		FROM ticks
		WHERE session = ?
		ORDER BY tick_id ASC
	`, session)
	if err != nil {
		return nil, fmt.Errorf("query ticks: %w", err)
	}
	defer rows.Close()

	ticks := []Tick{}
	for rows.Next() {
		var id int64
		t := Tick{Session: session, Entries: []Entry{}}
		if err := rows.Scan(&id, &t.Peers); err != nil {
			return nil, fmt.Errorf("scan tick: %w", err)
		}
		t.ID = uint64(id)
		ticks = append(ticks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ticks: %w", err)
	}
	return ticks, nil
}
