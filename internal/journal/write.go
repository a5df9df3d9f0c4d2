package journal

import (
	"context"
	"fmt"

	"github.com/roach88/lockstep/internal/network"
)

// RecordTick writes a released tick and all its messages in one
// transaction. Recording the same (session, tick id) twice is a no-op.
func (j *Journal) RecordTick(ctx context.Context, tick network.Tick) (err error) {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record tick %d: %w", tick.ID, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO ticks (session, tick_id, peers)
		VALUES (?, ?, ?)
		ON CONFLICT DO NOTHING
	`, tick.Session, int64(tick.ID), len(tick.Batches))
	if err != nil {
		return fmt.Errorf("record tick %d: %w", tick.ID, err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("record tick %d: %w", tick.ID, err)
	}
	if inserted == 0 {
		return tx.Commit()
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (session, tick_id, peer, position, name, date, fields)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("record tick %d: %w", tick.ID, err)
	}
	defer stmt.Close()

	for _, pb := range tick.Batches {
		peer := pb.Peer.String()
		for pos, m := range pb.Batch {
			fields, err := m.MarshalFields()
			if err != nil {
				return fmt.Errorf("record tick %d: %s: %w", tick.ID, m.Name(), err)
			}
			if _, err := stmt.ExecContext(ctx,
				tick.Session, int64(tick.ID), peer, pos, m.Name(), int64(m.Date()), fields,
			); err != nil {
				return fmt.Errorf("record tick %d: %w", tick.ID, err)
			}
		}
	}

	return tx.Commit()
}
