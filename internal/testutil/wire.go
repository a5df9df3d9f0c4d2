package testutil

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/lockstep/internal/wire"
)

// WriteRecords encodes msgs onto w, each with the given date.
func WriteRecords(t testing.TB, w io.Writer, date uint64, msgs ...wire.Message) {
	t.Helper()
	enc := wire.NewEncoder(w)
	for _, m := range msgs {
		m.SetDate(date)
		require.NoError(t, enc.Encode(m))
	}
}

// Describe renders messages as short strings for order assertions: text
// bodies verbatim, markers as "sync(id)" or "sync(id, inactive)", and other
// messages by type name.
func Describe(msgs []wire.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		switch v := m.(type) {
		case *wire.Text:
			out = append(out, v.Body)
		case *wire.Sync:
			out = append(out, v.String())
		default:
			out = append(out, m.Name())
		}
	}
	return out
}
