package journal

import (
	"context"
	"fmt"
)

// LineWriter is the part of the protocol emitter replay needs.
type LineWriter interface {
	Preamble() error
	EmitRaw(line []byte) error
}

// Replay writes the preamble and every status line recorded for session
// to w. An empty session selects the latest one. It returns the number of
// lines written.
func Replay(ctx context.Context, j *Journal, session string, w LineWriter) (int, error) {
	if session == "" {
		latest, err := j.LatestSession(ctx)
		if err != nil {
			return 0, err
		}
		session = latest
	}

	lines, err := j.Emissions(ctx, session)
	if err != nil {
		return 0, err
	}
	if err := w.Preamble(); err != nil {
		return 0, err
	}
	for i, line := range lines {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := w.EmitRaw(line); err != nil {
			return i, fmt.Errorf("replay line %d: %w", i+1, err)
		}
	}
	return len(lines), nil
}
