package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Sessions lists recorded sessions, oldest first.
func (j *Journal) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, started_at, config_path FROM sessions ORDER BY started_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var (
			s       Session
			started int64
		)
		if err := rows.Scan(&s.ID, &started, &s.ConfigPath); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		s.StartedAt = time.Unix(0, started)
		out = append(out, s)
	}
	return out, rows.Err()
}

// LatestSession returns the most recently started session id.
func (j *Journal) LatestSession(ctx context.Context) (string, error) {
	var id string
	err := j.db.QueryRowContext(ctx,
		`SELECT id FROM sessions ORDER BY started_at DESC, id DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoSession
	}
	if err != nil {
		return "", fmt.Errorf("query latest session: %w", err)
	}
	return id, nil
}

// Calls returns the calls recorded for a session in arrival order.
func (j *Journal) Calls(ctx context.Context, session string) ([]Call, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT seq, op, block_name, instance, args, error, at
		FROM calls WHERE session_id = ? ORDER BY seq
	`, session)
	if err != nil {
		return nil, fmt.Errorf("query calls: %w", err)
	}
	defer rows.Close()

	var out []Call
	for rows.Next() {
		var (
			c    Call
			args string
			at   int64
		)
		if err := rows.Scan(&c.Seq, &c.Op, &c.Name, &c.Instance, &args, &c.Error, &at); err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		if err := json.Unmarshal([]byte(args), &c.Args); err != nil {
			return nil, fmt.Errorf("decode call %d args: %w", c.Seq, err)
		}
		c.At = time.Unix(0, at)
		out = append(out, c)
	}
	return out, rows.Err()
}

// Emissions returns the status lines recorded for a session in emit order.
func (j *Journal) Emissions(ctx context.Context, session string) ([][]byte, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT line FROM emissions WHERE session_id = ? ORDER BY seq`, session)
	if err != nil {
		return nil, fmt.Errorf("query emissions: %w", err)
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, fmt.Errorf("scan emission: %w", err)
		}
		out = append(out, []byte(line))
	}
	return out, rows.Err()
}
