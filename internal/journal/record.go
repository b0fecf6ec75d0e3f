package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Operation names recorded in the calls table.
const (
	OpShowBlock    = "show_block"
	OpGetConfig    = "get_config"
	OpGeneratorLog = "generator_log"
	OpReload       = "reload"
)

// Call is one recorded RPC.
type Call struct {
	Seq      int64
	Op       string
	Name     string
	Instance string
	Args     map[string]any
	Error    string
	At       time.Time
}

// Session describes one recorded service run.
type Session struct {
	ID         string
	StartedAt  time.Time
	ConfigPath string
}

// RecordCall appends a call to the current session.
func (j *Journal) RecordCall(ctx context.Context, c Call) error {
	session, err := j.currentSession()
	if err != nil {
		return err
	}
	args := c.Args
	if args == nil {
		args = map[string]any{}
	}
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("record call: encode args: %w", err)
	}
	at := c.At
	if at.IsZero() {
		at = j.now()
	}
	_, err = j.db.ExecContext(ctx, `
		INSERT INTO calls (session_id, op, block_name, instance, args, error, at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, session, c.Op, c.Name, c.Instance, string(argsJSON), c.Error, at.UnixNano())
	if err != nil {
		return fmt.Errorf("record call: %w", err)
	}
	return nil
}

// RecordEmission appends one status line to the current session.
func (j *Journal) RecordEmission(ctx context.Context, line []byte) error {
	session, err := j.currentSession()
	if err != nil {
		return err
	}
	_, err = j.db.ExecContext(ctx,
		`INSERT INTO emissions (session_id, line, at) VALUES (?, ?, ?)`,
		session, string(line), j.now().UnixNano())
	if err != nil {
		return fmt.Errorf("record emission: %w", err)
	}
	return nil
}
