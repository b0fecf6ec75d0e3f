package service

import (
	"context"
	"fmt"

	"github.com/roach88/dstatus/internal/journal"
)

func (s *Service) startJournal(ctx context.Context) error {
	j := s.opts.Journal
	if j == nil {
		return nil
	}
	id := s.opts.SessionIDs.Generate()
	if err := j.StartSession(ctx, id, s.cfg.Load().Path); err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	s.opts.Emitter.OnLine(func(line []byte) {
		if err := j.RecordEmission(context.Background(), line); err != nil {
			s.logger.Warn("journal emission failed", "error", err)
		}
	})
	s.logger.Debug("journal session started", "session", id)
	return nil
}

// shutdown stops the loop, fails queued calls and stops generators.
func (s *Service) shutdown() {
	for _, c := range s.queue.Close() {
		c.done <- ErrStopped
	}
	s.state.Store(int32(StateStopped))

	if s.opts.Supervisor != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*s.opts.StopTimeout)
		defer cancel()
		s.opts.Supervisor.StopAll(ctx)
	}
	s.logger.Info("service stopped")
}

// record writes a call to the journal if one is configured. Journal
// failures never fail the call.
func (s *Service) record(c journal.Call) {
	j := s.opts.Journal
	if j == nil || j.Session() == "" {
		return
	}
	if err := j.RecordCall(context.Background(), c); err != nil {
		s.logger.Warn("journal call failed", "op", c.Op, "error", err)
	}
}

func nameOf(fields map[string]any) string {
	name, _ := fields["name"].(string)
	return name
}
