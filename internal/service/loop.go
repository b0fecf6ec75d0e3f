package service

import (
	"github.com/roach88/dstatus/internal/journal"
	"github.com/roach88/dstatus/internal/resolver"
)

// apply runs one command. Called only from the Run goroutine.
func (s *Service) apply(c *command) error {
	switch c.kind {
	case cmdShow:
		s.applyShow(c)
		return nil
	case cmdReload:
		s.applyReload(c)
		return nil
	default:
		s.logger.Error("unknown command", "kind", int(c.kind))
		return nil
	}
}

func (s *Service) applyShow(c *command) {
	b := c.block
	general, section, instance := s.cfg.Load().Layers(b.Name, b.Instance)
	resolved := resolver.Resolve(b, resolver.Layers{
		General:  general,
		Block:    section,
		Instance: instance,
	})

	changed := s.registry.Upsert(resolved)
	s.logger.Debug("block update", "block", b.Name, "instance", b.Instance, "changed", changed)
	s.record(journal.Call{Op: journal.OpShowBlock, Name: b.Name, Instance: b.Instance, Args: c.fields})
	if changed {
		s.emit()
	}
}

func (s *Service) applyReload(c *command) {
	s.cfg.Store(c.config)
	order := c.config.OrderFor(s.opts.Generators)
	changed := s.registry.SetOrder(order)
	s.logger.Info("config reloaded", "path", c.config.Path, "order_changed", changed)
	s.record(journal.Call{Op: journal.OpReload, Args: map[string]any{"path": c.config.Path}})
	if changed {
		s.emit()
	}
}

// emit writes the current snapshot. Write errors are logged and the loop
// keeps going; the bar may come back or the process will be stopped.
func (s *Service) emit() {
	if err := s.opts.Emitter.Emit(s.registry.Snapshot()); err != nil {
		s.logger.Error("emit failed", "error", err)
	}
}
