package socket

import (
	"context"
	"fmt"

	"github.com/roach88/dstatus/internal/codec"
)

// Service is the block service as seen by the transport.
type Service interface {
	ShowBlock(ctx context.Context, fields map[string]any) error
	GetConfig(name string) string
	GeneratorLog(level int, name, message string)
}

type showBlockRequest struct {
	Block map[string]any `cbor:"block"`
}

type getConfigRequest struct {
	Name string `cbor:"name"`
}

type generatorLogRequest struct {
	Level   int    `cbor:"level"`
	Name    string `cbor:"name"`
	Message string `cbor:"message"`
}

// Register binds the three service operations on s.
func Register(s *Server, svc Service) {
	s.Handle(ActionShowBlock, func(ctx context.Context, raw []byte) (any, error) {
		var req showBlockRequest
		if err := codec.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("invalid show_block request: %w", err)
		}
		if req.Block == nil {
			return nil, fmt.Errorf("missing required field: block")
		}
		return nil, svc.ShowBlock(ctx, req.Block)
	})

	s.Handle(ActionGetConfig, func(_ context.Context, raw []byte) (any, error) {
		var req getConfigRequest
		if err := codec.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("invalid get_config request: %w", err)
		}
		return svc.GetConfig(req.Name), nil
	})

	s.Handle(ActionGeneratorLog, func(_ context.Context, raw []byte) (any, error) {
		var req generatorLogRequest
		if err := codec.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("invalid generator_log request: %w", err)
		}
		svc.GeneratorLog(req.Level, req.Name, req.Message)
		return nil, nil
	})
}
