package collector

import (
	"context"
	"fmt"

	"github.com/Suraj-creation/Sysmind-CLI/internal/config"
	"github.com/Suraj-creation/Sysmind-CLI/internal/health"
)

// Source gathers the raw input bundle for one category. A nil bundle with a
// nil error means the source has no data for that category.
type Source interface {
	Collect(ctx context.Context, c health.Category) (health.Bundle, error)
}

// New returns the Source selected by cfg.Type.
func New(cfg config.CollectorConfig) (Source, error) {
	switch cfg.Type {
	case "system", "":
		return NewSystem(cfg), nil
	case "prometheus":
		p, err := NewPrometheus(cfg.Prometheus)
		if err != nil {
			return nil, fmt.Errorf("collector: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("collector: unsupported type %q", cfg.Type)
	}
}
