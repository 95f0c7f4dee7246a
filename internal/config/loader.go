package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, an optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if MLATD_CONFIG is set
//  3. env (prefix MLATD_)
func Load(ctx context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("MLATD_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
		}
	}

	// Environment variables: MLATD_ADDR, MLATD_RESOLUTION_DELAY_MS, ...
	// mapped to the flat koanf tags, underscores preserved.
	envProvider := env.Provider("MLATD_", ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, "mlatd_")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	switch {
	case cfg.Addr == "":
		return nil, fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case cfg.IngestAddr == "":
		return nil, fmt.Errorf("%w: ingest_addr must not be empty", ErrInvalidConfig)
	case cfg.ResolutionDelayMS <= 0:
		return nil, fmt.Errorf("%w: resolution_delay_ms must be positive", ErrInvalidConfig)
	case cfg.QueueSize <= 0:
		return nil, fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case cfg.PropagationSpeed < 0:
		return nil, fmt.Errorf("%w: propagation_speed must not be negative", ErrInvalidConfig)
	}
	return &cfg, nil
}
