// Package config loads the engine's settings from a YAML file, environment
// variables and command-line flags, later sources winning.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// envPrefix namespaces the environment variables, e.g. GITDECK_TOKEN.
const envPrefix = "GITDECK_"

// Config holds every runtime setting the engine consumes. ReviewOrder and
// Theme are informational; the core reads them but does not act on them.
type Config struct {
	RepoURL string `koanf:"repo_url" validate:"required"`
	Token   string `koanf:"token"`
	Branch  string `koanf:"branch" validate:"required"`

	ClonePath string `koanf:"clone_path" validate:"required"`
	WALPath   string `koanf:"wal_path" validate:"required"`

	NewCardsPerDay int    `koanf:"new_cards_per_day" validate:"gte=0"`
	ReviewOrder    string `koanf:"review_order" validate:"oneof=due-first new-first"`
	Theme          string `koanf:"theme"`

	Debounce time.Duration `koanf:"debounce" validate:"gt=0"`
	MaxBatch int           `koanf:"max_batch" validate:"gt=0"`
}

// Default returns the baseline configuration overlaid by Load.
func Default() Config {
	return Config{
		Branch:         "main",
		ClonePath:      "repos/deck",
		WALPath:        "gitdeck.db",
		NewCardsPerDay: 20,
		ReviewOrder:    "due-first",
		Theme:          "system",
		Debounce:       5 * time.Second,
		MaxBatch:       10,
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// (skipped silently if absent), then GITDECK_* environment variables, then
// the given flag set. The result is validated before being returned.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, fmt.Errorf("load flags: %w", err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}
