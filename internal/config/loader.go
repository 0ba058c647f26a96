package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix     = "TOURNEY_"
	envConfigPath = "TOURNEY_CONFIG"
	envDotenv     = "TOURNEY_DOTENV"
)

// Load builds a Config by layering defaults, optional .env, file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. .env file (TOURNEY_DOTENV, default ".env") exported into the process env
//  3. config file (YAML or TOML by extension) if TOURNEY_CONFIG is set
//  4. env (prefix TOURNEY_)
func Load(ctx context.Context) (*Config, error) {
	base := New(ctx)

	if err := loadDotenv(); err != nil {
		return nil, err
	}

	k := koanf.New(".")

	if path := os.Getenv(envConfigPath); path != "" {
		parser, err := parserFor(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLoadConfig, path, err)
		}
	}

	// TOURNEY_QUEUE_SIZE -> queue_size; underscores are kept to match the flat tags.
	envProvider := env.ProviderWithValue(envPrefix, ".", func(key, value string) (string, interface{}) {
		key = strings.TrimPrefix(strings.ToLower(key), strings.ToLower(envPrefix))
		if key == "cors_origins" {
			return key, strings.Split(value, ",")
		}
		return key, value
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %v", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Watch re-reads the config file on change and hands the new log level to fn.
// It is a no-op without TOURNEY_CONFIG. The watch stops when ctx is done.
func Watch(ctx context.Context, fn func(level string)) error {
	path := os.Getenv(envConfigPath)
	if path == "" {
		return nil
	}
	parser, err := parserFor(path)
	if err != nil {
		return err
	}

	fp := file.Provider(path)
	err = fp.Watch(func(_ interface{}, werr error) {
		if werr != nil {
			return
		}
		k := koanf.New(".")
		if err := k.Load(fp, parser); err != nil {
			return
		}
		if lvl := k.String("log_level"); lvl != "" {
			fn(lvl)
		}
	})
	if err != nil {
		return fmt.Errorf("%w: watch %s: %v", ErrLoadConfig, path, err)
	}

	go func() {
		<-ctx.Done()
		_ = fp.Unwatch()
	}()
	return nil
}

func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".toml":
		return toml.Parser(), nil
	default:
		return nil, fmt.Errorf("%w: unsupported config file %q", ErrLoadConfig, path)
	}
}

func loadDotenv() error {
	path := os.Getenv(envDotenv)
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	// godotenv.Load never overrides variables that are already set.
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: dotenv %s: %v", ErrLoadConfig, path, err)
	}
	return nil
}
