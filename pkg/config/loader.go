package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// LoadOption tunes a single Load call.
type LoadOption func(*loadOptions)

type loadOptions struct {
	files  []string
	prefix string
}

// WithEnvFiles loads the given dotenv files before parsing. Files that do
// not exist are skipped.
func WithEnvFiles(paths ...string) LoadOption {
	return func(o *loadOptions) {
		o.files = append(o.files, paths...)
	}
}

// WithPrefix prepends prefix to every variable name in the struct tags,
// e.g. "STAGING_" turns AUTH_STARTUP_TIMEOUT into STAGING_AUTH_STARTUP_TIMEOUT.
func WithPrefix(prefix string) LoadOption {
	return func(o *loadOptions) {
		o.prefix = prefix
	}
}

// Load parses environment variables into v.
func Load[T any](v *T, opts ...LoadOption) error {
	if v == nil {
		return ErrNilPointer
	}

	var o loadOptions
	for _, opt := range opts {
		opt(&o)
	}

	for _, path := range o.files {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return errors.Join(ErrLoadingEnvFile, fmt.Errorf("%s: %w", path, err))
		}
	}

	if err := env.ParseWithOptions(v, env.Options{Prefix: o.prefix}); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	return nil
}

// MustLoad works like Load but panics on failure. Intended for main packages.
func MustLoad[T any](v *T, opts ...LoadOption) {
	if err := Load(v, opts...); err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
}
