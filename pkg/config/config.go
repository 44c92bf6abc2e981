// Package config loads pipeline settings: cache sizes, evaluation
// features, the boolean backend and logging. Values are resolved with
// priority environment > file > defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/chazu/solidcsg/pkg/cache"
	"github.com/chazu/solidcsg/pkg/engine"
	"github.com/chazu/solidcsg/pkg/evaluate"
	"github.com/chazu/solidcsg/pkg/flatten"
	"github.com/chazu/solidcsg/pkg/kernel"
	"github.com/chazu/solidcsg/pkg/kernel/manifold"
	"github.com/chazu/solidcsg/pkg/kernel/sdfx"
)

// EnvPrefix starts every environment override.
const EnvPrefix = "SOLIDCSG_"

// Backend names.
const (
	BackendSdfx     = "sdfx"
	BackendManifold = "manifold"
)

// Config is the top-level configuration.
type Config struct {
	Cache    CacheConfig    `yaml:"cache"`
	Features FeaturesConfig `yaml:"features"`
	Backend  BackendConfig  `yaml:"backend"`
	Engine   EngineConfig   `yaml:"engine"`
	Log      LogConfig      `yaml:"log"`
}

// CacheConfig bounds the two geometry stores by estimated bytes.
type CacheConfig struct {
	ApproxMaxBytes int64 `yaml:"approx_max_bytes"`
	ExactMaxBytes  int64 `yaml:"exact_max_bytes"`
}

// FeaturesConfig toggles optional evaluation behavior.
type FeaturesConfig struct {
	LazyUnion          bool `yaml:"lazy_union"`
	ValidateFastUnion  bool `yaml:"validate_fast_union"`
	Flatten            bool `yaml:"flatten"`
	PushTransforms     bool `yaml:"push_transforms"`
	FlattenAssociative bool `yaml:"flatten_associative"`
	PushThroughHull    bool `yaml:"push_through_hull"`
}

// BackendConfig selects the boolean backend.
type BackendConfig struct {
	Name      string `yaml:"name"`       // sdfx or manifold
	MeshCells int    `yaml:"mesh_cells"` // marching cubes resolution
}

type EngineConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Cache: CacheConfig{
			ApproxMaxBytes: cache.DefaultApproxMaxBytes,
			ExactMaxBytes:  cache.DefaultExactMaxBytes,
		},
		Features: FeaturesConfig{
			PushTransforms:     true,
			FlattenAssociative: true,
		},
		Backend: BackendConfig{
			Name:      BackendSdfx,
			MeshCells: sdfx.DefaultMeshCells,
		},
		Engine: EngineConfig{Timeout: engine.EvalTimeout},
		Log:    LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result. An empty path or a missing file
// means defaults. Unknown keys are errors.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("config: %s: %w", path, err)
		}
	}
	if err := loadEnv(&cfg); err != nil {
		return cfg, fmt.Errorf("config: environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config: invalid: %w", err)
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// loadEnv applies SOLIDCSG_* overrides. Unparsable values are collected
// rather than ignored.
func loadEnv(cfg *Config) error {
	var merr *multierror.Error
	env := func(name string) (string, bool) {
		v := os.Getenv(EnvPrefix + name)
		return v, v != ""
	}
	setInt64 := func(name string, dst *int64) {
		if v, ok := env(name); ok {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				merr = multierror.Append(merr, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	setBool := func(name string, dst *bool) {
		if v, ok := env(name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				merr = multierror.Append(merr, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}

	setInt64("CACHE_APPROX_MAX_BYTES", &cfg.Cache.ApproxMaxBytes)
	setInt64("CACHE_EXACT_MAX_BYTES", &cfg.Cache.ExactMaxBytes)

	setBool("LAZY_UNION", &cfg.Features.LazyUnion)
	setBool("VALIDATE_FAST_UNION", &cfg.Features.ValidateFastUnion)
	setBool("FLATTEN", &cfg.Features.Flatten)
	setBool("PUSH_TRANSFORMS", &cfg.Features.PushTransforms)
	setBool("FLATTEN_ASSOCIATIVE", &cfg.Features.FlattenAssociative)
	setBool("PUSH_THROUGH_HULL", &cfg.Features.PushThroughHull)

	if v, ok := env("BACKEND"); ok {
		cfg.Backend.Name = strings.ToLower(v)
	}
	if v, ok := env("MESH_CELLS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			merr = multierror.Append(merr, fmt.Errorf("%sMESH_CELLS: %w", EnvPrefix, err))
		} else {
			cfg.Backend.MeshCells = n
		}
	}
	if v, ok := env("EVAL_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			merr = multierror.Append(merr, fmt.Errorf("%sEVAL_TIMEOUT: %w", EnvPrefix, err))
		} else {
			cfg.Engine.Timeout = d
		}
	}
	if v, ok := env("LOG_LEVEL"); ok {
		cfg.Log.Level = v
	}
	if v, ok := env("LOG_FORMAT"); ok {
		cfg.Log.Format = strings.ToLower(v)
	}
	return merr.ErrorOrNil()
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var merr *multierror.Error
	add := func(format string, args ...any) {
		merr = multierror.Append(merr, fmt.Errorf(format, args...))
	}

	if c.Cache.ApproxMaxBytes <= 0 {
		add("cache.approx_max_bytes must be > 0, got %d", c.Cache.ApproxMaxBytes)
	}
	if c.Cache.ExactMaxBytes <= 0 {
		add("cache.exact_max_bytes must be > 0, got %d", c.Cache.ExactMaxBytes)
	}
	switch c.Backend.Name {
	case BackendSdfx, BackendManifold:
	default:
		add("backend.name must be %q or %q, got %q", BackendSdfx, BackendManifold, c.Backend.Name)
	}
	if c.Backend.MeshCells <= 0 {
		add("backend.mesh_cells must be > 0, got %d", c.Backend.MeshCells)
	}
	if c.Engine.Timeout <= 0 {
		add("engine.timeout must be > 0, got %s", c.Engine.Timeout)
	}
	if _, err := c.Log.level(); err != nil {
		add("log.level: %v", err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		add("log.format must be text or json, got %q", c.Log.Format)
	}
	return merr.ErrorOrNil()
}

func (l LogConfig) level() (slog.Level, error) {
	var lvl slog.Level
	err := lvl.UnmarshalText([]byte(l.Level))
	return lvl, err
}

// Logger returns a logger writing to w at the configured level and format.
func (c Config) Logger(w io.Writer) *slog.Logger {
	lvl, err := c.Log.level()
	if err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// NewCache returns a cache sized by c.
func (c Config) NewCache(log *slog.Logger) *cache.Cache {
	return cache.New(
		cache.WithApproxMaxBytes(c.Cache.ApproxMaxBytes),
		cache.WithExactMaxBytes(c.Cache.ExactMaxBytes),
		cache.WithLogger(log),
	)
}

// NewBackend returns the configured backend. The manifold backend falls
// back to sdfx for the operations it lacks.
func (c Config) NewBackend(log *slog.Logger) (kernel.Backend, error) {
	base := sdfx.New(sdfx.WithMeshCells(c.Backend.MeshCells), sdfx.WithLogger(log))
	if c.Backend.Name != BackendManifold {
		return base, nil
	}
	k, err := manifold.New(base)
	if err != nil {
		return nil, fmt.Errorf("config: backend: %w", err)
	}
	return k, nil
}

// EvaluatorOptions translates the feature flags for evaluate.New.
func (c Config) EvaluatorOptions(cc *cache.Cache, log *slog.Logger) []evaluate.Option {
	return []evaluate.Option{
		evaluate.WithLazyUnion(c.Features.LazyUnion),
		evaluate.WithValidateFastUnion(c.Features.ValidateFastUnion),
		evaluate.WithCache(cc),
		evaluate.WithLogger(log),
	}
}

// FlattenOptions translates the feature flags for flatten.New.
func (c Config) FlattenOptions(log *slog.Logger) []flatten.Option {
	return []flatten.Option{
		flatten.WithPushTransforms(c.Features.PushTransforms),
		flatten.WithFlattenAssociative(c.Features.FlattenAssociative),
		flatten.WithPushThroughHull(c.Features.PushThroughHull),
		flatten.WithLogger(log),
	}
}

// EngineOptions configures the script front end.
func (c Config) EngineOptions(filename string, log *slog.Logger) []engine.Option {
	return []engine.Option{
		engine.WithFilename(filename),
		engine.WithTimeout(c.Engine.Timeout),
		engine.WithLogger(log),
	}
}
