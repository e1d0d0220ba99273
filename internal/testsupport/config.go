package testsupport

import (
	"path/filepath"
	"testing"

	"conform/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options. The source
// library directory exists but starts empty.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Source.Path = filepath.Join(base, "library")
	cfgVal.Source.SkipSmallFilesMB = 0
	cfgVal.Logging.Dir = filepath.Join(base, "logs")
	cfgVal.ProbeCache.Path = filepath.Join(base, "cache", "probecache.db")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}

	WriteDir(t, builder.cfg.Source.Path)
	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithWorkers sets the worker count on the test config.
func WithWorkers(workers int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Schedule.Workers = workers
	}
}

// WithMode sets the schedule mode on the test config.
func WithMode(mode string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Schedule.Mode = mode
	}
}

// WithProbeCache enables the decision cache on the test config.
func WithProbeCache() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.ProbeCache.Enabled = true
	}
}

// WithMinSizeMB sets the small-file threshold on the test config.
func WithMinSizeMB(mb int64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Source.SkipSmallFilesMB = mb
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Source.Path)
}
