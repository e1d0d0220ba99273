package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"conform/internal/config"
	"conform/internal/convert"
	"conform/internal/decide"
	"conform/internal/logging"
	"conform/internal/media/probe"
	"conform/internal/pipeline"
	"conform/internal/probecache"
	"conform/internal/scan"
)

// ErrPassFailed reports a completed pass in which at least one file failed.
// One-shot runs surface it so cron wrappers can alert on a nonzero exit.
var ErrPassFailed = errors.New("pass completed with failures")

// Scheduler owns the pass cadence: one pass for cron mode, a sleep-separated
// sequence of passes for continuous mode. Passes never overlap.
type Scheduler struct {
	cfg    *config.Config
	logger *slog.Logger
	pool   *pipeline.Pool
	filter scan.Filter
	cache  *probecache.Store
}

// Option overrides a collaborator, primarily for tests.
type Option func(*options)

type options struct {
	prober    pipeline.Prober
	converter pipeline.Converter
	cache     pipeline.Cache
}

// WithProber injects a custom prober.
func WithProber(p pipeline.Prober) Option {
	return func(o *options) { o.prober = p }
}

// WithConverter injects a custom converter.
func WithConverter(c pipeline.Converter) Option {
	return func(o *options) { o.converter = c }
}

// WithCache injects a custom decision cache.
func WithCache(c pipeline.Cache) Option {
	return func(o *options) { o.cache = c }
}

// New wires a scheduler from configuration. The caller owns Close.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Scheduler, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	s := &Scheduler{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "scheduler"),
		filter: FilterFromConfig(cfg),
	}

	if o.prober == nil {
		o.prober = probe.New(cfg.FFprobeBinary(), cfg.Convert.ProbeTimeoutSeconds)
	}
	if o.converter == nil {
		o.converter = convert.New(SettingsFromConfig(cfg), logger)
	}
	if o.cache == nil && cfg.ProbeCache.Enabled {
		store, err := probecache.Open(cfg.ProbeCache.Path)
		if err != nil {
			return nil, fmt.Errorf("open probe cache: %w", err)
		}
		s.cache = store
		o.cache = store
	}

	s.pool = pipeline.New(cfg.Schedule.Workers, o.prober, o.converter, PolicyFromConfig(cfg), o.cache, logger)
	return s, nil
}

// Close releases the decision cache if the scheduler opened one.
func (s *Scheduler) Close() error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Close()
}

// RunOnce executes a single full pass over the library. The summary is
// always returned; the error is ErrPassFailed when any file failed.
func (s *Scheduler) RunOnce(ctx context.Context) (pipeline.Summary, error) {
	candidates, err := scan.Walk(s.cfg.Source.Path, s.filter)
	if err != nil {
		return pipeline.Summary{}, err
	}
	s.logger.Info("pass started",
		logging.Int("candidates", len(candidates)),
		logging.Int("workers", s.cfg.Schedule.Workers),
	)

	summary := s.pool.Run(ctx, candidates)
	s.logSummary(summary)

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	if summary.Failed > 0 {
		return summary, fmt.Errorf("%w: %d of %d files", ErrPassFailed, summary.Failed, summary.Total)
	}
	return summary, nil
}

// Run executes passes until ctx is cancelled, idling between them. A pass in
// flight drains cooperatively: cancellation stops dispatching new files and
// Run returns once in-flight jobs finish.
func (s *Scheduler) Run(ctx context.Context) error {
	interval := time.Duration(s.cfg.Schedule.IntervalSeconds) * time.Second
	for {
		if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, ErrPassFailed) {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			// A scan error (e.g. unmounted library) is worth surviving in
			// continuous mode; the next pass may find the mount back.
			s.logger.Error("pass aborted", logging.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

func (s *Scheduler) logSummary(summary pipeline.Summary) {
	s.logger.Info("pass finished",
		logging.Int("total", summary.Total),
		logging.Int("skipped", summary.Skipped),
		logging.Int("repacked", summary.Repacked),
		logging.Int("transcoded", summary.Transcoded),
		logging.Int("failed", summary.Failed),
		logging.Int("cache_hits", summary.CacheHits),
		logging.Duration("elapsed", summary.Duration),
	)
}

// PolicyFromConfig maps configuration to the classification policy.
func PolicyFromConfig(cfg *config.Config) decide.Policy {
	return decide.Policy{
		TargetContainer:     cfg.Video.TargetContainer,
		AcceptedVideoCodecs: cfg.Video.AcceptedCodecs,
		VideoCodec:          cfg.Video.TargetCodec,
		NVENC:               cfg.Video.NVENC,
		AudioCodec:          cfg.Audio.TargetCodec,
		AudioBitrate:        cfg.Audio.Bitrate,
		StereoDownmix:       cfg.Audio.StereoDownmix,
		DownmixBitrate:      cfg.Audio.DownmixBitrate,
	}
}

// SettingsFromConfig maps configuration to converter settings.
func SettingsFromConfig(cfg *config.Config) convert.Settings {
	return convert.Settings{
		Binary:          cfg.FFmpegBinary(),
		EncodeTimeout:   time.Duration(cfg.Convert.EncodeTimeoutSeconds) * time.Second,
		Threads:         cfg.Convert.Threads,
		NVENCPreset:     cfg.Video.NVENCPreset,
		CPUPreset:       cfg.Video.CPUPreset,
		Bitrate720p:     cfg.Video.Bitrate720p,
		Bitrate1080p:    cfg.Video.Bitrate1080p,
		Bitrate2160p:    cfg.Video.Bitrate2160p,
		KeepSubtitles:   cfg.Convert.KeepSubtitles,
		TargetContainer: cfg.Video.TargetContainer,
	}
}

// FilterFromConfig maps configuration to the candidate filter. Extensions
// are stored dotless in config and dotted in the filter.
func FilterFromConfig(cfg *config.Config) scan.Filter {
	exts := make([]string, 0, len(cfg.Source.Extensions))
	for _, ext := range cfg.Source.Extensions {
		exts = append(exts, "."+ext)
	}
	return scan.Filter{
		Extensions:   exts,
		MinSizeBytes: cfg.Source.SkipSmallFilesMB * 1024 * 1024,
	}
}
