package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"conform/internal/convert"
	"conform/internal/decide"
	"conform/internal/logging"
	"conform/internal/media/probe"
	"conform/internal/probecache"
	"conform/internal/scan"
)

// Stage names the point in the per-file lifecycle a job reached. A job moves
// pending → probing → decided, then either ends at skipped or continues
// converting → committed. Any error ends the job at failed.
type Stage string

const (
	StagePending    Stage = "pending"
	StageProbing    Stage = "probing"
	StageDecided    Stage = "decided"
	StageSkipped    Stage = "skipped"
	StageConverting Stage = "converting"
	StageCommitted  Stage = "committed"
	StageFailed     Stage = "failed"
)

// Result is the outcome of one candidate file.
type Result struct {
	JobID     string
	Path      string
	FinalPath string
	Action    decide.Action
	Stage     Stage
	Reasons   []string
	CacheHit  bool
	Duration  time.Duration
	Err       error
}

// Failed reports whether the job ended in an error.
func (r Result) Failed() bool { return r.Stage == StageFailed }

// Summary aggregates a full pass over the library.
type Summary struct {
	Total      int
	Skipped    int
	Repacked   int
	Transcoded int
	Failed     int
	CacheHits  int
	Duration   time.Duration
	Results    []Result
}

// Prober inspects a media file's streams.
type Prober interface {
	Inspect(ctx context.Context, path string) (probe.Metadata, error)
}

// Converter executes a decision and returns the committed path.
type Converter interface {
	Convert(ctx context.Context, meta probe.Metadata, dec decide.Decision) (string, error)
}

// Cache remembers decisions keyed by file identity. Only SKIP entries written
// under the current policy fingerprint short-circuit a probe; everything else
// is always re-examined.
type Cache interface {
	Get(ctx context.Context, path string, sizeBytes, mtimeNs int64) (*probecache.Entry, error)
	Put(ctx context.Context, path string, sizeBytes, mtimeNs int64, action, reason, policyFP string) error
}

// Pool fans candidates out to a bounded set of workers. Worker count is the
// only concurrency knob: at most that many probes or encodes run at once.
type Pool struct {
	workers     int
	prober      Prober
	converter   Converter
	policy      decide.Policy
	fingerprint string
	cache       Cache
	logger      *slog.Logger
}

// New constructs a pool. A nil cache disables decision caching.
func New(workers int, prober Prober, converter Converter, policy decide.Policy, cache Cache, logger *slog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		workers:     workers,
		prober:      prober,
		converter:   converter,
		policy:      policy,
		fingerprint: policy.Fingerprint(),
		cache:       cache,
		logger:      logging.NewComponentLogger(logger, "pipeline"),
	}
}

// Run processes all candidates and returns the pass summary. Failures are
// isolated per file: one broken file never stops the pass. Cancelling ctx
// stops dispatching new files; files already in flight finish normally,
// bounded only by their own probe and encode timeouts, and Run returns once
// they drain. A half-written encode is never abandoned mid-file.
func (p *Pool) Run(ctx context.Context, candidates []scan.Candidate) Summary {
	start := time.Now()

	jobs := make(chan scan.Candidate)
	results := make(chan Result)

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for candidate := range jobs {
				results <- p.process(ctx, candidate)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, candidate := range candidates {
			if ctx.Err() != nil {
				return
			}
			select {
			case jobs <- candidate:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var summary Summary
	for result := range results {
		summary.Total++
		summary.Results = append(summary.Results, result)
		if result.CacheHit {
			summary.CacheHits++
		}
		switch {
		case result.Failed():
			summary.Failed++
		case result.Action == decide.Skip:
			summary.Skipped++
		case result.Action == decide.Repack:
			summary.Repacked++
		case result.Action == decide.Transcode:
			summary.Transcoded++
		}
	}
	summary.Duration = time.Since(start)
	return summary
}

func (p *Pool) process(ctx context.Context, candidate scan.Candidate) Result {
	start := time.Now()
	result := Result{
		JobID: uuid.NewString(),
		Path:  candidate.Path,
		Stage: StagePending,
	}

	// Shutdown is honored between files, not within one: a dispatched job
	// runs to completion even after the pass context is cancelled, so an
	// in-flight ffmpeg is never killed mid-encode. The probe and encode
	// timeouts still apply through the detached context.
	ctx = context.WithoutCancel(ctx)
	logger := p.logger.With(
		logging.String("job_id", result.JobID),
		logging.String("path", candidate.Path),
	)

	if cached := p.cachedSkip(ctx, candidate); cached != nil {
		result.Stage = StageSkipped
		result.Action = decide.Skip
		result.CacheHit = true
		result.Reasons = []string{cached.Reason}
		result.Duration = time.Since(start)
		logger.Debug("cache hit, skipping probe")
		return result
	}

	result.Stage = StageProbing
	meta, err := p.prober.Inspect(ctx, candidate.Path)
	if err != nil {
		logger.Error("probe failed", logging.Error(err))
		return fail(result, start, err)
	}

	dec, err := decide.Decide(meta, p.policy)
	if err != nil {
		logger.Error("classification failed", logging.Error(err))
		return fail(result, start, err)
	}
	result.Stage = StageDecided
	result.Action = dec.Action
	result.Reasons = dec.Reasons
	logger.Info("decision",
		logging.String("action", dec.Action.String()),
		logging.Any("reasons", dec.Reasons),
	)

	if dec.Action == decide.Skip {
		result.Stage = StageSkipped
		result.FinalPath = candidate.Path
		result.Duration = time.Since(start)
		p.remember(ctx, candidate, dec)
		return result
	}

	result.Stage = StageConverting
	finalPath, err := p.converter.Convert(ctx, meta, dec)
	if err != nil {
		logger.Error("conversion failed", logging.Error(err))
		return fail(result, start, err)
	}

	result.Stage = StageCommitted
	result.FinalPath = finalPath
	result.Duration = time.Since(start)
	logger.Info("committed",
		logging.String("final", finalPath),
		logging.Duration("elapsed", result.Duration),
	)
	return result
}

// cachedSkip returns a live SKIP entry for the candidate's exact identity.
// Cached REPACK or TRANSCODE outcomes are ignored (the file still needs
// work), as is any entry written under a different policy: a SKIP decided
// against yesterday's policy says nothing about today's.
func (p *Pool) cachedSkip(ctx context.Context, candidate scan.Candidate) *probecache.Entry {
	if p.cache == nil {
		return nil
	}
	entry, err := p.cache.Get(ctx, candidate.Path, candidate.SizeBytes, candidate.MtimeNs)
	if err != nil {
		p.logger.Warn("cache lookup failed", logging.Error(err))
		return nil
	}
	if entry == nil || entry.Action != decide.Skip.String() || entry.PolicyFingerprint != p.fingerprint {
		return nil
	}
	return entry
}

func (p *Pool) remember(ctx context.Context, candidate scan.Candidate, dec decide.Decision) {
	if p.cache == nil {
		return
	}
	reason := ""
	if len(dec.Reasons) > 0 {
		reason = dec.Reasons[0]
	}
	if err := p.cache.Put(ctx, candidate.Path, candidate.SizeBytes, candidate.MtimeNs, dec.Action.String(), reason, p.fingerprint); err != nil {
		p.logger.Warn("cache write failed", logging.Error(err))
	}
}

func fail(result Result, start time.Time, err error) Result {
	result.Stage = StageFailed
	result.Err = err
	result.Duration = time.Since(start)
	return result
}

var _ Prober = (*probe.Client)(nil)
var _ Converter = (*convert.Converter)(nil)
var _ Cache = (*probecache.Store)(nil)
