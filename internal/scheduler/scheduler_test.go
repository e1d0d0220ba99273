package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"conform/internal/decide"
	"conform/internal/logging"
	"conform/internal/media/probe"
	"conform/internal/testsupport"
)

type stubProber struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (s *stubProber) Inspect(_ context.Context, path string) (probe.Metadata, error) {
	s.mu.Lock()
	s.calls = append(s.calls, path)
	s.mu.Unlock()
	if s.err != nil {
		return probe.Metadata{}, s.err
	}
	return probe.Metadata{
		Path:      path,
		Container: "mov",
		Video:     []probe.VideoStream{{Index: 0, Codec: "h264", Width: 1920, Height: 1080}},
		Audio:     []probe.AudioStream{{Index: 1, Codec: "aac", Channels: 2}},
	}, nil
}

func (s *stubProber) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type stubConverter struct{}

func (stubConverter) Convert(_ context.Context, meta probe.Metadata, _ decide.Decision) (string, error) {
	return meta.Path, nil
}

func TestRunOncePassesOverLibrary(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(2))
	testsupport.WriteFile(t, filepath.Join(cfg.Source.Path, "a.mp4"), 10)
	testsupport.WriteFile(t, filepath.Join(cfg.Source.Path, "b.mp4"), 10)

	prober := &stubProber{}
	sched, err := New(cfg, logging.NewNop(), WithProber(prober), WithConverter(stubConverter{}))
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	defer sched.Close()

	summary, err := sched.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if summary.Total != 2 || summary.Skipped != 2 {
		t.Fatalf("summary = %+v", summary)
	}
	if prober.count() != 2 {
		t.Fatalf("probe calls = %d", prober.count())
	}
}

func TestRunOnceBelowThresholdNeverProbed(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMinSizeMB(1))
	testsupport.WriteFile(t, filepath.Join(cfg.Source.Path, "sample.mp4"), 512)

	prober := &stubProber{}
	sched, err := New(cfg, logging.NewNop(), WithProber(prober), WithConverter(stubConverter{}))
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	defer sched.Close()

	summary, err := sched.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if summary.Total != 0 || prober.count() != 0 {
		t.Fatalf("small file leaked into the pass: %+v, probes=%d", summary, prober.count())
	}
}

func TestRunOnceSurfacesFailures(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteFile(t, filepath.Join(cfg.Source.Path, "broken.mp4"), 10)

	prober := &stubProber{err: errors.New("moov atom not found")}
	sched, err := New(cfg, logging.NewNop(), WithProber(prober), WithConverter(stubConverter{}))
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	defer sched.Close()

	summary, err := sched.RunOnce(context.Background())
	if !errors.Is(err, ErrPassFailed) {
		t.Fatalf("expected ErrPassFailed, got %v", err)
	}
	if summary.Failed != 1 {
		t.Fatalf("summary = %+v", summary)
	}
}

func TestRunOnceUsesProbeCacheAcrossPasses(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithProbeCache())
	testsupport.WriteFile(t, filepath.Join(cfg.Source.Path, "a.mp4"), 10)

	prober := &stubProber{}
	sched, err := New(cfg, logging.NewNop(), WithProber(prober), WithConverter(stubConverter{}))
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	defer sched.Close()

	if _, err := sched.RunOnce(context.Background()); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	summary, err := sched.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}

	if summary.CacheHits != 1 {
		t.Fatalf("second pass must hit the cache: %+v", summary)
	}
	if prober.count() != 1 {
		t.Fatalf("unchanged file must not be re-probed: %d calls", prober.count())
	}
}

func TestRunOncePolicyChangeInvalidatesCache(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithProbeCache())
	testsupport.WriteFile(t, filepath.Join(cfg.Source.Path, "a.mp4"), 10)

	prober := &stubProber{}
	first, err := New(cfg, logging.NewNop(), WithProber(prober), WithConverter(stubConverter{}))
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	if _, err := first.RunOnce(context.Background()); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Same library, same cache file, different audio policy. The cached
	// SKIP was decided against aac and must not survive the change.
	cfg.Audio.TargetCodec = "opus"
	second, err := New(cfg, logging.NewNop(), WithProber(prober), WithConverter(stubConverter{}))
	if err != nil {
		t.Fatalf("new scheduler after policy change: %v", err)
	}
	defer second.Close()

	summary, err := second.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if summary.CacheHits != 0 {
		t.Fatalf("stale entry must not hit under the new policy: %+v", summary)
	}
	if prober.count() != 2 {
		t.Fatalf("file must be re-probed after the policy change: %d calls", prober.count())
	}
	if summary.Repacked != 1 {
		t.Fatalf("aac audio no longer conforms, expected a repack: %+v", summary)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Schedule.IntervalSeconds = 1

	sched, err := New(cfg, logging.NewNop(), WithProber(&stubProber{}), WithConverter(stubConverter{}))
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	defer sched.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("run did not stop after cancel")
	}
}

func TestRunSurvivesMissingLibrary(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Source.Path = filepath.Join(testsupport.BaseDir(cfg), "unmounted")
	cfg.Schedule.IntervalSeconds = 1

	sched, err := New(cfg, logging.NewNop(), WithProber(&stubProber{}), WithConverter(stubConverter{}))
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	defer sched.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := sched.Run(ctx); err != nil {
		t.Fatalf("continuous mode must survive scan errors, got %v", err)
	}
}

func TestFilterFromConfigDotsExtensions(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Source.Extensions = []string{"mkv", "mp4"}
	cfg.Source.SkipSmallFilesMB = 2

	filter := FilterFromConfig(cfg)
	if len(filter.Extensions) != 2 || filter.Extensions[0] != ".mkv" {
		t.Fatalf("extensions = %v", filter.Extensions)
	}
	if filter.MinSizeBytes != 2*1024*1024 {
		t.Fatalf("min size = %d", filter.MinSizeBytes)
	}
}
