package daemon

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"conform/internal/config"
	"conform/internal/decide"
	"conform/internal/logging"
	"conform/internal/media/probe"
	"conform/internal/scheduler"
	"conform/internal/testsupport"
)

type stubProber struct{}

func (stubProber) Inspect(_ context.Context, path string) (probe.Metadata, error) {
	return probe.Metadata{
		Path:      path,
		Container: "mov",
		Video:     []probe.VideoStream{{Index: 0, Codec: "h264", Width: 1920, Height: 1080}},
		Audio:     []probe.AudioStream{{Index: 1, Codec: "aac", Channels: 2}},
	}, nil
}

type stubConverter struct{}

func (stubConverter) Convert(_ context.Context, meta probe.Metadata, _ decide.Decision) (string, error) {
	return meta.Path, nil
}

func newTestDaemon(t *testing.T, cfg *config.Config) *Daemon {
	t.Helper()
	d, err := New(cfg, logging.NewNop(),
		scheduler.WithProber(stubProber{}),
		scheduler.WithConverter(stubConverter{}),
	)
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestRunCronModeCompletesOnePass(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMode(config.ModeCron))
	testsupport.WriteFile(t, filepath.Join(cfg.Source.Path, "a.mp4"), 10)

	d := newTestDaemon(t, cfg)
	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("cron run: %v", err)
	}
}

func TestRunRefusesSecondInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	first := newTestDaemon(t, cfg)
	second := newTestDaemon(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- first.Run(ctx) }()

	// Give the first daemon time to take the lock before contending.
	time.Sleep(100 * time.Millisecond)

	attemptCtx, attemptCancel := context.WithTimeout(context.Background(), time.Second)
	defer attemptCancel()
	if err := second.Run(attemptCtx); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second instance must be refused, got %v", err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("first daemon run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("first daemon did not stop")
	}
}

func TestLockReleasedAfterRun(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMode(config.ModeCron))

	d := newTestDaemon(t, cfg)
	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("lock must be reusable after a completed run: %v", err)
	}
}

func TestNewRequiresConfigAndLogger(t *testing.T) {
	if _, err := New(nil, logging.NewNop()); err == nil {
		t.Fatal("nil config must fail")
	}
	if _, err := New(testsupport.NewConfig(t), nil); err == nil {
		t.Fatal("nil logger must fail")
	}
}
