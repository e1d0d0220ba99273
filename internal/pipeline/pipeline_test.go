package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"conform/internal/decide"
	"conform/internal/logging"
	"conform/internal/media/probe"
	"conform/internal/probecache"
	"conform/internal/scan"
)

type fakeProber struct {
	mu         sync.Mutex
	inFlight   int32
	maxSeen    int32
	metaByPath map[string]probe.Metadata
	errByPath  map[string]error
	calls      []string
}

func (f *fakeProber) Inspect(_ context.Context, path string) (probe.Metadata, error) {
	current := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		max := atomic.LoadInt32(&f.maxSeen)
		if current <= max || atomic.CompareAndSwapInt32(&f.maxSeen, max, current) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)

	f.mu.Lock()
	f.calls = append(f.calls, path)
	f.mu.Unlock()

	if err, ok := f.errByPath[path]; ok {
		return probe.Metadata{}, err
	}
	if meta, ok := f.metaByPath[path]; ok {
		return meta, nil
	}
	return conformingMeta(path), nil
}

type fakeConverter struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeConverter) Convert(_ context.Context, meta probe.Metadata, _ decide.Decision) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, meta.Path)
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return meta.Path, nil
}

type memoryCache struct {
	mu      sync.Mutex
	entries map[string]probecache.Entry
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string]probecache.Entry)}
}

func (m *memoryCache) Get(_ context.Context, path string, size, mtime int64) (*probecache.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[path]
	if !ok || entry.SizeBytes != size || entry.MtimeNs != mtime {
		return nil, nil
	}
	copied := entry
	return &copied, nil
}

func (m *memoryCache) Put(_ context.Context, path string, size, mtime int64, action, reason, policyFP string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[path] = probecache.Entry{Path: path, SizeBytes: size, MtimeNs: mtime, Action: action, Reason: reason, PolicyFingerprint: policyFP}
	return nil
}

func conformingMeta(path string) probe.Metadata {
	return probe.Metadata{
		Path:      path,
		Container: "mov",
		Video:     []probe.VideoStream{{Index: 0, Codec: "h264", Width: 1920, Height: 1080}},
		Audio:     []probe.AudioStream{{Index: 1, Codec: "aac", Channels: 2}},
	}
}

func matroskaMeta(path string) probe.Metadata {
	return probe.Metadata{
		Path:      path,
		Container: "matroska",
		Video:     []probe.VideoStream{{Index: 0, Codec: "h264", Width: 1920, Height: 1080}},
		Audio:     []probe.AudioStream{{Index: 1, Codec: "aac", Channels: 2}},
	}
}

func testPolicy() decide.Policy {
	return decide.Policy{
		TargetContainer:     "mp4",
		AcceptedVideoCodecs: []string{"h264", "hevc"},
		VideoCodec:          "h264",
		AudioCodec:          "aac",
		AudioBitrate:        "192k",
	}
}

func candidates(paths ...string) []scan.Candidate {
	out := make([]scan.Candidate, 0, len(paths))
	for i, path := range paths {
		out = append(out, scan.Candidate{Path: path, SizeBytes: int64(1000 + i), MtimeNs: int64(42 + i)})
	}
	return out
}

func TestRunBoundsConcurrency(t *testing.T) {
	prober := &fakeProber{}
	pool := New(2, prober, &fakeConverter{}, testPolicy(), nil, logging.NewNop())

	summary := pool.Run(context.Background(), candidates("/a.mp4", "/b.mp4", "/c.mp4", "/d.mp4", "/e.mp4"))

	if summary.Total != 5 {
		t.Fatalf("total = %d", summary.Total)
	}
	if max := atomic.LoadInt32(&prober.maxSeen); max > 2 {
		t.Fatalf("observed %d concurrent probes with 2 workers", max)
	}
}

func TestRunClassifiesAndCounts(t *testing.T) {
	prober := &fakeProber{
		metaByPath: map[string]probe.Metadata{
			"/skip.mp4":   conformingMeta("/skip.mp4"),
			"/repack.mkv": matroskaMeta("/repack.mkv"),
		},
	}
	converter := &fakeConverter{}
	pool := New(2, prober, converter, testPolicy(), nil, logging.NewNop())

	summary := pool.Run(context.Background(), candidates("/skip.mp4", "/repack.mkv"))

	if summary.Skipped != 1 || summary.Repacked != 1 || summary.Failed != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	if len(converter.calls) != 1 || converter.calls[0] != "/repack.mkv" {
		t.Fatalf("converter calls = %v", converter.calls)
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	prober := &fakeProber{
		errByPath: map[string]error{
			"/broken.mp4": &probe.Error{Path: "/broken.mp4", Err: errors.New("moov atom not found")},
		},
	}
	pool := New(1, prober, &fakeConverter{}, testPolicy(), nil, logging.NewNop())

	summary := pool.Run(context.Background(), candidates("/broken.mp4", "/fine.mp4"))

	if summary.Failed != 1 || summary.Skipped != 1 {
		t.Fatalf("one failure must not stop the pass: %+v", summary)
	}
	for _, result := range summary.Results {
		if result.Path == "/broken.mp4" {
			var probeErr *probe.Error
			if !errors.As(result.Err, &probeErr) {
				t.Fatalf("failure must carry the probe error: %v", result.Err)
			}
			if result.Stage != StageFailed {
				t.Fatalf("stage = %q", result.Stage)
			}
		}
	}
}

func TestRunCachedSkipShortCircuitsProbe(t *testing.T) {
	cache := newMemoryCache()
	cands := candidates("/skip.mp4")
	_ = cache.Put(context.Background(), cands[0].Path, cands[0].SizeBytes, cands[0].MtimeNs, "SKIP", "already conformed", testPolicy().Fingerprint())

	prober := &fakeProber{}
	pool := New(1, prober, &fakeConverter{}, testPolicy(), cache, logging.NewNop())

	summary := pool.Run(context.Background(), cands)

	if summary.CacheHits != 1 || summary.Skipped != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if len(prober.calls) != 0 {
		t.Fatalf("cached skip must not probe: %v", prober.calls)
	}
}

func TestRunCachedTranscodeDoesNotShortCircuit(t *testing.T) {
	cache := newMemoryCache()
	cands := candidates("/work.mkv")
	_ = cache.Put(context.Background(), cands[0].Path, cands[0].SizeBytes, cands[0].MtimeNs, "TRANSCODE", "", testPolicy().Fingerprint())

	prober := &fakeProber{metaByPath: map[string]probe.Metadata{"/work.mkv": matroskaMeta("/work.mkv")}}
	pool := New(1, prober, &fakeConverter{}, testPolicy(), cache, logging.NewNop())

	summary := pool.Run(context.Background(), cands)

	if summary.CacheHits != 0 {
		t.Fatalf("non-skip entries must not hit: %+v", summary)
	}
	if len(prober.calls) != 1 {
		t.Fatalf("file must be re-probed: %v", prober.calls)
	}
}

func TestRunRecordsSkipDecisions(t *testing.T) {
	cache := newMemoryCache()
	cands := candidates("/skip.mp4")

	pool := New(1, &fakeProber{}, &fakeConverter{}, testPolicy(), cache, logging.NewNop())
	_ = pool.Run(context.Background(), cands)

	entry, _ := cache.Get(context.Background(), cands[0].Path, cands[0].SizeBytes, cands[0].MtimeNs)
	if entry == nil || entry.Action != "SKIP" {
		t.Fatalf("skip decision must be cached, got %+v", entry)
	}
	if entry.PolicyFingerprint != testPolicy().Fingerprint() {
		t.Fatalf("cached entry must carry the policy fingerprint, got %q", entry.PolicyFingerprint)
	}
}

func TestRunCachedSkipStaleAfterPolicyChange(t *testing.T) {
	oldPolicy := testPolicy()
	oldPolicy.AudioCodec = "mp3"

	cache := newMemoryCache()
	cands := candidates("/skip.mp4")
	_ = cache.Put(context.Background(), cands[0].Path, cands[0].SizeBytes, cands[0].MtimeNs, "SKIP", "already conformed", oldPolicy.Fingerprint())

	prober := &fakeProber{}
	pool := New(1, prober, &fakeConverter{}, testPolicy(), cache, logging.NewNop())

	summary := pool.Run(context.Background(), cands)

	if summary.CacheHits != 0 {
		t.Fatalf("entry from an older policy must not hit: %+v", summary)
	}
	if len(prober.calls) != 1 {
		t.Fatalf("file must be re-probed under the new policy: %v", prober.calls)
	}
}

func TestRunCancelledContextStopsDispatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	prober := &fakeProber{}
	pool := New(1, prober, &fakeConverter{}, testPolicy(), nil, logging.NewNop())

	summary := pool.Run(ctx, candidates("/a.mp4", "/b.mp4", "/c.mp4"))
	if summary.Total != 0 {
		t.Fatalf("cancelled run must not dispatch any candidate: %+v", summary)
	}
}

// drainingConverter cancels the pass context from inside a conversion. Its
// own context must stay live so the encode can finish.
type drainingConverter struct {
	cancel context.CancelFunc
}

func (d *drainingConverter) Convert(ctx context.Context, meta probe.Metadata, _ decide.Decision) (string, error) {
	d.cancel()
	time.Sleep(20 * time.Millisecond)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return meta.Path, nil
}

func TestRunDrainsInFlightConversion(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	prober := &fakeProber{metaByPath: map[string]probe.Metadata{
		"/a.mkv": matroskaMeta("/a.mkv"),
		"/b.mkv": matroskaMeta("/b.mkv"),
		"/c.mkv": matroskaMeta("/c.mkv"),
	}}
	pool := New(1, prober, &drainingConverter{cancel: cancel}, testPolicy(), nil, logging.NewNop())

	summary := pool.Run(ctx, candidates("/a.mkv", "/b.mkv", "/c.mkv"))

	if summary.Total == 0 {
		t.Fatalf("the in-flight file must be reported: %+v", summary)
	}
	for _, result := range summary.Results {
		if result.Failed() {
			t.Fatalf("shutdown must let the in-flight conversion finish: %+v", result)
		}
		if result.Stage != StageCommitted {
			t.Fatalf("stage = %q", result.Stage)
		}
	}
	if summary.Total >= 3 {
		t.Fatalf("shutdown must stop dispatching new files: %+v", summary)
	}
}

func TestResultJobIDsAreUnique(t *testing.T) {
	pool := New(2, &fakeProber{}, &fakeConverter{}, testPolicy(), nil, logging.NewNop())
	summary := pool.Run(context.Background(), candidates("/a.mp4", "/b.mp4", "/c.mp4"))

	seen := make(map[string]bool)
	for _, result := range summary.Results {
		if result.JobID == "" || seen[result.JobID] {
			t.Fatalf("job ids must be unique and non-empty: %+v", summary.Results)
		}
		seen[result.JobID] = true
	}
}
