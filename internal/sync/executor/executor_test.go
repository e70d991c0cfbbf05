package executor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dl-alexandre/idxmirror/internal/errors"
	"github.com/dl-alexandre/idxmirror/internal/files"
)

type fakeSyncer struct {
	mu       sync.Mutex
	outcomes map[string]files.Outcome
	calls    []string
	inFlight int32
	peak     int32
	delay    time.Duration
	onCall   func(path string)
}

func (f *fakeSyncer) SyncWithRetry(ctx context.Context, p string) files.Result {
	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		peak := atomic.LoadInt32(&f.peak)
		if n <= peak || atomic.CompareAndSwapInt32(&f.peak, peak, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, p)
	outcome := f.outcomes[p]
	f.mu.Unlock()

	if f.onCall != nil {
		f.onCall(p)
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if ctx.Err() != nil {
		return files.Result{Path: p, Outcome: files.OutcomeFailed, Err: fmt.Errorf("get: %w", ctx.Err())}
	}

	if outcome == 0 {
		outcome = files.OutcomeDownloaded
	}
	r := files.Result{Path: p, Outcome: outcome}
	if outcome == files.OutcomeDownloaded {
		r.Bytes = 10
	}
	return r
}

func TestExecutor_SequentialKeepsOrder(t *testing.T) {
	syncer := &fakeSyncer{outcomes: map[string]files.Outcome{
		"/b": files.OutcomeSkipped,
		"/c": files.OutcomeFailed,
	}}
	exec := New(syncer, nil)

	summary, err := exec.Apply(context.Background(), []string{"/a", "/b", "/c", "/d"}, Options{Concurrency: 1})
	require.NoError(t, err)

	assert.Equal(t, []string{"/a", "/b", "/c", "/d"}, syncer.calls)
	assert.Equal(t, 2, summary.Downloaded)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, int64(20), summary.Bytes)
	assert.Equal(t, []string{"/c"}, summary.FailedPaths)
	assert.Equal(t, "Downloaded 2 files (1 skipped, 1 failed)", summary.String())
}

func TestExecutor_ConcurrentMatchesSequential(t *testing.T) {
	paths := make([]string, 0, 20)
	outcomes := map[string]files.Outcome{}
	for i := 0; i < 20; i++ {
		p := fmt.Sprintf("/f%02d", i)
		paths = append(paths, p)
		switch i % 3 {
		case 1:
			outcomes[p] = files.OutcomeSkipped
		case 2:
			outcomes[p] = files.OutcomeFailed
		}
	}

	seq, err := New(&fakeSyncer{outcomes: outcomes}, nil).Apply(context.Background(), paths, Options{Concurrency: 1})
	require.NoError(t, err)

	syncer := &fakeSyncer{outcomes: outcomes, delay: 5 * time.Millisecond}
	par, err := New(syncer, nil).Apply(context.Background(), paths, Options{Concurrency: 4})
	require.NoError(t, err)

	assert.Equal(t, seq, par)
	assert.LessOrEqual(t, atomic.LoadInt32(&syncer.peak), int32(4))
	assert.Len(t, syncer.calls, 20)
}

func TestExecutor_CancellationStopsRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	syncer := &fakeSyncer{onCall: func(p string) {
		if p == "/b" {
			cancel()
		}
	}}
	summary, err := New(syncer, nil).Apply(ctx, []string{"/a", "/b", "/c"}, Options{Concurrency: 1})

	require.Error(t, err)
	assert.True(t, errors.IsCancelled(err))
	assert.Equal(t, []string{"/a", "/b"}, syncer.calls)
	assert.Equal(t, 1, summary.Downloaded)
	assert.Zero(t, summary.Failed)
}

func TestExecutor_ConcurrentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(&fakeSyncer{}, nil).Apply(ctx, []string{"/a", "/b"}, Options{Concurrency: 2})
	require.Error(t, err)
	assert.True(t, errors.IsCancelled(err))
}

func TestSummary_Table(t *testing.T) {
	s := Summary{Downloaded: 1, Skipped: 2, Failed: 1, Bytes: 2048, FailedPaths: []string{"/x"}}
	table := s.AsTableRenderer()

	assert.Equal(t, []string{"Outcome", "Count"}, table.Headers())
	rows := table.Rows()
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"Downloaded", "1 (2.0 KB)"}, rows[0])
	assert.Equal(t, []string{"  failed", "/x"}, rows[3])
	assert.Equal(t, 4, s.Total())
}
