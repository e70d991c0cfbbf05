package executor

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dl-alexandre/idxmirror/internal/errors"
	"github.com/dl-alexandre/idxmirror/internal/files"
	"github.com/dl-alexandre/idxmirror/internal/logging"
	"github.com/dl-alexandre/idxmirror/internal/types"
	"github.com/dl-alexandre/idxmirror/internal/utils"
)

// Syncer mirrors one remote file, retrying as it sees fit
type Syncer interface {
	SyncWithRetry(ctx context.Context, remotePath string) files.Result
}

type Executor struct {
	syncer Syncer
	logger logging.Logger
}

type Options struct {
	Concurrency int
}

// Summary aggregates per-file outcomes. Counts do not depend on the order
// in which files complete.
type Summary struct {
	Downloaded  int      `json:"downloaded"`
	Skipped     int      `json:"skipped"`
	Failed      int      `json:"failed"`
	Bytes       int64    `json:"bytes"`
	FailedPaths []string `json:"failedPaths"`
}

func New(syncer Syncer, logger logging.Logger) *Executor {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Executor{syncer: syncer, logger: logger}
}

// Apply synchronizes paths. A failed file is counted and the run goes on;
// only cancellation stops it early, returning the partial summary.
func (e *Executor) Apply(ctx context.Context, paths []string, opts Options) (Summary, error) {
	summary := Summary{FailedPaths: []string{}}
	if opts.Concurrency <= 1 {
		for _, p := range paths {
			if err := ctx.Err(); err != nil {
				return summary, cancelled(p, err, e.logger)
			}
			result := e.syncer.SyncWithRetry(ctx, p)
			if errors.IsCancelled(result.Err) {
				return summary, result.Err
			}
			summary.add(result)
		}
		return summary, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for _, p := range paths {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			result := e.syncer.SyncWithRetry(gctx, p)
			if errors.IsCancelled(result.Err) {
				return result.Err
			}
			mu.Lock()
			summary.add(result)
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()
	sort.Strings(summary.FailedPaths)

	if ctxErr := ctx.Err(); ctxErr != nil {
		return summary, cancelled("", ctxErr, e.logger)
	}
	return summary, err
}

func cancelled(p string, err error, logger logging.Logger) error {
	return errors.ClassifyTransportError(errors.OpFetch, p, err, logger)
}

func (s *Summary) add(r files.Result) {
	switch r.Outcome {
	case files.OutcomeDownloaded:
		s.Downloaded++
		s.Bytes += r.Bytes
	case files.OutcomeSkipped:
		s.Skipped++
	default:
		s.Failed++
		s.FailedPaths = append(s.FailedPaths, r.Path)
	}
}

// Total is the number of files accounted for
func (s Summary) Total() int {
	return s.Downloaded + s.Skipped + s.Failed
}

// String renders the one-line run summary
func (s Summary) String() string {
	return fmt.Sprintf("Downloaded %d files (%d skipped, %d failed)", s.Downloaded, s.Skipped, s.Failed)
}

// AsTableRenderer implements types.TableRenderable
func (s Summary) AsTableRenderer() types.TableRenderer {
	return summaryTable{s}
}

type summaryTable struct {
	s Summary
}

func (t summaryTable) Headers() []string {
	return []string{"Outcome", "Count"}
}

func (t summaryTable) Rows() [][]string {
	rows := [][]string{
		{"Downloaded", fmt.Sprintf("%d (%s)", t.s.Downloaded, utils.FormatSize(t.s.Bytes))},
		{"Skipped", fmt.Sprint(t.s.Skipped)},
		{"Failed", fmt.Sprint(t.s.Failed)},
	}
	for _, p := range t.s.FailedPaths {
		rows = append(rows, []string{"  failed", p})
	}
	return rows
}

func (t summaryTable) EmptyMessage() string {
	return "No files to synchronize"
}
