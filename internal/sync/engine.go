package sync

import (
	"context"
	"strings"

	"github.com/dl-alexandre/idxmirror/internal/api"
	"github.com/dl-alexandre/idxmirror/internal/files"
	"github.com/dl-alexandre/idxmirror/internal/logging"
	"github.com/dl-alexandre/idxmirror/internal/progress"
	"github.com/dl-alexandre/idxmirror/internal/sync/exclude"
	"github.com/dl-alexandre/idxmirror/internal/sync/executor"
	"github.com/dl-alexandre/idxmirror/internal/sync/scanner"
)

type Engine struct {
	client        *api.Client
	remoteScanner *scanner.RemoteScanner
	logger        logging.Logger
}

type Options struct {
	DestRoot     string
	Root         string
	Excludes     []string
	ExcludeFiles []string
	Concurrency  int
	ChunkSize    int
	DryRun       bool
	Progress     progress.Reporter
}

type Result struct {
	Files   []string         `json:"files"`
	DryRun  bool             `json:"dryRun"`
	Summary executor.Summary `json:"summary"`
}

// Failed reports whether any file ended in the Failed outcome
func (r Result) Failed() bool {
	return r.Summary.Failed > 0
}

func NewEngine(client *api.Client) *Engine {
	return &Engine{
		client:        client,
		remoteScanner: scanner.NewRemoteScanner(client),
		logger:        client.Logger(),
	}
}

// Plan compiles the exclude patterns and walks the remote tree
func (e *Engine) Plan(ctx context.Context, opts Options) ([]string, error) {
	patterns, err := exclude.Collect(opts.Excludes, opts.ExcludeFiles)
	if err != nil {
		return nil, err
	}
	matcher, err := exclude.Compile(patterns)
	if err != nil {
		return nil, err
	}
	if normalized := matcher.Patterns(); len(normalized) > 0 {
		e.logger.Debug("Exclude patterns compiled",
			logging.F("count", len(normalized)),
			logging.F("patterns", strings.Join(normalized, " ")),
		)
	}

	paths, err := e.remoteScanner.ListTree(ctx, opts.Root, matcher)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("Remote tree scanned", logging.F("files", len(paths)))
	return paths, nil
}

// Run plans the mirror and synchronizes every file in order. A listing
// failure or cancellation returns an error; per-file failures only show up
// in the summary.
func (e *Engine) Run(ctx context.Context, opts Options) (Result, error) {
	paths, err := e.Plan(ctx, opts)
	if err != nil {
		return Result{}, err
	}

	result := Result{Files: paths, DryRun: opts.DryRun, Summary: executor.Summary{FailedPaths: []string{}}}
	if opts.DryRun {
		return result, nil
	}

	reporter := opts.Progress
	if opts.Concurrency > 1 || reporter == nil {
		reporter = progress.Discard
	}
	filesMgr := files.NewManager(e.client, files.ManagerOptions{
		DestRoot:  opts.DestRoot,
		ChunkSize: opts.ChunkSize,
		Progress:  reporter,
	})

	summary, err := executor.New(filesMgr, e.logger).Apply(ctx, paths, executor.Options{
		Concurrency: opts.Concurrency,
	})
	result.Summary = summary
	if err != nil {
		return result, err
	}

	e.logger.Info(summary.String())
	return result, nil
}
