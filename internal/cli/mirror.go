package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"

	"github.com/dl-alexandre/idxmirror/internal/api"
	"github.com/dl-alexandre/idxmirror/internal/errors"
	"github.com/dl-alexandre/idxmirror/internal/logging"
	"github.com/dl-alexandre/idxmirror/internal/progress"
	"github.com/dl-alexandre/idxmirror/internal/sync"
	"github.com/dl-alexandre/idxmirror/internal/types"
	"github.com/dl-alexandre/idxmirror/internal/utils"
)

const mirrorCommand = "mirror"

// runMirror mirrors the remote tree into destDir and returns the exit code
func (a *app) runMirror(ctx context.Context, destDir string) int {
	out := a.output()

	if err := a.prepareDest(destDir); err != nil {
		return a.fail(out, err)
	}

	transport := api.NewTransport(a.cfg.GetRequestTimeout())
	clientOpts := api.ClientOptions{
		BaseURL:        a.cfg.BaseURL,
		MaxRetries:     a.cfg.MaxRetries,
		RetryDelay:     a.cfg.GetRetryDelay(),
		RequestTimeout: a.cfg.GetRequestTimeout(),
		Transport:      transport,
		Logger:         a.logger,
	}
	if a.transport != nil {
		clientOpts.Transport = a.transport.Wrap(transport)
	}
	client, err := api.NewClient(clientOpts)
	if err != nil {
		return a.fail(out, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument, err.Error()).Build(), err))
	}

	var reporter progress.Reporter = progress.Discard
	if a.cfg.ShowProgress && a.cfg.LogLevel != "quiet" && a.terminal.Interactive() {
		reporter = a.terminal
	}

	a.logger.Debug("Mirror starting",
		logging.F("baseURL", a.cfg.BaseURL),
		logging.F("root", a.mirrorFlags.Root),
		logging.F("dest", destDir),
		logging.F("concurrency", a.cfg.Concurrency),
		logging.F("dryRun", a.globalFlags.DryRun),
	)

	engine := sync.NewEngine(client)
	result, err := engine.Run(ctx, sync.Options{
		DestRoot:     destDir,
		Root:         a.mirrorFlags.Root,
		Excludes:     append(append([]string{}, a.cfg.Excludes...), a.mirrorFlags.Excludes...),
		ExcludeFiles: a.mirrorFlags.ExcludeFiles,
		Concurrency:  a.cfg.Concurrency,
		ChunkSize:    a.cfg.ChunkSize,
		DryRun:       a.globalFlags.DryRun,
		Progress:     reporter,
	})
	if err != nil {
		return a.fail(out, err)
	}

	if result.DryRun {
		if a.cfg.OutputFormat == types.OutputFormatJSON {
			_ = out.WriteSuccess(mirrorCommand, result)
		} else {
			_ = out.WriteLines(result.Files)
		}
		return utils.ExitSuccess
	}

	var data interface{} = result.Summary
	if a.cfg.OutputFormat == types.OutputFormatJSON {
		data = result
	}
	if result.Failed() {
		out.AddWarning(utils.ErrCodePartialFailure,
			fmt.Sprintf("%d of %d files failed", result.Summary.Failed, result.Summary.Total()), "error")
	}
	if err := out.WriteSuccess(mirrorCommand, data); err != nil {
		a.logger.Error("Failed to write output", logging.F("error", err.Error()))
	}

	if result.Failed() {
		return utils.GetExitCode(utils.ErrCodePartialFailure)
	}
	return utils.ExitSuccess
}

// prepareDest makes sure destDir is usable as the mirror root
func (a *app) prepareDest(destDir string) error {
	if destDir == "" {
		return utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument, "destination directory must not be empty").Build())
	}
	info, err := os.Stat(destDir)
	switch {
	case err == nil && !info.IsDir():
		return utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
			fmt.Sprintf("destination %s is not a directory", destDir)).
			WithContext("dest", destDir).
			Build())
	case err == nil:
		return nil
	case !stderrors.Is(err, os.ErrNotExist):
		return errors.LocalIOError("", destDir, err)
	case a.globalFlags.DryRun:
		return nil
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return errors.LocalIOError("", destDir, err)
	}
	return nil
}

// fail reports err and maps it to an exit code. Cancellation prints Aborted.
func (a *app) fail(out *OutputWriter, err error) int {
	if errors.IsCancelled(err) {
		fmt.Fprintln(a.terminal, "Aborted")
		return utils.ExitAborted
	}

	cliErr := utils.NewCLIError(utils.ErrCodeUnknown, err.Error()).Build()
	var appErr *utils.AppError
	if stderrors.As(err, &appErr) {
		cliErr = appErr.CLIError
	}
	a.logger.Error(cliErr.Message, logging.F("code", cliErr.Code))
	_ = out.WriteError(mirrorCommand, cliErr)
	return utils.GetExitCode(cliErr.Code)
}
