package files

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dl-alexandre/idxmirror/internal/api"
	"github.com/dl-alexandre/idxmirror/internal/errors"
	"github.com/dl-alexandre/idxmirror/internal/logging"
	"github.com/dl-alexandre/idxmirror/internal/progress"
	"github.com/dl-alexandre/idxmirror/internal/sync/scanner"
	"github.com/dl-alexandre/idxmirror/internal/utils"
)

// Manager mirrors remote files into a local destination root
type Manager struct {
	client    *api.Client
	destRoot  string
	chunkSize int
	progress  progress.Reporter
	logger    logging.Logger
}

// ManagerOptions configures a Manager
type ManagerOptions struct {
	DestRoot  string
	ChunkSize int
	Progress  progress.Reporter
}

// NewManager creates a new file manager
func NewManager(client *api.Client, opts ManagerOptions) *Manager {
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = utils.DefaultChunkSize
	}
	reporter := opts.Progress
	if reporter == nil {
		reporter = progress.Discard
	}
	return &Manager{
		client:    client,
		destRoot:  opts.DestRoot,
		chunkSize: chunkSize,
		progress:  reporter,
		logger:    client.Logger(),
	}
}

// LocalPath maps an absolute remote path into the destination root. Paths
// that would resolve outside the root are rejected.
func (m *Manager) LocalPath(remotePath string) (string, error) {
	rel := filepath.Clean(filepath.FromSlash(strings.TrimLeft(remotePath, "/")))
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
			fmt.Sprintf("remote path %q escapes the destination", remotePath)).
			WithContext("path", remotePath).
			Build())
	}
	return filepath.Join(m.destRoot, rel), nil
}

// Sync makes one attempt at mirroring remotePath. An existing local copy
// turns the request into a conditional GET keyed on its modification time.
func (m *Manager) Sync(ctx context.Context, remotePath string) (Transfer, error) {
	dest, err := m.LocalPath(remotePath)
	if err != nil {
		return Transfer{}, err
	}

	header := http.Header{}
	if info, err := os.Stat(dest); err == nil && info.Mode().IsRegular() {
		header.Set("If-Modified-Since", info.ModTime().UTC().Format(http.TimeFormat))
	}

	resp, err := m.client.Get(ctx, remotePath, header)
	if err != nil {
		return Transfer{}, errors.ClassifyTransportError(errors.OpFetch, remotePath, err, m.logger)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotModified:
		m.logger.Info("Skipping", logging.F("path", remotePath))
		return Transfer{Outcome: OutcomeSkipped}, nil
	case http.StatusOK:
		n, err := m.materialize(ctx, remotePath, dest, resp)
		if err != nil {
			return Transfer{}, err
		}
		return Transfer{Outcome: OutcomeDownloaded, Bytes: n}, nil
	default:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return Transfer{}, errors.ClassifyHTTPStatus(errors.OpFetch, remotePath, resp.StatusCode, m.logger)
	}
}

// materialize streams the body into a uniquely named <dest>.*.tmp in the
// same directory, stamps it with the remote modification time and renames it
// over dest. Unique names keep concurrent transfers of /a and /a.tmp apart.
func (m *Manager) materialize(ctx context.Context, remotePath, dest string, resp *http.Response) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, errors.LocalIOError(remotePath, dest, err)
	}

	m.logger.Info("Downloading",
		logging.F("path", remotePath),
		logging.F("size", sizeLabel(resp.ContentLength)),
	)

	f, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".*"+utils.TempFileSuffix)
	if err != nil {
		return 0, errors.LocalIOError(remotePath, dest, err)
	}
	tmp := f.Name()
	if err := os.Chmod(tmp, 0o644); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return 0, errors.LocalIOError(remotePath, tmp, err)
	}

	tracker := m.progress.Start(remotePath, resp.ContentLength)
	written, copyErr := m.copyChunks(remotePath, tmp, f, resp.Body, tracker)
	tracker.Finish()

	closeErr := f.Close()
	if copyErr == nil && closeErr != nil {
		copyErr = errors.LocalIOError(remotePath, tmp, closeErr)
	}
	if copyErr == nil && resp.ContentLength >= 0 && written != resp.ContentLength {
		copyErr = errors.ClassifyTransportError(errors.OpFetch, remotePath, io.ErrUnexpectedEOF, m.logger)
	}
	if copyErr != nil {
		_ = os.Remove(tmp)
		if ctx.Err() != nil {
			return written, errors.ClassifyTransportError(errors.OpFetch, remotePath, ctx.Err(), m.logger)
		}
		return written, copyErr
	}

	if mtime, ok := remoteModTime(resp.Header); ok {
		if err := os.Chtimes(tmp, time.Time{}, mtime); err != nil {
			_ = os.Remove(tmp)
			return written, errors.LocalIOError(remotePath, tmp, err)
		}
	}

	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return written, errors.LocalIOError(remotePath, dest, err)
	}
	return written, nil
}

func (m *Manager) copyChunks(remotePath, tmp string, w io.Writer, r io.Reader, tracker progress.Tracker) (int64, error) {
	buf := make([]byte, m.chunkSize)
	var written int64
	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return written, errors.LocalIOError(remotePath, tmp, err)
			}
			written += int64(n)
			tracker.Add(int64(n))
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, errors.ClassifyTransportError(errors.OpFetch, remotePath, readErr, m.logger)
		}
	}
}

// SyncWithRetry mirrors remotePath, retrying transient failures with the
// client's fixed delay. Failures are reported in the Result, never returned.
func (m *Manager) SyncWithRetry(ctx context.Context, remotePath string) Result {
	result := Result{Path: remotePath}
	transfer, err := api.ExecuteWithRetry(ctx, m.client, remotePath, func(attempt int) (Transfer, error) {
		result.Attempts = attempt
		if attempt > 1 {
			m.logger.Info("Retrying",
				logging.F("path", remotePath),
				logging.F("attempt", fmt.Sprintf("%d of %d", attempt, m.client.MaxRetries())),
			)
		}
		return m.Sync(ctx, remotePath)
	})
	if err != nil {
		result.Outcome = OutcomeFailed
		result.Err = err
		if !errors.IsCancelled(err) {
			m.logger.Error("Failed to download",
				logging.F("path", remotePath),
				logging.F("error", err.Error()),
			)
		}
		return result
	}

	result.Outcome = transfer.Outcome
	result.Bytes = transfer.Bytes
	return result
}

// remoteModTime picks Last-Modified, falling back to Date
func remoteModTime(h http.Header) (time.Time, bool) {
	if t, ok := scanner.ParseHTTPDate(h.Get("Last-Modified")); ok {
		return t, true
	}
	return scanner.ParseHTTPDate(h.Get("Date"))
}

func sizeLabel(n int64) string {
	if n < 0 {
		return "unknown size"
	}
	return utils.FormatSize(n)
}
