package sync

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dl-alexandre/idxmirror/internal/api"
	"github.com/dl-alexandre/idxmirror/internal/errors"
	"github.com/dl-alexandre/idxmirror/internal/logging"
	testhelpers "github.com/dl-alexandre/idxmirror/internal/testing"
	"github.com/dl-alexandre/idxmirror/internal/utils"
)

var remoteTime = time.Date(2023, 6, 1, 8, 30, 0, 0, time.UTC)

func newEngine(t *testing.T, srv *testhelpers.IndexServer) *Engine {
	t.Helper()
	client, err := api.NewClient(api.ClientOptions{
		BaseURL:    srv.BaseURL(),
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
	})
	require.NoError(t, err)
	return NewEngine(client)
}

func scenario(t *testing.T) *testhelpers.IndexServer {
	srv := testhelpers.NewIndexServer(t)
	srv.AddFile("/a.txt", []byte("alpha"), remoteTime)
	srv.AddFile("/sub/b.txt", []byte("bravo"), remoteTime.Add(time.Hour))
	srv.AddRawEntry("/sub/", "../evil")
	srv.AddFile("/sub/sub2/c.txt", []byte("charlie"), remoteTime)
	return srv
}

func listTree(t *testing.T, root string) []string {
	t.Helper()
	var out []string
	err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			rel, _ := filepath.Rel(root, p)
			out = append(out, filepath.ToSlash(rel))
		}
		return nil
	})
	require.NoError(t, err)
	sort.Strings(out)
	return out
}

func TestEngine_RunEndToEnd(t *testing.T) {
	srv := scenario(t)
	dest := t.TempDir()

	local := filepath.Join(dest, "a.txt")
	require.NoError(t, os.WriteFile(local, []byte("alpha"), 0o644))
	require.NoError(t, os.Chtimes(local, remoteTime, remoteTime))

	result, err := newEngine(t, srv).Run(context.Background(), Options{
		DestRoot: dest,
		Root:     "/",
		Excludes: []string{"sub/sub2"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"/a.txt", "/sub/b.txt"}, result.Files)
	assert.Equal(t, 1, result.Summary.Downloaded)
	assert.Equal(t, 1, result.Summary.Skipped)
	assert.Zero(t, result.Summary.Failed)
	assert.False(t, result.Failed())

	assert.Equal(t, []string{"a.txt", "sub/b.txt"}, listTree(t, dest))

	info, err := os.Stat(filepath.Join(dest, "sub", "b.txt"))
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(remoteTime.Add(time.Hour)))

	info, err = os.Stat(local)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(remoteTime))
	assert.Zero(t, srv.Requests("/sub/sub2/"))
}

func TestEngine_RunTwiceSkipsEverything(t *testing.T) {
	srv := scenario(t)
	dest := t.TempDir()
	engine := newEngine(t, srv)

	first, err := engine.Run(context.Background(), Options{DestRoot: dest})
	require.NoError(t, err)
	assert.Equal(t, 3, first.Summary.Downloaded)

	second, err := engine.Run(context.Background(), Options{DestRoot: dest})
	require.NoError(t, err)
	assert.Zero(t, second.Summary.Downloaded)
	assert.Equal(t, 3, second.Summary.Skipped)
	assert.Equal(t, first.Files, second.Files)
}

func TestEngine_PlanLogsNormalizedPatterns(t *testing.T) {
	srv := scenario(t)
	var buf bytes.Buffer
	client, err := api.NewClient(api.ClientOptions{
		BaseURL: srv.BaseURL(),
		Logger:  logging.NewConsoleLogger(logging.ConsoleLoggerConfig{Writer: &buf, Level: logging.DEBUG}),
	})
	require.NoError(t, err)

	paths, err := NewEngine(client).Plan(context.Background(), Options{Excludes: []string{"/sub/sub2/"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"/a.txt", "/sub/b.txt"}, paths)
	assert.Contains(t, buf.String(), "Exclude patterns compiled count=1, patterns=sub/sub2\n")
}

func TestEngine_RunDryRun(t *testing.T) {
	srv := scenario(t)
	dest := t.TempDir()

	result, err := newEngine(t, srv).Run(context.Background(), Options{DestRoot: dest, DryRun: true})
	require.NoError(t, err)

	assert.True(t, result.DryRun)
	assert.Equal(t, []string{"/a.txt", "/sub/b.txt", "/sub/sub2/c.txt"}, result.Files)
	assert.Empty(t, listTree(t, dest))
	assert.Zero(t, srv.Requests("/a.txt"))
}

func TestEngine_RunPartialFailure(t *testing.T) {
	srv := scenario(t)
	srv.FailFile("/a.txt", 5, http.StatusBadGateway)
	dest := t.TempDir()

	result, err := newEngine(t, srv).Run(context.Background(), Options{DestRoot: dest, Concurrency: 2})
	require.NoError(t, err)

	assert.True(t, result.Failed())
	assert.Equal(t, 1, result.Summary.Failed)
	assert.Equal(t, 2, result.Summary.Downloaded)
	assert.Equal(t, []string{"/a.txt"}, result.Summary.FailedPaths)
	assert.Equal(t, 3, srv.Requests("/a.txt"))
}

func TestEngine_RunConcurrentTempNamesDoNotCollide(t *testing.T) {
	srv := testhelpers.NewIndexServer(t)
	srv.AddFile("/a", []byte("AAAAAAAAAA"), remoteTime)
	srv.AddFile("/a.tmp", []byte("TMPFILE"), remoteTime.Add(time.Hour))
	srv.DelayFile("/a", 200*time.Millisecond)
	dest := t.TempDir()

	result, err := newEngine(t, srv).Run(context.Background(), Options{DestRoot: dest, Concurrency: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Summary.Downloaded)
	assert.Zero(t, result.Summary.Failed)

	assert.Equal(t, []string{"a", "a.tmp"}, listTree(t, dest))

	data, err := os.ReadFile(filepath.Join(dest, "a"))
	require.NoError(t, err)
	assert.Equal(t, "AAAAAAAAAA", string(data))

	data, err = os.ReadFile(filepath.Join(dest, "a.tmp"))
	require.NoError(t, err)
	assert.Equal(t, "TMPFILE", string(data))

	info, err := os.Stat(filepath.Join(dest, "a"))
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(remoteTime))
}

func TestEngine_RunListingFailure(t *testing.T) {
	srv := scenario(t)
	srv.FailDir("/sub/", http.StatusForbidden)

	_, err := newEngine(t, srv).Run(context.Background(), Options{DestRoot: t.TempDir()})
	require.Error(t, err)
	assert.Equal(t, utils.ErrCodeListingFailed, errors.Code(err))
	assert.Zero(t, srv.Requests("/a.txt"), "no file is fetched when the tree is incomplete")
}

func TestEngine_RunInvalidPattern(t *testing.T) {
	srv := scenario(t)

	_, err := newEngine(t, srv).Run(context.Background(), Options{
		DestRoot: t.TempDir(),
		Excludes: []string{`bad\pattern`},
	})
	require.Error(t, err)
	assert.Equal(t, utils.ErrCodeInvalidPattern, errors.Code(err))
	assert.Zero(t, srv.Requests("/"))
}

func TestEngine_RunCancelled(t *testing.T) {
	srv := scenario(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newEngine(t, srv).Run(ctx, Options{DestRoot: t.TempDir()})
	require.Error(t, err)
	assert.True(t, errors.IsCancelled(err))
}
