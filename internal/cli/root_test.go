package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testhelpers "github.com/dl-alexandre/idxmirror/internal/testing"
)

var remoteTime = time.Date(2023, 6, 1, 8, 30, 0, 0, time.UTC)

type runResult struct {
	code   int
	stdout string
	stderr string
}

func run(t *testing.T, ctx context.Context, args ...string) runResult {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Run(ctx, args, &stdout, &stderr)
	return runResult{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func setupServer(t *testing.T) *testhelpers.IndexServer {
	t.Helper()
	t.Setenv("IDXMIRROR_CONFIG_DIR", t.TempDir())
	srv := testhelpers.NewIndexServer(t)
	srv.AddFile("/a.txt", []byte("alpha"), remoteTime)
	srv.AddFile("/sub/b.txt", []byte("bravo"), remoteTime)
	srv.AddRawEntry("/sub/", "../evil")
	srv.AddFile("/sub/sub2/c.txt", []byte("charlie"), remoteTime)
	return srv
}

func baseArgs(srv *testhelpers.IndexServer) []string {
	return []string{"--base-url", srv.BaseURL(), "--retry-delay", "1ms"}
}

func TestRun_MirrorsTree(t *testing.T) {
	srv := setupServer(t)
	dest := filepath.Join(t.TempDir(), "mirror")

	args := append(baseArgs(srv), "--exclude", "sub/sub2", dest)
	res := run(t, context.Background(), args...)

	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stderr, "Downloaded 2 files (0 skipped, 0 failed)")
	assert.Contains(t, res.stdout, "Downloaded")

	assert.FileExists(t, filepath.Join(dest, "a.txt"))
	assert.FileExists(t, filepath.Join(dest, "sub", "b.txt"))
	assert.NoDirExists(t, filepath.Join(dest, "sub", "sub2"))

	again := run(t, context.Background(), args...)
	require.Equal(t, 0, again.code)
	assert.Contains(t, again.stderr, "Downloaded 0 files (2 skipped, 0 failed)")
}

func TestRun_ExcludeFile(t *testing.T) {
	srv := setupServer(t)
	dir := t.TempDir()
	patterns := filepath.Join(dir, "excludes.txt")
	require.NoError(t, os.WriteFile(patterns, []byte("# skip the nested dir\n\nsub/sub2\n"), 0o644))

	args := append(baseArgs(srv), "--exclude-file", patterns, "--dry-run", filepath.Join(dir, "out"))
	res := run(t, context.Background(), args...)

	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, "/a.txt\n/sub/b.txt\n", res.stdout)
	assert.NoDirExists(t, filepath.Join(dir, "out"))
}

func TestRun_JSONOutput(t *testing.T) {
	srv := setupServer(t)
	dest := t.TempDir()

	args := append(baseArgs(srv), "--json", dest)
	res := run(t, context.Background(), args...)
	require.Equal(t, 0, res.code, res.stderr)

	var output struct {
		SchemaVersion string `json:"schemaVersion"`
		TraceID       string `json:"traceId"`
		Command       string `json:"command"`
		Data          struct {
			Files   []string `json:"files"`
			Summary struct {
				Downloaded int `json:"downloaded"`
				Skipped    int `json:"skipped"`
				Failed     int `json:"failed"`
			} `json:"summary"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &output))

	assert.Equal(t, "1.0", output.SchemaVersion)
	assert.NotEmpty(t, output.TraceID)
	assert.Equal(t, "mirror", output.Command)
	assert.Equal(t, []string{"/a.txt", "/sub/b.txt", "/sub/sub2/c.txt"}, output.Data.Files)
	assert.Equal(t, 3, output.Data.Summary.Downloaded)
}

func TestRun_FailedFileExitsNonZero(t *testing.T) {
	srv := setupServer(t)
	srv.FailFile("/a.txt", 10, http.StatusInternalServerError)

	args := append(baseArgs(srv), "--json", "--retries", "2", t.TempDir())
	res := run(t, context.Background(), args...)

	assert.Equal(t, 1, res.code)
	assert.Equal(t, 2, srv.Requests("/a.txt"))
	assert.Contains(t, res.stdout, "PARTIAL_FAILURE")
	assert.Contains(t, res.stderr, "Downloaded 2 files (0 skipped, 1 failed)")
}

func TestRun_ListingFailure(t *testing.T) {
	srv := setupServer(t)
	srv.FailDir("/sub/", http.StatusServiceUnavailable)

	args := append(baseArgs(srv), t.TempDir())
	res := run(t, context.Background(), args...)

	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "LISTING_FAILED")
	assert.Zero(t, srv.Requests("/a.txt"))
}

func TestRun_Aborted(t *testing.T) {
	srv := setupServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	args := append(baseArgs(srv), t.TempDir())
	res := run(t, ctx, args...)

	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "Aborted")
}

func TestRun_InvalidInvocation(t *testing.T) {
	t.Setenv("IDXMIRROR_CONFIG_DIR", t.TempDir())

	tests := []struct {
		name string
		args []string
	}{
		{"missing destination", nil},
		{"extra argument", []string{"a", "b"}},
		{"bad output format", []string{"--output", "xml", "dest"}},
		{"bad retries", []string{"--retries", "0", "dest"}},
		{"bad pattern", []string{"--exclude", `a\b`, "--base-url", "http://127.0.0.1:1/files", "dest"}},
		{"root escapes base", []string{"--root", "../x", "--base-url", "http://127.0.0.1:1/files", "dest"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := tt.args
			if len(args) > 0 && args[len(args)-1] == "dest" {
				args = append(append([]string{}, args[:len(args)-1]...), filepath.Join(t.TempDir(), "dest"))
			}
			res := run(t, context.Background(), args...)
			assert.Equal(t, 1, res.code)
		})
	}
}

func TestRun_DestinationIsFile(t *testing.T) {
	srv := setupServer(t)
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	res := run(t, context.Background(), append(baseArgs(srv), file)...)
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "not a directory")
}

func TestRun_Version(t *testing.T) {
	t.Setenv("IDXMIRROR_CONFIG_DIR", t.TempDir())

	res := run(t, context.Background(), "version")
	require.Equal(t, 0, res.code)
	assert.True(t, strings.HasPrefix(res.stdout, "idxmirror "))
}

func TestRun_ConfigShowAndReset(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("IDXMIRROR_CONFIG_DIR", dir)

	res := run(t, context.Background(), "config", "reset")
	require.Equal(t, 0, res.code, res.stderr)
	assert.FileExists(t, filepath.Join(dir, "config.json"))

	res = run(t, context.Background(), "config", "show", "--json")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, `"baseURL": "https://myrient.erista.me/files"`)

	res = run(t, context.Background(), "config", "path")
	require.Equal(t, 0, res.code)
	assert.Equal(t, filepath.Join(dir, "config.json")+"\n", res.stdout)
}
