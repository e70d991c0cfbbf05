package scanner

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dl-alexandre/idxmirror/internal/api"
	"github.com/dl-alexandre/idxmirror/internal/errors"
	"github.com/dl-alexandre/idxmirror/internal/sync/exclude"
	testhelpers "github.com/dl-alexandre/idxmirror/internal/testing"
	"github.com/dl-alexandre/idxmirror/internal/utils"
)

var modTime = time.Date(2023, 6, 1, 8, 30, 0, 0, time.UTC)

func newScanner(t *testing.T, srv *testhelpers.IndexServer) *RemoteScanner {
	t.Helper()
	client, err := api.NewClient(api.ClientOptions{
		BaseURL:    srv.BaseURL(),
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
	})
	require.NoError(t, err)
	return NewRemoteScanner(client)
}

func sampleTree(t *testing.T) *testhelpers.IndexServer {
	srv := testhelpers.NewIndexServer(t)
	srv.AddFile("/a.txt", []byte("alpha"), modTime)
	srv.AddFile("/sub/b.txt", []byte("bravo"), modTime)
	srv.AddRawEntry("/sub/", "../evil")
	srv.AddFile("/sub/sub2/c.txt", []byte("charlie"), modTime)
	srv.AddFile("/z/last.bin", []byte("zulu"), modTime)
	srv.AddFile("/Game (USA)/disc 1.iso", []byte("iso"), modTime)
	return srv
}

func TestRemoteScanner_ListDir(t *testing.T) {
	srv := sampleTree(t)
	s := newScanner(t, srv)

	entries, err := s.ListDir(context.Background(), "/sub/")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"b.txt", "sub2/"}, names(entries))
	for _, e := range entries {
		assert.True(t, srv.Date().Equal(e.LastModified))
	}
}

func TestRemoteScanner_ListDirNonOK(t *testing.T) {
	srv := sampleTree(t)
	srv.FailDir("/sub/", http.StatusServiceUnavailable)
	s := newScanner(t, srv)

	_, err := s.ListDir(context.Background(), "/sub/")
	require.Error(t, err)
	assert.Equal(t, utils.ErrCodeListingFailed, errors.Code(err))
	assert.Equal(t, 1, srv.Requests("/sub/"), "listings are not retried")
}

func TestRemoteScanner_ListTree(t *testing.T) {
	srv := sampleTree(t)
	s := newScanner(t, srv)
	matcher := exclude.MustCompile("sub/sub2")

	files, err := s.ListTree(context.Background(), "/", matcher)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"/Game (USA)/disc 1.iso",
		"/a.txt",
		"/sub/b.txt",
		"/z/last.bin",
	}, files)
	assert.Zero(t, srv.Requests("/sub/sub2/"), "excluded directories are never listed")
	assert.Zero(t, srv.Requests("/evil"))
}

func TestRemoteScanner_ListTreeDeterministic(t *testing.T) {
	srv := sampleTree(t)
	s := newScanner(t, srv)

	first, err := s.ListTree(context.Background(), "/", nil)
	require.NoError(t, err)
	second, err := s.ListTree(context.Background(), "/", nil)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Contains(t, first, "/sub/sub2/c.txt")
}

func TestRemoteScanner_ListTreeVisitsOnce(t *testing.T) {
	srv := sampleTree(t)
	srv.AddRawEntry("/", "sub/")
	srv.AddRawEntry("/sub/", "b.txt")
	s := newScanner(t, srv)

	files, err := s.ListTree(context.Background(), "/", nil)
	require.NoError(t, err)

	assert.Equal(t, 1, srv.Requests("/sub/"))
	count := 0
	for _, f := range files {
		if f == "/sub/b.txt" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestRemoteScanner_ListTreeFromSubdirectory(t *testing.T) {
	srv := sampleTree(t)
	s := newScanner(t, srv)

	files, err := s.ListTree(context.Background(), "sub", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"/sub/b.txt", "/sub/sub2/c.txt"}, files)
	assert.Zero(t, srv.Requests("/"))
}

func TestRemoteScanner_ListTreeRejectsDotSegmentsInRoot(t *testing.T) {
	srv := sampleTree(t)
	s := newScanner(t, srv)

	for _, root := range []string{"../x", "sub/../..", "./sub", "sub//sub2", `sub\sub2`} {
		t.Run(root, func(t *testing.T) {
			files, err := s.ListTree(context.Background(), root, nil)
			require.Error(t, err)
			assert.Nil(t, files)
			assert.Equal(t, utils.ErrCodeInvalidArgument, errors.Code(err))
		})
	}
	assert.Zero(t, srv.Requests("/"))
	assert.Zero(t, srv.Requests("/sub/"))
}

func TestRemoteScanner_ListTreeListingFailureIsFatal(t *testing.T) {
	srv := sampleTree(t)
	srv.FailDir("/z/", http.StatusNotFound)
	s := newScanner(t, srv)

	files, err := s.ListTree(context.Background(), "/", nil)
	require.Error(t, err)
	assert.Nil(t, files)
	assert.Equal(t, utils.ErrCodeListingFailed, errors.Code(err))
}

func TestRemoteScanner_ListTreeCancelled(t *testing.T) {
	srv := sampleTree(t)
	s := newScanner(t, srv)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.ListTree(ctx, "/", nil)
	require.Error(t, err)
	assert.True(t, errors.IsCancelled(err))
}
