package scanner

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/dl-alexandre/idxmirror/internal/api"
	"github.com/dl-alexandre/idxmirror/internal/errors"
	"github.com/dl-alexandre/idxmirror/internal/logging"
	"github.com/dl-alexandre/idxmirror/internal/utils"
)

// RemoteScanner lists directories on the remote index server
type RemoteScanner struct {
	client *api.Client
	logger logging.Logger
}

func NewRemoteScanner(client *api.Client) *RemoteScanner {
	return &RemoteScanner{
		client: client,
		logger: client.Logger(),
	}
}

// ListDir fetches and parses the index page of one directory. dirPath is an
// absolute path ending in "/". Any status other than 200 fails the call.
func (s *RemoteScanner) ListDir(ctx context.Context, dirPath string) ([]RemoteEntry, error) {
	resp, err := s.client.Get(ctx, dirPath, nil)
	if err != nil {
		return nil, errors.ClassifyTransportError(errors.OpList, dirPath, err, s.logger)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.ClassifyHTTPStatus(errors.OpList, dirPath, resp.StatusCode, s.logger)
	}

	date, ok := ParseHTTPDate(resp.Header.Get("Date"))
	if !ok {
		date = time.Now().UTC()
	}

	entries, err := ParseListing(resp.Body, date)
	if err != nil {
		return nil, errors.ClassifyTransportError(errors.OpList, dirPath, err, s.logger)
	}
	return entries, nil
}

// ListTree walks the remote tree breadth-first from root and returns the
// sorted absolute paths of every file not excluded by matcher. Directories
// are visited once each; an excluded directory is not listed at all. A root
// containing "." or ".." segments is rejected before any request is made.
func (s *RemoteScanner) ListTree(ctx context.Context, root string, matcher Matcher) ([]string, error) {
	root, err := normalizeDir(root)
	if err != nil {
		return nil, err
	}
	queue := []string{root}
	seen := map[string]struct{}{root: {}}
	fileSeen := make(map[string]struct{})
	var files []string

	for len(queue) > 0 {
		dirPath := queue[0]
		queue = queue[1:]

		if err := ctx.Err(); err != nil {
			return nil, errors.ClassifyTransportError(errors.OpList, dirPath, err, s.logger)
		}

		s.logger.Info(dirPath)

		entries, err := s.ListDir(ctx, dirPath)
		if err != nil {
			return nil, err
		}

		for _, entry := range entries {
			childPath := dirPath + entry.Name
			if entry.IsDir() {
				if _, ok := seen[childPath]; ok {
					continue
				}
				if excluded(matcher, strings.TrimSuffix(childPath, "/")) {
					s.logger.Debug("Excluded directory", logging.F("path", childPath))
					continue
				}
				seen[childPath] = struct{}{}
				queue = append(queue, childPath)
				continue
			}
			if excluded(matcher, childPath) {
				s.logger.Debug("Excluded file", logging.F("path", childPath))
				continue
			}
			if _, ok := fileSeen[childPath]; ok {
				continue
			}
			fileSeen[childPath] = struct{}{}
			files = append(files, childPath)
		}
	}

	sort.Strings(files)
	return files, nil
}

func excluded(m Matcher, p string) bool {
	return m != nil && m.IsExcluded(p)
}

// normalizeDir returns p as an absolute directory path with a trailing "/"
func normalizeDir(p string) (string, error) {
	trimmed := strings.Trim(strings.TrimSpace(p), "/")
	if trimmed == "" {
		return "/", nil
	}
	for _, seg := range strings.Split(trimmed, "/") {
		if seg == "" || seg == "." || seg == ".." || strings.Contains(seg, "\\") {
			return "", utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
				fmt.Sprintf("invalid root %q: segments must be plain names", p)).
				WithContext("root", p).
				Build())
		}
	}
	return "/" + trimmed + "/", nil
}
