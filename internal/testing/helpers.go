package testing

import (
	"bytes"
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
)

// BasePath is the prefix under which IndexServer serves its tree
const BasePath = "/files"

// RemoteFile is a file served by IndexServer
type RemoteFile struct {
	Content []byte
	ModTime time.Time
}

// IndexServer is an httptest server that renders directory index pages in
// the <td class="link"> layout and serves files with conditional GET support
type IndexServer struct {
	*httptest.Server

	mu         sync.Mutex
	date       time.Time
	dirs       map[string][]string
	files      map[string]*RemoteFile
	dirStatus  map[string]int
	failures   map[string]failure
	truncated  map[string]bool
	delays     map[string]time.Duration
	requests   map[string]int
	conditions map[string][]string
}

type failure struct {
	remaining int
	status    int
}

// NewIndexServer starts a server with an empty root directory. It is closed
// when the test finishes.
func NewIndexServer(t testing.TB) *IndexServer {
	t.Helper()
	s := &IndexServer{
		date:       time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		dirs:       map[string][]string{"/": nil},
		files:      make(map[string]*RemoteFile),
		dirStatus:  make(map[string]int),
		failures:   make(map[string]failure),
		truncated:  make(map[string]bool),
		delays:     make(map[string]time.Duration),
		requests:   make(map[string]int),
		conditions: make(map[string][]string),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// BaseURL returns the URL that maps to remote path "/"
func (s *IndexServer) BaseURL() string {
	return s.URL + BasePath
}

// Date returns the Date header sent with every listing
func (s *IndexServer) Date() time.Time {
	return s.date
}

// AddDir registers dirPath and links it from its parent listing
func (s *IndexServer) AddDir(dirPath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addDirLocked(dirKey(dirPath))
}

func (s *IndexServer) addDirLocked(dir string) {
	if _, ok := s.dirs[dir]; ok {
		return
	}
	s.dirs[dir] = nil
	parent := dirKey(path.Dir(strings.TrimSuffix(dir, "/")))
	s.addDirLocked(parent)
	s.dirs[parent] = append(s.dirs[parent], url.PathEscape(path.Base(dir))+"/")
}

// AddFile registers a file and links it from its parent listing, creating
// parent directories as needed
func (s *IndexServer) AddFile(filePath string, content []byte, modTime time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[filePath]; !ok {
		parent := dirKey(path.Dir(filePath))
		s.addDirLocked(parent)
		s.dirs[parent] = append(s.dirs[parent], url.PathEscape(path.Base(filePath)))
	}
	s.files[filePath] = &RemoteFile{Content: content, ModTime: modTime}
}

// AddRawEntry adds an href to a listing verbatim
func (s *IndexServer) AddRawEntry(dirPath, href string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dir := dirKey(dirPath)
	s.addDirLocked(dir)
	s.dirs[dir] = append(s.dirs[dir], href)
}

// FailDir makes the listing of dirPath answer with status
func (s *IndexServer) FailDir(dirPath string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirStatus[dirKey(dirPath)] = status
}

// FailFile makes the next n requests for filePath answer with status
func (s *IndexServer) FailFile(filePath string, n, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[filePath] = failure{remaining: n, status: status}
}

// TruncateFile makes filePath advertise its full length but close the
// connection halfway through the body
func (s *IndexServer) TruncateFile(filePath string, truncated bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.truncated[filePath] = truncated
}

// DelayFile holds every response for filePath back by d before any header
// is written
func (s *IndexServer) DelayFile(filePath string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays[filePath] = d
}

// Requests returns how many requests were made for remotePath
func (s *IndexServer) Requests(remotePath string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[remotePath]
}

// IfModifiedSince returns the If-Modified-Since values received for
// remotePath, in request order
func (s *IndexServer) IfModifiedSince(remotePath string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.conditions[remotePath]...)
}

func (s *IndexServer) handle(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, BasePath+"/") {
		http.NotFound(w, r)
		return
	}
	remotePath := strings.TrimPrefix(r.URL.Path, BasePath)

	s.mu.Lock()
	s.requests[remotePath]++
	s.conditions[remotePath] = append(s.conditions[remotePath], r.Header.Get("If-Modified-Since"))

	if strings.HasSuffix(remotePath, "/") {
		hrefs, ok := s.dirs[remotePath]
		status := s.dirStatus[remotePath]
		hrefs = append([]string(nil), hrefs...)
		s.mu.Unlock()

		if !ok {
			http.NotFound(w, r)
			return
		}
		if status != 0 {
			http.Error(w, http.StatusText(status), status)
			return
		}
		w.Header().Set("Date", s.date.Format(http.TimeFormat))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, RenderListing(remotePath, hrefs))
		return
	}

	file, ok := s.files[remotePath]
	failStatus := 0
	if fail := s.failures[remotePath]; fail.remaining > 0 {
		fail.remaining--
		s.failures[remotePath] = fail
		failStatus = fail.status
	}
	truncated := s.truncated[remotePath]
	delay := s.delays[remotePath]
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	switch {
	case !ok:
		http.NotFound(w, r)
	case failStatus != 0:
		http.Error(w, http.StatusText(failStatus), failStatus)
	case truncated:
		w.Header().Set("Content-Length", fmt.Sprint(len(file.Content)))
		w.Header().Set("Last-Modified", file.ModTime.UTC().Format(http.TimeFormat))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(file.Content[:len(file.Content)/2])
	default:
		w.Header().Set("Date", s.date.Format(http.TimeFormat))
		http.ServeContent(w, r, path.Base(remotePath), file.ModTime, bytes.NewReader(file.Content))
	}
}

// RenderListing builds an index page for dirPath linking each href
func RenderListing(dirPath string, hrefs []string) string {
	sorted := append([]string(nil), hrefs...)
	sort.Strings(sorted)

	var b strings.Builder
	fmt.Fprintf(&b, "<!DOCTYPE html>\n<html><head><title>Index of %s</title></head><body>\n", html.EscapeString(dirPath))
	b.WriteString("<table id=\"list\"><thead><tr>")
	b.WriteString("<th class=\"link\"><a href=\"?C=N&amp;O=A\">File Name</a></th>")
	b.WriteString("<th class=\"size\"><a href=\"?C=S&amp;O=A\">File Size</a></th>")
	b.WriteString("<th class=\"date\"><a href=\"?C=M&amp;O=A\">Date</a></th>")
	b.WriteString("</tr></thead>\n<tbody>\n")
	if dirPath != "/" {
		b.WriteString("<tr><td class=\"link\"><a href=\"../\">Parent directory/</a></td><td class=\"size\">-</td><td class=\"date\">-</td></tr>\n")
	}
	for _, href := range sorted {
		label, err := url.PathUnescape(href)
		if err != nil {
			label = href
		}
		fmt.Fprintf(&b, "<tr><td class=\"link\"><a href=\"%s\" title=\"%s\">%s</a></td><td class=\"size\">-</td><td class=\"date\">01-Mar-2024 12:00</td></tr>\n",
			html.EscapeString(href), html.EscapeString(label), html.EscapeString(label))
	}
	b.WriteString("</tbody></table></body></html>\n")
	return b.String()
}

func dirKey(p string) string {
	p = strings.Trim(p, "/")
	if p == "" || p == "." {
		return "/"
	}
	return "/" + p + "/"
}
