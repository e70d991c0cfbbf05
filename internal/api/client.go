package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dl-alexandre/idxmirror/internal/logging"
	"github.com/dl-alexandre/idxmirror/pkg/version"
)

// Client issues GET requests against a directory-listing server rooted at a
// base URL, with retry settings shared by every caller
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	userAgent  string
	maxRetries int
	retryDelay time.Duration
	logger     logging.Logger
}

// ClientOptions configures a Client
type ClientOptions struct {
	BaseURL        string
	MaxRetries     int
	RetryDelay     time.Duration
	RequestTimeout time.Duration
	// Transport overrides the default transport. A DebugTransport can be
	// passed here to trace every request.
	Transport http.RoundTripper
	Logger    logging.Logger
}

// NewClient creates a new listing server client
func NewClient(opts ClientOptions) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https", opts.BaseURL)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: missing host", opts.BaseURL)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}

	transport := opts.Transport
	if transport == nil {
		transport = NewTransport(opts.RequestTimeout)
	}

	maxRetries := opts.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}

	return &Client{
		baseURL:    base,
		httpClient: &http.Client{Transport: transport},
		userAgent:  "idxmirror/" + version.Version,
		maxRetries: maxRetries,
		retryDelay: opts.RetryDelay,
		logger:     logger,
	}, nil
}

// NewTransport bounds the wait for response headers only; bodies of large
// files may take arbitrarily long to stream.
func NewTransport(headerTimeout time.Duration) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.DialContext = (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext
	t.ResponseHeaderTimeout = headerTimeout
	return t
}

// MaxRetries returns the total number of attempts per transfer
func (c *Client) MaxRetries() int {
	return c.maxRetries
}

// RetryDelay returns the fixed pause between attempts
func (c *Client) RetryDelay() time.Duration {
	return c.retryDelay
}

// Logger returns the client logger
func (c *Client) Logger() logging.Logger {
	return c.logger
}

// URL maps an absolute remote path onto the base URL. Each segment is
// escaped on its own; a trailing slash is kept.
func (c *Client) URL(remotePath string) string {
	trailing := strings.HasSuffix(remotePath, "/")
	segments := strings.Split(strings.Trim(remotePath, "/"), "/")

	var b strings.Builder
	b.WriteString(c.baseURL.String())
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		b.WriteByte('/')
		b.WriteString(url.PathEscape(seg))
	}
	if trailing || b.Len() == len(c.baseURL.String()) {
		b.WriteByte('/')
	}
	return b.String()
}

// Get issues a GET for remotePath with the given extra headers. Callers own
// the response body.
func (c *Client) Get(ctx context.Context, remotePath string, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(remotePath), nil)
	if err != nil {
		return nil, err
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("User-Agent", c.userAgent)
	return c.httpClient.Do(req)
}
