package logging

import (
	"net/http"
	"time"
)

// DebugTransport logs each HTTP round trip at DEBUG level
type DebugTransport struct {
	base   http.RoundTripper
	logger Logger
}

// NewDebugTransport wraps base; a nil base means http.DefaultTransport
func NewDebugTransport(base http.RoundTripper, logger Logger) *DebugTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &DebugTransport{base: base, logger: logger}
}

// Wrap returns a copy of the transport delegating to base
func (t *DebugTransport) Wrap(base http.RoundTripper) *DebugTransport {
	return NewDebugTransport(base, t.logger)
}

func (t *DebugTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	logger := t.logger.WithContext(req.Context())
	start := time.Now()

	fields := []Field{
		F("method", req.Method),
		F("url", req.URL.String()),
	}
	if ims := req.Header.Get("If-Modified-Since"); ims != "" {
		fields = append(fields, F("ifModifiedSince", ims))
	}
	logger.Debug("HTTP request", fields...)

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		logger.Debug("HTTP request failed",
			F("url", req.URL.String()),
			F("duration_ms", time.Since(start).Milliseconds()),
			F("error", err.Error()),
		)
		return nil, err
	}

	logger.Debug("HTTP response",
		F("url", req.URL.String()),
		F("status", resp.StatusCode),
		F("contentLength", resp.ContentLength),
		F("lastModified", resp.Header.Get("Last-Modified")),
		F("duration_ms", time.Since(start).Milliseconds()),
	)
	return resp, nil
}
