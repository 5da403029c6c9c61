package httpmiddleware

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Logger creates a logging middleware for http.RoundTripper.
// maxBodySize controls body logging:
//   - 0: no body logging
//   - -1: log entire body
//   - >0: log first N bytes of body
//
// Successful exchanges are logged at debug level because the dashboard polls
// the backend every few seconds.
func Logger(logger *slog.Logger, maxBodySize int) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			logRequest(logger, req, maxBodySize)

			start := time.Now()
			resp, err := next.RoundTrip(req)
			duration := time.Since(start)

			if err != nil {
				logger.LogAttrs(req.Context(), slog.LevelWarn, "Backend request failed",
					slog.String("method", req.Method),
					slog.String("path", req.URL.Path),
					slog.String("request_id", req.Header.Get(RequestIDHeader)),
					slog.Duration("duration", duration),
					slog.Any("error", err))

				return resp, err
			}

			logResponse(logger, req, resp, duration, maxBodySize)

			return resp, nil
		})
	}
}

func logRequest(logger *slog.Logger, req *http.Request, maxBodySize int) {
	if !logger.Enabled(req.Context(), slog.LevelDebug) {
		return
	}

	attrs := []slog.Attr{
		slog.String("method", req.Method),
		slog.String("path", req.URL.Path),
		slog.String("request_id", req.Header.Get(RequestIDHeader)),
	}

	if req.URL.RawQuery != "" {
		attrs = append(attrs, slog.String("query", req.URL.RawQuery))
	}

	if len(req.Header) > 0 {
		attrs = append(attrs, slog.Any("headers", redactedHeaders(req.Header)))
	}

	if maxBodySize != 0 && req.GetBody != nil {
		// GetBody gives a fresh reader, the request body stays untouched
		if rc, err := req.GetBody(); err == nil {
			body, err := readBody(rc, maxBodySize)
			if err == nil && len(body) > 0 {
				attrs = append(attrs, slog.String("body", string(body)))
			}
		}
	}

	logger.LogAttrs(req.Context(), slog.LevelDebug, "📤 Backend request", attrs...)
}

func logResponse(logger *slog.Logger, req *http.Request, resp *http.Response, duration time.Duration, maxBodySize int) {
	level := slog.LevelDebug
	if resp.StatusCode >= 400 {
		level = slog.LevelWarn
	}

	if resp.StatusCode >= 500 {
		level = slog.LevelError
	}

	if !logger.Enabled(req.Context(), level) {
		return
	}

	attrs := []slog.Attr{
		slog.String("method", req.Method),
		slog.String("path", req.URL.Path),
		slog.Int("status", resp.StatusCode),
		slog.String("request_id", req.Header.Get(RequestIDHeader)),
		slog.Duration("duration", duration),
	}

	if maxBodySize != 0 && resp.Body != nil {
		body, rest, err := peekBody(resp.Body, maxBodySize)
		if err == nil {
			resp.Body = rest
			if len(body) > 0 {
				attrs = append(attrs, slog.String("body", string(body)))
			}
		}
	}

	logger.LogAttrs(req.Context(), level, "📥 Backend response", attrs...)
}

// readBody reads the body up to maxBodySize bytes and closes it
func readBody(body io.ReadCloser, maxBodySize int) ([]byte, error) {
	defer body.Close()

	if maxBodySize == -1 {
		return io.ReadAll(body)
	}

	buf := make([]byte, maxBodySize)
	n, err := io.ReadFull(body, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	return buf[:n], nil
}

// peekBody reads up to maxBodySize bytes and returns a body that still yields
// the whole original stream.
func peekBody(body io.ReadCloser, maxBodySize int) ([]byte, io.ReadCloser, error) {
	if maxBodySize == -1 {
		data, err := io.ReadAll(body)
		body.Close()
		if err != nil {
			return nil, nil, err
		}

		return data, io.NopCloser(bytes.NewReader(data)), nil
	}

	buf := make([]byte, maxBodySize)
	n, err := io.ReadFull(body, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, nil, fmt.Errorf("failed to read body: %w", err)
	}

	rest := struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(buf[:n]), body), body}

	return buf[:n], rest, nil
}

// isSensitiveHeader checks if header contains sensitive information
func isSensitiveHeader(name string) bool {
	switch strings.ToLower(name) {
	case "authorization", "cookie", "set-cookie", "x-api-key", "x-auth-token":
		return true
	}

	return false
}

// redactedHeaders renders headers for debug logs with secrets masked
func redactedHeaders(h http.Header) slog.Value {
	attrs := make([]slog.Attr, 0, len(h))
	for k, v := range h {
		if isSensitiveHeader(k) {
			attrs = append(attrs, slog.String(k, "[REDACTED]"))
			continue
		}

		attrs = append(attrs, slog.String(k, strings.Join(v, ", ")))
	}

	return slog.GroupValue(attrs...)
}
