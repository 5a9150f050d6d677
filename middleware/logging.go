package middleware

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
)

// defaultSensitiveHeaders mirrors default_sensitive_headers() in the
// original's shared::http_utils.
func defaultSensitiveHeaders() map[string]bool {
	return map[string]bool{
		"authorization":          true,
		"cookie":                 true,
		"x-api-key":              true,
		"x-amz-security-token":   true,
		"x-goog-api-key":         true,
	}
}

// defaultLoggableContentTypes mirrors default_loggable_content_types().
func defaultLoggableContentTypes() []string {
	return []string{"application/json", "text/"}
}

// LoggingMiddleware logs request/response metadata with header and query
// redaction, grounded on ServerHttpLoggingMiddleware. Default priority 90
// (after auth/rate-limiting, before final response mutations).
type LoggingMiddleware struct {
	Base

	logger zerolog.Logger

	redactHeaders        map[string]bool
	showAuthScheme        bool
	maxHeaderValueLen     int // 0 = no truncation
	maxBodyBytes          int // 0 = don't log bodies
	redactQuery           bool
	logBodyContentTypes []string
}

// NewLoggingMiddleware builds a LoggingMiddleware with secure defaults:
// redacted auth/cookie/API-key headers, auth scheme preserved, no body
// logging, query params left intact.
func NewLoggingMiddleware(logger zerolog.Logger) *LoggingMiddleware {
	return &LoggingMiddleware{
		logger:              logger.With().Str("component", "http_logging_middleware").Logger(),
		redactHeaders:       defaultSensitiveHeaders(),
		showAuthScheme:      true,
		logBodyContentTypes: defaultLoggableContentTypes(),
	}
}

func (m *LoggingMiddleware) WithRedactQuery(redact bool) *LoggingMiddleware {
	m.redactQuery = redact
	return m
}

func (m *LoggingMiddleware) WithMaxBodyBytes(n int) *LoggingMiddleware {
	m.maxBodyBytes = n
	return m
}

func (m *LoggingMiddleware) WithMaxHeaderValueLen(n int) *LoggingMiddleware {
	m.maxHeaderValueLen = n
	return m
}

func (m *LoggingMiddleware) RedactHeader(name string) *LoggingMiddleware {
	m.redactHeaders[strings.ToLower(name)] = true
	return m
}

func (m *LoggingMiddleware) AllowHeader(name string) *LoggingMiddleware {
	delete(m.redactHeaders, strings.ToLower(name))
	return m
}

func (m *LoggingMiddleware) AllowBodyContentType(contentType string) *LoggingMiddleware {
	m.logBodyContentTypes = append(m.logBodyContentTypes, contentType)
	return m
}

func (m *LoggingMiddleware) WithShowAuthScheme(show bool) *LoggingMiddleware {
	m.showAuthScheme = show
	return m
}

func (m *LoggingMiddleware) Priority() int { return 90 }

func (m *LoggingMiddleware) OnRequest(_ context.Context, req *http.Request, rc *RequestContext) error {
	event := m.logger.Info().
		Str("request_id", rc.RequestID).
		Str("method", req.Method).
		Str("uri", m.redactURI(req.URL))

	for key, values := range req.Header {
		event = event.Str("header."+strings.ToLower(key), m.redactHeaderValue(key, strings.Join(values, ",")))
	}
	event.Msg("http request")
	return nil
}

func (m *LoggingMiddleware) OnResponse(_ context.Context, resp *ResponseSnapshot, rc *RequestContext) error {
	event := m.logger.Info().
		Str("request_id", rc.RequestID).
		Int("status", resp.Status).
		Dur("elapsed", rc.Elapsed())

	for key, values := range resp.Headers {
		event = event.Str("header."+strings.ToLower(key), m.redactHeaderValue(key, strings.Join(values, ",")))
	}

	if m.shouldLogBody(resp) {
		body := resp.Body
		if m.maxBodyBytes > 0 && len(body) > m.maxBodyBytes {
			body = body[:m.maxBodyBytes]
		}
		event = event.Bytes("body", body)
	}

	event.Msg("http response")
	return nil
}

func (m *LoggingMiddleware) OnError(_ context.Context, err error, rc *RequestContext) {
	m.logger.Warn().
		Str("request_id", rc.RequestID).
		Err(err).
		Msg("http request error")
}

// shouldLogBody applies the streaming-response exclusion and content-type
// gate, grounded on ServerHttpLoggingMiddleware::should_log_body: SSE and
// other streaming content types are never buffered for logging regardless
// of max_body_bytes.
func (m *LoggingMiddleware) shouldLogBody(resp *ResponseSnapshot) bool {
	if m.maxBodyBytes <= 0 {
		return false
	}
	ct := resp.Headers.Get("Content-Type")
	if strings.Contains(ct, "text/event-stream") || strings.Contains(ct, "stream") {
		return false
	}
	for _, allowed := range m.logBodyContentTypes {
		if strings.Contains(ct, allowed) {
			return true
		}
	}
	return false
}

func (m *LoggingMiddleware) redactHeaderValue(name, value string) string {
	lower := strings.ToLower(name)
	if !m.redactHeaders[lower] {
		return m.truncate(value)
	}
	if lower == "authorization" && m.showAuthScheme {
		if idx := strings.IndexByte(value, ' '); idx > 0 {
			return value[:idx] + " [REDACTED]"
		}
	}
	return "[REDACTED]"
}

func (m *LoggingMiddleware) truncate(value string) string {
	if m.maxHeaderValueLen > 0 && len(value) > m.maxHeaderValueLen {
		return value[:m.maxHeaderValueLen] + "...(truncated)"
	}
	return value
}

func (m *LoggingMiddleware) redactURI(u *url.URL) string {
	if !m.redactQuery || u.RawQuery == "" {
		return u.String()
	}
	redacted := *u
	redacted.RawQuery = "[REDACTED]"
	return redacted.String()
}

var _ Middleware = (*LoggingMiddleware)(nil)
