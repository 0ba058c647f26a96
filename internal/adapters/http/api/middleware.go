package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"

	"github.com/okian/tourney/pkg/metrics"
)

// HTTP status code thresholds used for error classification.
const (
	statusBadRequest      = 400
	statusNotFound        = 404
	statusTooManyRequests = 429
	statusInternalError   = 500
)

// MetricsMiddleware records Prometheus metrics per route pattern.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		endpoint := routePattern(r)
		durationMs := float64(time.Since(start).Milliseconds())
		statusCodeStr := strconv.Itoa(wrapped.statusCode)

		metrics.RecordHTTPRequest(endpoint, r.Method, statusCodeStr)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, statusCodeStr, durationMs)

		if wrapped.statusCode >= statusBadRequest {
			errorType := getErrorType(wrapped.statusCode)
			metrics.RecordErrorByEndpoint(endpoint, r.Method, errorType)
			metrics.RecordErrorByType(errorType, getErrorSeverity(wrapped.statusCode))
		}
	})
}

// routePattern keeps metric label cardinality bounded by using the matched
// chi pattern instead of the raw path.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

func getErrorType(statusCode int) string {
	switch {
	case statusCode >= statusInternalError:
		return "server_error"
	case statusCode == statusTooManyRequests:
		return "rate_limit"
	case statusCode == statusNotFound:
		return "not_found"
	case statusCode >= statusBadRequest:
		return "client_error"
	default:
		return "unknown"
	}
}

func getErrorSeverity(statusCode int) string {
	switch {
	case statusCode >= statusInternalError:
		return "high"
	case statusCode >= statusBadRequest:
		return "medium"
	default:
		return "low"
	}
}

// responseWriter captures the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

// newRateLimitMiddleware limits requests per client IP and answers with the
// API error shape when the limit is reached.
func newRateLimitMiddleware(l *limiter.Limiter) func(http.Handler) http.Handler {
	mw := stdlib.NewMiddleware(l,
		stdlib.WithLimitReachedHandler(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, r, NewKind("api.rate_limit", ErrRateLimited))
		}),
		stdlib.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			writeError(w, r, Wrap("api.rate_limit", err))
		}),
	)
	return mw.Handler
}

// jsonContentType rejects bodies that are not JSON. Empty bodies pass.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		if emptyBody(r, ct) {
			next.ServeHTTP(w, r)
			return
		}
		if ct != "application/json" && !strings.HasPrefix(ct, "application/json;") {
			writeError(w, r, NewKind("api.content_type", ErrUnsupportedMIME))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// emptyBody reports whether r carries no body. An unknown length with no
// Content-Type and no transfer encoding counts as empty; chunked bodies do not.
func emptyBody(r *http.Request, contentType string) bool {
	switch {
	case r.Body == nil, r.Body == http.NoBody, r.ContentLength == 0:
		return true
	case r.ContentLength < 0:
		return contentType == "" && len(r.TransferEncoding) == 0
	default:
		return false
	}
}
