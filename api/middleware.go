package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/xraph/tollgate/id"
	"github.com/xraph/tollgate/internal/httpjson"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Request id headers, in lookup order.
const (
	headerRequestID    = "x-request-id"
	headerRequestIDAlt = "x-req-id"
)

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get(headerRequestID)
		if rid == "" {
			rid = r.Header.Get(headerRequestIDAlt)
		}
		if rid == "" {
			rid = id.NewRequestID().String()
		}

		w.Header().Set(headerRequestID, rid)
		next.ServeHTTP(w, r.WithContext(httpjson.WithRequestID(r.Context(), rid)))
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, x-api-key, x-idempotency-key, x-request-id, x-req-id")
		h.Set("Access-Control-Expose-Headers", "x-request-id, Retry-After")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) accessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		level := slogLevelFor(rec.status)
		s.logger.Log(r.Context(), level, "http request",
			"request_id", requestID(r),
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote", clientIP(r),
		)
	})
}

// ──────────────────────────────────────────────────
// Rate limiting
// ──────────────────────────────────────────────────

// limiter hands out one token bucket per key. A nil limiter allows
// everything.
type limiter struct {
	mu        sync.Mutex
	perMinute int
	buckets   map[string]*bucket
	now       func() time.Time
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// maxBuckets triggers a sweep of idle buckets.
const maxBuckets = 10000

func newLimiter(perMinute int, now func() time.Time) *limiter {
	if perMinute <= 0 {
		return nil
	}
	return &limiter{
		perMinute: perMinute,
		buckets:   make(map[string]*bucket),
		now:       now,
	}
}

// allow takes a token for key. When none is available it reports how long
// until one is.
func (l *limiter) allow(key string) (bool, time.Duration) {
	if l == nil {
		return true, 0
	}

	now := l.now()

	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		if len(l.buckets) >= maxBuckets {
			l.sweep(now)
		}
		b = &bucket{lim: rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMinute)), l.perMinute)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	res := b.lim.ReserveN(now, 1)
	if !res.OK() {
		return false, time.Minute
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay
	}
	return true, 0
}

func (l *limiter) sweep(now time.Time) {
	for k, b := range l.buckets {
		if now.Sub(b.lastSeen) > time.Minute {
			delete(l.buckets, k)
		}
	}
}

// rateLimitResponse is the 429 body.
type rateLimitResponse struct {
	StatusCode int    `json:"statusCode"`
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter string `json:"retryAfter"`
}

// rateLimit keys requests by the body's field plus the remote address.
func (s *Server) rateLimit(l *limiter, field string, next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := peekField(r, field)
		if key == "" {
			key = "unknown"
		}
		key += "-" + clientIP(r)

		ok, wait := l.allow(key)
		if ok {
			next.ServeHTTP(w, r)
			return
		}

		secs := int(math.Ceil(wait.Seconds()))
		after := fmt.Sprintf("%d second", secs)
		if secs != 1 {
			after += "s"
		}

		s.logger.Warn("rate limit exceeded",
			"request_id", requestID(r),
			"path", r.URL.Path,
			"key", key,
		)

		w.Header().Set("Retry-After", fmt.Sprint(secs))
		writeJSON(w, http.StatusTooManyRequests, rateLimitResponse{
			StatusCode: http.StatusTooManyRequests,
			Error:      "Too Many Requests",
			Message:    "Rate limit exceeded. Retry in " + after,
			RetryAfter: after,
		})
	})
}

// peekField reads a top-level string field from a JSON body and restores
// the body for the handler.
func peekField(r *http.Request, field string) string {
	if r.Body == nil {
		return ""
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(data))
	if err != nil {
		return ""
	}

	var body map[string]json.RawMessage
	if json.Unmarshal(data, &body) != nil {
		return ""
	}
	var v string
	if json.Unmarshal(body[field], &v) != nil {
		return ""
	}
	return v
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func requestID(r *http.Request) string {
	return httpjson.RequestID(r.Context())
}
