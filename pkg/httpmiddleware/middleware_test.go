package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/sdk/zctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func get(h http.Handler, target string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.RemoteAddr = "192.168.1.10:5000"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestWrap_Order(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	get(Wrap(okHandler(), mark("outer"), mark("inner")), "/", nil)
	assert.Equal(t, []string{"outer", "inner"}, order)
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	w := get(h, "/", map[string]string{"X-Request-ID": "bar-7"})
	assert.Equal(t, "bar-7", seen)
	assert.Equal(t, "bar-7", w.Header().Get("X-Request-ID"))

	w = get(h, "/", map[string]string{"X-Request-ID": strings.Repeat("x", 129)})
	assert.Len(t, seen, 36)
	assert.Equal(t, seen, w.Header().Get("X-Request-ID"))

	get(h, "/", map[string]string{"X-Request-ID": "bad\x01id"})
	assert.NotEqual(t, "bad\x01id", seen)
	assert.Empty(t, RequestIDFromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context()))
}

func TestInjectLoggerAndLogRequests(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	r := chi.NewRouter()
	r.Get("/api/terminals/{tid}/cart", func(w http.ResponseWriter, r *http.Request) {
		zctx.From(r.Context()).Info("In handler")
		w.WriteHeader(http.StatusNotFound)
	})
	h := Wrap(r,
		RequestID(),
		InjectLogger(zap.New(core)),
		Routes(),
		LogRequests(),
	)

	get(h, "/api/terminals/abc/cart", map[string]string{"X-Request-ID": "req-1"})

	inHandler := logs.FilterMessage("In handler").All()
	require.Len(t, inHandler, 1)
	assert.Equal(t, "req-1", inHandler[0].ContextMap()["request_id"])

	reqLogs := logs.FilterMessage("Request").All()
	require.Len(t, reqLogs, 1)
	assert.Equal(t, zapcore.WarnLevel, reqLogs[0].Level)
	fields := reqLogs[0].ContextMap()
	assert.Equal(t, "/api/terminals/{tid}/cart", fields["route"])
	assert.EqualValues(t, http.StatusNotFound, fields["status"])
}

func TestInstrument(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/api/catalog", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := Wrap(r,
		Instrument("terminal-api", tracenoop.NewTracerProvider(), metricnoop.NewMeterProvider()),
		Routes(),
	)

	assert.Equal(t, http.StatusOK, get(h, "/api/catalog", nil).Code)
	assert.Equal(t, http.StatusNotFound, get(h, "/nope", nil).Code)
}

func TestRecovery(t *testing.T) {
	h := Recovery()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := get(h, "/", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "close", w.Header().Get("Connection"))
	assert.JSONEq(t, `{"code":500,"message":"internal server error"}`, w.Body.String())

	abort := Recovery()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	assert.PanicsWithValue(t, http.ErrAbortHandler, func() { get(abort, "/", nil) })
}

func TestCORS(t *testing.T) {
	preflight := func(h http.Handler, origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/api/catalog", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		req.Header.Set("Access-Control-Request-Headers", "Authorization")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	t.Run("wildcard", func(t *testing.T) {
		h := CORS(CORSConfig{AllowOrigins: []string{"*"}, MaxAge: 600})(okHandler())

		w := preflight(h, "http://till.local")
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "Authorization", w.Header().Get("Access-Control-Allow-Headers"))
		assert.Equal(t, "600", w.Header().Get("Access-Control-Max-Age"))

		w = get(h, "/", map[string]string{"Origin": "http://till.local"})
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("listed origins with credentials", func(t *testing.T) {
		h := CORS(CORSConfig{
			AllowOrigins:     []string{"http://Till.Local"},
			AllowHeaders:     []string{"Authorization", "Content-Type"},
			ExposeHeaders:    []string{"X-Request-ID"},
			AllowCredentials: true,
		})(okHandler())

		w := preflight(h, "http://till.local")
		assert.Equal(t, "http://Till.Local", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "Authorization, Content-Type", w.Header().Get("Access-Control-Allow-Headers"))
		assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

		w = get(h, "/", map[string]string{"Origin": "http://till.local"})
		assert.Equal(t, "X-Request-ID", w.Header().Get("Access-Control-Expose-Headers"))
		assert.Contains(t, w.Header().Values("Vary"), "Origin")

		w = preflight(h, "http://evil.test")
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestRateLimit(t *testing.T) {
	now := time.Date(2026, 1, 1, 22, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(RateLimitConfig{Max: 2, Window: time.Minute})
	rl.now = func() time.Time { return now }
	h := rl.Middleware()(okHandler())
	bar := map[string]string{"X-Real-IP": "10.0.0.7"}

	w := get(h, "/", bar)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, http.StatusOK, get(h, "/", bar).Code)

	w = get(h, "/", bar)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"code":429,"message":"rate limit exceeded"}`, w.Body.String())

	// Other clients have their own buckets.
	assert.Equal(t, http.StatusOK, get(h, "/", map[string]string{"X-Real-IP": "10.0.0.8"}).Code)
	assert.Equal(t, http.StatusOK, get(h, "/", nil).Code)

	// A fresh terminal id does not buy a fresh bucket.
	for _, id := range []string{"bar-1", "bar-2", "bar-3"} {
		w = get(h, "/", map[string]string{"X-Real-IP": "10.0.0.7", "X-Terminal-ID": id})
		assert.Equal(t, http.StatusTooManyRequests, w.Code, id)
	}

	// One token refills every Window/Max.
	now = now.Add(30 * time.Second)
	assert.Equal(t, http.StatusOK, get(h, "/", bar).Code)

	now = now.Add(3 * time.Minute)
	rl.evict()
	rl.mu.Lock()
	assert.Empty(t, rl.buckets)
	rl.mu.Unlock()
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	assert.Equal(t, "10.0.0.1", ClientIP(req))
	assert.Equal(t, "ip:10.0.0.1", ClientKey(req))

	req.Header.Set("X-Real-IP", "10.0.0.2")
	assert.Equal(t, "10.0.0.2", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.50, 70.41.3.18")
	assert.Equal(t, "203.0.113.50", ClientIP(req))

	req.Header.Set("X-Terminal-ID", "bar-1")
	assert.Equal(t, "ip:203.0.113.50", ClientKey(req))
}
