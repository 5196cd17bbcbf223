package gateway_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SulmanK/concept-visualizer-sub002/internal/config"
	"github.com/SulmanK/concept-visualizer-sub002/internal/gateway"
	"github.com/SulmanK/concept-visualizer-sub002/internal/obs"
	"github.com/SulmanK/concept-visualizer-sub002/internal/ratelimit"
	"github.com/SulmanK/concept-visualizer-sub002/internal/ratelimit/memory"
)

type downStore struct{}

func (downStore) Increment(context.Context, string, time.Duration) (int64, bool) {
	return 0, false
}

func (downStore) Read(context.Context, string) (int64, time.Duration, bool) {
	return 0, 0, false
}

type panicStore struct{}

func (panicStore) Increment(context.Context, string, time.Duration) (int64, bool) {
	panic("counter store bug")
}

func (panicStore) Read(context.Context, string) (int64, time.Duration, bool) {
	panic("counter store bug")
}

func newChain(limits config.Limits, store ratelimit.CounterStore, onRejected func(string), onError func()) http.Handler {
	eng := ratelimit.NewEngine(store, zerolog.Nop())
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return gateway.Chain(
		inner,
		gateway.DecorateHeaders(),
		gateway.Enforce(eng, limits, zerolog.Nop(), onRejected, onError),
	)
}

func doGet(h http.Handler, path, remoteAddr string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodGet, path, nil)
	r.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestEnforceAllowedWithMinuteHeaders(t *testing.T) {
	limits := config.Limits{Default: "2/minute"}
	h := newChain(limits, memory.New(), nil, nil)

	w := doGet(h, "/api/concepts", "203.0.113.1:1000")
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "minute", w.Header().Get("X-RateLimit-Period"))
	assert.Equal(t, "seconds-remaining", w.Header().Get("X-RateLimit-Reset-Format"))

	reset, err := strconv.Atoi(w.Header().Get("X-RateLimit-Reset"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, reset, 1)
	assert.LessOrEqual(t, reset, 60)
}

func TestEnforceRejectsOverQuota(t *testing.T) {
	limits := config.Limits{Default: "2/minute"}
	var rejected []string
	h := newChain(limits, memory.New(), func(ep string) { rejected = append(rejected, ep) }, nil)

	doGet(h, "/api/concepts", "203.0.113.2:1000")
	doGet(h, "/api/concepts", "203.0.113.2:1000")
	w := doGet(h, "/api/concepts", "203.0.113.2:1000")

	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, []string{"/concepts"}, rejected)

	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
		Quota ratelimit.QuotaResult `json:"quota"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "rate_limited", body.Error.Code)
	assert.NotEmpty(t, body.Error.Message)
	assert.True(t, body.Quota.Exceeded)
	assert.Equal(t, 2, body.Quota.Limit)
}

func TestEnforcePerIdentityCounters(t *testing.T) {
	limits := config.Limits{Default: "1/minute"}
	h := newChain(limits, memory.New(), nil, nil)

	require.Equal(t, http.StatusOK, doGet(h, "/api/concepts", "203.0.113.3:1").Code)
	require.Equal(t, http.StatusTooManyRequests, doGet(h, "/api/concepts", "203.0.113.3:1").Code)

	// Another identity is unaffected.
	require.Equal(t, http.StatusOK, doGet(h, "/api/concepts", "203.0.113.4:1").Code)
}

func TestEnforceNonMinuteReset(t *testing.T) {
	limits := config.Limits{
		Default: "2/minute",
		Routes: []config.RouteLimit{
			{PathPrefix: "/api/storage", Limit: "5/hour"},
		},
	}
	h := newChain(limits, memory.New(), nil, nil)

	w := doGet(h, "/api/storage/recent", "203.0.113.5:1")
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, "hour", w.Header().Get("X-RateLimit-Period"))
	assert.Empty(t, w.Header().Get("X-RateLimit-Reset-Format"))

	reset, err := strconv.ParseInt(w.Header().Get("X-RateLimit-Reset"), 10, 64)
	require.NoError(t, err)
	assert.Greater(t, reset, time.Now().Unix())
}

func TestEnforceExemptPathsBypass(t *testing.T) {
	limits := config.Limits{Default: "0/minute", Exempt: []string{"/health", "/docs"}}
	h := newChain(limits, memory.New(), nil, nil)

	for _, path := range []string{"/health", "/docs", "/docs/openapi.json"} {
		w := doGet(h, path, "203.0.113.6:1")
		require.Equal(t, http.StatusOK, w.Code, "path %s", path)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"), "exempt paths get no limiter headers")
	}
}

func TestEnforceBadSpecFailsOpen(t *testing.T) {
	limits := config.Limits{Default: "banana"}
	errs := 0
	h := newChain(limits, memory.New(), nil, func() { errs++ })

	w := doGet(h, "/api/concepts", "203.0.113.7:1")
	require.Equal(t, http.StatusOK, w.Code, "a misconfigured limit must not block traffic")
	assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, 1, errs)
}

func TestEnforceStoreDownFailsOpen(t *testing.T) {
	limits := config.Limits{Default: "1/minute"}
	h := newChain(limits, downStore{}, nil, nil)

	for i := 0; i < 10; i++ {
		w := doGet(h, "/api/concepts", "203.0.113.8:1")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))
	}
}

func TestEnforceRecoversFromPanics(t *testing.T) {
	limits := config.Limits{Default: "1/minute"}
	errs := 0
	h := newChain(limits, panicStore{}, nil, func() { errs++ })

	w := doGet(h, "/api/concepts", "203.0.113.9:1")
	require.Equal(t, http.StatusOK, w.Code, "a limiter bug must not take the request down")
	assert.Equal(t, 1, errs)
}

func TestDecorateHeadersWithoutEnforce(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := gateway.Chain(inner, gateway.DecorateHeaders())

	w := doGet(h, "/anything", "203.0.113.10:1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	assert.Empty(t, w.Header().Get("X-RateLimit-Reset"))
}

func TestLoggerMiddlewareComposes(t *testing.T) {
	// Smoke check that the full production chain shape serves requests.
	limits := config.Limits{Default: "5/minute"}
	eng := ratelimit.NewEngine(memory.New(), zerolog.Nop())
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := gateway.Chain(
		inner,
		obs.Logger(zerolog.Nop()),
		gateway.BodyLimit(1<<20),
		gateway.DecorateHeaders(),
		gateway.Enforce(eng, limits, zerolog.Nop(), nil, nil),
	)

	w := doGet(h, "/api/concepts", "203.0.113.11:1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
}
