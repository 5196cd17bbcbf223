package gateway

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/SulmanK/concept-visualizer-sub002/internal/ratelimit"
)

type ctxKey int

const keyQuota ctxKey = 0

// quotaHolder is shared mutable per-request state: DecorateHeaders plants it
// in the context, Enforce fills it after the check. Holder indirection is
// what lets an outer middleware see what an inner one attached.
type quotaHolder struct {
	res *ratelimit.QuotaResult
}

func setQuota(ctx context.Context, res *ratelimit.QuotaResult) {
	if h, ok := ctx.Value(keyQuota).(*quotaHolder); ok {
		h.res = res
	}
}

// DecorateHeaders attaches the standard rate-limit-status headers to every
// response whose request went through Enforce. Must sit outside Enforce in
// the chain.
//
// Headers are written at response-write time, not check time: for the minute
// period X-RateLimit-Reset is rendered as seconds until the next minute
// boundary (epoch timestamps churn too fast to be useful there), and a stale
// value computed at check time would already be wrong by delivery. The extra
// X-RateLimit-Reset-Format header tells clients which rendering they got.
// If no quota state was attached, no headers are emitted at all.
func DecorateHeaders() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			holder := &quotaHolder{}
			r = r.WithContext(context.WithValue(r.Context(), keyQuota, holder))

			hw := &headerWriter{ResponseWriter: w, holder: holder, now: time.Now}
			next.ServeHTTP(hw, r)
			hw.decorate()
		})
	}
}

type headerWriter struct {
	http.ResponseWriter
	holder    *quotaHolder
	now       func() time.Time
	decorated bool
}

func (w *headerWriter) WriteHeader(code int) {
	w.decorate()
	w.ResponseWriter.WriteHeader(code)
}

func (w *headerWriter) Write(b []byte) (int, error) {
	w.decorate()
	return w.ResponseWriter.Write(b)
}

func (w *headerWriter) decorate() {
	if w.decorated {
		return
	}
	w.decorated = true
	res := w.holder.res
	if res == nil {
		return
	}

	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(max(res.Remaining, 0)))
	h.Set("X-RateLimit-Period", res.Period)

	if res.Period == ratelimit.PeriodMinute {
		secs := 60 - w.now().Second() // 1..60
		h.Set("X-RateLimit-Reset", strconv.Itoa(secs))
		h.Set("X-RateLimit-Reset-Format", "seconds-remaining")
		return
	}
	h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt, 10))
}
