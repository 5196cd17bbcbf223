package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/SulmanK/concept-visualizer-sub002/internal/config"
	"github.com/SulmanK/concept-visualizer-sub002/internal/ratelimit"
)

// Enforce checks every non-exempt request against its route's limit spec and
// rejects with 429 once the quota is exceeded.
//
// The limiter never takes a request down with it: a bad limit spec, a panic
// inside the engine, anything unexpected is logged and the request is allowed
// through. Only a genuine over-quota decision with a reachable store produces
// a rejection. Store unavailability is handled inside the engine (fail-open
// result) and never reaches this layer as an error.
func Enforce(
	eng *ratelimit.Engine,
	limits config.Limits,
	log zerolog.Logger,
	onRejected func(endpoint string),
	onError func(),
) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limits.ExemptMatch(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			identity := ratelimit.ResolveIdentity(r)
			spec := limits.SpecFor(r.Method, r.URL.Path)

			res, err := safeCheck(r.Context(), eng, identity, r.URL.Path, r.Method, spec)
			if err != nil {
				if onError != nil {
					onError()
				}
				log.Error().
					Err(err).
					Str("path", r.URL.Path).
					Str("spec", spec).
					Str("identity", string(identity)).
					Msg("rate limit check failed, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			setQuota(r.Context(), &res)

			if res.Exceeded {
				if onRejected != nil {
					onRejected(ratelimit.NormalizeEndpoint(r.URL.Path))
				}
				writeLimited(w, res)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// safeCheck shields the request path from limiter bugs: a panic inside the
// check becomes an error for the caller to log, not a dropped request.
func safeCheck(
	ctx context.Context,
	eng *ratelimit.Engine,
	identity ratelimit.Identity,
	path, method, spec string,
) (res ratelimit.QuotaResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("rate limit check panicked: %v", p)
		}
	}()
	return eng.Check(ctx, identity, path, method, spec, false)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type limitedBody struct {
	Error errorBody             `json:"error"`
	Quota ratelimit.QuotaResult `json:"quota"`
}

func writeLimited(w http.ResponseWriter, res ratelimit.QuotaResult) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(limitedBody{
		Error: errorBody{
			Code:    "rate_limited",
			Message: "Too many requests, please slow down",
		},
		Quota: res,
	})
}
