package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the tagged subject of a rate limit: "user:<id>", "token:<sub>",
// "session:<id>" or "ip:<address>". Exactly one tag applies per request.
type Identity string

// UnverifiedIdentityHint is a subject claim pulled out of a bearer token
// WITHOUT signature verification. It exists only so the limiter can bucket
// requests by a stable token subject; it is not an authentication result and
// must never be used for authorization.
type UnverifiedIdentityHint string

// SessionCookie is the cookie carrying the session identifier set by the
// upstream session layer.
const SessionCookie = "session"

type ctxKey int

const keyUserID ctxKey = 0

// WithUserID attaches the authenticated user ID resolved by an upstream auth
// stage. The limiter treats it as the highest-priority identity source.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyUserID, id)
}

// UserIDFrom extracts the authenticated user ID from context (if present).
func UserIDFrom(ctx context.Context) (string, bool) {
	v := ctx.Value(keyUserID)
	if v == nil {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}

// ResolveIdentity derives the rate-limit identity for a request. Sources are
// checked in order: authenticated user on the context, bearer-token subject,
// session cookie, client address. It never fails; when nothing resolves the
// identity is "ip:unknown".
func ResolveIdentity(r *http.Request) Identity {
	if id, ok := UserIDFrom(r.Context()); ok && id != "" {
		return Identity("user:" + id)
	}
	if sub := BearerSubjectHint(r.Header.Get("Authorization")); sub != "" {
		return Identity("token:" + string(sub))
	}
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return Identity("session:" + c.Value)
	}
	if ip := clientIP(r); ip != "" {
		return Identity("ip:" + ip)
	}
	return Identity("ip:unknown")
}

// BearerSubjectHint decodes the subject claim from an Authorization header.
// The token signature is NOT checked here; verification belongs to the auth
// layer. A missing, malformed or subject-less token yields "".
func BearerSubjectHint(header string) UnverifiedIdentityHint {
	const scheme = "bearer "
	h := strings.TrimSpace(header)
	if len(h) <= len(scheme) || !strings.EqualFold(h[:len(scheme)], scheme) {
		return ""
	}
	raw := strings.TrimSpace(h[len(scheme):])

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return ""
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return ""
	}
	return UnverifiedIdentityHint(sub)
}

// clientIP prefers the first hop of X-Forwarded-For, then the socket address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
