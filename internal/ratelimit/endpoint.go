package ratelimit

import "strings"

const apiPrefix = "/api"

// Path aliases rewritten to their canonical plural form. Old clients still
// call the singular concept routes.
var pathAliases = map[string]string{
	"/concept": "/concepts",
}

// Endpoint families that get an isolated counter namespace. Export
// conversions are resource-heavy enough that their quota must not share
// counters with anything else.
var familyTags = map[string]string{
	"/export": "svg",
}

// NormalizeEndpoint reduces a request path to a stable endpoint key: the
// routing prefix is stripped, known singular segments are rewritten to their
// plural form, and the result always starts with "/". It is pure and
// idempotent, so callers may normalize defensively.
func NormalizeEndpoint(path string) string {
	p := strings.TrimSpace(path)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if p == apiPrefix {
		p = "/"
	} else if strings.HasPrefix(p, apiPrefix+"/") {
		p = p[len(apiPrefix):]
	}
	for alias, canonical := range pathAliases {
		if p == alias {
			p = canonical
		} else if strings.HasPrefix(p, alias+"/") {
			p = canonical + p[len(alias):]
		}
	}
	return p
}

// ClassifyFamily returns the isolation tag for endpoints belonging to a
// resource-heavy family, or "" for the default family. The endpoint may be
// given in raw or normalized form.
func ClassifyFamily(endpoint string) string {
	p := NormalizeEndpoint(endpoint)
	for prefix, tag := range familyTags {
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			return tag
		}
	}
	return ""
}
