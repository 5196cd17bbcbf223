package ratelimit

import "strings"

// BuildKeys composes the counter keys for one (identity, endpoint, period)
// observation. It always returns exactly three keys, in this order:
//
//	[0] <identity>:<period>                      — primary, the authoritative count
//	[1] <METHOD>:<endpoint>:<identity>:<period>  — per-method breakdown
//	[2] <endpoint>:<identity>:<period>           — per-endpoint breakdown
//
// Endpoints that belong to an isolation family get every key prefixed with
// "<family>:", so a family's consumption never leaks into the default
// counters. Order and count are a contract; the flush job and the engine both
// rely on it.
func BuildKeys(identity, endpoint, method, period string) []string {
	if period == "" {
		period = PeriodMonth
	}
	var prefix string
	if tag := ClassifyFamily(endpoint); tag != "" {
		prefix = tag + ":"
	}
	suffix := identity + ":" + period
	return []string{
		prefix + suffix,
		prefix + strings.ToUpper(method) + ":" + endpoint + ":" + suffix,
		prefix + endpoint + ":" + suffix,
	}
}
