package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Server struct {
	Addr           string `yaml:"addr"`
	ReadTimeoutMS  int    `yaml:"read_timeout_ms"`
	WriteTimeoutMS int    `yaml:"write_timeout_ms"`
	IdleTimeoutMS  int    `yaml:"idle_timeout_ms"`
	MaxBodyBytes   int64  `yaml:"max_body_bytes"`
}

type Redis struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	TimeoutMS int    `yaml:"timeout_ms"`
	KeyPrefix string `yaml:"key_prefix"`
}

// RouteLimit binds a limit spec ("<count>/<period>") to a path prefix,
// optionally narrowed to one method.
type RouteLimit struct {
	PathPrefix string `yaml:"path_prefix"`
	Method     string `yaml:"method"`
	Limit      string `yaml:"limit"`
}

type Limits struct {
	Default string       `yaml:"default"`
	Routes  []RouteLimit `yaml:"routes"`
	// Exempt paths bypass the limiter entirely. Prefix match, so "/docs"
	// also exempts "/docs/openapi.json".
	Exempt []string `yaml:"exempt"`
}

type Upstream struct {
	URL       string `yaml:"url"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

type Observability struct {
	LogLevel       string `yaml:"log_level"`       // "debug","info","warn","error"
	PrometheusPath string `yaml:"prometheus_path"` // e.g. "/metrics"
}

type Root struct {
	Server        Server        `yaml:"server"`
	Redis         Redis         `yaml:"redis"`
	Limits        Limits        `yaml:"limits"`
	Upstream      Upstream      `yaml:"upstream"`
	Observability Observability `yaml:"observability"`
}

func (s Server) ReadTimeout() time.Duration {
	if s.ReadTimeoutMS == 0 {
		return 5 * time.Second
	}
	return time.Duration(s.ReadTimeoutMS) * time.Millisecond
}

func (s Server) WriteTimeout() time.Duration {
	if s.WriteTimeoutMS == 0 {
		return 10 * time.Second
	}
	return time.Duration(s.WriteTimeoutMS) * time.Millisecond
}

func (s Server) IdleTimeout() time.Duration {
	if s.IdleTimeoutMS == 0 {
		return 60 * time.Second
	}
	return time.Duration(s.IdleTimeoutMS) * time.Millisecond
}

func (s Server) MaxBody() int64 {
	if s.MaxBodyBytes == 0 {
		return 10 << 20
	}
	return s.MaxBodyBytes
} // default 10MB

func (r Redis) Timeout() time.Duration {
	if r.TimeoutMS <= 0 {
		return 250 * time.Millisecond
	}
	return time.Duration(r.TimeoutMS) * time.Millisecond
}

func (u Upstream) Timeout() time.Duration {
	if u.TimeoutMS <= 0 {
		return 3 * time.Second
	}
	return time.Duration(u.TimeoutMS) * time.Millisecond
}

// SpecFor resolves the limit spec for a request. The longest matching path
// prefix wins; among equal prefixes a method-specific rule beats a
// method-agnostic one. Falls back to the default spec.
func (l Limits) SpecFor(method, path string) string {
	method = strings.ToUpper(method)
	spec := l.Default
	bestLen := -1
	bestMethod := false
	for _, rt := range l.Routes {
		if rt.PathPrefix == "" || rt.Limit == "" {
			continue
		}
		if !prefixMatch(path, rt.PathPrefix) {
			continue
		}
		withMethod := rt.Method != ""
		if withMethod && strings.ToUpper(rt.Method) != method {
			continue
		}
		if len(rt.PathPrefix) > bestLen || (len(rt.PathPrefix) == bestLen && withMethod && !bestMethod) {
			bestLen = len(rt.PathPrefix)
			bestMethod = withMethod
			spec = rt.Limit
		}
	}
	return spec
}

// ExemptMatch reports whether the path bypasses rate limiting entirely.
func (l Limits) ExemptMatch(path string) bool {
	for _, p := range l.Exempt {
		if p != "" && prefixMatch(path, p) {
			return true
		}
	}
	return false
}

func prefixMatch(path, prefix string) bool {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return true
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func Load(path string) (*Root, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Root
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "ratelimit:"
	}
	if cfg.Observability.LogLevel == "" {
		cfg.Observability.LogLevel = "info"
	}
	if cfg.Observability.PrometheusPath == "" {
		cfg.Observability.PrometheusPath = "/metrics"
	}
	if cfg.Limits.Default == "" {
		cfg.Limits.Default = "60/minute"
	}
	if len(cfg.Limits.Exempt) == 0 {
		cfg.Limits.Exempt = []string{"/health", "/version", "/docs", cfg.Observability.PrometheusPath}
	}
	if cfg.Upstream.URL == "" {
		return nil, fmt.Errorf("config %s: upstream.url is required", path)
	}
	return &cfg, nil
}
