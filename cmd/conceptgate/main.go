package main

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"

	"github.com/SulmanK/concept-visualizer-sub002/internal/config"
	"github.com/SulmanK/concept-visualizer-sub002/internal/gateway"
	"github.com/SulmanK/concept-visualizer-sub002/internal/obs"
	"github.com/SulmanK/concept-visualizer-sub002/internal/proxy"
	"github.com/SulmanK/concept-visualizer-sub002/internal/ratelimit"
	redisstore "github.com/SulmanK/concept-visualizer-sub002/internal/ratelimit/redis"
)

func main() {
	path := os.Getenv("CONCEPTGATE_CONFIG")
	if path == "" {
		path = "./config.yaml"
	}

	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := obs.SetupLogger(cfg.Observability.LogLevel)
	logger.Info().Str("config", path).Msg("starting conceptgate")

	reg := prometheus.NewRegistry()
	metrics := obs.NewMetrics(reg)

	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	store := redisstore.New(client,
		redisstore.WithPrefix(cfg.Redis.KeyPrefix),
		redisstore.WithTimeout(cfg.Redis.Timeout()),
		redisstore.WithLogger(logger),
	)
	defer store.Close()

	engine := ratelimit.NewEngine(store, logger)

	upstream, err := url.Parse(cfg.Upstream.URL)
	if err != nil {
		log.Fatalf("parse upstream url: %v", err)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	mux.HandleFunc("/version", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("v0.1.0"))
	})

	mux.Handle(cfg.Observability.PrometheusPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	mux.Handle("/", proxy.Handler(upstream, cfg.Upstream.Timeout(), proxy.NewHTTPTransport()))

	onRejected := func(endpoint string) { metrics.RateLimited.WithLabelValues(endpoint).Inc() }
	onError := func() { metrics.LimiterErrors.Inc() }

	handler := gateway.Chain(
		mux,
		obs.Logger(logger),
		metrics.Middleware(cfg.Limits.ExemptMatch),
		gateway.BodyLimit(cfg.Server.MaxBody()),
		gateway.DecorateHeaders(),
		gateway.Enforce(engine, cfg.Limits, logger, onRejected, onError),
	)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout(),
		IdleTimeout:       cfg.Server.IdleTimeout(),
		ReadTimeout:       cfg.Server.ReadTimeout(),
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Str("upstream", cfg.Upstream.URL).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	logger.Info().Msg("bye")
}
