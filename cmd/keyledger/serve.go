package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"keyledger/internal/admin"
	"keyledger/internal/cache"
	"keyledger/internal/config"
	"keyledger/internal/db"
	"keyledger/internal/logger"
	"keyledger/internal/metrics"
	"keyledger/internal/registry"
	"keyledger/internal/scheduler"
	"keyledger/internal/summarizer"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the " + appName + " HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, warning, err := config.LoadConfig(path)
			if err != nil {
				return fmt.Errorf("error loading configuration: %w", err)
			}

			log := logger.New(cfg.Debug)
			defer func() { _ = log.Sync() }()
			log.Info("Logger initialized", zap.Bool("debug_mode", cfg.Debug))
			if warning != "" {
				log.Warn(warning)
			}

			store, err := db.NewService(cfg.Database, log)
			if err != nil {
				log.Error("Error initializing database", zap.Error(err))
				return err
			}
			defer store.Close()
			log.Info("Database initialized", zap.String("type", cfg.Database.Type))

			c, err := cache.New(cfg.Cache)
			if err != nil {
				log.Error("Error initializing cache", zap.Error(err))
				return err
			}
			defer c.Close()
			log.Info("Cache initialized", zap.String("type", cfg.Cache.Type))

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return setupAndRunServer(ctx, cfg, log, store, c)
		},
	}
}

// customRecovery is a middleware that recovers from panics and handles http.ErrAbortHandler gracefully.
func customRecovery(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if recovered := recover(); recovered != nil {
				if recovered == http.ErrAbortHandler {
					log.Warn("Client connection aborted", zap.String("path", c.Request.URL.Path))
					c.Abort()
					return
				}

				log.Error("Panic recovered",
					zap.Any("error", recovered),
					zap.String("path", c.Request.URL.Path),
					zap.ByteString("stack", debug.Stack()),
				)
				c.AbortWithStatus(http.StatusInternalServerError)
			}
		}()
		c.Next()
	}
}

// requestLogger logs one line per request. It is only installed in debug mode.
func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		log.Debug("Request handled", fields...)
	}
}

// server bundles what the HTTP layer needs so tests can build a router without listening.
type server struct {
	router     *gin.Engine
	registry   *registry.Registry
	summarizer *summarizer.Service
	closers    []func() error
}

func newServer(ctx context.Context, cfg *config.Config, log *zap.Logger, store db.Service, c cache.Cache) (*server, error) {
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(promRegistry)

	reg := registry.New(store, c, log, registry.Options{
		CacheTTL:     cfg.Cache.TTL,
		EnforceQuota: cfg.Quota.Enforce,
		Metrics:      m,
	})

	s := &server{registry: reg}

	var sum summarizer.Summarizer
	if cfg.Summarizer.Enabled() {
		gemini, err := summarizer.NewGeminiSummarizer(ctx, cfg.Summarizer.GeminiAPIKey, cfg.Summarizer.Model)
		if err != nil {
			return nil, fmt.Errorf("error creating Gemini summarizer: %w", err)
		}
		s.closers = append(s.closers, gemini.Close)
		sum = gemini
	} else {
		log.Warn("Summarizer disabled, set summarizer.gemini_api_key to enable /api/github-summarizer")
	}
	fetcher := summarizer.NewReadmeFetcher(cfg.Summarizer.GithubAPIURL, cfg.Summarizer.GithubToken, nil)
	s.summarizer = summarizer.NewService(fetcher, sum, log)

	router := gin.New()
	router.Use(customRecovery(log))
	router.Use(m.Middleware())
	if cfg.Debug {
		router.Use(requestLogger(log))
	}

	admin.SetupRoutes(router, reg)
	summarizer.SetupRoutes(router, reg, s.summarizer)
	router.GET("/health", metrics.HealthHandler(map[string]metrics.Check{
		"database": store.Ping,
		"cache":    c.Ping,
	}))
	router.GET("/metrics", gin.WrapH(metrics.Handler(promRegistry)))

	s.router = router
	return s, nil
}

func (s *server) close() {
	for _, fn := range s.closers {
		_ = fn()
	}
}

// setupAndRunServer serves until ctx is cancelled, then shuts down gracefully.
func setupAndRunServer(ctx context.Context, cfg *config.Config, log *zap.Logger, store db.Service, c cache.Cache) error {
	srv, err := newServer(ctx, cfg, log, store, c)
	if err != nil {
		return err
	}
	defer srv.close()

	var sweeper scheduler.Sweeper
	if mc, ok := c.(*cache.MemoryCache); ok {
		sweeper = mc
	}
	sched := scheduler.NewScheduler(store, sweeper, cfg.Scheduler, log)
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: srv.router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting server", zap.Int("port", cfg.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Error("Failed to start server", zap.Error(err))
			return err
		}
		return nil
	case <-ctx.Done():
	}
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
		return err
	}

	log.Info("Server exiting")
	return nil
}
