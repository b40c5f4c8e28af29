// Пакет server — HTTP-сервер Resource Module с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на API Gateway.
//
// Маршруты:
//   - /api/v1/... — управляющее API (JWT, если RM_JWKS_URL задан)
//   - /datasets/.../storage/... — публичная раздача содержимого Store-ресурсов
//   - /health/live, /health/ready, /metrics — служебные endpoints
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arturkryukov/geocat/resource-module/internal/api/handlers"
	"github.com/arturkryukov/geocat/resource-module/internal/api/middleware"
	"github.com/arturkryukov/geocat/resource-module/internal/config"
)

// Server — HTTP-сервер Resource Module.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт новый HTTP-сервер с настроенными routes и middleware.
// jwtAuth — JWT middleware (nil при пустом RM_JWKS_URL: API без аутентификации).
func New(cfg *config.Config, logger *slog.Logger, h *handlers.Handler, jwtAuth *middleware.JWTAuth) *Server {
	router := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	// Служебные endpoints — без аутентификации, проверяются Kubernetes напрямую
	router.Get("/health/live", h.Health.HealthLive)
	router.Get("/health/ready", h.Health.HealthReady)
	router.Handle("/metrics", promhttp.Handler())

	// Публичная раздача содержимого Store-ресурсов.
	// Эти URL публикуются в CKAN и открываются конечными пользователями.
	router.Route("/datasets/{dataset_id}/resources/{resource_id}/storage", func(r chi.Router) {
		r.Get("/", h.Directory.Manifest)
		r.Get("/*", h.Directory.ServeFile)
	})

	// Управляющее API
	router.Route("/api/v1/datasets/{dataset_id}/resources", func(r chi.Router) {
		if jwtAuth != nil {
			r.Use(jwtAuth.Middleware())
		}

		r.Post("/", h.Resources.Finalize)
		r.Get("/", h.Resources.List)
		r.Post("/emit/{kind}", h.Uploads.Emit)

		r.Route("/{resource_id}", func(r chi.Router) {
			r.Get("/", h.Resources.Get)
			r.Put("/", h.Resources.Replace)
			r.Delete("/", h.Resources.Delete)
			r.Post("/synchronize", h.Resources.Synchronize)
			r.Post("/rematerialize", h.Resources.Rematerialize)
		})
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
