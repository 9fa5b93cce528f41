// Пакет server — HTTP-сервер QR Share с опциональным TLS и graceful shutdown.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/qrshare/internal/api/contract"
	apierrors "github.com/bigkaa/qrshare/internal/api/errors"
	"github.com/bigkaa/qrshare/internal/config"
	"github.com/bigkaa/qrshare/internal/ui/static"
)

// Options — необязательные части сервера.
type Options struct {
	// Middlewares применяются ко всем маршрутам в порядке среза.
	Middlewares []func(http.Handler) http.Handler
	// Admin — операции административного API; nil — API не монтируется.
	Admin contract.AdminServerInterface
	// AdminMiddlewares — аутентификация и проверка scope административного API.
	AdminMiddlewares []func(http.Handler) http.Handler
}

// Server — HTTP-сервер QR Share.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт новый HTTP-сервер с настроенными routes и middleware.
// handler — реализация contract.ServerInterface (APIHandler).
func New(cfg *config.Config, logger *slog.Logger, handler contract.ServerInterface, opts Options) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewRouter(handler, opts),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	if cfg.TLSEnabled() {
		srv.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	return &Server{
		httpServer: srv,
		logger:     logger.With(slog.String("component", "http_server")),
		cfg:        cfg,
	}
}

// NewRouter собирает chi-роутер: middleware, маршруты контракта, статика.
func NewRouter(handler contract.ServerInterface, opts Options) http.Handler {
	router := chi.NewRouter()

	for _, mw := range opts.Middlewares {
		router.Use(mw)
	}

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		apierrors.Negotiate(w, r, http.StatusNotFound, apierrors.CodeNotFound, "Not found")
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		apierrors.Negotiate(w, r, http.StatusMethodNotAllowed, apierrors.CodeMethodNotAllowed, "Method not allowed")
	})

	// Публичные маршруты через HandlerFromMux (раскладка oapi-codegen chi-server).
	contract.HandlerFromMux(handler, router)

	if opts.Admin != nil {
		router.Group(func(r chi.Router) {
			for _, mw := range opts.AdminMiddlewares {
				r.Use(mw)
			}
			contract.AdminHandlerWithOptions(opts.Admin, contract.ChiServerOptions{BaseRouter: r})
		})
	}

	router.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(static.FileSystem())))

	return router
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
			slog.String("public_url", s.cfg.PublicURL),
			slog.Bool("tls", s.cfg.TLSEnabled()),
		)

		var err error
		if s.cfg.TLSEnabled() {
			err = s.httpServer.ListenAndServeTLS(s.cfg.TLSCert, s.cfg.TLSKey)
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

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

// MetricsHandler — обработчик для /metrics, делегирующий в Prometheus.
type MetricsHandler struct {
	promHandler http.Handler
}

// NewMetricsHandler создаёт обработчик Prometheus метрик.
func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{
		promHandler: promhttp.Handler(),
	}
}

// GetMetrics реализует endpoint /metrics.
func (m *MetricsHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	m.promHandler.ServeHTTP(w, r)
}
