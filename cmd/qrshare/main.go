// main.go — точка входа QR Share.
// Инициализирует все компоненты и запускает HTTP-сервер.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/qrshare/internal/api/handlers"
	"github.com/bigkaa/qrshare/internal/api/middleware"
	"github.com/bigkaa/qrshare/internal/api/openapi"
	"github.com/bigkaa/qrshare/internal/config"
	"github.com/bigkaa/qrshare/internal/server"
	"github.com/bigkaa/qrshare/internal/service"
	"github.com/bigkaa/qrshare/internal/storage/blobstore"
	"github.com/bigkaa/qrshare/internal/storage/records"
	"github.com/bigkaa/qrshare/internal/ui/i18n"
	"github.com/bigkaa/qrshare/internal/ui/pages"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	// 2. Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("QR Share запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("public_url", cfg.PublicURL),
		slog.String("data_dir", cfg.DataDir),
	)

	// 3. Хранилища: blob'ы на диске, записи в памяти
	blobs, err := blobstore.NewOnDisk(cfg.DataDir)
	if err != nil {
		logger.Error("Ошибка инициализации каталога данных", slog.String("error", err.Error()))
		os.Exit(1)
	}
	store := records.New(logger)
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "qs_records",
		Help: "Текущее количество записей о файлах.",
	}, func() float64 { return float64(store.Len()) })

	// 4. Сервисы
	access := service.NewAccessController(store, service.AccessConfig{
		Cooldown:    cfg.VerifyCooldown,
		MaxAttempts: cfg.MaxAttempts,
		TokenTTL:    cfg.TokenTTL,
		BcryptCost:  cfg.BcryptCost,
	}, logger)
	qr := service.NewQRService(cfg.PublicURL, cfg.QRSize, cfg.QRCacheSize, cfg.Retention)
	uploadSvc := service.NewUploadService(blobs, access, cfg.MaxFileSize, logger)
	downloadSvc := service.NewDownloadService(access, blobs, qr, logger)

	// 5. Фоновые процессы
	ctx := context.Background()

	// 5.1 Очистка устаревших файлов
	janitor := service.NewJanitor(store, blobs, cfg.Retention, cfg.JanitorInterval, logger)
	janitor.Start(ctx)

	// 5.2 Административный API: JWT и topologymetrics только при заданном JWKS
	var (
		jwtAuth      *middleware.JWTAuth
		dephealthSvc *service.DephealthService
		deps         handlers.DependencyHealth
	)
	if cfg.AdminEnabled() {
		jwtAuth, err = middleware.NewJWTAuth(middleware.JWTAuthConfig{
			JWKSURL:         cfg.JWKSURL,
			CACertPath:      cfg.JWKSCACert,
			TLSSkipVerify:   cfg.TLSSkipVerify,
			ClientTimeout:   cfg.JWKSClientTimeout,
			RefreshInterval: cfg.JWKSRefreshInterval,
			JWTLeeway:       cfg.JWTLeeway,
		}, logger)
		if err != nil {
			logger.Warn("JWKS недоступен, административный API отключён",
				slog.String("jwks_url", cfg.JWKSURL),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("JWT аутентификация настроена", slog.String("jwks_url", cfg.JWKSURL))
		}

		dephealthSvc, err = service.NewDephealthService(
			"qrshare",
			cfg.DephealthGroup,
			cfg.JWKSURL,
			cfg.DephealthCheckInterval,
			cfg.TLSSkipVerify,
			logger,
		)
		if err != nil {
			logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
				slog.String("error", err.Error()),
			)
			dephealthSvc = nil
		} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
			dephealthSvc = nil
		} else {
			deps = dephealthSvc
			logger.Info("topologymetrics запущен",
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	} else {
		logger.Info("QS_JWKS_URL не задан, административный API отключён")
	}

	// 6. UI: переводы и шаблоны
	bundle, err := i18n.Load(logger)
	if err != nil {
		logger.Error("Ошибка загрузки переводов", slog.String("error", err.Error()))
		os.Exit(1)
	}
	renderer, err := pages.New(bundle)
	if err != nil {
		logger.Error("Ошибка разбора шаблонов", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 7. Handlers
	apiHandler := handlers.NewAPIHandler(
		handlers.NewFilesHandler(uploadSvc, downloadSvc, access, blobs, qr, renderer, logger),
		handlers.NewPagesHandler(access, qr, bundle, renderer, cfg.Retention, cfg.MaxFileSize, logger),
		handlers.NewHealthHandler(blobs, deps),
		server.NewMetricsHandler(),
		logger,
	)

	// 8. Middleware: request id → журнал → метрики → язык → проверка по OpenAPI
	validator, err := middleware.NewOpenAPIValidator(openapi.Spec(), logger)
	if err != nil {
		logger.Error("Ошибка загрузки OpenAPI-контракта", slog.String("error", err.Error()))
		os.Exit(1)
	}
	opts := server.Options{
		Middlewares: []func(http.Handler) http.Handler{
			middleware.RequestID(),
			middleware.RequestLogger(logger),
			middleware.MetricsMiddleware(),
			i18n.Middleware(),
			validator.Middleware(),
		},
	}
	if jwtAuth != nil {
		opts.Admin = handlers.NewAdminHandler(access, blobs, qr, cfg.Retention, logger)
		opts.AdminMiddlewares = []func(http.Handler) http.Handler{
			jwtAuth.Middleware(),
			middleware.RequireScope(middleware.ScopeAdmin),
		}
	}

	// 9. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, apiHandler, opts)

	runErr := srv.Run()
	if runErr != nil {
		logger.Error("Ошибка сервера", slog.String("error", runErr.Error()))
	}

	// --- Graceful shutdown фоновых процессов ---
	logger.Info("Остановка фоновых процессов...")

	janitor.Stop()
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	if cfg.PurgeOnShutdown {
		removed, err := blobs.Purge()
		if err != nil {
			logger.Error("Ошибка очистки каталога данных", slog.String("error", err.Error()))
		} else {
			logger.Info("Каталог данных очищен", slog.Int("removed", removed))
		}
	}

	if runErr != nil {
		os.Exit(1)
	}
	logger.Info("QR Share остановлен")
}
