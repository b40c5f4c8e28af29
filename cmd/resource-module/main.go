// Точка входа Resource Module — модуль управления ресурсами геокаталога.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL
// и Redis, создаёт файловые хранилища и сервисный слой, запускает
// наблюдатель истечения staging-записей и topologymetrics,
// HTTP-сервер с JWT middleware и graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/arturkryukov/geocat/resource-module/internal/api/handlers"
	"github.com/arturkryukov/geocat/resource-module/internal/api/middleware"
	"github.com/arturkryukov/geocat/resource-module/internal/ckan"
	"github.com/arturkryukov/geocat/resource-module/internal/config"
	"github.com/arturkryukov/geocat/resource-module/internal/database"
	"github.com/arturkryukov/geocat/resource-module/internal/repository"
	"github.com/arturkryukov/geocat/resource-module/internal/server"
	"github.com/arturkryukov/geocat/resource-module/internal/service"
	"github.com/arturkryukov/geocat/resource-module/internal/staging"
	"github.com/arturkryukov/geocat/resource-module/internal/storage/dirstore"
	"github.com/arturkryukov/geocat/resource-module/internal/storage/stagefs"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Resource Module запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	if os.Getenv("RM_DEPHEALTH_GROUP") == "" {
		logger.Warn("RM_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode)
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Redis — staging store
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()

	stagingStore := staging.New(redisClient, cfg.StagingTTL, logger)
	if err := stagingStore.Ping(ctx); err != nil {
		logger.Error("Ошибка подключения к Redis", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Redis подключен", slog.String("addr", cfg.RedisAddr()))

	// 6. Файловые хранилища
	stagefsStore, err := stagefs.New(cfg.StagingDir)
	if err != nil {
		logger.Error("Ошибка инициализации staging-каталога", slog.String("error", err.Error()))
		os.Exit(1)
	}
	materializer, err := dirstore.NewMaterializer(cfg.StorageDir, logger)
	if err != nil {
		logger.Error("Ошибка инициализации хранилища директорий", slog.String("error", err.Error()))
		os.Exit(1)
	}
	lister := dirstore.NewLister(cfg.StorageDir, logger)

	// 7. CKAN-клиент
	ckanClient := ckan.New(cfg.CkanURL, cfg.CkanAPIKey, cfg.CkanTimeout, logger)
	logger.Info("CKAN клиент создан", slog.String("url", cfg.CkanURL))

	// 8. Repositories
	resourceRepo := repository.NewResourceRepository(pool)
	datasetRepo := repository.NewDatasetRepository(pool)
	formatRepo := repository.NewFormatRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	// 9. Services
	formatsSvc := service.NewFormatService(formatRepo, cfg.FormatCacheSize, cfg.FormatCacheTTL)
	receiveSvc := service.NewReceiveService(
		stagefsStore, stagingStore, formatsSvc,
		resourceRepo, datasetRepo,
		cfg.MaxUploadSize, logger,
	)
	syncSvc := service.NewSyncService(
		ckanClient, datasetRepo, formatsSvc, lister,
		cfg.Domain, logger,
	)
	lifecycleSvc := service.NewLifecycleService(
		txRunner, resourceRepo, datasetRepo,
		stagingStore, stagefsStore, materializer, syncSvc,
		cfg.UploadDir, logger,
	)

	// 10. Наблюдатель истечения staging-записей (keyspace notifications)
	go stagingStore.WatchExpired(ctx)

	// 11. Handlers
	pgChecker := database.NewReadinessChecker(pool)
	handler := handlers.NewHandler(
		handlers.NewUploadsHandler(receiveSvc),
		handlers.NewResourcesHandler(lifecycleSvc),
		handlers.NewDirectoryHandler(lister, cfg.Domain),
		handlers.NewHealthHandler(pgChecker, stagingStore),
	)

	// 12. JWT middleware (опционально: пустой RM_JWKS_URL — API без аутентификации)
	var jwtAuth *middleware.JWTAuth
	if cfg.JWKSUrl != "" {
		jwtAuth, err = middleware.NewJWTAuth(middleware.JWTAuthConfig{
			JWKSURL:         cfg.JWKSUrl,
			CACertPath:      cfg.JWKSCACert,
			TLSSkipVerify:   cfg.TLSSkipVerify,
			ClientTimeout:   cfg.JWKSClientTimeout,
			RefreshInterval: cfg.JWKSRefreshInterval,
			JWTLeeway:       cfg.JWTLeeway,
		}, logger)
		if err != nil {
			logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("JWT middleware инициализирован", slog.String("jwks_url", cfg.JWKSUrl))
	} else {
		logger.Warn("RM_JWKS_URL не задан, API работает без аутентификации")
	}

	// 13. topologymetrics — мониторинг зависимостей (PostgreSQL + CKAN)
	var dephealthSvc *service.DephealthService
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"resource-module",
		cfg.DephealthGroup,
		pgDB,
		cfg.DatabaseDSN(),
		cfg.CkanURL,
		cfg.DephealthCheckInterval,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else {
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
		} else {
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 14. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, handler, jwtAuth)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 15. Graceful shutdown фоновых задач
	logger.Info("Останавливаем фоновые задачи...")
	cancel()
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	logger.Info("Resource Module остановлен")
}
