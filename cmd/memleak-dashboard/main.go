package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	// Application
	applicationPort "github.com/dreschagin/memleak-dashboard/internal/application/port"
	"github.com/dreschagin/memleak-dashboard/internal/application/usecase"

	// Core
	"github.com/dreschagin/memleak-dashboard/internal/comparison"

	// Infrastructure
	"github.com/dreschagin/memleak-dashboard/internal/infrastructure/analyzer"
	redisCache "github.com/dreschagin/memleak-dashboard/internal/infrastructure/cache/redis"
	"github.com/dreschagin/memleak-dashboard/internal/infrastructure/ingest"
	"github.com/dreschagin/memleak-dashboard/internal/infrastructure/liveness"
	natsInfra "github.com/dreschagin/memleak-dashboard/internal/infrastructure/messaging/nats"
	"github.com/dreschagin/memleak-dashboard/internal/infrastructure/notification"
	wsInfra "github.com/dreschagin/memleak-dashboard/internal/infrastructure/notification/websocket"
	"github.com/dreschagin/memleak-dashboard/internal/infrastructure/observability/cloudwatch"
	"github.com/dreschagin/memleak-dashboard/internal/infrastructure/persistence/memory"
	"github.com/dreschagin/memleak-dashboard/internal/infrastructure/persistence/postgres"
	"github.com/dreschagin/memleak-dashboard/internal/infrastructure/reassembly"
	s3storage "github.com/dreschagin/memleak-dashboard/internal/infrastructure/storage/s3"

	// Interfaces
	httpInterface "github.com/dreschagin/memleak-dashboard/internal/interfaces/http"
	"github.com/dreschagin/memleak-dashboard/internal/interfaces/http/handler"

	// Shared
	"github.com/dreschagin/memleak-dashboard/internal/application/dto"
	"github.com/dreschagin/memleak-dashboard/internal/metrics"
	"github.com/dreschagin/memleak-dashboard/pkg/config"
	"github.com/dreschagin/memleak-dashboard/pkg/logger"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	// 1. Загружаем конфигурацию
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Инициализируем logger
	log := logger.New(os.Getenv("LOG_LEVEL"))
	log.Info("Starting Memleak Dashboard Hub")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Prometheus
	registry := prometheus.NewRegistry()
	promMetrics := metrics.New(registry)

	// 4. Каноническое состояние и реассемблер
	store := memory.NewStore(cfg.Hub.MetricsPerService, cfg.Hub.AlertsCap)
	assembler := reassembly.NewAssembler(cfg.Snapshot.Dir, log)

	// 5. CloudWatch Integration

	var metricsPublisher applicationPort.MetricsPublisher
	if cfg.CloudWatch.MetricsEnabled {
		publisherImpl, initErr := cloudwatch.NewMetricsPublisher(ctx, cloudwatch.MetricsPublisherConfig{
			Namespace:       cfg.CloudWatch.MetricsNamespace,
			Region:          cfg.CloudWatch.Region,
			Endpoint:        cfg.CloudWatch.Endpoint,
			AccessKeyID:     cfg.CloudWatch.AccessKeyID,
			SecretAccessKey: cfg.CloudWatch.SecretAccessKey,
			BufferSize:      cfg.CloudWatch.MetricsBufferSize,
			FlushInterval:   cfg.CloudWatch.MetricsFlushInterval,
		})
		if initErr != nil {
			log.Error("Failed to initialize CloudWatch metrics publisher", initErr)
			os.Exit(1)
		}
		metricsPublisher = publisherImpl
		log.Info("CloudWatch metrics publisher initialized")
	}

	var logsPublisher *cloudwatch.LogsPublisher
	if cfg.CloudWatch.LogsEnabled {
		publisherImpl, initErr := cloudwatch.NewLogsPublisher(ctx, cloudwatch.LogsPublisherConfig{
			LogGroupName:    cfg.CloudWatch.LogGroupName,
			LogStreamName:   cfg.CloudWatch.LogStreamName,
			Region:          cfg.CloudWatch.Region,
			Endpoint:        cfg.CloudWatch.Endpoint,
			AccessKeyID:     cfg.CloudWatch.AccessKeyID,
			SecretAccessKey: cfg.CloudWatch.SecretAccessKey,
			BufferSize:      cfg.CloudWatch.LogsBufferSize,
			FlushInterval:   cfg.CloudWatch.LogsFlushInterval,
			AutoCreate:      true,
		})
		if initErr != nil {
			log.Error("Failed to initialize CloudWatch logs publisher", initErr)
			os.Exit(1)
		}
		logsPublisher = publisherImpl
		log.SetLogPublisher(logsPublisher)
		log.Info("CloudWatch logs publisher initialized")
	}

	// 6. NATS Event Mirror
	var eventPublisher applicationPort.EventPublisher
	if cfg.NATS.Enabled {
		publisherImpl, initErr := natsInfra.NewNATSPublisher(cfg.NATS.URL, log)
		if initErr != nil {
			log.Warn("Failed to connect to NATS, continuing without event mirroring", "error", initErr.Error())
		} else {
			eventPublisher = publisherImpl
			defer eventPublisher.Close()
			log.Info("NATS event mirror initialized", "url", cfg.NATS.URL)
		}
	}

	// 7. WebSocket Hub + notifier
	listServicesUC := usecase.NewListServicesUseCase(store)
	hub := wsInfra.NewHub(func() dto.Event {
		return dto.NewInitialEvent(
			listServicesUC.Execute(),
			dto.ToAlerts(store.RecentAlerts(cfg.Hub.InitialAlerts)),
		)
	}, promMetrics, log)

	var notifier applicationPort.EventNotifier = hub
	if eventPublisher != nil {
		notifier = notification.NewMirroringNotifier(hub, eventPublisher, cfg.NATS.SubjectPrefix, log)
	}

	// 8. Redis query cache
	var queryCache applicationPort.Cache
	if cfg.Redis.Enabled {
		cacheImpl, initErr := redisCache.NewRedisCache(
			cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL,
			cfg.Redis.PoolSize, cfg.Redis.MinIdleConns,
			cfg.Redis.DialTimeout, cfg.Redis.ReadTimeout, cfg.Redis.WriteTimeout,
		)
		if initErr != nil {
			log.Warn("Failed to connect to Redis, queries will not be cached", "error", initErr.Error())
		} else {
			queryCache = cacheImpl
			defer queryCache.Close()
			log.Info("Redis query cache initialized")
		}
	}

	// 9. Postgres write-behind archive
	var metricArchive applicationPort.MetricArchive
	if cfg.Database.Enabled {
		db, dbErr := sql.Open("postgres", cfg.Database.DSN())
		if dbErr != nil {
			log.Error("Failed to open database", dbErr)
			os.Exit(1)
		}
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
		db.SetConnMaxIdleTime(cfg.Database.ConnMaxIdleTime)

		if pingErr := db.Ping(); pingErr != nil {
			log.Error("Failed to ping database", pingErr)
			os.Exit(1)
		}

		archiveImpl := postgres.NewArchive(db)
		if schemaErr := archiveImpl.EnsureSchema(ctx); schemaErr != nil {
			log.Error("Failed to ensure archive schema", schemaErr)
			os.Exit(1)
		}
		metricArchive = archiveImpl
		defer metricArchive.Close()
		log.Info("Postgres archive initialized")
	}

	// 10. S3 snapshot archive
	var snapshotArchive applicationPort.SnapshotArchive
	if cfg.S3.Enabled {
		archiveImpl, initErr := s3storage.NewSnapshotArchive(ctx, s3storage.Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			UsePathStyle:    cfg.S3.UsePathStyle,
			KeyPrefix:       cfg.S3.KeyPrefix,
		})
		if initErr != nil {
			log.Error("Failed to initialize S3 snapshot archive", initErr)
			os.Exit(1)
		}
		snapshotArchive = archiveImpl
		log.Info("S3 snapshot archive initialized", "bucket", cfg.S3.Bucket)
	}

	// 11. Анализаторы: внешний HTTP как основной, size-diff как fallback
	sizeDiff := analyzer.NewSizeDiffAnalyzer()
	var primary applicationPort.SnapshotAnalyzer = sizeDiff
	var fallback applicationPort.SnapshotAnalyzer
	if cfg.Analyzer.BaseURL != "" {
		primary = analyzer.NewHTTPAnalyzer(cfg.Analyzer.BaseURL, cfg.Analyzer.RequestTimeout, log)
		fallback = sizeDiff
		log.Info("External analyzer configured", "base_url", cfg.Analyzer.BaseURL)
	} else {
		log.Warn("ANALYZER_BASE_URL is not set, using built-in size-diff analyzer only")
	}

	coordinator := comparison.NewCoordinator(
		store,
		notifier,
		primary,
		fallback,
		cfg.Analyzer.ThresholdBytes,
		"", // системный временный каталог
		promMetrics,
		log,
	)

	// 12. Use cases
	registerUC := usecase.NewRegisterServiceUseCase(store, notifier, log)
	ingestMetricsUC := usecase.NewIngestMetricsUseCase(store, notifier, metricArchive, metricsPublisher, log)
	snapshotNoticeUC := usecase.NewSnapshotNoticeUseCase(store, notifier, metricArchive, log)
	snapshotIngestUC := usecase.NewSnapshotIngestUseCase(store, assembler, notifier, snapshotArchive, promMetrics, log)
	uploadUC := usecase.NewUploadSnapshotUseCase(store, assembler, notifier, snapshotArchive, promMetrics, log)
	listSnapshotsUC := usecase.NewListSnapshotsUseCase(store)
	serviceMetricsUC := usecase.NewGetServiceMetricsUseCase(store, queryCache, log)
	alertsUC := usecase.NewGetAlertsUseCase(store)
	statsUC := usecase.NewGetStatsUseCase(store, notifier, log)

	// 13. Диспетчер агентских сообщений
	dispatcher := ingest.NewDispatcher(
		registerUC,
		ingestMetricsUC,
		snapshotNoticeUC,
		snapshotIngestUC,
		coordinator,
		store,
		notifier,
		promMetrics,
		log,
	)

	// 14. HTTP handlers
	healthHandler := handler.NewHealthHandler(store)
	servicesAPIHandler := handler.NewServicesAPIHandler(listServicesUC, serviceMetricsUC, log)
	alertsAPIHandler := handler.NewAlertsAPIHandler(alertsUC, log)
	statsAPIHandler := handler.NewStatsAPIHandler(statsUC)
	snapshotAPIHandler := handler.NewSnapshotAPIHandler(
		uploadUC,
		listSnapshotsUC,
		coordinator,
		store,
		cfg.Snapshot.MaxUploadBytes,
		log,
	)
	websocketHandler := handler.NewWebSocketHandler(
		ctx,
		hub,
		dispatcher,
		cfg.Server.AllowedOrigins,
		cfg.Hub.MaxMessageBytes,
		promMetrics,
		log,
	)

	// Router
	router := httpInterface.NewRouter(
		healthHandler,
		servicesAPIHandler,
		alertsAPIHandler,
		statsAPIHandler,
		snapshotAPIHandler,
		websocketHandler,
		registry,
		promMetrics,
		cfg.Snapshot,
		cfg.Prometheus,
		log,
	)

	// 15. Фоновые процессы

	go hub.Run(ctx)

	monitor := liveness.NewMonitor(store, notifier, cfg.Hub.SweepInterval, cfg.Hub.InactivityTimeout, log)
	go monitor.Run(ctx)

	// 16. HTTP сервер

	// Read/Write таймауты не действуют на websocket после hijack,
	// долгоживущие соединения агентов и подписчиков они не затрагивают
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Канал для получения сигналов ОС
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info("HTTP server starting", "port", cfg.Server.Port)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server failed", err)
			os.Exit(1)
		}
	}()

	// 17. Graceful shutdown

	<-sigChan
	log.Info("Shutdown signal received, starting graceful shutdown...")

	// Останавливаем hub, monitor и read-циклы агентов
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Flush CloudWatch buffers before shutdown
	if metricsPublisher != nil {
		log.Info("Flushing CloudWatch metrics buffer...")
		if err := metricsPublisher.Close(shutdownCtx); err != nil {
			log.Error("Failed to flush CloudWatch metrics", err)
		}
	}
	if logsPublisher != nil {
		log.Info("Flushing CloudWatch logs buffer...")
		if err := logsPublisher.Close(shutdownCtx); err != nil {
			log.Error("Failed to flush CloudWatch logs", err)
		}
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", err)
	}

	log.Info("Server stopped gracefully")
}
