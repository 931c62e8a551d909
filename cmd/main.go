package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/spf13/pflag"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"datasethub/internal/auth"
	"datasethub/internal/config"
	"datasethub/internal/docstore"
	"datasethub/internal/handler"
	"datasethub/internal/logutils"
	"datasethub/internal/migrations"
	"datasethub/internal/preview"
	"datasethub/internal/repository"
	"datasethub/internal/service"
	"datasethub/internal/service/s3"
)

var log = logutils.Component("main")

func connectWithRetry(cfg config.DatabaseConfig, maxAttempts int, delay time.Duration) (*sqlx.DB, error) {
	// Сначала подключаемся к базе postgres (системная база, которая всегда существует)
	sys := cfg
	sys.Name = "postgres"
	pgDB, err := sqlx.Connect("postgres", sys.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres database: %w", err)
	}
	defer pgDB.Close()

	// Проверяем, существует ли рабочая база
	var exists bool
	err = pgDB.Get(&exists, "SELECT EXISTS(SELECT datname FROM pg_catalog.pg_database WHERE datname = $1)", cfg.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to check database existence: %w", err)
	}

	if !exists {
		log.WithField("database", cfg.Name).Info("Database does not exist, creating")
		if _, err := pgDB.Exec("CREATE DATABASE " + pq.QuoteIdentifier(cfg.Name)); err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	var db *sqlx.DB
	for i := 0; i < maxAttempts; i++ {
		db, err = sqlx.Connect("postgres", cfg.GetDSN())
		if err == nil {
			return db, nil
		}

		log.WithError(err).Warnf("Failed to connect to database (attempt %d/%d)", i+1, maxAttempts)
		time.Sleep(delay)
	}

	return nil, fmt.Errorf("failed to connect after %d attempts: %w", maxAttempts, err)
}

func main() {
	appPath := pflag.String("config", ".app.env", "path to the service config")
	s3Path := pflag.String("s3-config", ".s3.env", "path to the object storage config")
	authPath := pflag.String("auth-config", ".auth.env", "path to the token verification config")
	pflag.Parse()

	// Загружаем конфигурации
	appConfig, err := config.NewConfig(*appPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := logutils.SetLevel(appConfig.Log.Level); err != nil {
		log.WithError(err).Warn("Unknown log level, keeping default")
	}

	db, err := connectWithRetry(appConfig.Database, 5, time.Second*5)
	if err != nil {
		log.Fatalf("Failed to connect to database after retries: %v", err)
	}
	defer db.Close()

	if err := migrations.Run(appConfig.Database.GetURL(), migrations.Options{Attempts: 5, Delay: 5 * time.Second}); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	// Инициализация S3 клиента
	s3Config, err := s3.NewConfig(*s3Path)
	if err != nil {
		log.Fatalf("Failed to load S3 config: %v", err)
	}

	s3Client, err := s3.NewClient(s3Config)
	if err != nil {
		log.Fatalf("Failed to create S3 client: %v", err)
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	if err := s3Client.EnsureVersioning(startCtx); err != nil {
		log.Fatalf("Failed to enable bucket versioning: %v", err)
	}

	// Индекс документов: Redis, а без него - память процесса
	index := docstore.NewIndexWithFallback(docstore.NewRedisClient(startCtx, appConfig.Redis))
	cancelStart()

	authConfig, err := auth.NewConfig(*authPath)
	if err != nil {
		log.Fatalf("Failed to load auth config: %v", err)
	}
	verifier := auth.NewVerifier(authConfig)

	// Инициализация репозиториев
	datasetRepo := repository.NewDatasetRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	fileRepo := repository.NewFileRepository(db)
	linkRepo := repository.NewLinkRepository(db)

	// Инициализация сервисов
	ledgerService := service.NewLedgerService(ledgerRepo, index)
	fileCatalog := service.NewFileCatalog(fileRepo, index)
	snapshotService := service.NewSnapshotService(linkRepo)
	validator := service.NewBatchValidator(appConfig.Upload)
	uploads := service.NewUploadOrchestrator(
		datasetRepo,
		linkRepo,
		ledgerService,
		fileCatalog,
		s3Client,
		service.NewDatasetLocker(),
		validator,
		service.WithThumbnailer(preview.NewThumbnailer()),
		service.WithConcurrency(appConfig.Upload.Concurrency),
	)
	datasetService := service.NewDatasetService(
		datasetRepo,
		ledgerService,
		fileCatalog,
		snapshotService,
		uploads,
		validator,
		s3Client,
		s3Config.PresignTTL,
	)

	// Инициализация хендлеров
	datasetHandler := handler.NewDatasetHandler(datasetService, verifier, appConfig.Upload)
	previewHandler := preview.NewHandler(datasetService, verifier, handler.WriteError)

	// Настройка HTTP роутера
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Minute))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// HTTP маршруты
	r.Route("/v1", func(r chi.Router) {
		datasetHandler.Routes(r)
		r.Get("/files/{fileID}/thumbnail", previewHandler.GetThumbnail)
	})

	// gRPC сервер отдает только состояние сервиса
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", appConfig.Server.Port),
		Handler: r,
	}

	// Канал для сигналов завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%s", appConfig.Server.GRPCPort))
		if err != nil {
			log.Fatalf("Failed to listen for gRPC: %v", err)
		}
		log.Infof("Starting gRPC server on port %s", appConfig.Server.GRPCPort)
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatalf("Failed to serve gRPC: %v", err)
		}
	}()

	go func() {
		log.Infof("Starting HTTP server on port %s", appConfig.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	<-quit
	log.Info("Shutting down servers...")
	healthServer.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.WithError(err).Error("HTTP server forced to shutdown")
	}

	grpcServer.GracefulStop()

	if err := db.Close(); err != nil {
		log.WithError(err).Error("Error closing database connection")
	}

	log.Info("Server exited properly")
}
