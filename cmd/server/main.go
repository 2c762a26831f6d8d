package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"audit-capture/internal/config"
	"audit-capture/internal/handler"
	"audit-capture/internal/queue/rabbitmq"
	"audit-capture/internal/record"
	"audit-capture/internal/report"
	minioclient "audit-capture/internal/storage/minio"
	"audit-capture/internal/upload"
	"audit-capture/pkg/database/postgres"
	redisclient "audit-capture/pkg/database/redis"
	"audit-capture/pkg/security"

	"github.com/gin-gonic/gin"
)

func main() {
	log.Println("Starting API server...")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize PostgreSQL
	log.Println("Connecting to PostgreSQL...")
	pgPool, err := postgres.NewClient(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer pgPool.Close()

	// Run migrations
	if err := postgres.RunMigrations(ctx, pgPool); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Initialize Minio
	log.Println("Connecting to Minio...")
	minioClient, err := minioclient.NewClient(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, false)
	if err != nil {
		log.Fatalf("Failed to connect to Minio: %v", err)
	}

	// Initialize RabbitMQ
	log.Println("Connecting to RabbitMQ...")
	rabbitClient, err := rabbitmq.NewClient(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer rabbitClient.Close()

	// Initialize Redis
	log.Println("Connecting to Redis...")
	redisClient, err := redisclient.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	log.Println("✓ Successfully connected to all services")

	records := record.NewGateway(pgPool)
	uploads := upload.NewGateway(minioClient, minioclient.StagingBucket, minioclient.PhotoBucket)

	logo := report.FetchLogo(ctx, http.DefaultClient, cfg.ReportLogoURL)
	assembler := report.NewAssembler(uploads.Fetch, logo)

	h := handler.NewHandler(records, uploads, rabbitClient, redisClient, assembler)

	var authMW, auditorMW gin.HandlerFunc
	if cfg.AuthDisabled {
		log.Println("WARNING: authentication is disabled")
	} else {
		authMW = security.AuthMiddleware(cfg.JWKSURL(), cfg.ClientID)
		auditorMW = security.RequireRole(cfg.AuditorRole)
	}

	router := handler.NewRouter(h, authMW, auditorMW)

	log.Printf("API server listening on %s", cfg.ServerAddr)
	if err := router.Run(cfg.ServerAddr); err != nil {
		log.Fatalf("Server stopped: %v", err)
	}
}
