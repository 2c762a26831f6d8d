package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"audit-capture/internal/config"
	"audit-capture/internal/handler"
	"audit-capture/internal/queue/rabbitmq"
	"audit-capture/internal/record"
	minioclient "audit-capture/internal/storage/minio"
	"audit-capture/internal/upload"
	"audit-capture/internal/worker"
	"audit-capture/pkg/database/postgres"
	redisclient "audit-capture/pkg/database/redis"

	"github.com/google/uuid"
)

const WorkerPoolSize = 5

func main() {
	log.Println("Starting Upload Worker...")

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

	// Create processor
	records := record.NewGateway(pgPool)
	uploads := upload.NewGateway(minioClient, minioclient.StagingBucket, minioclient.PhotoBucket)
	processor := worker.NewProcessor(records, uploads, redisClient)

	// Start consuming messages
	msgs, err := rabbitClient.Consume()
	if err != nil {
		log.Fatalf("Failed to start consuming: %v", err)
	}

	// Create worker pool
	var wg sync.WaitGroup
	taskChan := make(chan handler.TaskMessage, WorkerPoolSize)

	// Start worker goroutines
	for i := 0; i < WorkerPoolSize; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			log.Printf("Worker %d started", workerID)

			for task := range taskChan {
				log.Printf("Worker %d processing workflow %s", workerID, task.WorkflowID)

				workflowID, err := uuid.Parse(task.WorkflowID)
				if err != nil {
					log.Printf("Worker %d: invalid workflow ID %s: %v", workerID, task.WorkflowID, err)
					continue
				}

				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
				err = processor.ProcessWorkflow(ctx, workflowID)
				cancel()

				if err != nil {
					log.Printf("Worker %d: failed to process workflow %s: %v", workerID, task.WorkflowID, err)
				} else {
					log.Printf("Worker %d: successfully processed workflow %s", workerID, task.WorkflowID)
				}
			}

			log.Printf("Worker %d stopped", workerID)
		}(i + 1)
	}

	// Shutdown channel
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	log.Println("Upload Worker is running. Press Ctrl+C to exit.")

	// Message consumer loop
	go func() {
		for msg := range msgs {
			var task handler.TaskMessage
			if err := json.Unmarshal(msg.Body, &task); err != nil {
				log.Printf("Failed to unmarshal message: %v", err)
				msg.Nack(false, false) // discard invalid message
				continue
			}

			log.Printf("Received task for workflow %s", task.WorkflowID)

			// Send to worker pool
			taskChan <- task

			// Acknowledge message
			msg.Ack(false)
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	log.Println("Shutting down gracefully...")

	// Close task channel to stop workers
	close(taskChan)

	// Wait for all workers to finish
	wg.Wait()

	log.Println("Upload Worker stopped")
}
