package handler

import (
	"audit-capture/internal/queue/rabbitmq"
	"audit-capture/internal/record"
	"audit-capture/internal/report"
	"audit-capture/internal/session"
	"audit-capture/internal/upload"
	redisclient "audit-capture/pkg/database/redis"
)

type Handler struct {
	records      *record.Gateway
	uploads      *upload.Gateway
	rabbitClient *rabbitmq.Client
	redisClient  *redisclient.Client
	sessions     *session.Store
	assembler    *report.Assembler
}

func NewHandler(records *record.Gateway, uploads *upload.Gateway, rabbit *rabbitmq.Client, redis *redisclient.Client, assembler *report.Assembler) *Handler {
	return &Handler{
		records:      records,
		uploads:      uploads,
		rabbitClient: rabbit,
		redisClient:  redis,
		sessions:     session.NewStore(redis),
		assembler:    assembler,
	}
}

// TaskMessage is the finalize task handed to the upload worker.
type TaskMessage struct {
	WorkflowID string `json:"workflow_id"`
}
