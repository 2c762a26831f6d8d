package models

import (
	"time"

	"github.com/google/uuid"
)

type WorkflowKind string

const (
	WorkflowKindAudit   WorkflowKind = "audit"
	WorkflowKindBloqueo WorkflowKind = "bloqueo"
)

type WorkflowStatus string

const (
	WorkflowStatusOpen      WorkflowStatus = "open"
	WorkflowStatusUploading WorkflowStatus = "uploading"
	WorkflowStatusCompleted WorkflowStatus = "completed"
	WorkflowStatusFailed    WorkflowStatus = "failed"
)

// WorkflowRecord is a top-level audit or bloqueo. Its correlation code
// namespaces every uploaded photo path and labels the exported report.
type WorkflowRecord struct {
	ID              uuid.UUID      `json:"id" db:"id"`
	Kind            WorkflowKind   `json:"kind" db:"kind"`
	CorrelationCode string         `json:"correlation_code" db:"correlation_code"`
	Title           string         `json:"title" db:"title"`
	Plant           string         `json:"plant" db:"plant"`
	Auditor         string         `json:"auditor" db:"auditor"`
	Status          WorkflowStatus `json:"status" db:"status"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at" db:"updated_at"`
}
