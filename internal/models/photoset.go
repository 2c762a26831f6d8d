package models

import (
	"time"

	"github.com/google/uuid"
)

// MaxPhotosPerSet caps how many photographs document one area or bloqueo.
// Product rule: bounds report size and upload cost.
const MaxPhotosPerSet = 3

type PhotoSetStatus string

const (
	PhotoSetStatusStaged   PhotoSetStatus = "staged"
	PhotoSetStatusUploaded PhotoSetStatus = "uploaded"
	PhotoSetStatusPartial  PhotoSetStatus = "partial"
)

// CapturedPhoto is one still image. Before upload LocalRef points at a
// transient blob in the resource store; after upload URL is durable and
// LocalRef is empty.
type CapturedPhoto struct {
	ID         uuid.UUID `json:"id"`
	LocalRef   string    `json:"local_ref,omitempty"`
	URL        string    `json:"url,omitempty"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	CapturedAt time.Time `json:"captured_at"`
}

// PhotoSet is a named, annotated group of up to MaxPhotosPerSet photos
// belonging to one workflow. Levantamiento is the free-text finding note;
// Gerencia identifies the responsible management unit.
type PhotoSet struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	WorkflowID    uuid.UUID       `json:"workflow_id" db:"workflow_id"`
	Area          string          `json:"area" db:"area"`
	Levantamiento string          `json:"levantamiento" db:"levantamiento"`
	Gerencia      string          `json:"gerencia" db:"gerencia"`
	Photos        []CapturedPhoto `json:"photos"`
	FotoURLs      []string        `json:"foto_urls" db:"foto_urls"`
	Status        PhotoSetStatus  `json:"status" db:"status"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}
