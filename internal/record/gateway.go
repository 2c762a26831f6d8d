package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"audit-capture/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Gateway persists workflow records and their photo sets. Upload failures
// never reach this layer as hard errors: a record persists with whatever
// URLs succeeded, so the user's captures are never lost to a transient
// backend fault.
type Gateway struct {
	pool *pgxpool.Pool
}

func NewGateway(pool *pgxpool.Pool) *Gateway {
	return &Gateway{pool: pool}
}

// NewCorrelationCode builds the human-readable code that namespaces a
// workflow's uploads and labels its report, e.g. BLQ-20260829-3FA2C1.
func NewCorrelationCode(kind models.WorkflowKind, now time.Time) string {
	prefix := "AUD"
	if kind == models.WorkflowKindBloqueo {
		prefix = "BLQ"
	}
	short := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:6])
	return fmt.Sprintf("%s-%s-%s", prefix, now.Format("20060102"), short)
}

// CreateWorkflow inserts a new open workflow with a fresh correlation code.
func (g *Gateway) CreateWorkflow(ctx context.Context, kind models.WorkflowKind, title, plant, auditor string) (models.WorkflowRecord, error) {
	wf := models.WorkflowRecord{
		ID:              uuid.New(),
		Kind:            kind,
		CorrelationCode: NewCorrelationCode(kind, time.Now()),
		Title:           title,
		Plant:           plant,
		Auditor:         auditor,
		Status:          models.WorkflowStatusOpen,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}
	query := `
		INSERT INTO workflows (id, kind, correlation_code, title, plant, auditor, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
	`
	_, err := g.pool.Exec(ctx, query, wf.ID, wf.Kind, wf.CorrelationCode, wf.Title, wf.Plant, wf.Auditor, wf.Status)
	if err != nil {
		return models.WorkflowRecord{}, fmt.Errorf("failed to insert workflow: %w", err)
	}
	return wf, nil
}

// GetWorkflow loads a workflow record by id.
func (g *Gateway) GetWorkflow(ctx context.Context, id uuid.UUID) (models.WorkflowRecord, error) {
	var wf models.WorkflowRecord
	query := `
		SELECT id, kind, correlation_code, title, plant, auditor, status, created_at, updated_at
		FROM workflows
		WHERE id = $1
	`
	err := g.pool.QueryRow(ctx, query, id).Scan(
		&wf.ID,
		&wf.Kind,
		&wf.CorrelationCode,
		&wf.Title,
		&wf.Plant,
		&wf.Auditor,
		&wf.Status,
		&wf.CreatedAt,
		&wf.UpdatedAt,
	)
	if err != nil {
		return models.WorkflowRecord{}, fmt.Errorf("failed to load workflow: %w", err)
	}
	return wf, nil
}

// SetWorkflowStatus moves a workflow through open -> uploading ->
// completed/failed.
func (g *Gateway) SetWorkflowStatus(ctx context.Context, id uuid.UUID, status models.WorkflowStatus) error {
	query := `UPDATE workflows SET status = $1, updated_at = NOW() WHERE id = $2`
	_, err := g.pool.Exec(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("failed to update workflow status: %w", err)
	}
	return nil
}

// AddSets persists a batch of committed sets in one transaction, each with
// its staged object names, so the whole commit lands or none of it does.
func (g *Gateway) AddSets(ctx context.Context, sets []models.PhotoSet, stagedObjects map[uuid.UUID][]string) error {
	tx, err := g.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO photo_sets (id, workflow_id, area, levantamiento, gerencia, foto_urls, staged_objects, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	for _, set := range sets {
		staged, merr := json.Marshal(stagedObjects[set.ID])
		if merr != nil {
			return fmt.Errorf("failed to marshal staged objects: %w", merr)
		}
		_, err = tx.Exec(ctx, query,
			set.ID, set.WorkflowID, set.Area, set.Levantamiento, set.Gerencia,
			"[]", string(staged), models.PhotoSetStatusStaged, set.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert photo set %s: %w", set.Area, err)
		}
	}
	return tx.Commit(ctx)
}

// StoredSet is a photo set as persisted, with its staged object names.
type StoredSet struct {
	models.PhotoSet
	StagedObjects []string
}

// ListSets loads a workflow's sets in creation order.
func (g *Gateway) ListSets(ctx context.Context, workflowID uuid.UUID) ([]StoredSet, error) {
	query := `
		SELECT id, workflow_id, area, levantamiento, gerencia, foto_urls, staged_objects, status, created_at
		FROM photo_sets
		WHERE workflow_id = $1
		ORDER BY created_at, area
	`
	rows, err := g.pool.Query(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query photo sets: %w", err)
	}
	defer rows.Close()

	var sets []StoredSet
	for rows.Next() {
		var s StoredSet
		var fotoURLs, staged []byte
		err = rows.Scan(&s.ID, &s.WorkflowID, &s.Area, &s.Levantamiento, &s.Gerencia, &fotoURLs, &staged, &s.Status, &s.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan photo set: %w", err)
		}
		if err = json.Unmarshal(fotoURLs, &s.FotoURLs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal foto_urls: %w", err)
		}
		if err = json.Unmarshal(staged, &s.StagedObjects); err != nil {
			return nil, fmt.Errorf("failed to unmarshal staged_objects: %w", err)
		}
		sets = append(sets, s)
	}
	return sets, rows.Err()
}

// MarkUploaded records a set's durable object names in capture order.
// Failed slots stay as "" and move the set to partial instead of uploaded.
func (g *Gateway) MarkUploaded(ctx context.Context, setID uuid.UUID, objects []string, failed int) error {
	status := models.PhotoSetStatusUploaded
	if failed > 0 {
		status = models.PhotoSetStatusPartial
	}
	urls, err := json.Marshal(objects)
	if err != nil {
		return fmt.Errorf("failed to marshal foto_urls: %w", err)
	}
	query := `UPDATE photo_sets SET foto_urls = $1, status = $2 WHERE id = $3`
	_, err = g.pool.Exec(ctx, query, string(urls), status, setID)
	if err != nil {
		return fmt.Errorf("failed to mark set uploaded: %w", err)
	}
	return nil
}

// DeleteSet removes a persisted set.
func (g *Gateway) DeleteSet(ctx context.Context, setID uuid.UUID) error {
	_, err := g.pool.Exec(ctx, `DELETE FROM photo_sets WHERE id = $1`, setID)
	if err != nil {
		return fmt.Errorf("failed to delete photo set: %w", err)
	}
	return nil
}

// IsNotFound reports whether err means the row does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
