package worker

import (
	"context"
	"fmt"
	"log"

	"audit-capture/internal/models"
	"audit-capture/internal/record"
	"audit-capture/internal/upload"
	redisclient "audit-capture/pkg/database/redis"

	"github.com/google/uuid"
)

// Processor drains one finalize task: every staged set of the workflow is
// uploaded to durable storage and its record updated with the resulting
// URLs, in capture order. A photo that fails to upload is logged and
// skipped; the workflow still completes with whatever made it through.
type Processor struct {
	records     *record.Gateway
	uploads     *upload.Gateway
	redisClient *redisclient.Client
}

func NewProcessor(records *record.Gateway, uploads *upload.Gateway, redis *redisclient.Client) *Processor {
	return &Processor{
		records:     records,
		uploads:     uploads,
		redisClient: redis,
	}
}

func (p *Processor) ProcessWorkflow(ctx context.Context, workflowID uuid.UUID) error {
	log.Printf("Starting upload for workflow %s", workflowID)

	wf, err := p.records.GetWorkflow(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("failed to load workflow: %w", err)
	}

	sets, err := p.records.ListSets(ctx, workflowID)
	if err != nil {
		p.setStatus(ctx, workflowID, models.WorkflowStatusFailed)
		return fmt.Errorf("failed to load sets: %w", err)
	}

	totalFailed := 0
	for _, set := range sets {
		var result upload.SetResult
		switch set.Status {
		case models.PhotoSetStatusStaged:
			result = p.uploads.UploadStagedSet(ctx, wf.CorrelationCode, set.Area, set.StagedObjects)
		case models.PhotoSetStatusPartial:
			// A previous finalize left empty slots; re-attempt only those
			// from the retained staged copies.
			result = p.uploads.RetryStagedSet(ctx, wf.CorrelationCode, set.Area, set.StagedObjects, set.FotoURLs)
		default:
			continue
		}
		totalFailed += result.Failed
		log.Printf("Workflow %s area %q: %s", wf.CorrelationCode, set.Area, result.Saved())

		if err := p.records.MarkUploaded(ctx, set.ID, result.Objects, result.Failed); err != nil {
			p.setStatus(ctx, workflowID, models.WorkflowStatusFailed)
			return fmt.Errorf("failed to record uploaded set %q: %w", set.Area, err)
		}
	}

	// Partial upload failures do not fail the workflow; requiring
	// all-or-nothing would risk losing in-person capture work.
	if err := p.setStatus(ctx, workflowID, models.WorkflowStatusCompleted); err != nil {
		return err
	}
	if totalFailed > 0 {
		log.Printf("Workflow %s completed with %d failed photo(s)", wf.CorrelationCode, totalFailed)
	}

	// Invalidate cached workflow view
	cacheKey := fmt.Sprintf("workflow:%s", workflowID)
	if err := p.redisClient.Delete(ctx, cacheKey); err != nil {
		log.Printf("Warning: failed to invalidate cache for %s: %v", cacheKey, err)
		// Don't fail the entire operation if cache invalidation fails
	}

	log.Printf("Successfully uploaded workflow %s", workflowID)
	return nil
}

func (p *Processor) setStatus(ctx context.Context, workflowID uuid.UUID, status models.WorkflowStatus) error {
	if err := p.records.SetWorkflowStatus(ctx, workflowID, status); err != nil {
		return fmt.Errorf("failed to update workflow status: %w", err)
	}
	log.Printf("Updated workflow %s status to: %s", workflowID, status)
	return nil
}
