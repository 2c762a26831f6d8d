package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"audit-capture/internal/models"
	redisclient "audit-capture/pkg/database/redis"
)

// TTL keeps an abandoned in-progress capture around for a day; a capture
// session never legitimately lasts longer.
const TTL = 24 * time.Hour

// Snapshot is the in-progress working set of one user on one workflow:
// everything not yet committed, serialized on every mutation so a reload
// mid-capture loses nothing.
type Snapshot struct {
	Area          string                 `json:"area"`
	Levantamiento string                 `json:"levantamiento"`
	Gerencia      string                 `json:"gerencia"`
	Photos        []models.CapturedPhoto `json:"photos"`
}

// KV is the slice of the Redis wrapper the store needs. Get must return
// redisclient.ErrKeyNotFound for a missing key.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Store persists capture snapshots in Redis under a fixed key per
// user+workflow.
type Store struct {
	redis KV
}

func NewStore(redis KV) *Store {
	return &Store{redis: redis}
}

func key(user string, workflowID string) string {
	return fmt.Sprintf("capture:session:%s:%s", user, workflowID)
}

func (s *Store) Save(ctx context.Context, user, workflowID string, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal capture snapshot: %w", err)
	}
	if err := s.redis.Set(ctx, key(user, workflowID), string(data), TTL); err != nil {
		return fmt.Errorf("failed to save capture snapshot: %w", err)
	}
	return nil
}

// Load restores a snapshot; ok is false when none exists. A connectivity
// failure is an error, never a silent absence.
func (s *Store) Load(ctx context.Context, user, workflowID string) (Snapshot, bool, error) {
	raw, err := s.redis.Get(ctx, key(user, workflowID))
	if errors.Is(err, redisclient.ErrKeyNotFound) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("failed to load capture snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("failed to unmarshal capture snapshot: %w", err)
	}
	return snap, true, nil
}

// Clear drops the snapshot after commit or explicit discard.
func (s *Store) Clear(ctx context.Context, user, workflowID string) error {
	return s.redis.Delete(ctx, key(user, workflowID))
}
