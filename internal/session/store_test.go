package session

import (
	"context"
	"errors"
	"testing"
	"time"

	redisclient "audit-capture/pkg/database/redis"
)

type fakeKV struct {
	data map[string]string
	err  error
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: make(map[string]string)}
}

func (f *fakeKV) Get(ctx context.Context, key string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	v, ok := f.data[key]
	if !ok {
		return "", redisclient.ErrKeyNotFound
	}
	return v, nil
}

func (f *fakeKV) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if f.err != nil {
		return f.err
	}
	f.data[key] = value.(string)
	return nil
}

func (f *fakeKV) Delete(ctx context.Context, key string) error {
	if f.err != nil {
		return f.err
	}
	delete(f.data, key)
	return nil
}

func TestSaveLoadClearRoundTrip(t *testing.T) {
	s := NewStore(newFakeKV())
	ctx := context.Background()

	snap := Snapshot{Area: "Línea 1", Levantamiento: "guarda suelta"}
	if err := s.Save(ctx, "mrobles", "wf-1", snap); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, ok, err := s.Load(ctx, "mrobles", "wf-1")
	if err != nil || !ok {
		t.Fatalf("Load: ok=%v err=%v", ok, err)
	}
	if got.Area != "Línea 1" || got.Levantamiento != "guarda suelta" {
		t.Fatalf("restored snapshot = %+v", got)
	}

	// Another user's session on the same workflow is separate.
	if _, ok, err := s.Load(ctx, "jperez", "wf-1"); err != nil || ok {
		t.Fatalf("other user's load: ok=%v err=%v, want absent", ok, err)
	}

	if err := s.Clear(ctx, "mrobles", "wf-1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok, err := s.Load(ctx, "mrobles", "wf-1"); err != nil || ok {
		t.Fatalf("load after clear: ok=%v err=%v, want absent", ok, err)
	}
}

func TestLoadDistinguishesAbsenceFromFailure(t *testing.T) {
	kv := newFakeKV()
	s := NewStore(kv)
	ctx := context.Background()

	if _, ok, err := s.Load(ctx, "mrobles", "wf-1"); err != nil || ok {
		t.Fatalf("missing snapshot: ok=%v err=%v, want absent with no error", ok, err)
	}

	if err := s.Save(ctx, "mrobles", "wf-1", Snapshot{Area: "Andén"}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// A snapshot exists but Redis is unreachable: the caller must see the
	// failure, not an empty session it would overwrite.
	kv.err = errors.New("connection refused")
	if _, ok, err := s.Load(ctx, "mrobles", "wf-1"); err == nil || ok {
		t.Fatalf("transient failure reported as absence: ok=%v err=%v", ok, err)
	}
}
