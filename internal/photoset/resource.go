package photoset

import (
	"sync"

	"github.com/google/uuid"
)

// ResourceStore owns the transient blobs behind not-yet-uploaded photos.
// A ref plays the role of an object URL: created once, usable until
// revoked, and revoked exactly once by the owner of the photo.
type ResourceStore interface {
	Create(data []byte) (ref string)
	Fetch(ref string) ([]byte, bool)
	Revoke(ref string)
}

// MemoryStore is the in-process ResourceStore. It counts creates and
// revokes so tests can assert the manager leaks nothing.
type MemoryStore struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	created int
	revoked int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (m *MemoryStore) Create(data []byte) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ref := "blob:" + uuid.New().String()
	m.blobs[ref] = data
	m.created++
	return ref
}

func (m *MemoryStore) Fetch(ref string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[ref]
	return data, ok
}

func (m *MemoryStore) Revoke(ref string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[ref]; !ok {
		return
	}
	delete(m.blobs, ref)
	m.revoked++
}

// Counts reports how many refs were ever created and revoked.
func (m *MemoryStore) Counts() (created, revoked int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.created, m.revoked
}

// Live reports how many refs are still held.
func (m *MemoryStore) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.blobs)
}
