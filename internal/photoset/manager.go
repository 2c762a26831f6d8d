package photoset

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"audit-capture/internal/models"

	"github.com/google/uuid"
)

type ValidationKind string

const (
	// KindNoPhotos: committing an empty buffer, or (under ForbidEmptySet)
	// removing the last photo of a committed set.
	KindNoPhotos ValidationKind = "no_photos"
	// KindNoArea: committing without an area label.
	KindNoArea ValidationKind = "no_area"
	// KindLimit: adding a photo past the per-set cap.
	KindLimit ValidationKind = "limit_reached"
	// KindNotFound: the referenced set or photo does not exist.
	KindNotFound ValidationKind = "not_found"
)

// ValidationError is surfaced to the caller as a typed result so the UI
// can render field-specific feedback. Never fatal; the user retries with
// corrected input.
type ValidationError struct {
	Kind ValidationKind
	Msg  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("photoset %s: %s", e.Kind, e.Msg)
}

// EmptySetPolicy decides what happens when a committed set loses its last
// photo. The legacy flows silently deleted the parent set; ForbidEmptySet
// instead rejects the removal and requires an explicit DeleteSet.
type EmptySetPolicy int

const (
	AutoDeleteEmptySet EmptySetPolicy = iota
	ForbidEmptySet
)

// SetPatch carries the mutable annotation fields of a committed set.
// Nil fields are left untouched; photos are never patched this way.
type SetPatch struct {
	Area          *string
	Levantamiento *string
	Gerencia      *string
}

// Manager owns the current working set (area, note, gerencia, photos) and
// the committed sets of one workflow instance. It is also the sole owner
// of every local photo ref it creates: each ref is revoked exactly once,
// when its photo is removed, its set is deleted, or the manager closes.
type Manager struct {
	store  ResourceStore
	policy EmptySetPolicy

	// Notify, when set, receives user-facing notices. Injected so commit
	// logic never reaches into a UI layer.
	Notify func(msg string)

	mu       sync.Mutex
	area     string
	note     string
	gerencia string
	buffer   []models.CapturedPhoto
	sets     []models.PhotoSet
}

func NewManager(store ResourceStore, policy EmptySetPolicy) *Manager {
	return &Manager{store: store, policy: policy}
}

func (m *Manager) SetArea(area string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.area = area
}

func (m *Manager) SetLevantamiento(note string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.note = note
}

func (m *Manager) SetGerencia(gerencia string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gerencia = gerencia
}

// AddPhoto moves a freshly captured photo into the working buffer. The
// manager takes ownership of data and assigns the photo its local ref.
func (m *Manager) AddPhoto(photo models.CapturedPhoto, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.buffer) >= models.MaxPhotosPerSet {
		return &ValidationError{Kind: KindLimit, Msg: fmt.Sprintf("set already has %d photos", models.MaxPhotosPerSet)}
	}
	photo.LocalRef = m.store.Create(data)
	m.buffer = append(m.buffer, photo)
	return nil
}

// BufferCount is the number of photos currently in the working buffer.
func (m *Manager) BufferCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buffer)
}

// Area returns the working buffer's area label.
func (m *Manager) Area() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.area
}

// RemovePhoto deletes a photo from the buffer or from a committed set and
// revokes its local ref. Under AutoDeleteEmptySet a committed set whose
// last photo is removed is deleted with it; under ForbidEmptySet the
// removal is rejected so the set stays valid until explicitly deleted.
func (m *Manager) RemovePhoto(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, p := range m.buffer {
		if p.ID == id {
			m.revoke(p)
			m.buffer = append(m.buffer[:i], m.buffer[i+1:]...)
			return nil
		}
	}

	for si := range m.sets {
		set := &m.sets[si]
		for pi, p := range set.Photos {
			if p.ID != id {
				continue
			}
			if len(set.Photos) == 1 {
				if m.policy == ForbidEmptySet {
					return &ValidationError{Kind: KindNoPhotos, Msg: "a set must keep at least one photo; delete the set instead"}
				}
				m.deleteSetLocked(si)
				return nil
			}
			m.revoke(p)
			set.Photos = append(set.Photos[:pi], set.Photos[pi+1:]...)
			return nil
		}
	}

	return &ValidationError{Kind: KindNotFound, Msg: "photo not found"}
}

// CommitSet validates the working buffer, assigns a collision-free area
// label, appends the new set to the committed list and clears the buffer
// so the next area can start clean.
func (m *Manager) CommitSet() (models.PhotoSet, error) {
	m.mu.Lock()

	if len(m.buffer) == 0 {
		m.mu.Unlock()
		return models.PhotoSet{}, &ValidationError{Kind: KindNoPhotos, Msg: "capture at least one photo before saving"}
	}
	if strings.TrimSpace(m.area) == "" {
		m.mu.Unlock()
		return models.PhotoSet{}, &ValidationError{Kind: KindNoArea, Msg: "the area name is required"}
	}

	set := models.PhotoSet{
		ID:            uuid.New(),
		Area:          m.uniqueLabelLocked(m.area, uuid.Nil),
		Levantamiento: m.note,
		Gerencia:      m.gerencia,
		Photos:        m.buffer,
		Status:        models.PhotoSetStatusStaged,
		CreatedAt:     time.Now(),
	}
	m.sets = append(m.sets, set)

	m.buffer = nil
	m.area = ""
	m.note = ""
	m.gerencia = ""

	notify := m.Notify
	m.mu.Unlock()

	// Outside the lock: the callback may read the manager back.
	if notify != nil {
		notify(fmt.Sprintf("area %q saved with %d photo(s)", set.Area, len(set.Photos)))
	}
	return set, nil
}

// DeleteSet removes a committed set and revokes all of its local refs.
func (m *Manager) DeleteSet(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.sets {
		if m.sets[i].ID == id {
			m.deleteSetLocked(i)
			return nil
		}
	}
	return &ValidationError{Kind: KindNotFound, Msg: "set not found"}
}

// UpdateSet patches a committed set's annotations. Photos are untouched.
// A renamed area keeps the uniqueness invariant via the same suffix rule
// commit uses.
func (m *Manager) UpdateSet(id uuid.UUID, patch SetPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.sets {
		if m.sets[i].ID != id {
			continue
		}
		if patch.Area != nil {
			if strings.TrimSpace(*patch.Area) == "" {
				return &ValidationError{Kind: KindNoArea, Msg: "the area name is required"}
			}
			m.sets[i].Area = m.uniqueLabelLocked(*patch.Area, id)
		}
		if patch.Levantamiento != nil {
			m.sets[i].Levantamiento = *patch.Levantamiento
		}
		if patch.Gerencia != nil {
			m.sets[i].Gerencia = *patch.Gerencia
		}
		return nil
	}
	return &ValidationError{Kind: KindNotFound, Msg: "set not found"}
}

// Sets returns a snapshot of the committed sets in commit order.
func (m *Manager) Sets() []models.PhotoSet {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.PhotoSet, len(m.sets))
	copy(out, m.sets)
	for i := range out {
		photos := make([]models.CapturedPhoto, len(m.sets[i].Photos))
		copy(photos, m.sets[i].Photos)
		out[i].Photos = photos
	}
	return out
}

// PhotoData resolves a photo's local blob for upload or report embedding.
func (m *Manager) PhotoData(p models.CapturedPhoto) ([]byte, bool) {
	if p.LocalRef == "" {
		return nil, false
	}
	return m.store.Fetch(p.LocalRef)
}

// Close revokes every local ref still owned by the manager: the working
// buffer and all committed sets. Independent of any UI lifecycle.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.buffer {
		m.revoke(p)
	}
	m.buffer = nil
	for _, set := range m.sets {
		for _, p := range set.Photos {
			m.revoke(p)
		}
	}
	m.sets = nil
}

func (m *Manager) deleteSetLocked(i int) {
	for _, p := range m.sets[i].Photos {
		m.revoke(p)
	}
	m.sets = append(m.sets[:i], m.sets[i+1:]...)
}

func (m *Manager) revoke(p models.CapturedPhoto) {
	if p.LocalRef != "" {
		m.store.Revoke(p.LocalRef)
	}
}

// uniqueLabelLocked appends " (n)" until the label collides with no other
// committed set. exclude skips the set being renamed.
func (m *Manager) uniqueLabelLocked(label string, exclude uuid.UUID) string {
	taken := func(candidate string) bool {
		for _, s := range m.sets {
			if s.ID != exclude && s.Area == candidate {
				return true
			}
		}
		return false
	}
	if !taken(label) {
		return label
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s (%d)", label, n)
		if !taken(candidate) {
			return candidate
		}
	}
}
