package camera

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"
)

type State string

const (
	StateIdle              State = "idle"
	StatePermissionPending State = "permission-pending"
	StateDenied            State = "denied"
	StateActive            State = "active"
	StateStopped           State = "stopped"
)

// DefaultAcquireTimeout bounds camera acquisition so a permission prompt
// left unanswered cannot leave the session pending forever.
const DefaultAcquireTimeout = 15 * time.Second

// Session owns at most one live camera stream at a time. Starting a new
// stream always releases the previous one first, and a stream arriving
// after Stop is released instead of bound.
type Session struct {
	devices MediaDevices
	surface RenderSurface

	// AcquireTimeout may be adjusted before the first Start.
	AcquireTimeout time.Duration
	// Notify, when set, receives user-facing notices. Injected so the
	// session never talks to a UI layer directly.
	Notify func(msg string)

	// acquireMu serializes acquisitions; two Start calls never race the
	// platform API.
	acquireMu sync.Mutex

	mu       sync.Mutex
	state    State
	stream   Stream
	label    string
	gen      uint64
	unwatch  func()
	watching bool
}

func NewSession(devices MediaDevices, surface RenderSurface) *Session {
	if surface == nil {
		surface = NopSurface{}
	}
	return &Session{
		devices:        devices,
		surface:        surface,
		AcquireTimeout: DefaultAcquireTimeout,
		state:          StateIdle,
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stream returns the currently bound stream, or nil when not active.
func (s *Session) Stream() Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream
}

// Label returns the area label of the most recent Start.
func (s *Session) Label() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.label
}

// CheckPermission queries the platform permission subsystem. Platforms
// without a query degrade to PermissionPrompt; the real answer then comes
// from the first Start. On first call it also subscribes to permission
// changes for the rest of the session's life.
func (s *Session) CheckPermission(ctx context.Context) (PermissionState, error) {
	state, err := s.devices.QueryPermission(ctx)
	if errors.Is(err, ErrPermissionQueryUnsupported) {
		state, err = PermissionPrompt, nil
	}
	if err != nil {
		return PermissionPrompt, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.watching {
		cancel, werr := s.devices.WatchPermission(s.onPermissionChange)
		if werr != nil {
			log.Printf("camera: permission watch unavailable: %v", werr)
		} else {
			s.unwatch = cancel
			s.watching = true
		}
	}
	if state == PermissionDenied && s.state == StateIdle {
		s.state = StateDenied
	}
	return state, nil
}

func (s *Session) onPermissionChange(state PermissionState) {
	var msg string
	s.mu.Lock()
	switch state {
	case PermissionGranted:
		// Re-attempt allowed again.
		if s.state == StateDenied {
			s.state = StateIdle
		}
	case PermissionDenied:
		s.gen++
		s.releaseLocked()
		s.state = StateDenied
		msg = "camera access was revoked"
	}
	s.mu.Unlock()

	// Outside the lock: the callback may read the session back.
	if msg != "" {
		s.notice(msg)
	}
}

// Start acquires the rear camera and binds it to the render surface. The
// label names the area the captures will document and must be non-empty;
// hardware is never acquired without a destination for its output. If a
// stream is already active it is stopped first, so calling Start twice
// leaves exactly one live stream.
func (s *Session) Start(ctx context.Context, label string) error {
	if strings.TrimSpace(label) == "" {
		return ErrEmptyLabel
	}

	s.acquireMu.Lock()
	defer s.acquireMu.Unlock()

	s.mu.Lock()
	s.releaseLocked()
	s.gen++
	gen := s.gen
	s.state = StatePermissionPending
	s.label = label
	timeout := s.AcquireTimeout
	s.mu.Unlock()

	if timeout <= 0 {
		timeout = DefaultAcquireTimeout
	}
	acquireCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stream, err := s.devices.GetVideoStream(acquireCtx, Constraints{FacingRear: true, Audio: false})

	s.mu.Lock()

	if s.gen != gen {
		s.mu.Unlock()
		// Stopped while acquiring. Release the late handle, never bind it.
		if stream != nil {
			stopTracks(stream)
		}
		return nil
	}

	if err != nil {
		cerr := classify(err)
		denied := cerr.Kind == KindPermissionDenied
		if denied {
			s.state = StateDenied
		} else {
			s.state = StateIdle
		}
		s.mu.Unlock()
		if denied {
			s.notice("camera access denied")
		}
		return cerr
	}

	s.stream = stream
	s.state = StateActive
	s.surface.Attach(stream)
	s.mu.Unlock()
	return nil
}

// Stop releases all hardware tracks and detaches the render surface.
// Safe to call at any time, including when already stopped.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.releaseLocked()
	s.state = StateStopped
}

// Close stops the session and cancels the permission subscription. Must be
// called on teardown so the hardware indicator is never left on.
func (s *Session) Close() {
	s.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unwatch != nil {
		s.unwatch()
		s.unwatch = nil
		s.watching = false
	}
}

func (s *Session) releaseLocked() {
	if s.stream == nil {
		return
	}
	s.surface.Detach()
	stopTracks(s.stream)
	s.stream = nil
}

func (s *Session) notice(msg string) {
	if s.Notify != nil {
		s.Notify(msg)
	}
}
