package camera_test

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"audit-capture/internal/camera"
)

// eventLog records the interleaving of track stops and surface attaches so
// tests can assert ordering across streams.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.events))
	copy(out, l.events)
	return out
}

func (l *eventLog) indexOf(e string) int {
	for i, got := range l.snapshot() {
		if got == e {
			return i
		}
	}
	return -1
}

type fakeTrack struct {
	id  int
	log *eventLog

	mu      sync.Mutex
	stopped bool
}

func (t *fakeTrack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	t.log.add(fmt.Sprintf("stop:%d", t.id))
}

func (t *fakeTrack) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

type fakeStream struct {
	id    int
	track *fakeTrack
}

func (s *fakeStream) Tracks() []camera.Track { return []camera.Track{s.track} }

func (s *fakeStream) Frame() (image.Image, error) {
	img := image.NewRGBA(image.Rect(0, 0, 320, 240))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	img.SetRGBA(0, 0, color.RGBA{255, 0, 0, 255})
	return img, nil
}

type fakeDevices struct {
	log *eventLog

	mu       sync.Mutex
	nextID   int
	perm     camera.PermissionState
	permErr  error
	watchers []func(camera.PermissionState)
	// acquire, when set, replaces the default immediate success.
	acquire func(ctx context.Context) (camera.Stream, error)
	streams []*fakeStream
}

func newFakeDevices(log *eventLog) *fakeDevices {
	return &fakeDevices{log: log, perm: camera.PermissionGranted}
}

func (d *fakeDevices) QueryPermission(ctx context.Context) (camera.PermissionState, error) {
	return d.perm, d.permErr
}

func (d *fakeDevices) WatchPermission(fn func(camera.PermissionState)) (func(), error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.watchers = append(d.watchers, fn)
	return func() {}, nil
}

func (d *fakeDevices) firePermissionChange(state camera.PermissionState) {
	d.mu.Lock()
	watchers := append([]func(camera.PermissionState){}, d.watchers...)
	d.mu.Unlock()
	for _, fn := range watchers {
		fn(state)
	}
}

func (d *fakeDevices) GetVideoStream(ctx context.Context, c camera.Constraints) (camera.Stream, error) {
	if d.acquire != nil {
		return d.acquire(ctx)
	}
	return d.newStream(), nil
}

func (d *fakeDevices) newStream() *fakeStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	s := &fakeStream{id: d.nextID, track: &fakeTrack{id: d.nextID, log: d.log}}
	d.streams = append(d.streams, s)
	return s
}

type fakeSurface struct {
	log *eventLog
}

func (s *fakeSurface) Attach(stream camera.Stream) {
	if fs, ok := stream.(*fakeStream); ok {
		s.log.add(fmt.Sprintf("attach:%d", fs.id))
	}
}

func (s *fakeSurface) Detach() {
	s.log.add("detach")
}

func newTestSession(t *testing.T) (*camera.Session, *fakeDevices, *eventLog) {
	t.Helper()
	log := &eventLog{}
	dev := newFakeDevices(log)
	sess := camera.NewSession(dev, &fakeSurface{log: log})
	t.Cleanup(sess.Close)
	return sess, dev, log
}

func TestStartRequiresLabel(t *testing.T) {
	sess, _, _ := newTestSession(t)
	if err := sess.Start(context.Background(), "  "); !errors.Is(err, camera.ErrEmptyLabel) {
		t.Fatalf("Start with blank label: got %v, want ErrEmptyLabel", err)
	}
	if got := sess.State(); got != camera.StateIdle {
		t.Fatalf("state after rejected start = %s, want idle", got)
	}
}

func TestStartBindsStream(t *testing.T) {
	sess, _, _ := newTestSession(t)
	if err := sess.Start(context.Background(), "Línea 1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := sess.State(); got != camera.StateActive {
		t.Fatalf("state = %s, want active", got)
	}
	if sess.Stream() == nil {
		t.Fatal("no stream bound after successful Start")
	}
	if got := sess.Label(); got != "Línea 1" {
		t.Fatalf("label = %q", got)
	}
}

func TestStartTwiceLeavesOneActiveStream(t *testing.T) {
	sess, dev, log := newTestSession(t)
	ctx := context.Background()

	if err := sess.Start(ctx, "Línea 1"); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := sess.Start(ctx, "Línea 2"); err != nil {
		t.Fatalf("second Start: %v", err)
	}

	if len(dev.streams) != 2 {
		t.Fatalf("acquired %d streams, want 2", len(dev.streams))
	}
	if !dev.streams[0].track.isStopped() {
		t.Fatal("first stream's track still running after re-acquire")
	}
	if dev.streams[1].track.isStopped() {
		t.Fatal("second stream's track was stopped")
	}

	// The old hardware lock must be gone before the new stream binds.
	stop1, attach2 := log.indexOf("stop:1"), log.indexOf("attach:2")
	if stop1 == -1 || attach2 == -1 || stop1 > attach2 {
		t.Fatalf("expected stop:1 before attach:2, got %v", log.snapshot())
	}
}

func TestStartPermissionDenied(t *testing.T) {
	sess, dev, _ := newTestSession(t)
	dev.acquire = func(ctx context.Context) (camera.Stream, error) {
		return nil, &camera.Error{Kind: camera.KindPermissionDenied}
	}

	err := sess.Start(context.Background(), "Línea 1")
	var cerr *camera.Error
	if !errors.As(err, &cerr) || cerr.Kind != camera.KindPermissionDenied {
		t.Fatalf("got %v, want permission denied", err)
	}
	if got := sess.State(); got != camera.StateDenied {
		t.Fatalf("state = %s, want denied", got)
	}

	// A platform grant makes the session retryable again.
	if _, err := sess.CheckPermission(context.Background()); err != nil {
		t.Fatalf("CheckPermission: %v", err)
	}
	dev.firePermissionChange(camera.PermissionGranted)
	if got := sess.State(); got != camera.StateIdle {
		t.Fatalf("state after grant = %s, want idle", got)
	}

	dev.acquire = nil
	if err := sess.Start(context.Background(), "Línea 1"); err != nil {
		t.Fatalf("re-attempt after grant: %v", err)
	}
}

func TestStartDeviceUnavailableStaysIdle(t *testing.T) {
	sess, dev, _ := newTestSession(t)
	dev.acquire = func(ctx context.Context) (camera.Stream, error) {
		return nil, &camera.Error{Kind: camera.KindDeviceUnavailable}
	}
	err := sess.Start(context.Background(), "Línea 1")
	var cerr *camera.Error
	if !errors.As(err, &cerr) || cerr.Kind != camera.KindDeviceUnavailable {
		t.Fatalf("got %v, want device unavailable", err)
	}
	if got := sess.State(); got != camera.StateIdle {
		t.Fatalf("state = %s, want idle", got)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	sess, dev, _ := newTestSession(t)
	if err := sess.Start(context.Background(), "Línea 1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	sess.Stop()
	sess.Stop()
	sess.Stop()
	if got := sess.State(); got != camera.StateStopped {
		t.Fatalf("state = %s, want stopped", got)
	}
	if !dev.streams[0].track.isStopped() {
		t.Fatal("track not stopped")
	}
	if sess.Stream() != nil {
		t.Fatal("stream still bound after Stop")
	}
}

func TestLateArrivingStreamIsReleased(t *testing.T) {
	sess, dev, _ := newTestSession(t)

	release := make(chan struct{})
	dev.acquire = func(ctx context.Context) (camera.Stream, error) {
		<-release
		return dev.newStream(), nil
	}

	done := make(chan error, 1)
	go func() {
		done <- sess.Start(context.Background(), "Línea 1")
	}()

	// Wait for the acquisition to be in flight.
	deadline := time.After(2 * time.Second)
	for sess.State() != camera.StatePermissionPending {
		select {
		case <-deadline:
			t.Fatal("session never reached permission-pending")
		case <-time.After(time.Millisecond):
		}
	}

	sess.Stop()
	close(release)

	if err := <-done; err != nil {
		t.Fatalf("superseded Start returned error: %v", err)
	}
	if got := sess.State(); got != camera.StateStopped {
		t.Fatalf("state = %s, want stopped", got)
	}
	if sess.Stream() != nil {
		t.Fatal("late-arriving stream was bound")
	}
	if !dev.streams[0].track.isStopped() {
		t.Fatal("late-arriving stream's track was not released")
	}
}

func TestAcquireTimeout(t *testing.T) {
	sess, dev, _ := newTestSession(t)
	sess.AcquireTimeout = 20 * time.Millisecond
	dev.acquire = func(ctx context.Context) (camera.Stream, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	err := sess.Start(context.Background(), "Línea 1")
	var cerr *camera.Error
	if !errors.As(err, &cerr) || cerr.Kind != camera.KindDeviceUnavailable {
		t.Fatalf("got %v, want device unavailable after timeout", err)
	}
	if got := sess.State(); got != camera.StateIdle {
		t.Fatalf("state = %s, want idle", got)
	}
}

func TestNotifyMayReadSessionState(t *testing.T) {
	sess, dev, _ := newTestSession(t)
	if _, err := sess.CheckPermission(context.Background()); err != nil {
		t.Fatalf("CheckPermission: %v", err)
	}
	if err := sess.Start(context.Background(), "Línea 1"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// A host UI reads the session from inside its notice handler.
	noticed := make(chan string, 1)
	sess.Notify = func(msg string) {
		_ = sess.State()
		noticed <- msg
	}

	go dev.firePermissionChange(camera.PermissionDenied)

	select {
	case msg := <-noticed:
		if msg != "camera access was revoked" {
			t.Fatalf("notice = %q", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("notice handler blocked reading session state")
	}
	if got := sess.State(); got != camera.StateDenied {
		t.Fatalf("state = %s, want denied", got)
	}
}

func TestCheckPermissionUnsupportedDegradesToPrompt(t *testing.T) {
	sess, dev, _ := newTestSession(t)
	dev.permErr = camera.ErrPermissionQueryUnsupported
	state, err := sess.CheckPermission(context.Background())
	if err != nil {
		t.Fatalf("CheckPermission: %v", err)
	}
	if state != camera.PermissionPrompt {
		t.Fatalf("state = %s, want prompt", state)
	}
}
