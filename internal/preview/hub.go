package preview

import (
	"bytes"
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"audit-capture/internal/camera"

	"github.com/disintegration/imaging"
	"github.com/gorilla/websocket"
)

// DefaultFrameInterval is the preview frame rate (~10 fps); the preview is
// for framing a shot, not recording.
const DefaultFrameInterval = 100 * time.Millisecond

// Hub is a websocket render surface: while a stream is attached it samples
// frames and fans the JPEG bytes out to every connected viewer. Implements
// camera.RenderSurface.
type Hub struct {
	upgrader websocket.Upgrader
	interval time.Duration

	mu     sync.RWMutex
	conns  map[*websocket.Conn]bool
	cancel context.CancelFunc
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		interval: DefaultFrameInterval,
		conns:    make(map[*websocket.Conn]bool),
	}
}

// Attach starts the frame pump for the new stream. The session guarantees
// Detach was called for any previous stream first.
func (h *Hub) Attach(stream camera.Stream) {
	ctx, cancel := context.WithCancel(context.Background())
	h.mu.Lock()
	h.cancel = cancel
	h.mu.Unlock()
	go h.pump(ctx, stream)
}

// Detach stops the frame pump. Viewers stay connected for the next stream.
func (h *Hub) Detach() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

func (h *Hub) pump(ctx context.Context, stream camera.Stream) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !h.hasViewers() {
				continue
			}
			frame, err := stream.Frame()
			if err != nil {
				continue
			}
			var buf bytes.Buffer
			if err := imaging.Encode(&buf, frame, imaging.JPEG, imaging.JPEGQuality(70)); err != nil {
				continue
			}
			h.broadcast(buf.Bytes())
		}
	}
}

func (h *Hub) hasViewers() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns) > 0
}

func (h *Hub) broadcast(frame []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			conn.Close()
			delete(h.conns, conn)
		}
	}
}

// ServeWS upgrades an HTTP request into a preview viewer connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("preview: websocket upgrade failed: %v", err)
		return
	}

	h.mu.Lock()
	h.conns[conn] = true
	h.mu.Unlock()

	// Read loop only to notice the client going away.
	go func() {
		defer func() {
			h.mu.Lock()
			delete(h.conns, conn)
			h.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
