package relay

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/chainsafe/fusion-swap/internal/metrics"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

type subscriber struct {
	out     chan []byte
	dropped chan struct{}
	once    sync.Once
}

func (s *subscriber) drop() {
	s.once.Do(func() { close(s.dropped) })
}

// Hub fans intent events out to websocket subscribers. A subscriber whose
// buffer is full is disconnected rather than slowing the publisher.
type Hub struct {
	subs     *xsync.MapOf[string, *subscriber]
	buffer   int
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewHub creates a Hub with per-subscriber buffers of the given size.
func NewHub(buffer int, logger *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{
		subs:   xsync.NewMapOf[string, *subscriber](),
		buffer: buffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Publish implements Publisher.
func (h *Hub) Publish(ev Event) {
	b, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("failed to encode stream event", zap.Error(err))
		return
	}
	h.subs.Range(func(id string, sub *subscriber) bool {
		select {
		case sub.out <- b:
		default:
			h.logger.Warn("dropping slow stream subscriber", zap.String("session_id", id))
			sub.drop()
		}
		return true
	})
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	return h.subs.Size()
}

func (h *Hub) add() (string, *subscriber) {
	id := uuid.NewString()
	sub := &subscriber{
		out:     make(chan []byte, h.buffer),
		dropped: make(chan struct{}),
	}
	h.subs.Store(id, sub)
	metrics.StreamSubscribers.Inc()
	return id, sub
}

func (h *Hub) remove(id string) {
	if _, ok := h.subs.LoadAndDelete(id); ok {
		metrics.StreamSubscribers.Dec()
	}
}

// ServeHTTP upgrades the request and streams events until the client leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	id, sub := h.add()
	defer h.remove(id)
	h.logger.Debug("stream subscriber connected", zap.String("session_id", id))

	// Reader: only control frames are expected; it ends on close or error.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-sub.dropped:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "subscriber too slow"),
				time.Now().Add(writeWait))
			return
		case b := <-sub.out:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
