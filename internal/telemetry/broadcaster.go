// Package telemetry fans out rewrite-decision events over a websocket so a
// debug viewer can watch the latency mitigation core work in real time.
// Building that viewer is out of scope here; this package only produces
// the stream it would consume.
package telemetry

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/gorilla/websocket"

	"github.com/example/anilock/internal/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// RewriteEvent describes one animation-lock duration rewrite decision, for
// display rather than protocol use.
type RewriteEvent struct {
	ConnectionID   string    `json:"connection_id"`
	ActionID       uint32    `json:"action_id"`
	SourceSequence uint32    `json:"source_sequence"`
	OriginalWaitMs int64     `json:"original_wait_ms"`
	ResolvedWaitMs int64     `json:"resolved_wait_ms"`
	ObservedAt     time.Time `json:"observed_at"`
}

type viewer struct {
	conn *websocket.Conn
	send chan []byte
	id   string
}

// Broadcaster holds the set of connected debug viewers and fans rewrite
// events out to them. The zero value is not usable; construct with
// NewBroadcaster.
type Broadcaster struct {
	mu      sync.Mutex
	viewers map[*viewer]bool
	logger  *logging.Logger
}

// NewBroadcaster returns an empty Broadcaster.
func NewBroadcaster(logger *logging.Logger) *Broadcaster {
	if logger == nil {
		logger = logging.NewTestLogger()
	}
	return &Broadcaster{
		viewers: make(map[*viewer]bool),
		logger:  logger,
	}
}

// PublishRewrite builds a RewriteEvent and publishes it. It satisfies
// latencyhandler.TelemetryPublisher without this package importing
// latencyhandler, keeping the dependency one-directional.
func (b *Broadcaster) PublishRewrite(connectionID string, actionID, sourceSequence uint32, originalWaitMs, resolvedWaitMs int64, observedAt time.Time) {
	b.Publish(RewriteEvent{
		ConnectionID:   connectionID,
		ActionID:       actionID,
		SourceSequence: sourceSequence,
		OriginalWaitMs: originalWaitMs,
		ResolvedWaitMs: resolvedWaitMs,
		ObservedAt:     observedAt,
	})
}

// Publish encodes event and fans it out to every connected viewer. Slow
// viewers whose send buffer is full are dropped rather than allowed to
// stall publication for everyone else.
func (b *Broadcaster) Publish(event RewriteEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("failed to marshal rewrite event", logging.Error(err))
		return
	}
	compressed := snappy.Encode(nil, payload)

	b.mu.Lock()
	defer b.mu.Unlock()
	for v := range b.viewers {
		select {
		case v.send <- compressed:
		default:
			close(v.send)
			delete(b.viewers, v)
		}
	}
}

// ViewerCount reports how many debug viewers are currently connected.
func (b *Broadcaster) ViewerCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.viewers)
}

// ServeHTTP upgrades the request to a websocket and registers the caller
// as a debug viewer until it disconnects.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Error("telemetry websocket upgrade failed", logging.Error(err))
		return
	}

	v := &viewer{conn: conn, send: make(chan []byte, 64), id: r.RemoteAddr}

	b.mu.Lock()
	b.viewers[v] = true
	b.mu.Unlock()
	b.logger.Info("telemetry viewer connected", logging.String("remote_addr", v.id))

	go b.writePump(v)
	b.readPump(v)
}

func (b *Broadcaster) writePump(v *viewer) {
	defer v.conn.Close()
	for payload := range v.send {
		if err := v.conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
			return
		}
	}
	_ = v.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// readPump blocks until the viewer disconnects, discarding anything it
// sends: this is a fan-out-only channel.
func (b *Broadcaster) readPump(v *viewer) {
	defer b.forget(v)
	for {
		if _, _, err := v.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (b *Broadcaster) forget(v *viewer) {
	b.mu.Lock()
	if _, ok := b.viewers[v]; ok {
		close(v.send)
		delete(b.viewers, v)
	}
	b.mu.Unlock()
	b.logger.Info("telemetry viewer disconnected", logging.String("remote_addr", v.id))
}
