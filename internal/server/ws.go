package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/linkeLi0421/Epstein-Rag/internal/bus"
	"github.com/linkeLi0421/Epstein-Rag/internal/metrics"
	"github.com/linkeLi0421/Epstein-Rag/internal/models"
)

// writeWait bounds how long a single frame write may block.
const writeWait = 10 * time.Second

// wsSession is one connected dashboard observer. Each session owns its own
// bus subscription, so one slow or dead connection never stalls another.
type wsSession struct {
	conn     *websocket.Conn
	sub      *bus.Subscription
	replies  chan models.Event
	done     chan struct{}
	closeOne sync.Once

	heartbeat time.Duration
	metrics   *metrics.Collector
	logger    *slog.Logger
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	sess := &wsSession{
		conn:      conn,
		sub:       s.bus.Subscribe(),
		replies:   make(chan models.Event, 4),
		done:      make(chan struct{}),
		heartbeat: s.cfg.WSHeartbeatInterval,
		metrics:   s.metrics,
		logger:    s.logger.With("remote", r.RemoteAddr),
	}

	if sess.metrics != nil {
		sess.metrics.ObserverConnected()
	}
	sess.logger.Info("observer connected")

	go sess.writePump()
	sess.readPump()
}

// teardown is idempotent: the read and write pumps both call it on any
// failure, and the first caller wins.
func (s *wsSession) teardown() {
	s.closeOne.Do(func() {
		close(s.done)
		s.sub.Detach()
		_ = s.conn.Close()
		if s.metrics != nil {
			s.metrics.ObserverDisconnected()
		}
		s.logger.Info("observer disconnected")
	})
}

// writePump serializes all frames for the connection: bus events, pong
// replies, and heartbeat pings. A single writer avoids concurrent writes
// on the gorilla connection.
func (s *wsSession) writePump() {
	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()
	defer s.teardown()

	hello := models.Event{
		Kind: models.EventConnection,
		Data: models.ConnectionInfo{
			Status:    "connected",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Message:   "dashboard channel established",
		},
	}
	if err := s.writeEvent(hello); err != nil {
		return
	}

	for {
		select {
		case ev, ok := <-s.sub.Events():
			if !ok {
				return
			}
			start := time.Now()
			if err := s.writeEvent(ev); err != nil {
				s.logger.Debug("websocket write failed", "error", err)
				return
			}
			if s.metrics != nil {
				s.metrics.RecordTiming(metrics.OpWSSend, time.Since(start))
			}
		case ev := <-s.replies:
			if err := s.writeEvent(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *wsSession) writeEvent(ev models.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("event not serializable", "kind", ev.Kind, "error", err)
		return nil
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

// clientMessage is what observers may send upstream. Only application-level
// pings are recognized; everything else is ignored.
type clientMessage struct {
	Type string `json:"type"`
}

func (s *wsSession) readPump() {
	defer s.teardown()

	pongWait := 2 * s.heartbeat
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Type != "ping" {
			continue
		}
		pong := models.Event{
			Kind: models.EventConnection,
			Data: models.ConnectionInfo{
				Status:    "pong",
				Timestamp: time.Now().UTC().Format(time.RFC3339),
			},
		}
		select {
		case s.replies <- pong:
		default:
			// reply queue full, the next ping will get through
		}
	}
}
