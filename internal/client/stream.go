package client

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/linkeLi0421/Epstein-Rag/internal/models"
)

const (
	initialReconnectDelay = 1 * time.Second
	maxReconnectDelay     = 30 * time.Second
)

// backoff tracks the exponential reconnect delay: doubled after every
// failed attempt, capped, and reset to the initial delay after a
// successful connection.
type backoff struct {
	initial time.Duration
	max     time.Duration
	current time.Duration
}

func newBackoff(initial, max time.Duration) *backoff {
	return &backoff{initial: initial, max: max, current: initial}
}

// next returns the delay to wait before the upcoming attempt and advances
// the schedule.
func (b *backoff) next() time.Duration {
	d := b.current
	b.current *= 2
	if b.current > b.max {
		b.current = b.max
	}
	return d
}

func (b *backoff) reset() {
	b.current = b.initial
}

type handler struct {
	kind models.EventKind // empty means catch-all
	fn   func(models.Event)
}

// Stream is a self-healing subscription to the dashboard event channel.
// It dials /ws/dashboard, dispatches incoming events to registered
// handlers, and reconnects with exponential backoff when the link drops.
// Connection state changes are surfaced as synthetic connection events.
type Stream struct {
	url    string
	logger *slog.Logger

	mu       sync.Mutex
	handlers map[*handler]struct{}
	conn     *websocket.Conn
	timer    *time.Timer
	backoff  *backoff
	closed   bool
}

// NewStream creates an event stream for the given client. Call Connect to
// start receiving events.
func (c *Client) NewStream(logger *slog.Logger) *Stream {
	if logger == nil {
		logger = slog.Default()
	}

	wsURL := c.baseURL
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)
	wsURL = strings.Replace(wsURL, "https://", "wss://", 1)

	return &Stream{
		url:      wsURL + "/ws/dashboard",
		logger:   logger,
		handlers: make(map[*handler]struct{}),
		backoff:  newBackoff(initialReconnectDelay, maxReconnectDelay),
	}
}

// On registers a handler for one event kind. The returned detach function
// is idempotent and safe to call from inside the handler itself.
func (s *Stream) On(kind models.EventKind, fn func(models.Event)) func() {
	return s.register(&handler{kind: kind, fn: fn})
}

// OnAny registers a catch-all handler that sees every event.
func (s *Stream) OnAny(fn func(models.Event)) func() {
	return s.register(&handler{fn: fn})
}

func (s *Stream) register(h *handler) func() {
	s.mu.Lock()
	s.handlers[h] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.handlers, h)
			s.mu.Unlock()
		})
	}
}

// Connect dials the server and starts the read loop. If the dial fails a
// reconnect attempt is scheduled, so Connect never needs retrying by hand.
func (s *Stream) Connect() {
	s.mu.Lock()
	if s.closed || s.conn != nil {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.dial()
}

func (s *Stream) dial() {
	conn, _, err := websocket.DefaultDialer.Dial(s.url, nil)
	if err != nil {
		s.logger.Warn("dashboard stream dial failed", "url", s.url, "error", err)
		s.emitConnection("disconnected", err.Error())
		s.scheduleReconnect()
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.conn = conn
	s.backoff.reset()
	s.mu.Unlock()

	s.logger.Info("dashboard stream connected", "url", s.url)
	s.emitConnection("connected", "")
	go s.readLoop(conn)
}

func (s *Stream) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			if s.conn == conn {
				s.conn = nil
			}
			s.mu.Unlock()

			_ = conn.Close()
			if closed {
				return
			}
			s.logger.Warn("dashboard stream dropped", "error", err)
			s.emitConnection("disconnected", err.Error())
			s.scheduleReconnect()
			return
		}

		var ev models.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			s.logger.Debug("unparseable stream frame", "error", err)
			continue
		}
		s.dispatch(ev)
	}
}

// scheduleReconnect arms the reconnect timer. At most one timer is pending
// at any time: a second failure while one is armed is a no-op.
func (s *Stream) scheduleReconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.timer != nil {
		return
	}
	delay := s.backoff.next()
	s.logger.Info("dashboard stream reconnecting", "delay", delay)
	s.timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		s.timer = nil
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return
		}
		s.dial()
	})
}

func (s *Stream) dispatch(ev models.Event) {
	s.mu.Lock()
	targets := make([]*handler, 0, len(s.handlers))
	for h := range s.handlers {
		if h.kind == "" || h.kind == ev.Kind {
			targets = append(targets, h)
		}
	}
	s.mu.Unlock()

	for _, h := range targets {
		h.fn(ev)
	}
}

func (s *Stream) emitConnection(status, message string) {
	s.dispatch(models.Event{
		Kind: models.EventConnection,
		Data: models.ConnectionInfo{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Message:   message,
		},
	})
}

// Close tears the stream down: no further events are delivered and no
// reconnect attempts are made.
func (s *Stream) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}
