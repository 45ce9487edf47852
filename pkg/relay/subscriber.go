package relay

import (
	"errors"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/sudorandom/dot-globe/pkg/globe"
)

// reconnectDelay is the fixed wait before a dropped connection is retried.
// At most one reconnect is ever pending.
const reconnectDelay = 5 * time.Second

// Handler receives every visitor coordinate the relay delivers, both the
// initial replay and live announcements.
type Handler func(lat, lng float64, at time.Time)

// Subscriber maintains a consumer connection to a relay hub, delivering
// visitor coordinates to a handler and announcing the local visitor.
// It implements globe.Broadcaster.
type Subscriber struct {
	url   string
	tasks *globe.TaskRegistry
	log   zerolog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	handler Handler
	closed  bool
	pending func() // cancel for the single pending reconnect
}

// NewSubscriber builds a subscriber for the given ws:// or wss:// URL.
func NewSubscriber(url string, log zerolog.Logger) *Subscriber {
	return &Subscriber{
		url:   url,
		tasks: globe.NewTaskRegistry(),
		log:   log,
	}
}

// Subscribe connects and starts delivering coordinates to handler. The
// returned stop func tears the connection down and cancels any pending
// reconnect.
func (s *Subscriber) Subscribe(handler Handler) (stop func(), err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errors.New("subscriber closed")
	}
	s.handler = handler
	s.mu.Unlock()

	s.connect()
	return s.Close, nil
}

// connect dials and starts the read loop. Failure schedules one retry.
func (s *Subscriber) connect() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.pending = nil
	s.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.Dial(s.url, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("url", s.url).Msg("relay dial failed, retrying")
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
	s.mu.Unlock()

	s.log.Info().Str("url", s.url).Msg("relay connected")
	go s.readLoop(conn)
}

func (s *Subscriber) readLoop(conn *websocket.Conn) {
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
			if !closed {
				s.log.Warn().Err(err).Msg("relay connection lost, retrying")
				s.scheduleReconnect()
			}
			return
		}
		// A frame that fails to parse is skipped; the connection stays up.
		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.log.Warn().Err(err).Msg("malformed relay frame")
			continue
		}
		s.dispatch(msg)
	}
}

// dispatch routes one message. Unknown types are logged and dropped.
func (s *Subscriber) dispatch(msg Message) {
	s.mu.Lock()
	handler := s.handler
	s.mu.Unlock()
	if handler == nil {
		return
	}

	switch msg.Type {
	case MessageTypeInitialLocations:
		for _, v := range msg.Locations {
			handler(v.Latitude, v.Longitude, time.UnixMilli(v.Timestamp))
		}
	case MessageTypeVisitorLocation:
		if msg.Location == nil {
			s.log.Warn().Msg("visitor_location without a location")
			return
		}
		handler(msg.Location.Latitude, msg.Location.Longitude, time.UnixMilli(msg.Location.Timestamp))
	default:
		s.log.Debug().Str("type", msg.Type).Msg("ignoring relay message")
	}
}

// scheduleReconnect arms the single retry timer. A second call while one is
// pending is a no-op.
func (s *Subscriber) scheduleReconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.pending != nil {
		return
	}
	s.pending = s.tasks.After(reconnectDelay, s.connect)
}

// AnnounceVisitor implements globe.Broadcaster: it sends the local visitor's
// coordinate as a new_visitor message.
func (s *Subscriber) AnnounceVisitor(lat, lng float64) error {
	msg := NewVisitorMessage(lat, lng)

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return errors.New("relay not connected")
	}
	return conn.WriteJSON(msg)
}

// Close drops the connection and cancels any pending reconnect. Safe to call
// more than once.
func (s *Subscriber) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	s.tasks.Close()
	if conn != nil {
		_ = conn.Close()
	}
}

// PendingReconnects reports live retry timers, for teardown leak checks.
func (s *Subscriber) PendingReconnects() int { return s.tasks.Pending() }
