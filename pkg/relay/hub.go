package relay

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sudorandom/dot-globe/pkg/globe"
)

// MaxRecent caps the replay buffer a new connection receives.
const MaxRecent = 30

// RecentStore persists the replay buffer across server restarts. A nil store
// keeps the buffer in memory only.
type RecentStore interface {
	LoadRecent() ([]globe.StoredLocation, error)
	SaveRecent([]globe.StoredLocation) error
}

// inbound is a message received from one connected client.
type inbound struct {
	from *Client
	msg  Message
}

// Hub relays visitor announcements between connected sessions and replays the
// recent-visitor buffer to each new connection. All state is owned by the Run
// goroutine.
type Hub struct {
	Register   chan *Client
	Unregister chan *Client

	inbound chan inbound

	clients map[*Client]bool
	recent  []VisitorLocation
	store   RecentStore
	log     zerolog.Logger
	now     func() time.Time

	mu      sync.RWMutex
	nActive int
}

// NewHub builds a hub, loading the replay buffer from store. Expired records
// are dropped at load time.
func NewHub(store RecentStore, log zerolog.Logger) *Hub {
	h := &Hub{
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		inbound:    make(chan inbound, 256),
		clients:    make(map[*Client]bool),
		store:      store,
		log:        log,
		now:        time.Now,
	}
	h.loadRecent()
	return h
}

func (h *Hub) loadRecent() {
	if h.store == nil {
		return
	}
	recs, err := h.store.LoadRecent()
	if err != nil {
		h.log.Warn().Err(err).Msg("recent-visitor buffer unreadable, starting empty")
		return
	}
	now := h.now()
	for _, rec := range recs {
		if rec.Expired(now) {
			continue
		}
		h.recent = append(h.recent, VisitorLocation{
			Latitude:  rec.Location[0],
			Longitude: rec.Location[1],
			Timestamp: rec.Timestamp,
		})
	}
	if n := len(h.recent) - MaxRecent; n > 0 {
		h.recent = h.recent[n:]
	}
	h.log.Info().Int("visitors", len(h.recent)).Msg("recent-visitor buffer loaded")
}

// ClientCount returns the number of connected sessions.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.nActive
}

// Recent returns a copy of the replay buffer, oldest first.
func (h *Hub) Recent() []VisitorLocation {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]VisitorLocation, len(h.recent))
	copy(out, h.recent)
	return out
}

// Run owns the client set until ctx is cancelled, at which point every
// connection is closed.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()

		case c := <-h.Register:
			h.clients[c] = true
			h.setCount(len(h.clients))
			h.log.Info().Int("total_clients", len(h.clients)).Msg("relay client connected")
			h.sendInitial(c)

		case c := <-h.Unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.setCount(len(h.clients))
			h.log.Info().Int("total_clients", len(h.clients)).Msg("relay client disconnected")

		case in := <-h.inbound:
			h.handle(in)
		}
	}
}

func (h *Hub) setCount(n int) {
	h.mu.Lock()
	h.nActive = n
	h.mu.Unlock()
}

func (h *Hub) sendInitial(c *Client) {
	select {
	case c.send <- InitialLocationsMessage(h.Recent()):
	default:
		h.log.Warn().Msg("initial_locations dropped, client send buffer full")
	}
}

// handle processes one client message. Announcements go into the replay
// buffer and out to every other session as visitor_location; anything else is
// logged and dropped.
func (h *Hub) handle(in inbound) {
	if in.msg.Type != MessageTypeNewVisitor {
		h.log.Debug().Str("type", in.msg.Type).Msg("ignoring relay message")
		return
	}
	v := VisitorLocation{
		Latitude:  globe.ClampLatitude(in.msg.Latitude),
		Longitude: globe.NormalizeLongitude(in.msg.Longitude),
		Timestamp: h.now().UnixMilli(),
	}

	h.appendRecent(v)

	out := VisitorLocationMessage(v)
	for c := range h.clients {
		if c == in.from {
			continue
		}
		select {
		case c.send <- out:
		default:
			// Slow consumer: drop the message rather than block the hub.
			h.log.Warn().Msg("visitor_location dropped, client send buffer full")
		}
	}
}

func (h *Hub) appendRecent(v VisitorLocation) {
	h.mu.Lock()
	h.recent = append(h.recent, v)
	if n := len(h.recent) - MaxRecent; n > 0 {
		h.recent = append(h.recent[:0], h.recent[n:]...)
	}
	snapshot := make([]globe.StoredLocation, len(h.recent))
	for i, r := range h.recent {
		snapshot[i] = r.Stored()
	}
	h.mu.Unlock()

	if h.store == nil {
		return
	}
	if err := h.store.SaveRecent(snapshot); err != nil {
		h.log.Warn().Err(err).Msg("failed to persist recent-visitor buffer")
	}
}

func (h *Hub) closeAll() {
	n := len(h.clients)
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.setCount(0)
	h.log.Info().Int("clients_closed", n).Msg("relay hub shut down")
}
