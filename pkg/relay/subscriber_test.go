package relay

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

type coordSink struct {
	mu     sync.Mutex
	coords [][2]float64
}

func (s *coordSink) handler(lat, lng float64, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.coords = append(s.coords, [2]float64{lat, lng})
}

func (s *coordSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.coords)
}

func (s *coordSink) waitLen(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if s.len() >= n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("received %d coordinates, want %d", s.len(), n)
}

func TestSubscriberReceivesReplayAndLive(t *testing.T) {
	_, url := startHub(t, nil)

	sink := &coordSink{}
	sub := NewSubscriber(url, zerolog.Nop())
	stop, err := sub.Subscribe(sink.handler)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	// A second session announces; the subscriber sees it live.
	other := dial(t, url)
	readMessage(t, other)
	if err := other.WriteJSON(NewVisitorMessage(40.71, -74.0)); err != nil {
		t.Fatalf("write: %v", err)
	}

	sink.waitLen(t, 1)
	sink.mu.Lock()
	got := sink.coords[0]
	sink.mu.Unlock()
	if got != [2]float64{40.71, -74.0} {
		t.Errorf("live coordinate = %v", got)
	}
}

func TestSubscriberReplaysRecentBuffer(t *testing.T) {
	hub, url := startHub(t, nil)
	hub.mu.Lock()
	hub.recent = []VisitorLocation{
		{Latitude: 1, Longitude: 2, Timestamp: 1},
		{Latitude: 3, Longitude: 4, Timestamp: 2},
	}
	hub.mu.Unlock()

	sink := &coordSink{}
	sub := NewSubscriber(url, zerolog.Nop())
	stop, err := sub.Subscribe(sink.handler)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	sink.waitLen(t, 2)
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.coords[0] != [2]float64{1, 2} || sink.coords[1] != [2]float64{3, 4} {
		t.Errorf("replayed = %v, want [[1 2] [3 4]]", sink.coords)
	}
}

func TestSubscriberAnnounceReachesHub(t *testing.T) {
	hub, url := startHub(t, nil)

	sub := NewSubscriber(url, zerolog.Nop())
	stop, err := sub.Subscribe(func(lat, lng float64, at time.Time) {})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && hub.ClientCount() == 0 {
		time.Sleep(10 * time.Millisecond)
	}

	if err := sub.AnnounceVisitor(51.5, -0.12); err != nil {
		t.Fatalf("AnnounceVisitor: %v", err)
	}

	for time.Now().Before(deadline) && len(hub.Recent()) == 0 {
		time.Sleep(10 * time.Millisecond)
	}
	recent := hub.Recent()
	if len(recent) != 1 {
		t.Fatalf("hub buffer len = %d, want 1", len(recent))
	}
	if recent[0].Latitude != 51.5 || recent[0].Longitude != -0.12 {
		t.Errorf("announced location = (%v, %v)", recent[0].Latitude, recent[0].Longitude)
	}
}

func TestSubscriberSurvivesMalformedFrames(t *testing.T) {
	frames := [][]byte{
		[]byte(`{not json`),
		[]byte(`{"type":"visitor_location","location":{"latitude":12.5,"longitude":-8.25,"timestamp":99}}`),
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, f); err != nil {
				return
			}
		}
		// Hold the connection open until the client is done reading.
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	sink := &coordSink{}
	sub := NewSubscriber("ws"+strings.TrimPrefix(srv.URL, "http"), zerolog.Nop())
	stop, err := sub.Subscribe(sink.handler)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	// The valid frame after the bad one still arrives.
	sink.waitLen(t, 1)
	sink.mu.Lock()
	got := sink.coords[0]
	sink.mu.Unlock()
	if got != [2]float64{12.5, -8.25} {
		t.Errorf("coordinate after bad frame = %v, want [12.5 -8.25]", got)
	}
	if got := sub.PendingReconnects(); got != 0 {
		t.Errorf("pending reconnects = %d, want the connection to survive", got)
	}
}

func TestSubscriberDialFailureSchedulesOneReconnect(t *testing.T) {
	sub := NewSubscriber("ws://127.0.0.1:1/ws", zerolog.Nop())
	stop, err := sub.Subscribe(func(lat, lng float64, at time.Time) {})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && sub.PendingReconnects() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if got := sub.PendingReconnects(); got != 1 {
		t.Errorf("pending reconnects = %d, want 1", got)
	}

	// Repeated scheduling never stacks timers.
	sub.scheduleReconnect()
	sub.scheduleReconnect()
	if got := sub.PendingReconnects(); got != 1 {
		t.Errorf("pending reconnects after repeats = %d, want 1", got)
	}
}

func TestSubscriberCloseCancelsReconnect(t *testing.T) {
	sub := NewSubscriber("ws://127.0.0.1:1/ws", zerolog.Nop())
	stop, err := sub.Subscribe(func(lat, lng float64, at time.Time) {})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	stop()
	stop() // idempotent
	if got := sub.PendingReconnects(); got != 0 {
		t.Errorf("pending reconnects after Close = %d, want 0", got)
	}
	if _, err := sub.Subscribe(func(lat, lng float64, at time.Time) {}); err == nil {
		t.Error("Subscribe after Close succeeded")
	}
}

func TestSubscriberAnnounceWhileDisconnected(t *testing.T) {
	sub := NewSubscriber("ws://127.0.0.1:1/ws", zerolog.Nop())
	if err := sub.AnnounceVisitor(1, 2); err == nil {
		t.Error("AnnounceVisitor without a connection succeeded")
	}
	sub.Close()
}
