// Package relay shares visitor locations between sessions over a websocket
// hub: each connecting session announces its own coordinate and receives the
// coordinates of everyone else, so the globes stay in sync.
package relay

import (
	"github.com/sudorandom/dot-globe/pkg/globe"
)

// Message types on the relay wire.
const (
	// MessageTypeNewVisitor is sent by a session announcing its own
	// coordinate.
	MessageTypeNewVisitor = "new_visitor"

	// MessageTypeInitialLocations is sent by the hub to a freshly connected
	// session with the recent-visitor buffer.
	MessageTypeInitialLocations = "initial_locations"

	// MessageTypeVisitorLocation is relayed by the hub to every other
	// session when a visitor announces.
	MessageTypeVisitorLocation = "visitor_location"
)

// Message is one frame on the relay wire. Which fields are present depends
// on Type: a new_visitor announcement carries a flat Latitude/Longitude
// pair, initial_locations carries the Locations list, and visitor_location
// carries a single Location.
type Message struct {
	Type      string            `json:"type"`
	Latitude  float64           `json:"latitude,omitempty"`
	Longitude float64           `json:"longitude,omitempty"`
	Locations []VisitorLocation `json:"locations,omitempty"`
	Location  *VisitorLocation  `json:"location,omitempty"`
}

// VisitorLocation is one timestamped visitor coordinate as it appears in
// initial_locations and visitor_location payloads.
type VisitorLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timestamp int64   `json:"timestamp"` // unix milliseconds
}

// Stored converts the payload to a store record.
func (v VisitorLocation) Stored() globe.StoredLocation {
	return globe.StoredLocation{
		Location:  [2]float64{v.Latitude, v.Longitude},
		Timestamp: v.Timestamp,
	}
}

// NewVisitorMessage builds the announcement a session sends for itself. The
// hub assigns the timestamp on receipt.
func NewVisitorMessage(lat, lng float64) Message {
	return Message{Type: MessageTypeNewVisitor, Latitude: lat, Longitude: lng}
}

// VisitorLocationMessage builds the relayed form of an announcement.
func VisitorLocationMessage(v VisitorLocation) Message {
	return Message{Type: MessageTypeVisitorLocation, Location: &v}
}

// InitialLocationsMessage builds the replay message for a new connection.
func InitialLocationsMessage(vs []VisitorLocation) Message {
	return Message{Type: MessageTypeInitialLocations, Locations: vs}
}
