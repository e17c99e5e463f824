package websocket

import (
	"encoding/json"
	"time"

	"github.com/scribblemap/arcapture/internal/geo"
	"github.com/scribblemap/arcapture/internal/overlay"
)

// Message types of the map overlay protocol.
const (
	TypeHello        = "hello"
	TypeAddMarker    = "add_marker"
	TypeRemoveMarker = "remove_marker"
	TypeSetHeatmap   = "set_heatmap"
	TypeClearHeatmap = "clear_heatmap"
	TypeFlyTo        = "fly_to"
	TypeDispose      = "dispose"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the map client's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// HelloPayload opens (and, after a reconnect, re-opens) a session.
type HelloPayload struct {
	Session string    `json:"session"`
	SentAt  time.Time `json:"sentAt"`
}

// AddMarkerPayload places a marker with its popup.
type AddMarkerPayload struct {
	Handle     overlay.MarkerHandle `json:"handle"`
	Coordinate geo.Coordinate       `json:"coordinate"`
	Popup      overlay.Payload      `json:"popup"`
}

// RemoveMarkerPayload removes a marker.
type RemoveMarkerPayload struct {
	Handle overlay.MarkerHandle `json:"handle"`
}

// SetHeatmapPayload carries the heatmap source as GeoJSON.
type SetHeatmapPayload struct {
	Data json.RawMessage `json:"data"`
}

// FlyToPayload moves the map camera.
type FlyToPayload struct {
	Center geo.Coordinate `json:"center"`
	Zoom   float64        `json:"zoom"`
}
