// Package websocket streams overlay operations to a remote map client.
package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/scribblemap/arcapture/internal/geo"
	"github.com/scribblemap/arcapture/internal/overlay"
	"github.com/scribblemap/arcapture/internal/search"
)

// Config holds the map client endpoint.
type Config struct {
	URL    string
	Secret string
}

// Renderer implements overlay.Renderer by sending each operation as an
// Envelope. Marker handles are assigned locally.
type Renderer struct {
	conn    *connection
	cfg     Config
	session string

	nextMarkerID atomic.Uint64

	mu       sync.Mutex
	markers  map[overlay.MarkerHandle][]byte
	heatmap  []byte
	camera   []byte
	disposed bool
}

var _ overlay.Renderer = (*Renderer)(nil)

// New creates a renderer. Call Init to connect.
func New(cfg Config, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Renderer{
		cfg:     cfg,
		session: uuid.NewString(),
		markers: make(map[overlay.MarkerHandle][]byte),
	}
	r.conn = newConnection(logger.With("component", "overlay-ws"), r.replay)
	return r
}

// Init connects to the map client and announces the session.
func (r *Renderer) Init() error {
	if err := r.conn.dial(r.cfg.URL, r.cfg.Secret); err != nil {
		return err
	}
	return r.sendEnvelope(TypeHello, HelloPayload{Session: r.session, SentAt: time.Now().UTC()})
}

// Session returns the id announced in the hello message.
func (r *Renderer) Session() string { return r.session }

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	data, err := json.Marshal(Envelope{Type: msgType, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

func (r *Renderer) sendEnvelope(msgType string, payload any) error {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	r.conn.send(data)
	return nil
}

// replay rebuilds the map on a fresh connection: hello, markers in
// placement order, heatmap, camera.
func (r *Renderer) replay() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out [][]byte
	if hello, err := marshalEnvelope(TypeHello, HelloPayload{Session: r.session, SentAt: time.Now().UTC()}); err == nil {
		out = append(out, hello)
	}
	handles := make([]overlay.MarkerHandle, 0, len(r.markers))
	for h := range r.markers {
		handles = append(handles, h)
	}
	sort.Slice(handles, func(i, j int) bool { return handleSeq(handles[i]) < handleSeq(handles[j]) })
	for _, h := range handles {
		out = append(out, r.markers[h])
	}
	if r.heatmap != nil {
		out = append(out, r.heatmap)
	}
	if r.camera != nil {
		out = append(out, r.camera)
	}
	return out
}

func handleSeq(h overlay.MarkerHandle) uint64 {
	var n uint64
	_, _ = fmt.Sscanf(string(h), "ws-%d", &n)
	return n
}

func (r *Renderer) AddMarker(coord geo.Coordinate, payload overlay.Payload) (overlay.MarkerHandle, error) {
	if err := coord.Validate(); err != nil {
		return "", err
	}
	h := overlay.MarkerHandle(fmt.Sprintf("ws-%d", r.nextMarkerID.Add(1)))
	data, err := marshalEnvelope(TypeAddMarker, AddMarkerPayload{Handle: h, Coordinate: coord, Popup: payload})
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return "", overlay.ErrDisposed
	}
	r.markers[h] = data
	r.mu.Unlock()

	r.conn.send(data)
	return h, nil
}

func (r *Renderer) RemoveMarker(h overlay.MarkerHandle) error {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return overlay.ErrDisposed
	}
	delete(r.markers, h)
	r.mu.Unlock()
	return r.sendEnvelope(TypeRemoveMarker, RemoveMarkerPayload{Handle: h})
}

func (r *Renderer) SetHeatmapSource(points search.PointCollection) error {
	geojson, err := points.MarshalGeoJSON()
	if err != nil {
		return fmt.Errorf("encoding heatmap: %w", err)
	}
	data, err := marshalEnvelope(TypeSetHeatmap, SetHeatmapPayload{Data: geojson})
	if err != nil {
		return err
	}

	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return overlay.ErrDisposed
	}
	r.heatmap = data
	r.mu.Unlock()

	r.conn.send(data)
	return nil
}

func (r *Renderer) ClearHeatmapSource() error {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return overlay.ErrDisposed
	}
	r.heatmap = nil
	r.mu.Unlock()
	return r.sendEnvelope(TypeClearHeatmap, struct{}{})
}

func (r *Renderer) FlyTo(coord geo.Coordinate, zoom float64) error {
	if err := coord.Validate(); err != nil {
		return err
	}
	data, err := marshalEnvelope(TypeFlyTo, FlyToPayload{Center: coord, Zoom: zoom})
	if err != nil {
		return err
	}

	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return overlay.ErrDisposed
	}
	r.camera = data
	r.mu.Unlock()

	r.conn.send(data)
	return nil
}

// Dispose tells the map client to tear down the overlay, waits for its ack
// and closes the connection. The connection is closed even without an ack.
func (r *Renderer) Dispose() error {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return nil
	}
	r.disposed = true
	r.markers = make(map[overlay.MarkerHandle][]byte)
	r.heatmap = nil
	r.camera = nil
	r.mu.Unlock()

	if !r.conn.connected() {
		return r.conn.close()
	}
	data, err := marshalEnvelope(TypeDispose, HelloPayload{Session: r.session, SentAt: time.Now().UTC()})
	if err != nil {
		_ = r.conn.close()
		return err
	}
	ackErr := r.conn.sendAndWait(data, TypeDispose, ackTimeout)
	if err := r.conn.close(); err != nil && ackErr == nil {
		return err
	}
	return ackErr
}
