package http

import (
	"context"
	"encoding/json"
	"image"
	"image/jpeg"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scribblemap/arcapture/internal/annotation"
	"github.com/scribblemap/arcapture/internal/api"
	"github.com/scribblemap/arcapture/internal/camera"
	"github.com/scribblemap/arcapture/internal/capture"
	"github.com/scribblemap/arcapture/internal/commands"
	"github.com/scribblemap/arcapture/internal/dispatcher"
	"github.com/scribblemap/arcapture/internal/drawing"
	"github.com/scribblemap/arcapture/internal/geo"
	"github.com/scribblemap/arcapture/internal/location"
	"github.com/scribblemap/arcapture/internal/overlay"
	"github.com/scribblemap/arcapture/internal/search"
)

type stubBackend struct {
	hits []search.Hit
}

func (b *stubBackend) Search(context.Context, string) ([]search.Hit, error) { return b.hits, nil }
func (b *stubBackend) Reset(context.Context) error                          { return nil }
func (b *stubBackend) Upload(context.Context, api.UploadRequest) error      { return nil }
func (b *stubBackend) All(context.Context) ([]search.Hit, error)            { return b.hits, nil }

func (b *stubBackend) Ping(context.Context, geo.Coordinate) ([]search.Hit, error) {
	return b.hits, nil
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

type testServer struct {
	app      *fiber.App
	feed     *camera.Simulated
	preview  *camera.Preview
	recorder *overlay.Recorder
	backend  *stubBackend
}

var here = geo.Coordinate{Latitude: 43.64, Longitude: -79.39}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		feed:     camera.NewSimulated(),
		preview:  camera.NewPreview(),
		recorder: overlay.NewRecorder(),
		backend:  &stubBackend{},
	}
	cfg := capture.DefaultConfig()
	cfg.ViewportWidth, cfg.ViewportHeight = 64, 48
	ctrl := capture.New(ts.feed, location.Static{Coordinate: here},
		drawing.NewSurface(drawing.DefaultStyle()), annotation.NewMemoryStore(), ts.recorder,
		capture.WithConfig(cfg), capture.WithBackend(ts.backend), capture.WithVideoOutput(ts.preview))
	t.Cleanup(func() { _ = ctrl.Dispose(context.Background()) })

	d, err := dispatcher.New(nopLogger{})
	require.NoError(t, err)
	commands.Register(d, ctrl)

	ts.app = NewApp()
	SetupRoutes(ts.app, NewHandler(d, ts.recorder, "test").WithPreview(ts.preview))
	return ts
}

type envelope struct {
	Success bool            `json:"success"`
	Error   bool            `json:"error"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (ts *testServer) do(t *testing.T, method, path, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := ts.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var env envelope
	require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	return resp.StatusCode, env
}

func (ts *testServer) waitForFix(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool {
		_, env := ts.do(t, "GET", "/api/v1/capture", "")
		var v struct {
			Session *struct {
				LastKnownCoordinate *geo.Coordinate `json:"lastKnownCoordinate"`
			} `json:"session"`
		}
		return json.Unmarshal(env.Data, &v) == nil && v.Session != nil && v.Session.LastKnownCoordinate != nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest("GET", "/health", nil)
	resp, err := ts.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "map_view", body["state"])
	assert.Equal(t, "test", body["version"])
}

func TestCaptureRoundTrip(t *testing.T) {
	ts := newTestServer(t)

	code, env := ts.do(t, "POST", "/api/v1/capture/toggle", "")
	require.Equal(t, fiber.StatusOK, code, env.Message)
	var res capture.ToggleResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, capture.ARCapture, res.To)
	assert.Equal(t, 1, ts.feed.ActiveTracks())

	ts.waitForFix(t)

	code, env = ts.do(t, "POST", "/api/v1/capture/strokes", `{"points": [[5,5],[30,20],[50,40]]}`)
	require.Equal(t, fiber.StatusOK, code, env.Message)
	assert.JSONEq(t, `{"points": 3}`, string(env.Data))

	code, env = ts.do(t, "POST", "/api/v1/capture/toggle", "")
	require.Equal(t, fiber.StatusOK, code, env.Message)
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, capture.MapView, res.To)
	assert.Equal(t, capture.OutcomeAnnotated, res.Outcome)
	require.NotNil(t, res.Annotation)
	assert.Equal(t, 0, ts.feed.ActiveTracks())

	code, env = ts.do(t, "GET", "/api/v1/annotations", "")
	require.Equal(t, fiber.StatusOK, code)
	var list []annotation.Annotation
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, res.Annotation.ID, list[0].ID)

	code, env = ts.do(t, "GET", "/api/v1/annotations/nearby?lat=43.6401&lng=-79.39", "")
	require.Equal(t, fiber.StatusOK, code, env.Message)
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Len(t, list, 1)

	code, env = ts.do(t, "GET", "/api/v1/overlay", "")
	require.Equal(t, fiber.StatusOK, code)
	var ov struct {
		Markers struct {
			Type     string            `json:"type"`
			Features []json.RawMessage `json:"features"`
		} `json:"markers"`
		Camera *overlay.Camera `json:"camera"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &ov))
	assert.Equal(t, "FeatureCollection", ov.Markers.Type)
	assert.Len(t, ov.Markers.Features, 1)
	require.NotNil(t, ov.Camera)
	assert.Equal(t, here, ov.Camera.Center)

	code, env = ts.do(t, "POST", "/api/v1/annotations/"+res.Annotation.ID+"/submit", `{"text": "corner mural"}`)
	assert.Equal(t, fiber.StatusOK, code, env.Message)

	code, _ = ts.do(t, "POST", "/api/v1/session/reset", "")
	assert.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, 0, ts.recorder.MarkerCount())
}

func TestCameraDenied(t *testing.T) {
	ts := newTestServer(t)
	ts.feed.Deny(true)

	code, env := ts.do(t, "POST", "/api/v1/capture/toggle", "")
	assert.Equal(t, fiber.StatusServiceUnavailable, code)
	assert.True(t, env.Error)
	assert.Contains(t, env.Message, "permission denied")

	_, env = ts.do(t, "GET", "/api/v1/capture", "")
	assert.Contains(t, string(env.Data), `"map_view"`)
}

func TestSearchSetsHeatmap(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, json.Unmarshal([]byte(`[
		{"id": "a", "coordinate": {"lat": "10", "lng": "20"}, "createdAt": 1737453600},
		{"id": "b", "coordinate": {"lat": "bad", "lng": "20"}, "createdAt": 1737453600}
	]`), &ts.backend.hits))

	code, env := ts.do(t, "POST", "/api/v1/search", `{"query": "coffee"}`)
	require.Equal(t, fiber.StatusOK, code, env.Message)
	assert.JSONEq(t, `{"points": 1, "skipped": 1}`, string(env.Data))
	assert.Equal(t, 1, ts.recorder.View().Heatmap.Len())

	code, _ = ts.do(t, "POST", "/api/v1/search/reset", "")
	require.Equal(t, fiber.StatusOK, code)
	assert.True(t, ts.recorder.View().Heatmap.Empty())
}

func TestShowAllAndRemoteNearby(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, json.Unmarshal([]byte(`[
		{"id": "a", "coordinate": {"lat": "43.6402", "lng": "-79.39"}, "createdAt": 1737453600}
	]`), &ts.backend.hits))

	code, env := ts.do(t, "POST", "/api/v1/search/all", "")
	require.Equal(t, fiber.StatusOK, code, env.Message)
	assert.JSONEq(t, `{"points": 1, "skipped": 0}`, string(env.Data))
	assert.Equal(t, 1, ts.recorder.View().Heatmap.Len())

	code, env = ts.do(t, "GET", "/api/v1/annotations/nearby?lat=43.64&lng=-79.39&remote=true", "")
	require.Equal(t, fiber.StatusOK, code, env.Message)
	var res capture.NearbyResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Empty(t, res.Local)
	require.Len(t, res.Remote, 1)
	assert.Equal(t, "a", res.Remote[0].ID)
	assert.Empty(t, res.RemoteError)
}

func TestBadRequests(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"stroke body", "POST", "/api/v1/capture/strokes", `{"points": "nope"}`, fiber.StatusBadRequest},
		{"empty stroke", "POST", "/api/v1/capture/strokes", `{"points": []}`, fiber.StatusBadRequest},
		{"nearby missing lng", "GET", "/api/v1/annotations/nearby?lat=1", "", fiber.StatusBadRequest},
		{"nearby out of range", "GET", "/api/v1/annotations/nearby?lat=91&lng=0", "", fiber.StatusBadRequest},
		{"resize zero", "POST", "/api/v1/capture/resize", `{"width": 0, "height": 10}`, fiber.StatusBadRequest},
		{"resize oversized", "POST", "/api/v1/capture/resize", `{"width": 2147483648, "height": 2147483648}`, fiber.StatusBadRequest},
		{"submit unknown", "POST", "/api/v1/annotations/missing/submit", `{"text": "x"}`, fiber.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := ts.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, code, env.Message)
			assert.True(t, env.Error)
		})
	}
}

func TestGetFrame(t *testing.T) {
	ts := newTestServer(t)
	get := func() *nethttp.Response {
		resp, err := ts.app.Test(httptest.NewRequest("GET", "/api/v1/capture/frame", nil), -1)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	assert.Equal(t, fiber.StatusNotFound, get().StatusCode)

	code, env := ts.do(t, "POST", "/api/v1/capture/toggle", "")
	require.Equal(t, fiber.StatusOK, code, env.Message)
	ts.preview.Push(image.NewRGBA(image.Rect(0, 0, 8, 6)))

	resp := get()
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, resp.Header.Get("X-Stream-Id"))
	img, err := jpeg.Decode(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 8, 6), img.Bounds())

	code, _ = ts.do(t, "POST", "/api/v1/capture/toggle", "")
	require.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, fiber.StatusNotFound, get().StatusCode)
}

func TestOverlayWithoutRecorder(t *testing.T) {
	d, err := dispatcher.New(nopLogger{})
	require.NoError(t, err)
	app := NewApp()
	SetupRoutes(app, NewHandler(d, nil, "test"))

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/overlay", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}
