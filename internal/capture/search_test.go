package capture

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scribblemap/arcapture/internal/api"
	"github.com/scribblemap/arcapture/internal/geo"
	"github.com/scribblemap/arcapture/internal/location"
	"github.com/scribblemap/arcapture/internal/search"
)

func hits(t *testing.T, raw string) []search.Hit {
	t.Helper()
	var out []search.Hit
	require.NoError(t, json.Unmarshal([]byte(raw), &out))
	return out
}

const twoHits = `[
	{"id": "a", "coordinate": {"lat": "10", "lng": "20"}, "createdAt": 1737453600},
	{"id": "b", "coordinate": {"lat": "bad", "lng": "20"}, "createdAt": 1737453600}
]`

func TestSearch_SetsHeatmap(t *testing.T) {
	h := newHarness(t, location.Static{Coordinate: toronto})
	h.backend.hits = hits(t, twoHits)

	res, err := h.c.Search(context.Background(), "coffee")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Points)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, []string{"coffee"}, h.backend.queries)

	heat := h.recorder.View().Heatmap
	require.Equal(t, 1, heat.Len())
	assert.Equal(t, "a", heat.Points[0].ID)
	assert.Equal(t, geo.Coordinate{Latitude: 10, Longitude: 20}, heat.Points[0].Coordinate)
}

func TestSearch_FailureLeavesHeatmap(t *testing.T) {
	h := newHarness(t, location.Static{Coordinate: toronto})
	h.backend.hits = hits(t, twoHits)
	_, err := h.c.Search(context.Background(), "coffee")
	require.NoError(t, err)

	h.backend.searchErr = api.ErrSearchFailed
	_, err = h.c.Search(context.Background(), "tea")
	assert.ErrorIs(t, err, api.ErrSearchFailed)
	assert.Equal(t, 1, h.recorder.View().Heatmap.Len())
}

func TestSearch_EmptyResultClearsHeatmap(t *testing.T) {
	h := newHarness(t, location.Static{Coordinate: toronto})
	h.backend.hits = hits(t, twoHits)
	_, err := h.c.Search(context.Background(), "coffee")
	require.NoError(t, err)

	h.backend.hits = nil
	res, err := h.c.Search(context.Background(), "nothing")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Points)
	assert.True(t, h.recorder.View().Heatmap.Empty())
}

func TestSearch_BlankQueryClearsWithoutBackend(t *testing.T) {
	h := newHarness(t, location.Static{Coordinate: toronto})
	require.NoError(t, h.recorder.SetHeatmapSource(search.PointCollection{Points: []search.Point{{ID: "x"}}}))

	_, err := h.c.Search(context.Background(), "   ")
	require.NoError(t, err)
	assert.Empty(t, h.backend.queries)
	assert.True(t, h.recorder.View().Heatmap.Empty())
}

func TestResetSearch_ThenEmptyTransformLeavesHeatmapCleared(t *testing.T) {
	h := newHarness(t, location.Static{Coordinate: toronto})
	h.backend.hits = hits(t, twoHits)
	_, err := h.c.Search(context.Background(), "coffee")
	require.NoError(t, err)

	require.NoError(t, h.c.ResetSearch(context.Background()))
	assert.Equal(t, 1, h.backend.resets)
	assert.True(t, h.recorder.View().Heatmap.Empty())

	_, err = h.c.ApplyHits([]search.Hit{})
	require.NoError(t, err)
	assert.True(t, h.recorder.View().Heatmap.Empty())
}

func TestResetSearch_BackendFailureKeepsHeatmap(t *testing.T) {
	h := newHarness(t, location.Static{Coordinate: toronto})
	h.backend.hits = hits(t, twoHits)
	_, err := h.c.Search(context.Background(), "coffee")
	require.NoError(t, err)

	h.backend.resetErr = api.ErrResetFailed
	assert.ErrorIs(t, h.c.ResetSearch(context.Background()), api.ErrResetFailed)
	assert.Equal(t, 1, h.recorder.View().Heatmap.Len())
}

func TestSearch_NoBackend(t *testing.T) {
	h := newHarness(t, location.Static{Coordinate: toronto}, WithBackend(nil))

	_, err := h.c.Search(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNoBackend)
	assert.ErrorIs(t, h.c.ResetSearch(context.Background()), ErrNoBackend)
}

func captureOne(t *testing.T, h *harness) string {
	t.Helper()
	h.enterAR(t)
	h.waitForCoordinate(t)
	h.scribble()
	res, err := h.c.ToggleCapture(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res.Annotation)
	return res.Annotation.ID
}

func TestSubmitAnnotation(t *testing.T) {
	h := newHarness(t, location.Static{Coordinate: toronto})
	id := captureOne(t, h)

	require.NoError(t, h.c.SubmitAnnotation(context.Background(), id, "corner mural"))
	require.Len(t, h.backend.uploads, 1)
	up := h.backend.uploads[0]
	assert.Equal(t, "corner mural", up.Text)
	assert.Equal(t, toronto, up.Coordinates)
	assert.NotEmpty(t, up.ImageURL)
}

func TestSubmitAnnotation_Failures(t *testing.T) {
	h := newHarness(t, location.Static{Coordinate: toronto})
	id := captureOne(t, h)

	assert.ErrorIs(t, h.c.SubmitAnnotation(context.Background(), "missing", "x"), ErrNoAnnotation)

	h.backend.uploadErr = api.ErrUploadFailed
	assert.ErrorIs(t, h.c.SubmitAnnotation(context.Background(), id, "x"), api.ErrUploadFailed)
	assert.Len(t, h.c.Annotations(), 1)
	assert.Equal(t, 1, h.c.Markers())
}

func TestNearby(t *testing.T) {
	h := newHarness(t, location.Static{Coordinate: toronto})
	id := captureOne(t, h)

	near, err := h.c.Nearby(geo.Coordinate{Latitude: 43.6401, Longitude: -79.39}, 0)
	require.NoError(t, err)
	require.Len(t, near, 1)
	assert.Equal(t, id, near[0].ID)

	far, err := h.c.Nearby(geo.Coordinate{Latitude: 43.7, Longitude: -79.39}, 0)
	require.NoError(t, err)
	assert.Empty(t, far)

	wide, err := h.c.Nearby(geo.Coordinate{Latitude: 43.7, Longitude: -79.39}, 10_000)
	require.NoError(t, err)
	assert.Len(t, wide, 1)

	_, err = h.c.Nearby(geo.Coordinate{Latitude: 100}, 0)
	assert.ErrorIs(t, err, geo.ErrInvalidCoordinates)
}

func TestNearbyWithRemote(t *testing.T) {
	h := newHarness(t, location.Static{Coordinate: toronto})
	id := captureOne(t, h)
	h.backend.pingHits = hits(t, twoHits)

	res, err := h.c.NearbyWithRemote(context.Background(), toronto, 0)
	require.NoError(t, err)
	require.Len(t, res.Local, 1)
	assert.Equal(t, id, res.Local[0].ID)
	require.Len(t, res.Remote, 1)
	assert.Equal(t, "a", res.Remote[0].ID)
	assert.Empty(t, res.RemoteError)
	assert.Equal(t, []geo.Coordinate{toronto}, h.backend.pings)
}

func TestNearbyWithRemote_PingFailureFallsBackToLocal(t *testing.T) {
	h := newHarness(t, location.Static{Coordinate: toronto})
	captureOne(t, h)
	h.backend.pingErr = api.ErrPingFailed

	res, err := h.c.NearbyWithRemote(context.Background(), toronto, 0)
	require.NoError(t, err)
	assert.Len(t, res.Local, 1)
	assert.Empty(t, res.Remote)
	assert.Contains(t, res.RemoteError, api.ErrPingFailed.Error())

	_, err = h.c.NearbyWithRemote(context.Background(), geo.Coordinate{Latitude: 100}, 0)
	assert.ErrorIs(t, err, geo.ErrInvalidCoordinates)
}

func TestNearbyWithRemote_NoBackend(t *testing.T) {
	h := newHarness(t, location.Static{Coordinate: toronto}, WithBackend(nil))

	res, err := h.c.NearbyWithRemote(context.Background(), toronto, 0)
	require.NoError(t, err)
	assert.Empty(t, res.Local)
	assert.Equal(t, ErrNoBackend.Error(), res.RemoteError)
}

func TestShowAll(t *testing.T) {
	h := newHarness(t, location.Static{Coordinate: toronto})
	h.backend.allHits = hits(t, twoHits)

	res, err := h.c.ShowAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Points)
	assert.Equal(t, 1, h.recorder.View().Heatmap.Len())

	h.backend.allErr = api.ErrListFailed
	_, err = h.c.ShowAll(context.Background())
	assert.ErrorIs(t, err, api.ErrListFailed)
	assert.Equal(t, 1, h.recorder.View().Heatmap.Len())
}

func TestSearchAfterDispose(t *testing.T) {
	h := newHarness(t, location.Static{Coordinate: toronto})
	require.NoError(t, h.c.Dispose(context.Background()))

	_, err := h.c.Search(context.Background(), "x")
	assert.ErrorIs(t, err, ErrDisposed)
	_, err = h.c.ApplyHits(nil)
	assert.ErrorIs(t, err, ErrDisposed)
	assert.ErrorIs(t, h.c.SubmitAnnotation(context.Background(), "a", "b"), ErrDisposed)
	_, err = h.c.ShowAll(context.Background())
	assert.ErrorIs(t, err, ErrDisposed)
}
