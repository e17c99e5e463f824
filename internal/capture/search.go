package capture

import (
	"context"
	"fmt"
	"strings"

	"github.com/scribblemap/arcapture/internal/annotation"
	"github.com/scribblemap/arcapture/internal/api"
	"github.com/scribblemap/arcapture/internal/geo"
	"github.com/scribblemap/arcapture/internal/search"
)

// SearchResult reports a heatmap refresh.
type SearchResult struct {
	Points  int                    `json:"points"`
	Skipped int                    `json:"skipped"`
	Heatmap search.PointCollection `json:"-"`
}

func (c *Controller) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return ErrDisposed
	}
	return nil
}

// Search queries the backend and replaces the heatmap with the hits. On a
// backend failure the heatmap is left as it was. A blank query clears it.
func (c *Controller) Search(ctx context.Context, query string) (SearchResult, error) {
	if err := c.checkOpen(); err != nil {
		return SearchResult{}, err
	}
	if strings.TrimSpace(query) == "" {
		return c.ApplyHits(nil)
	}
	if c.backend == nil {
		return SearchResult{}, ErrNoBackend
	}

	hits, err := c.backend.Search(ctx, query)
	if err != nil {
		c.log.Warn("search failed, heatmap unchanged", "error", err)
		return SearchResult{}, err
	}
	return c.ApplyHits(hits)
}

// ApplyHits transforms hits and replaces the heatmap source. An empty
// result clears the heatmap.
func (c *Controller) ApplyHits(hits []search.Hit) (SearchResult, error) {
	if err := c.checkOpen(); err != nil {
		return SearchResult{}, err
	}

	points, skipped := search.Transform(hits, c.cfg.SearchWeight)
	for _, s := range skipped {
		c.log.Debug("search hit skipped", "id", s.ID, "error", s.Err)
	}

	var err error
	if points.Empty() {
		err = c.renderer.ClearHeatmapSource()
	} else {
		err = c.renderer.SetHeatmapSource(points)
	}
	if err != nil {
		return SearchResult{}, fmt.Errorf("updating heatmap: %w", err)
	}
	return SearchResult{Points: points.Len(), Skipped: len(skipped), Heatmap: points}, nil
}

// ResetSearch clears the backend query state, then the heatmap. If the
// backend call fails the heatmap is kept.
func (c *Controller) ResetSearch(ctx context.Context) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if c.backend == nil {
		return ErrNoBackend
	}
	if err := c.backend.Reset(ctx); err != nil {
		c.log.Warn("search reset failed, heatmap unchanged", "error", err)
		return err
	}
	_, err := c.ApplyHits(nil)
	return err
}

// SubmitAnnotation uploads an annotation with a caption. The session is
// not modified whether or not the upload succeeds.
func (c *Controller) SubmitAnnotation(ctx context.Context, id, text string) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	a, ok := c.store.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoAnnotation, id)
	}
	if c.backend == nil {
		return ErrNoBackend
	}
	err := c.backend.Upload(ctx, api.UploadRequest{
		Text:        text,
		ImageURL:    string(a.Image),
		Coordinates: a.Coordinate,
	})
	if err != nil {
		c.log.Warn("annotation upload failed", "annotation", id, "error", err)
		return err
	}
	c.log.Info("annotation uploaded", "annotation", id)
	return nil
}

// ShowAll replaces the heatmap with every scribble the backend stores. On a
// backend failure the heatmap is left as it was.
func (c *Controller) ShowAll(ctx context.Context) (SearchResult, error) {
	if err := c.checkOpen(); err != nil {
		return SearchResult{}, err
	}
	if c.backend == nil {
		return SearchResult{}, ErrNoBackend
	}
	hits, err := c.backend.All(ctx)
	if err != nil {
		c.log.Warn("listing scribbles failed, heatmap unchanged", "error", err)
		return SearchResult{}, err
	}
	return c.ApplyHits(hits)
}

// NearbyResult holds the local annotations near a coordinate and, when the
// backend answered, the stored scribbles it found in range.
type NearbyResult struct {
	Local       []annotation.Annotation `json:"local"`
	Remote      []search.Point          `json:"remote"`
	RemoteError string                  `json:"remoteError,omitempty"`
}

// NearbyWithRemote adds the backend's ping results to Nearby. A failed or
// missing backend degrades to the local annotations with RemoteError set.
func (c *Controller) NearbyWithRemote(ctx context.Context, coord geo.Coordinate, radius float64) (NearbyResult, error) {
	local, err := c.Nearby(coord, radius)
	if err != nil {
		return NearbyResult{}, err
	}
	res := NearbyResult{Local: local, Remote: []search.Point{}}
	if c.backend == nil {
		res.RemoteError = ErrNoBackend.Error()
		return res, nil
	}

	hits, err := c.backend.Ping(ctx, coord)
	if err != nil {
		c.log.Warn("nearby ping failed, local annotations only", "error", err)
		res.RemoteError = err.Error()
		return res, nil
	}
	points, skipped := search.Transform(hits, c.cfg.SearchWeight)
	for _, s := range skipped {
		c.log.Debug("nearby hit skipped", "id", s.ID, "error", s.Err)
	}
	res.Remote = points.Points
	return res, nil
}

// Nearby returns the annotations within radius meters of coord. A
// non-positive radius uses the configured default.
func (c *Controller) Nearby(coord geo.Coordinate, radius float64) ([]annotation.Annotation, error) {
	if err := coord.Validate(); err != nil {
		return nil, err
	}
	if radius <= 0 {
		radius = c.cfg.NearbyRadius
	}
	return annotation.Nearby(c.store.Snapshot(), coord, radius), nil
}
