package annotation

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scribblemap/arcapture/internal/config"
	"github.com/scribblemap/arcapture/internal/drawing"
	"github.com/scribblemap/arcapture/internal/geo"
)

const testImage = drawing.RasterImage("data:image/png;base64,iVBORw0KGgo=")

func mustNew(t *testing.T, lat, lng float64) Annotation {
	t.Helper()
	a, err := New(geo.Coordinate{Latitude: lat, Longitude: lng}, testImage, time.Now().UTC())
	require.NoError(t, err)
	return a
}

func TestNew_Validates(t *testing.T) {
	_, err := New(geo.Coordinate{Latitude: 91}, testImage, time.Now())
	assert.ErrorIs(t, err, geo.ErrInvalidCoordinates)

	_, err = New(geo.Coordinate{}, "", time.Now())
	assert.ErrorIs(t, err, ErrEmptyImage)

	a, err := New(geo.Coordinate{Latitude: 43.64, Longitude: -79.39}, testImage, time.Now())
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)
}

func TestNearby(t *testing.T) {
	here := mustNew(t, 43.6426, -79.3871)
	near := mustNew(t, 43.6427, -79.3871) // ~11 m north
	far := mustNew(t, 43.6526, -79.3871)   // ~1.1 km north

	got := Nearby([]Annotation{here, far, near}, here.Coordinate, 25)

	require.Len(t, got, 2)
	assert.Equal(t, here.ID, got[0].ID)
	assert.Equal(t, near.ID, got[1].ID)
}

func TestNearby_EmptyIsNotNil(t *testing.T) {
	got := Nearby(nil, geo.Coordinate{}, 25)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

// storeContract runs the same checks against every Store implementation.
func storeContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("append preserves order", func(t *testing.T) {
		s := newStore(t)
		a, b, c := mustNew(t, 1, 1), mustNew(t, 2, 2), mustNew(t, 3, 3)
		require.NoError(t, s.Append(a))
		require.NoError(t, s.Append(b))
		require.NoError(t, s.Append(c))

		snap := s.Snapshot()
		require.Len(t, snap, 3)
		assert.Equal(t, []string{a.ID, b.ID, c.ID}, []string{snap[0].ID, snap[1].ID, snap[2].ID})
		assert.Equal(t, 3, s.Len())
		assert.Equal(t, b.Coordinate, snap[1].Coordinate)
		assert.Equal(t, testImage, snap[1].Image)
	})

	t.Run("get", func(t *testing.T) {
		s := newStore(t)
		a := mustNew(t, 10, 20)
		require.NoError(t, s.Append(a))

		got, ok := s.Get(a.ID)
		require.True(t, ok)
		assert.Equal(t, a.Coordinate, got.Coordinate)
		assert.WithinDuration(t, a.CreatedAt, got.CreatedAt, time.Millisecond)

		_, ok = s.Get("missing")
		assert.False(t, ok)
	})

	t.Run("snapshot is a copy", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Append(mustNew(t, 1, 1)))

		snap := s.Snapshot()
		snap[0].Image = "mutated"

		assert.Equal(t, testImage, s.Snapshot()[0].Image)
	})

	t.Run("clear", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Append(mustNew(t, 1, 1)))
		require.NoError(t, s.Clear())

		assert.Equal(t, 0, s.Len())
		assert.NotNil(t, s.Snapshot())
		assert.Empty(t, s.Snapshot())
	})
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, func(t *testing.T) Store {
		return NewMemoryStore()
	})
}

func TestSQLiteStore(t *testing.T) {
	storeContract(t, func(t *testing.T) Store {
		s, err := NewSQLiteStore(zerolog.Nop())
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestSQLiteStore_Isolated(t *testing.T) {
	a, err := NewSQLiteStore(zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()
	b, err := NewSQLiteStore(zerolog.Nop())
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, a.Append(mustNew(t, 1, 1)))

	assert.Equal(t, 1, a.Len())
	assert.Equal(t, 0, b.Len())
}

func TestNewStore(t *testing.T) {
	s, err := NewStore(config.StorageConfig{Type: "memory"}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = NewStore(config.StorageConfig{}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = NewStore(config.StorageConfig{Type: "sqlite"}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	_ = s.Close()

	_, err = NewStore(config.StorageConfig{Type: "postgres"}, zerolog.Nop())
	assert.Error(t, err)
}
