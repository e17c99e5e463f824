package monitor

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scribblemap/arcapture/internal/capture"
)

type fakeController struct {
	state   capture.State
	session *capture.SessionInfo
	markers int
}

func (f *fakeController) State() capture.State { return f.state }
func (f *fakeController) Markers() int         { return f.markers }
func (f *fakeController) Session() (capture.SessionInfo, bool) {
	if f.session == nil {
		return capture.SessionInfo{}, false
	}
	return *f.session, true
}

type commandList []string

func (c commandList) Commands() []string { return c }

func TestGetStatus(t *testing.T) {
	ctrl := &fakeController{state: capture.ARCapture, markers: 2,
		session: &capture.SessionInfo{ID: "s1", Strokes: 3}}
	s := NewService(Dependencies{Controller: ctrl, Commands: commandList{"capture:toggle"}}, "1.0.0")
	fixed := time.Date(2026, 1, 21, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	st := s.GetStatus()
	assert.Equal(t, fixed, st.Time)
	assert.Equal(t, "1.0.0", st.Version)
	assert.Equal(t, capture.ARCapture, st.State)
	assert.Equal(t, 2, st.Markers)
	require.NotNil(t, st.Session)
	assert.Equal(t, "s1", st.Session.ID)
	assert.Equal(t, []string{"capture:toggle"}, st.Commands)

	ctrl.session = nil
	assert.Nil(t, s.GetStatus().Session)
}

func TestWriteStatus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	s := NewService(Dependencies{Controller: &fakeController{state: capture.MapView}, StatusPath: path}, "")

	require.NoError(t, s.WriteStatus())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))
	assert.Equal(t, "map_view", raw["state"])
	assert.Nil(t, raw["session"])
	assert.NoFileExists(t, path+".tmp")
}

func TestStartStop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	s := NewService(Dependencies{
		Controller: &fakeController{state: capture.MapView},
		StatusPath: path,
		Interval:   5 * time.Millisecond,
	}, "")

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())

	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, time.Second, 5*time.Millisecond)

	s.Stop()
	assert.False(t, s.IsRunning())
	s.Stop()
}

func TestStopsWithContext(t *testing.T) {
	s := NewService(Dependencies{
		Controller: &fakeController{},
		StatusPath: filepath.Join(t.TempDir(), "status.json"),
		Interval:   time.Hour,
	}, "")
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	cancel()
	assert.Eventually(t, func() bool { return !s.IsRunning() }, time.Second, 5*time.Millisecond)
}

func TestStartRequiresDependencies(t *testing.T) {
	assert.Error(t, NewService(Dependencies{}, "").Start(context.Background()))
}
