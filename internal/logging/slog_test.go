package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

func stubStdout(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := osStdout
	osStdout = &buf
	t.Cleanup(func() { osStdout = orig })
	return &buf
}

func TestSetup_Destination(t *testing.T) {
	stdout := stubStdout(t)

	var file bytes.Buffer
	m := NewSlogManager()
	m.Setup(&file, "info", nil)
	m.Logger().Info("stroke recorded")
	assert.Contains(t, file.String(), "Logging initialized")
	assert.Contains(t, file.String(), "stroke recorded")
	assert.Empty(t, stdout.String())

	m.Setup(nil, "info", nil)
	m.Logger().Info("console only")
	assert.Contains(t, stdout.String(), "console only")
	assert.NotContains(t, file.String(), "console only")
}

func TestSetup_Level(t *testing.T) {
	tests := []struct {
		level     string
		wantDebug bool
		wantWarn  bool
	}{
		{"debug", true, true},
		{"DEBUG", true, true},
		{"info", false, true},
		{"warn", false, true},
		{"ERROR", false, false},
		{"", false, true},
		{"verbose", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			m := NewSlogManager()
			m.Setup(&buf, tt.level, nil)
			m.Logger().Debug("frame dropped")
			m.Logger().Warn("location stale")

			assert.Equal(t, tt.wantDebug, bytes.Contains(buf.Bytes(), []byte("frame dropped")))
			assert.Equal(t, tt.wantWarn, bytes.Contains(buf.Bytes(), []byte("location stale")))
		})
	}
}

func TestLogger_BeforeSetup(t *testing.T) {
	assert.Equal(t, slog.Default(), NewSlogManager().Logger())
}

func TestFlush(t *testing.T) {
	m := NewSlogManager()
	assert.NoError(t, m.Flush(context.Background()))

	var buf bytes.Buffer
	m.Setup(&buf, "info", sdklog.NewLoggerProvider())
	m.Logger().Info("bridged to otel")
	assert.Contains(t, buf.String(), "bridged to otel")
	assert.NoError(t, m.Flush(context.Background()))
}

func TestSetup_WithGraylog(t *testing.T) {
	var file, gelf bytes.Buffer
	m := NewSlogManager()
	m.Setup(&file, "info", nil, WithGraylog(&gelf))

	m.Logger().Info("to graylog", "annotation", "a1")

	assert.Contains(t, file.String(), "to graylog")
	assert.Contains(t, gelf.String(), `"msg":"to graylog"`)
	assert.Contains(t, gelf.String(), `"annotation":"a1"`)
}

func TestSetup_WithContext(t *testing.T) {
	var buf bytes.Buffer
	state := "map_view"
	m := NewSlogManager()
	m.Setup(&buf, "info", nil, WithContext(func() []slog.Attr {
		return []slog.Attr{slog.String("captureState", state)}
	}))

	m.Logger().Info("first")
	state = "ar_capture"
	m.Logger().Info("second")

	out := buf.String()
	assert.Contains(t, out, "first captureState=map_view")
	assert.Contains(t, out, "second captureState=ar_capture")
}
