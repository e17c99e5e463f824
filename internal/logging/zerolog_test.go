package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestZerologLevel(t *testing.T) {
	assert.Equal(t, zerolog.TraceLevel, ZerologLevel("trace"))
	assert.Equal(t, zerolog.DebugLevel, ZerologLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, ZerologLevel("warn"))
	assert.Equal(t, zerolog.ErrorLevel, ZerologLevel("error"))
	assert.Equal(t, zerolog.InfoLevel, ZerologLevel("bogus"))
}

func TestNewZerolog(t *testing.T) {
	var buf bytes.Buffer
	log := NewZerolog(&buf, "info")

	log.Debug().Msg("hidden")
	log.Info().Str("store", "sqlite").Msg("store opened")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "store opened")
	assert.Contains(t, out, "store=sqlite")
}
