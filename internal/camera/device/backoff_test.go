package device

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReadBackoff(t *testing.T) {
	b := &readBackoff{floor: 10 * time.Millisecond, ceil: 50 * time.Millisecond, limit: 6}

	var waits []time.Duration
	for range 5 {
		d, retry := b.next(false)
		assert.True(t, retry)
		waits = append(waits, d)
	}
	assert.Equal(t, []time.Duration{
		10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond,
		50 * time.Millisecond, 50 * time.Millisecond,
	}, waits)

	_, retry := b.next(false)
	assert.False(t, retry, "gives up after limit consecutive failures")
}

func TestReadBackoff_SuccessResets(t *testing.T) {
	b := newReadBackoff()
	for range maxReadFailures - 1 {
		_, retry := b.next(false)
		assert.True(t, retry)
	}

	d, retry := b.next(true)
	assert.True(t, retry)
	assert.Zero(t, d)
	assert.Zero(t, b.failures)

	d, _ = b.next(false)
	assert.Equal(t, minReadDelay, d)
}
