package device

import "time"

const (
	minReadDelay    = 10 * time.Millisecond
	maxReadDelay    = 500 * time.Millisecond
	maxReadFailures = 40
)

// readBackoff paces retries after failed reads from a capture device.
type readBackoff struct {
	failures int
	floor    time.Duration
	ceil     time.Duration
	limit    int
}

func newReadBackoff() *readBackoff {
	return &readBackoff{floor: minReadDelay, ceil: maxReadDelay, limit: maxReadFailures}
}

// next records one read and returns the pause before the following read.
// It reports false once limit consecutive reads have failed.
func (b *readBackoff) next(readOK bool) (time.Duration, bool) {
	if readOK {
		b.failures = 0
		return 0, true
	}
	b.failures++
	if b.limit > 0 && b.failures >= b.limit {
		return 0, false
	}
	d := b.floor
	for i := 1; i < b.failures && d < b.ceil; i++ {
		d *= 2
	}
	return min(d, b.ceil), true
}
