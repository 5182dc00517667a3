package supervisor

import (
	"sync"

	"github.com/tinytelemetry/fdbtracer/internal/model"
)

// DefaultMaxErrors is the consecutive error budget before the breaker trips.
const DefaultMaxErrors = 50

// Breaker counts consecutive error diagnostics. Any info diagnostic resets
// the count; the breaker trips once the count exceeds max and stays tripped.
type Breaker struct {
	mu      sync.Mutex
	max     int
	count   int
	tripped bool
}

// NewBreaker creates a breaker that trips on the (max+1)th consecutive error.
func NewBreaker(max int) *Breaker {
	if max < 0 {
		max = 0
	}
	return &Breaker{max: max}
}

// Record feeds one diagnostic and reports whether the breaker is tripped.
func (b *Breaker) Record(d model.Diagnostic) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tripped {
		return true
	}
	if !d.IsError() {
		b.count = 0
		return false
	}
	b.count++
	if b.count > b.max {
		b.tripped = true
	}
	return b.tripped
}

// Count returns the current consecutive error count.
func (b *Breaker) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Max returns the configured error budget.
func (b *Breaker) Max() int { return b.max }

// Tripped reports whether the breaker has tripped.
func (b *Breaker) Tripped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tripped
}
