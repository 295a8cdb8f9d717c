package relay

import (
	"math/rand/v2"
	"sync/atomic"
)

// IDSource hands out candidate session ids. The coordinator skips zero and
// any id still in use, so a source only needs to spread its values widely.
type IDSource interface {
	Next() SessionID
}

// Counter is a monotonic IDSource.
type Counter struct {
	next atomic.Uint64
}

// NewCounter returns a Counter whose first id is start.
func NewCounter(start uint64) *Counter {
	c := &Counter{}
	c.next.Store(start)
	return c
}

// Next returns the current value and advances the counter.
func (c *Counter) Next() SessionID {
	return SessionID(c.next.Add(1) - 1)
}

// Random draws ids uniformly from the full uint64 space using a seeded PCG
// generator, so runs with the same seed are reproducible. It is only used
// from the coordinator goroutine and is not safe for concurrent use.
type Random struct {
	rng *rand.Rand
}

// NewRandom returns a Random id source seeded with seed.
func NewRandom(seed uint64) *Random {
	return &Random{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Next returns the next pseudo-random id.
func (r *Random) Next() SessionID {
	return SessionID(r.rng.Uint64())
}
