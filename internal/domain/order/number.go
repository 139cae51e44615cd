package order

import (
	"fmt"
	"sync/atomic"
	"time"
)

// NumberGenerator produces human-readable order numbers of the form
// PREFIX + last 8 digits of epoch millis + 4-digit sequence. The sequence
// is a process-wide atomic counter, so concurrent checkouts never observe
// the same value; global uniqueness is still enforced by the storage
// layer's unique index, and the ledger regenerates on a collision.
type NumberGenerator struct {
	prefix string
	seq    atomic.Uint64
	now    func() time.Time
}

// NewNumberGenerator creates a generator with the given prefix. The
// sequence starts from the current nanosecond clock so numbers do not
// repeat across process restarts within the same millisecond window.
func NewNumberGenerator(prefix string) *NumberGenerator {
	g := &NumberGenerator{
		prefix: prefix,
		now:    time.Now,
	}
	g.seq.Store(uint64(time.Now().UnixNano()))
	return g
}

// Next returns a freshly generated order number.
func (g *NumberGenerator) Next() string {
	millis := g.now().UnixMilli() % 100_000_000
	n := g.seq.Add(1) % 10_000
	return fmt.Sprintf("%s%08d%04d", g.prefix, millis, n)
}
