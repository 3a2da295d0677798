package store

import (
	"context"
	"encoding/binary"

	"github.com/OneOfOne/xxhash"
)

// DefaultStripes is the lock table size used by New.
const DefaultStripes = 64

// Locks serialises work per decision id. Ids hashing to the same stripe
// share a lock; distinct stripes proceed in parallel.
type Locks struct {
	stripes []chan struct{}
}

// NewLocks builds a lock table with n stripes.
func NewLocks(n int) *Locks {
	if n < 1 {
		n = 1
	}
	l := &Locks{stripes: make([]chan struct{}, n)}
	for i := range l.stripes {
		l.stripes[i] = make(chan struct{}, 1)
	}
	return l
}

func (l *Locks) stripe(id uint64) chan struct{} {
	var key [8]byte
	binary.BigEndian.PutUint64(key[:], id)
	return l.stripes[xxhash.Checksum64(key[:])%uint64(len(l.stripes))]
}

// Acquire blocks until the decision's stripe is free or ctx is done.
func (l *Locks) Acquire(ctx context.Context, id uint64) (func(), error) {
	ch := l.stripe(id)
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
