package store

import (
	"sync/atomic"
	"time"
)

// IDGenerator hands out unique, strictly increasing ids derived from the
// current time in milliseconds.
type IDGenerator struct {
	last atomic.Int64
	now  func() time.Time
}

func NewIDGenerator() *IDGenerator {
	return &IDGenerator{now: time.Now}
}

// Next returns an id greater than every id previously returned or passed to
// Observe.
func (g *IDGenerator) Next() int64 {
	for {
		now := g.now().UnixMilli()
		last := g.last.Load()
		if now <= last {
			now = last + 1
		}
		if g.last.CompareAndSwap(last, now) {
			return now
		}
	}
}

// Observe raises the floor so later ids are greater than id.
func (g *IDGenerator) Observe(id int64) {
	for {
		last := g.last.Load()
		if id <= last || g.last.CompareAndSwap(last, id) {
			return
		}
	}
}
