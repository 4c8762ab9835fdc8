// Package checkpoint remembers recently seen message signatures so that a
// payload redelivered by the messaging layer is recorded only once.
package checkpoint

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultSize = 65536
	DefaultTTL  = time.Hour
)

type Checkpoint struct {
	mu   sync.Mutex
	seen *expirable.LRU[string, struct{}]
}

// New keeps at most size signatures, each for ttl.
func New(size int, ttl time.Duration) *Checkpoint {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Checkpoint{seen: expirable.NewLRU[string, struct{}](size, nil, ttl)}
}

// Duplicated records signature and reports whether it had already been seen.
// An empty signature is never a duplicate.
func (c *Checkpoint) Duplicated(signature string) bool {
	if signature == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.seen.Contains(signature) {
		return true
	}
	c.seen.Add(signature, struct{}{})
	return false
}

// Len returns the number of remembered signatures.
func (c *Checkpoint) Len() int { return c.seen.Len() }
