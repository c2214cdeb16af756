package service

import (
	"strconv"
	"sync"
	"time"
)

// versionClock issues version keys: decimal millisecond timestamps,
// strictly increasing even when writes land within the same
// millisecond or the wall clock steps backwards.
type versionClock struct {
	mu   sync.Mutex
	last int64
}

func newVersionClock() *versionClock {
	return &versionClock{}
}

// Next returns the next version key.
func (c *versionClock) Next() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UnixMilli()
	if now <= c.last {
		now = c.last + 1
	}
	c.last = now
	return strconv.FormatInt(now, 10)
}
