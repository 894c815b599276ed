package podserver

import (
	"hash/fnv"
	"sync"
)

const stripeCount = 32

// stripedLock serializes cache fills for the same relative path without
// paying for one mutex per distinct path ever requested.
type stripedLock struct {
	stripes [stripeCount]sync.Mutex
}

func (l *stripedLock) lock(key string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	m := &l.stripes[h.Sum32()%stripeCount]
	m.Lock()
	return m.Unlock
}
