package vm

// Adaptive call cache for host dispatch
//
// Host calls are cached per call site: the key is (calling method, ip of
// the CALL), the guard is the exact runtime type of the receiver and of
// every argument. A hit skips the registry lookup entirely.
//
// The table is a fixed array of atomic slots shared by every Fiber of a
// Runtime. Entries are immutable once published, so readers never lock:
// a reader either sees a complete entry or none. Collisions are resolved
// by bounded linear probing; when every probed slot is taken the home slot
// is overwritten.

import (
	"reflect"
	"sync/atomic"
)

// CallCacheEntry is one guarded resolution.
type CallCacheEntry struct {
	MethodID uint32         // calling method identity
	IP       int            // call site within the calling method
	Receiver reflect.Type   // guard: receiver type
	Args     []reflect.Type // guard: argument types, in order
	Target   *HostMethod    // resolved host method
}

// matches reports whether the entry's guard accepts the given call.
func (e *CallCacheEntry) matches(receiver reflect.Type, args []Value) bool {
	if e.Receiver != receiver || len(e.Args) != len(args) {
		return false
	}
	for i, a := range args {
		if e.Args[i] != typeOf(a) {
			return false
		}
	}
	return true
}

func newCallCacheEntry(methodID uint32, ip int, receiver Value, args []Value, target *HostMethod) *CallCacheEntry {
	e := &CallCacheEntry{
		MethodID: methodID,
		IP:       ip,
		Receiver: typeOf(receiver),
		Args:     make([]reflect.Type, len(args)),
		Target:   target,
	}
	for i, a := range args {
		e.Args[i] = typeOf(a)
	}
	return e
}

// CallCache is the runtime-wide table of guarded call-site entries.
type CallCache struct {
	slots    []atomic.Pointer[CallCacheEntry]
	maxProbe int

	hits          atomic.Uint64
	misses        atomic.Uint64
	guardFailures atomic.Uint64
	evictions     atomic.Uint64
}

// NewCallCache creates a cache with size slots, probing at most maxProbe
// slots past the home slot.
func NewCallCache(size, maxProbe int) *CallCache {
	if size < 1 {
		size = 1
	}
	if maxProbe < 0 {
		maxProbe = 0
	}
	if maxProbe >= size {
		maxProbe = size - 1
	}
	return &CallCache{
		slots:    make([]atomic.Pointer[CallCacheEntry], size),
		maxProbe: maxProbe,
	}
}

// Size returns the number of slots.
func (c *CallCache) Size() int {
	return len(c.slots)
}

func (c *CallCache) home(methodID uint32, ip int) int {
	h := uint64(methodID)*0x9E3779B97F4A7C15 ^ uint64(ip)*0xC2B2AE3D27D4EB4F
	h ^= h >> 29
	return int(h % uint64(len(c.slots)))
}

// Lookup returns the cached target for a call site if its guard accepts
// the receiver and argument types, or nil on a miss.
func (c *CallCache) Lookup(methodID uint32, ip int, receiver Value, args []Value) *HostMethod {
	recvType := typeOf(receiver)
	h := c.home(methodID, ip)
	guardFailed := false

	for i := 0; i <= c.maxProbe; i++ {
		e := c.slots[(h+i)%len(c.slots)].Load()
		if e == nil {
			break
		}
		if e.MethodID != methodID || e.IP != ip {
			continue
		}
		if e.matches(recvType, args) {
			c.hits.Add(1)
			return e.Target
		}
		guardFailed = true
	}

	if guardFailed {
		c.guardFailures.Add(1)
	}
	c.misses.Add(1)
	return nil
}

// Insert publishes an entry in the first free probed slot, or overwrites
// the home slot when the probe sequence is full. It reports whether an
// existing entry was evicted.
func (c *CallCache) Insert(e *CallCacheEntry) (evicted bool) {
	h := c.home(e.MethodID, e.IP)
	for i := 0; i <= c.maxProbe; i++ {
		if c.slots[(h+i)%len(c.slots)].CompareAndSwap(nil, e) {
			return false
		}
	}
	c.slots[h].Store(e)
	c.evictions.Add(1)
	return true
}

// Flush empties every slot. Statistics are kept.
func (c *CallCache) Flush() {
	for i := range c.slots {
		c.slots[i].Store(nil)
	}
}

// CacheStats is a point-in-time view of cache activity.
type CacheStats struct {
	Size          int
	Occupied      int
	Hits          uint64
	Misses        uint64
	GuardFailures uint64
	Evictions     uint64
}

// HitRate returns the fraction of lookups that hit.
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Stats returns the current statistics.
func (c *CallCache) Stats() CacheStats {
	occupied := 0
	for i := range c.slots {
		if c.slots[i].Load() != nil {
			occupied++
		}
	}
	return CacheStats{
		Size:          len(c.slots),
		Occupied:      occupied,
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		GuardFailures: c.guardFailures.Load(),
		Evictions:     c.evictions.Load(),
	}
}
