// Package cache keeps recently fetched tiles resident as raw byte buffers.
package cache

import "fmt"

// Slot is a handle to one buffer of an LRU. Read and write through
// LRU.Bytes; the view it returns is only valid until the next Access,
// AccessOrReserve or Discard.
type Slot int

type slot struct {
	key     string
	bound   bool
	lastUse uint64
}

// LRU is a fixed pool of equal-size buffers keyed by resource identifier
// with least-recently-used eviction. It is not safe for concurrent use.
type LRU struct {
	data     []byte
	slotSize int
	slots    []slot
	index    map[string]int
	clock    uint64
}

// New allocates slotCount buffers of slotSize bytes. Both must be positive.
func New(slotSize, slotCount int) *LRU {
	if slotSize <= 0 || slotCount <= 0 {
		panic(fmt.Sprintf("cache: invalid geometry %d x %d", slotCount, slotSize))
	}
	return &LRU{
		data:     make([]byte, slotSize*slotCount),
		slotSize: slotSize,
		slots:    make([]slot, slotCount),
		index:    make(map[string]int, slotCount),
	}
}

// Access probes for key. A hit refreshes the slot's last use; a miss
// changes nothing.
func (c *LRU) Access(key string) (Slot, bool) {
	i, ok := c.index[key]
	if !ok {
		return -1, false
	}
	c.touch(i)
	return Slot(i), true
}

// AccessOrReserve returns key's slot. If key was resident the second result
// is true and the buffer holds its data. Otherwise the least recently used
// slot is rebound to key and the second result is false: the caller must
// fill Bytes(slot) before key is read again, or Discard the slot.
func (c *LRU) AccessOrReserve(key string) (Slot, bool) {
	if s, ok := c.Access(key); ok {
		return s, true
	}

	i := c.victim()
	if old := c.slots[i]; old.bound {
		delete(c.index, old.key)
	}
	c.slots[i] = slot{key: key, bound: true}
	c.index[key] = i
	c.touch(i)
	return Slot(i), false
}

// Discard unbinds a slot, typically one reserved by AccessOrReserve whose
// fill failed. The slot becomes the next eviction victim.
func (c *LRU) Discard(s Slot) {
	sl := &c.slots[s]
	if sl.bound {
		delete(c.index, sl.key)
	}
	*sl = slot{}
}

// Bytes returns the buffer of a slot
func (c *LRU) Bytes(s Slot) []byte {
	off := int(s) * c.slotSize
	return c.data[off : off+c.slotSize : off+c.slotSize]
}

// Resident reports whether key is cached, without touching it
func (c *LRU) Resident(key string) bool {
	_, ok := c.index[key]
	return ok
}

// Len is the number of bound slots
func (c *LRU) Len() int { return len(c.index) }

// Cap is the number of slots
func (c *LRU) Cap() int { return len(c.slots) }

// SlotSize is the byte size of every slot
func (c *LRU) SlotSize() int { return c.slotSize }

func (c *LRU) touch(i int) {
	c.clock++
	c.slots[i].lastUse = c.clock
}

// victim picks the slot with the oldest last use. Unbound slots have last
// use 0 so they go first; ties go to the lowest index.
func (c *LRU) victim() int {
	best := 0
	for i := 1; i < len(c.slots); i++ {
		if c.slots[i].lastUse < c.slots[best].lastUse {
			best = i
		}
	}
	return best
}
