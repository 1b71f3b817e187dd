package history

import (
	"sync"

	"firewatch/internal/models"
)

// DefaultCapacity is the number of recent readings kept in memory
const DefaultCapacity = 240

// Ring keeps the most recent readings in arrival order, evicting the
// oldest once full. It is safe for concurrent use.
type Ring struct {
	mu    sync.RWMutex
	buf   []models.Reading
	head  int // index of the oldest reading
	count int
}

// New creates a ring holding at most capacity readings. A non-positive
// capacity falls back to DefaultCapacity.
func New(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{buf: make([]models.Reading, capacity)}
}

// Append adds r at the tail, evicting the head when the ring is full
func (r *Ring) Append(reading models.Reading) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count < len(r.buf) {
		r.buf[(r.head+r.count)%len(r.buf)] = reading
		r.count++
		return
	}

	r.buf[r.head] = reading
	r.head = (r.head + 1) % len(r.buf)
}

// Latest returns the most recently appended reading; ok is false when empty
func (r *Ring) Latest() (models.Reading, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.count == 0 {
		return models.Reading{}, false
	}
	return r.buf[(r.head+r.count-1)%len(r.buf)], true
}

// All returns a copy of the ring contents, oldest first
func (r *Ring) All() []models.Reading {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Reading, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

// Snapshot returns the latest reading and a copy of the contents under one
// lock, so latest always equals the last element of all
func (r *Ring) Snapshot() (latest models.Reading, ok bool, all []models.Reading) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all = make([]models.Reading, r.count)
	for i := 0; i < r.count; i++ {
		all[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	if r.count == 0 {
		return models.Reading{}, false, all
	}
	return all[r.count-1], true, all
}

// Len returns the number of readings held
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// Cap returns the ring capacity
func (r *Ring) Cap() int {
	return len(r.buf)
}
