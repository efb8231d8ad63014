package interp

import "sync"

// table is a slot map handing out 1-based handles. Handle 0 is never
// allocated so the zero value of every branded handle type is invalid.
// Freed slots are recycled in LIFO order; a handle stays dead between drop
// and reuse.
type table[T any] struct {
	entries  []tableEntry[T]
	freeList []uint32
	mu       sync.RWMutex
}

type tableEntry[T any] struct {
	value T
	valid bool
}

func newTable[T any]() *table[T] {
	return &table[T]{
		entries:  make([]tableEntry[T], 0, 16),
		freeList: make([]uint32, 0, 8),
	}
}

// add stores a value and returns its handle.
func (t *table[T]) add(v T) uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := tableEntry[T]{value: v, valid: true}

	if n := len(t.freeList); n > 0 {
		h := t.freeList[n-1]
		t.freeList = t.freeList[:n-1]
		t.entries[h-1] = e
		return h
	}

	t.entries = append(t.entries, e)
	return uint32(len(t.entries))
}

// get retrieves a value by handle.
func (t *table[T]) get(h uint32) (T, bool) {
	var zero T
	if h == 0 {
		return zero, false
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	idx := h - 1
	if int(idx) >= len(t.entries) {
		return zero, false
	}

	e := t.entries[idx]
	if !e.valid {
		return zero, false
	}
	return e.value, true
}

// drop removes an entry and returns its value for cleanup. Dropping an
// invalid or already-dropped handle reports false and touches nothing.
func (t *table[T]) drop(h uint32) (T, bool) {
	var zero T
	if h == 0 {
		return zero, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	idx := h - 1
	if int(idx) >= len(t.entries) {
		return zero, false
	}

	e := &t.entries[idx]
	if !e.valid {
		return zero, false
	}

	v := e.value
	e.valid = false
	e.value = zero
	t.freeList = append(t.freeList, h)
	return v, true
}

// count returns the number of live entries.
func (t *table[T]) count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := 0
	for i := range t.entries {
		if t.entries[i].valid {
			n++
		}
	}
	return n
}

// each visits every live entry until fn returns false.
func (t *table[T]) each(fn func(uint32, T) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for i := range t.entries {
		if t.entries[i].valid {
			if !fn(uint32(i+1), t.entries[i].value) {
				break
			}
		}
	}
}
