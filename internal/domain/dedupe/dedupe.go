// Package dedupe guards settlement idempotency: a (mode, task, participant)
// key can be reserved once until it is released.
package dedupe

import (
	"container/list"
	"context"
	"sync"
)

const defaultMaxSize = 50_000

// Deduper records settlement keys for at-most-once processing.
type Deduper interface {
	// SeenAndRecord reports whether key was already reserved and reserves it
	// if not.
	SeenAndRecord(ctx context.Context, key string) bool

	// Reserve reserves every key or none. On conflict it returns the first
	// key that was already reserved and false.
	Reserve(ctx context.Context, keys []string) (string, bool)

	// Unrecord releases key so it can be reserved again. Used when a match
	// is voided, fails, or never made it onto the queue.
	Unrecord(ctx context.Context, key string)

	// Release is Unrecord for a batch.
	Release(ctx context.Context, keys []string)

	Size() int64
}

// inMemoryDeduper keeps reservations in insertion order. When bounded and
// full, the oldest reservation is dropped to make room.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]*list.Element
	order   *list.List
	maxSize int
}

// NewInMemoryDeduper creates an in-memory deduper. maxSize <= 0 disables
// eviction.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		seen:    make(map[string]*list.Element),
		order:   list.New(),
		maxSize: defaultMaxSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[key]; ok {
		return true
	}
	d.record(key)
	return false
}

func (d *inMemoryDeduper) Reserve(_ context.Context, keys []string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, k := range keys {
		if _, ok := d.seen[k]; ok {
			return k, false
		}
	}
	for _, k := range keys {
		// duplicates within keys collapse to one reservation
		if _, ok := d.seen[k]; !ok {
			d.record(k)
		}
	}
	return "", true
}

// record adds key. Callers hold the lock.
func (d *inMemoryDeduper) record(key string) {
	if d.maxSize > 0 && len(d.seen) >= d.maxSize {
		if oldest := d.order.Front(); oldest != nil {
			delete(d.seen, oldest.Value.(string))
			d.order.Remove(oldest)
		}
	}
	d.seen[key] = d.order.PushBack(key)
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.forget(key)
}

func (d *inMemoryDeduper) Release(_ context.Context, keys []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, k := range keys {
		d.forget(k)
	}
}

func (d *inMemoryDeduper) forget(key string) {
	if el, ok := d.seen[key]; ok {
		d.order.Remove(el)
		delete(d.seen, key)
	}
}

func (d *inMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.seen))
}
