// Package dedupe tracks submission idempotency keys so a retried request is
// not counted twice.
package dedupe

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Deduper claims idempotency keys.
type Deduper interface {
	// Claim records key and reports true when it was not already held. A
	// held key expires after the deduper's TTL.
	Claim(ctx context.Context, key string) (bool, error)

	// Release forgets key so the submission it guarded can be retried. It is
	// used when the guarded work failed.
	Release(ctx context.Context, key string) error
}

type entry struct {
	key     string
	expires time.Time
}

// Memory is an in-process Deduper bounded by size and TTL. Keys are evicted
// oldest first.
type Memory struct {
	mu      sync.Mutex
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	order   *list.List
	keys    map[string]*list.Element
}

var _ Deduper = (*Memory)(nil)

// NewMemory creates a Memory deduper.
func NewMemory(opts ...Option) *Memory {
	d := &Memory{
		ttl:     24 * time.Hour,
		maxSize: 50000,
		now:     time.Now,
		order:   list.New(),
		keys:    make(map[string]*list.Element),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Claim implements Deduper.
func (d *Memory) Claim(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	d.expire(now)
	if _, held := d.keys[key]; held {
		return false, nil
	}
	if d.maxSize > 0 && d.order.Len() >= d.maxSize {
		d.remove(d.order.Front())
	}
	d.keys[key] = d.order.PushBack(&entry{key: key, expires: now.Add(d.ttl)})
	return true, nil
}

// Release implements Deduper.
func (d *Memory) Release(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if el, ok := d.keys[key]; ok {
		d.remove(el)
	}
	return nil
}

// Size returns the number of held keys, expired ones included until the next
// claim sweeps them.
func (d *Memory) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.order.Len()
}

// expire drops keys from the front while they are past their TTL. Entries are
// appended in claim order with a fixed TTL, so the front always expires first.
func (d *Memory) expire(now time.Time) {
	for el := d.order.Front(); el != nil; el = d.order.Front() {
		if el.Value.(*entry).expires.After(now) {
			return
		}
		d.remove(el)
	}
}

func (d *Memory) remove(el *list.Element) {
	delete(d.keys, el.Value.(*entry).key)
	d.order.Remove(el)
}
