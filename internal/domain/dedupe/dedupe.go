// Package dedupe tracks recently applied batch sequence numbers.
package dedupe

import (
	"container/list"
	"context"
	"strconv"
	"sync"
	"sync/atomic"
)

const defaultMaxSize = 50000

// Deduper records (session, batch sequence) pairs whose write has committed.
// It is a fast path only; the session record's watermark is authoritative.
type Deduper interface {
	// Seen reports whether key was recorded.
	Seen(ctx context.Context, key string) bool

	// Record adds key once its batch is stored. It reports false when key
	// was already present.
	Record(ctx context.Context, key string) bool

	// Forget drops every key recorded for a session.
	Forget(ctx context.Context, sessionID string)

	Size() int64
}

// BatchKey builds the key for one batch of one session.
func BatchKey(sessionID string, seq int64) string {
	return sessionID + "#" + strconv.FormatInt(seq, 10)
}

type entry struct {
	key     string
	session string
}

// inMemoryDeduper keeps keys in arrival order and evicts the oldest when full.
// maxSize <= 0 disables eviction.
type inMemoryDeduper struct {
	mu        sync.Mutex
	seen      map[string]*list.Element
	bySession map[string]map[string]*list.Element
	order     *list.List
	maxSize   int
	size      atomic.Int64
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize:   defaultMaxSize,
		seen:      make(map[string]*list.Element),
		bySession: make(map[string]map[string]*list.Element),
		order:     list.New(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *inMemoryDeduper) Seen(ctx context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.seen[key]
	return ok
}

func (d *inMemoryDeduper) Record(ctx context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[key]; ok {
		return false
	}
	if d.maxSize > 0 && len(d.seen) >= d.maxSize {
		d.remove(d.order.Front())
	}

	e := entry{key: key, session: sessionOf(key)}
	el := d.order.PushBack(e)
	d.seen[key] = el
	keys, ok := d.bySession[e.session]
	if !ok {
		keys = make(map[string]*list.Element)
		d.bySession[e.session] = keys
	}
	keys[key] = el
	d.size.Add(1)
	return true
}

func (d *inMemoryDeduper) Forget(ctx context.Context, sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, el := range d.bySession[sessionID] {
		d.remove(el)
	}
}

// remove must be called with d.mu held.
func (d *inMemoryDeduper) remove(el *list.Element) {
	if el == nil {
		return
	}
	e := d.order.Remove(el).(entry)
	delete(d.seen, e.key)
	if keys, ok := d.bySession[e.session]; ok {
		delete(keys, e.key)
		if len(keys) == 0 {
			delete(d.bySession, e.session)
		}
	}
	d.size.Add(-1)
}

func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}

// sessionOf strips the trailing "#seq" written by BatchKey.
func sessionOf(key string) string {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '#' {
			return key[:i]
		}
	}
	return key
}
