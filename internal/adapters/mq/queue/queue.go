// Package queue buffers transport messages between the MQTT callback and
// the ingest workers.
package queue

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/okian/gaitlog/pkg/metrics"
)

const defaultCapacity = 1024

// Message is one payload received from a transport. Key selects the
// partition; messages with equal keys are delivered in order.
type Message struct {
	Key      string
	Topic    string
	Payload  []byte
	Received time.Time
}

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a message. It never blocks: a full or closed queue
	// returns ErrFull or ErrClosed.
	Enqueue(ctx context.Context, m Message) error

	// Dequeue returns the channel workers read from. It is closed by Close.
	Dequeue(ctx context.Context) <-chan Message

	Len(ctx context.Context) int
	Close() error
	IsClosed() bool
}

// InMemoryQueue implements Queue with a buffered channel.
type InMemoryQueue struct {
	messages chan Message
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a bounded queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.messages = make(chan Message, q.capacity)
	metrics.UpdateQueueSize(0)
	return q
}

// Enqueue adds a message to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, m Message) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueue("closed")
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueEnqueue("cancelled")
		return err
	}
	if m.Received.IsZero() {
		m.Received = time.Now()
	}

	select {
	case q.messages <- m:
		metrics.RecordQueueEnqueue("accepted")
		metrics.UpdateQueueSize(len(q.messages))
		return nil
	default:
		metrics.RecordQueueEnqueue("full")
		return ErrFull
	}
}

// Dequeue returns the receive side of the queue.
func (q *InMemoryQueue) Dequeue(_ context.Context) <-chan Message {
	return q.messages
}

// Len returns the number of queued messages.
func (q *InMemoryQueue) Len(_ context.Context) int {
	size := len(q.messages)
	metrics.UpdateQueueSize(size)
	return size
}

// Close stops accepting messages. Queued messages are still delivered.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.messages)
	q.closed = true
	return nil
}

// IsClosed reports whether Close has been called.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

// Partitioned spreads messages over independent queues by key, so one
// consumer per partition sees each key's messages in enqueue order.
type Partitioned struct {
	parts []*InMemoryQueue
}

// NewPartitioned creates n partitions, each configured with opts.
func NewPartitioned(n int, opts ...Option) *Partitioned {
	if n < 1 {
		n = 1
	}
	p := &Partitioned{parts: make([]*InMemoryQueue, n)}
	for i := range p.parts {
		p.parts[i] = NewInMemoryQueue(opts...)
	}
	return p
}

// Partitions returns the underlying queues.
func (p *Partitioned) Partitions() []*InMemoryQueue { return p.parts }

func (p *Partitioned) partition(key string) *InMemoryQueue {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return p.parts[h.Sum32()%uint32(len(p.parts))]
}

// Enqueue adds m to the partition its key hashes to.
func (p *Partitioned) Enqueue(ctx context.Context, m Message) error {
	return p.partition(m.Key).Enqueue(ctx, m)
}

// Len is the total across partitions.
func (p *Partitioned) Len(ctx context.Context) int {
	var n int
	for _, q := range p.parts {
		n += len(q.messages)
	}
	metrics.UpdateQueueSize(n)
	return n
}

// Close closes every partition.
func (p *Partitioned) Close() error {
	for _, q := range p.parts {
		_ = q.Close()
	}
	return nil
}
