package gojob

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
)

const defaultMemoryQueueCapacity = 256

// MemoryQueue is a bounded in-process broker implementing go-job's
// enqueue and dequeue sides, for single-binary deployments that run
// without an external queue. A message's idempotency key stays
// reserved until the delivery settles, so duplicate enqueues of the
// same key are dropped while the original is pending.
type MemoryQueue struct {
	messages chan *job.ExecutionMessage

	mu      sync.Mutex
	pending map[string]struct{}
}

func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = defaultMemoryQueueCapacity
	}
	return &MemoryQueue{
		messages: make(chan *job.ExecutionMessage, capacity),
		pending:  make(map[string]struct{}),
	}
}

func (q *MemoryQueue) Enqueue(_ context.Context, msg *job.ExecutionMessage) error {
	if q == nil {
		return fmt.Errorf("gojob: memory queue is not configured")
	}
	if msg == nil {
		return fmt.Errorf("gojob: execution message is required")
	}

	key := strings.TrimSpace(msg.IdempotencyKey)
	if key != "" {
		q.mu.Lock()
		if _, dup := q.pending[key]; dup {
			q.mu.Unlock()
			return nil
		}
		q.pending[key] = struct{}{}
		q.mu.Unlock()
	}

	select {
	case q.messages <- msg:
		return nil
	default:
		q.forget(key)
		return fmt.Errorf("gojob: memory queue is full")
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (queue.Delivery, error) {
	if q == nil {
		return nil, fmt.Errorf("gojob: memory queue is not configured")
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg := <-q.messages:
		return &memoryDelivery{queue: q, message: msg}, nil
	}
}

func (q *MemoryQueue) forget(key string) {
	if key == "" {
		return
	}
	q.mu.Lock()
	delete(q.pending, key)
	q.mu.Unlock()
}

// redeliver pushes a nacked message back without releasing its
// idempotency key. A full channel drops the message and frees the key
// so a later enqueue can try again.
func (q *MemoryQueue) redeliver(msg *job.ExecutionMessage) {
	select {
	case q.messages <- msg:
	default:
		q.forget(strings.TrimSpace(msg.IdempotencyKey))
	}
}

type memoryDelivery struct {
	queue   *MemoryQueue
	message *job.ExecutionMessage

	mu      sync.Mutex
	settled bool
}

func (d *memoryDelivery) Message() *job.ExecutionMessage {
	if d == nil {
		return nil
	}
	return d.message
}

func (d *memoryDelivery) Ack(context.Context) error {
	if err := d.settle(); err != nil {
		return err
	}
	d.queue.forget(strings.TrimSpace(d.message.IdempotencyKey))
	return nil
}

func (d *memoryDelivery) Nack(_ context.Context, opts queue.NackOptions) error {
	if err := d.settle(); err != nil {
		return err
	}
	if opts.DeadLetter || !opts.Requeue {
		// No dead-letter store in process; dropping the message and
		// releasing the key is all an in-memory broker can do.
		d.queue.forget(strings.TrimSpace(d.message.IdempotencyKey))
		return nil
	}
	if opts.Delay > 0 {
		time.AfterFunc(opts.Delay, func() { d.queue.redeliver(d.message) })
		return nil
	}
	d.queue.redeliver(d.message)
	return nil
}

func (d *memoryDelivery) settle() error {
	if d == nil || d.queue == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.settled {
		return fmt.Errorf("gojob: delivery already settled")
	}
	d.settled = true
	return nil
}

var (
	_ queue.Enqueuer = (*MemoryQueue)(nil)
	_ queue.Dequeuer = (*MemoryQueue)(nil)
	_ queue.Delivery = (*memoryDelivery)(nil)
)
