package federation

import (
	"context"
	"errors"
	"sync"
)

// Transport is an at-least-once, best-effort publish/poll channel shared by
// peer instances.
type Transport interface {
	Publish(ctx context.Context, payload []byte) error
	// Poll returns up to max pending messages. An empty result is not an error.
	Poll(ctx context.Context, max int) ([][]byte, error)
}

// ErrTransportClosed is returned after the transport has been closed.
var ErrTransportClosed = errors.New("federation transport closed")

// MemoryBus fans messages out to every attached MemoryTransport. It connects
// instances living in the same process.
type MemoryBus struct {
	mu      sync.Mutex
	members map[string]*MemoryTransport
	limit   int
}

// NewMemoryBus creates a bus. limit bounds each member's queue; the oldest
// message is dropped when it is exceeded. Zero means 1024.
func NewMemoryBus(limit int) *MemoryBus {
	if limit <= 0 {
		limit = 1024
	}
	return &MemoryBus{members: make(map[string]*MemoryTransport), limit: limit}
}

// Attach returns the transport for an instance, creating it on first use.
func (b *MemoryBus) Attach(instanceID string) *MemoryTransport {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.members[instanceID]; ok {
		return t
	}
	t := &MemoryTransport{bus: b, instanceID: instanceID}
	b.members[instanceID] = t
	return t
}

func (b *MemoryBus) broadcast(payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, m := range b.members {
		m.enqueue(payload, b.limit)
	}
}

// MemoryTransport is one instance's view of a MemoryBus.
type MemoryTransport struct {
	bus        *MemoryBus
	instanceID string

	mu     sync.Mutex
	queue  [][]byte
	closed bool
}

func (t *MemoryTransport) enqueue(payload []byte, limit int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	msg := append([]byte(nil), payload...)
	t.queue = append(t.queue, msg)
	if over := len(t.queue) - limit; over > 0 {
		t.queue = t.queue[over:]
	}
}

// Publish delivers payload to every member of the bus, including the sender.
func (t *MemoryTransport) Publish(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return ErrTransportClosed
	}
	t.bus.broadcast(payload)
	return nil
}

// Poll drains up to max queued messages without blocking.
func (t *MemoryTransport) Poll(ctx context.Context, max int) ([][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrTransportClosed
	}
	if max <= 0 || max > len(t.queue) {
		max = len(t.queue)
	}
	out := t.queue[:max:max]
	t.queue = t.queue[max:]
	return out, nil
}

// Pending reports the number of undelivered messages.
func (t *MemoryTransport) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}

// Close detaches the transport. Further calls fail with ErrTransportClosed.
func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.queue = nil
	t.mu.Unlock()

	t.bus.mu.Lock()
	delete(t.bus.members, t.instanceID)
	t.bus.mu.Unlock()
	return nil
}
