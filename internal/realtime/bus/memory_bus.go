package bus

import (
	"context"
	"sync"

	"github.com/yungbote/neurobridge-tutor/internal/realtime"
)

// memoryBus delivers messages to forwarders in the same process. It serves
// single-node deployments that run without redis.
type memoryBus struct {
	mu        sync.RWMutex
	listeners map[int]func(realtime.Message)
	next      int
}

func NewMemoryBus() Bus {
	return &memoryBus{listeners: map[int]func(realtime.Message){}}
}

func (b *memoryBus) Publish(_ context.Context, msg realtime.Message) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, fn := range b.listeners {
		fn(msg)
	}
	return nil
}

func (b *memoryBus) StartForwarder(ctx context.Context, onMsg func(m realtime.Message)) error {
	b.mu.Lock()
	id := b.next
	b.next++
	b.listeners[id] = onMsg
	b.mu.Unlock()
	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
	}()
	return nil
}

func (b *memoryBus) Close() error {
	b.mu.Lock()
	b.listeners = map[int]func(realtime.Message){}
	b.mu.Unlock()
	return nil
}
