package bus

import (
	"context"
	"sync"

	"github.com/dewiapp/dewi-backend/internal/pkg/logger"
	"github.com/dewiapp/dewi-backend/internal/realtime"
)

// localBus delivers messages synchronously within the process. Suitable only
// for single-replica deployments; messages published on one replica never
// reach another.
type localBus struct {
	log *logger.Logger

	mu       sync.RWMutex
	handlers []func(msg realtime.Message)
	closed   bool
}

func NewLocalBus(log *logger.Logger) Bus {
	return &localBus{log: log.With("component", "local_bus")}
}

func (b *localBus) Publish(_ context.Context, msg realtime.Message) error {
	b.mu.RLock()
	handlers := b.handlers
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return nil
	}
	for _, h := range handlers {
		h(msg)
	}
	return nil
}

func (b *localBus) StartForwarder(ctx context.Context, onMsg func(msg realtime.Message)) error {
	b.mu.Lock()
	b.handlers = append(b.handlers, onMsg)
	b.mu.Unlock()
	return nil
}

func (b *localBus) Close() error {
	b.mu.Lock()
	b.closed = true
	b.handlers = nil
	b.mu.Unlock()
	return nil
}
