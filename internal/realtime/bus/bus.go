// Package bus fans realtime messages out across API replicas. Deployments
// with Redis publish through pub/sub; single-replica setups use the
// in-process bus.
package bus

import (
	"context"
	"os"
	"strings"

	"github.com/dewiapp/dewi-backend/internal/pkg/logger"
	"github.com/dewiapp/dewi-backend/internal/realtime"
)

type Bus interface {
	Publish(ctx context.Context, msg realtime.Message) error
	// StartForwarder delivers every published message to onMsg until ctx
	// ends. On the Redis bus this includes messages from other replicas.
	StartForwarder(ctx context.Context, onMsg func(msg realtime.Message)) error
	Close() error
}

// New picks the bus from the environment: Redis pub/sub when REDIS_ADDR is
// set, the in-process bus otherwise.
func New(log *logger.Logger) (Bus, error) {
	if strings.TrimSpace(os.Getenv("REDIS_ADDR")) != "" {
		return NewRedisBus(log)
	}
	log.Info("REDIS_ADDR not set; realtime events stay in-process")
	return NewLocalBus(log), nil
}
