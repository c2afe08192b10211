package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/neurobridge-tutor/internal/clients/redis"
	"github.com/yungbote/neurobridge-tutor/internal/config"
	"github.com/yungbote/neurobridge-tutor/internal/platform/logger"
	"github.com/yungbote/neurobridge-tutor/internal/realtime/bus"
	"github.com/yungbote/neurobridge-tutor/internal/temporalx"
)

// Clients holds the optional external connections. Redis and Temporal are
// nil when not configured; Bus is always set.
type Clients struct {
	Redis    *goredis.Client
	Bus      bus.Bus
	Temporal temporalsdkclient.Client
}

func wireClients(ctx context.Context, log *logger.Logger, cfg config.Config) (Clients, error) {
	log.Info("Wiring clients...")

	rdb, err := redis.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		return Clients{}, fmt.Errorf("init redis: %w", err)
	}

	var b bus.Bus
	if rdb != nil {
		b, err = bus.NewRedisBus(log, rdb, cfg.Redis.Channel)
		if err != nil {
			_ = rdb.Close()
			return Clients{}, fmt.Errorf("init redis bus: %w", err)
		}
	} else {
		b = bus.NewMemoryBus()
	}

	tc, err := temporalx.NewClient(ctx, log, cfg.Temporal)
	if err != nil {
		_ = b.Close()
		if rdb != nil {
			_ = rdb.Close()
		}
		return Clients{}, fmt.Errorf("init temporal client: %w", err)
	}

	return Clients{Redis: rdb, Bus: b, Temporal: tc}, nil
}

// universalRedis keeps a missing client a nil interface.
func (c Clients) universalRedis() goredis.UniversalClient {
	if c.Redis == nil {
		return nil
	}
	return c.Redis
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Temporal != nil {
		c.Temporal.Close()
	}
	if c.Bus != nil {
		_ = c.Bus.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}
