package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/neurobridge-tutor/internal/platform/logger"
	"github.com/yungbote/neurobridge-tutor/internal/realtime"
)

const defaultChannelPrefix = "learner_state"

// redisBus publishes each message on "<prefix>:<message channel>" so redis
// can route per participant. Forwarders pattern-subscribe to the prefix.
type redisBus struct {
	log    *logger.Logger
	rdb    goredis.UniversalClient
	prefix string
}

func NewRedisBus(log *logger.Logger, rdb goredis.UniversalClient, prefix string) (Bus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	prefix = strings.Trim(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = defaultChannelPrefix
	}
	return &redisBus{
		log:    log.With("service", "RedisBus", "prefix", prefix),
		rdb:    rdb,
		prefix: prefix,
	}, nil
}

func (b *redisBus) redisChannel(channel string) string {
	return b.prefix + ":" + channel
}

func (b *redisBus) Publish(ctx context.Context, msg realtime.Message) error {
	if strings.TrimSpace(msg.Channel) == "" {
		return fmt.Errorf("redis bus: message channel required")
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("redis bus: encode: %w", err)
	}
	return b.rdb.Publish(ctx, b.redisChannel(msg.Channel), raw).Err()
}

func (b *redisBus) StartForwarder(ctx context.Context, onMsg func(m realtime.Message)) error {
	if onMsg == nil {
		return fmt.Errorf("onMsg callback required")
	}
	sub := b.rdb.PSubscribe(ctx, b.redisChannel("*"))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis psubscribe: %w", err)
	}
	go b.forward(ctx, sub, onMsg)
	return nil
}

func (b *redisBus) forward(ctx context.Context, sub *goredis.PubSub, onMsg func(m realtime.Message)) {
	defer sub.Close()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			msg, err := b.decode(m)
			if err != nil {
				b.log.Warn("dropping redis bus payload", "redis_channel", m.Channel, "error", err)
				continue
			}
			onMsg(msg)
		}
	}
}

// decode parses a payload and fills in the message channel from the redis
// channel when the publisher left it out.
func (b *redisBus) decode(m *goredis.Message) (realtime.Message, error) {
	var msg realtime.Message
	if m == nil {
		return msg, fmt.Errorf("nil message")
	}
	if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
		return msg, err
	}
	if msg.Channel == "" {
		msg.Channel = strings.TrimPrefix(m.Channel, b.prefix+":")
	}
	return msg, nil
}

// Close leaves the shared client open; its owner closes it.
func (b *redisBus) Close() error {
	return nil
}
