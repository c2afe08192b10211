package bus

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/neurobridge-tutor/internal/platform/logger"
	"github.com/yungbote/neurobridge-tutor/internal/realtime"
)

func TestMemoryBusForwardsUntilCancelled(t *testing.T) {
	b := NewMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan realtime.Message, 4)
	if err := b.StartForwarder(ctx, func(m realtime.Message) { got <- m }); err != nil {
		t.Fatalf("StartForwarder: %v", err)
	}
	msg := realtime.Message{Channel: realtime.ParticipantChannel("p1"), Event: realtime.EventLearnerStateChanged}
	if err := b.Publish(context.Background(), msg); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	select {
	case m := <-got:
		if m.Channel != msg.Channel {
			t.Fatalf("channel: want=%s got=%s", msg.Channel, m.Channel)
		}
	case <-time.After(time.Second):
		t.Fatalf("message not forwarded")
	}

	cancel()
	deadline := time.Now().Add(time.Second)
	for {
		mb := b.(*memoryBus)
		mb.mu.RLock()
		n := len(mb.listeners)
		mb.mu.RUnlock()
		if n == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("listener not removed after cancel")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRedisBusRoundTrip(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis integration tests")
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })

	b, err := NewRedisBus(logger.NewNop(), rdb, "test_bus_"+time.Now().Format("150405.000000"))
	if err != nil {
		t.Fatalf("NewRedisBus: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	got := make(chan realtime.Message, 1)
	if err := b.StartForwarder(ctx, func(m realtime.Message) { got <- m }); err != nil {
		t.Fatalf("StartForwarder: %v", err)
	}
	if err := b.Publish(ctx, realtime.Message{Channel: "learner:p1", Event: realtime.EventSnapshotCreated}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	select {
	case m := <-got:
		if m.Event != realtime.EventSnapshotCreated {
			t.Fatalf("event: got=%s", m.Event)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("message not received")
	}
}

func TestRedisBusDecodeFillsChannel(t *testing.T) {
	b := &redisBus{log: logger.NewNop(), prefix: defaultChannelPrefix}
	msg, err := b.decode(&goredis.Message{
		Channel: "learner_state:learner:p9",
		Payload: `{"event":"LearnerStateChanged"}`,
	})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Channel != "learner:p9" {
		t.Fatalf("channel: want=learner:p9 got=%s", msg.Channel)
	}
	if _, err := b.decode(&goredis.Message{Payload: "{"}); err == nil {
		t.Fatalf("expected error for malformed payload")
	}
}
