package temporalx

import (
	"context"
	"errors"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/yungbote/neurobridge-tutor/internal/config"
)

func TestNewClientDisabledWithoutAddress(t *testing.T) {
	c, err := NewClient(context.Background(), nil, config.TemporalConfig{})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if c != nil {
		t.Fatalf("expected nil client when address is empty")
	}
}

func TestClampBackoff(t *testing.T) {
	cases := []struct {
		base, max time.Duration
		attempt   int
		want      time.Duration
	}{
		{100 * time.Millisecond, time.Second, 1, 100 * time.Millisecond},
		{100 * time.Millisecond, time.Second, 3, 400 * time.Millisecond},
		{100 * time.Millisecond, time.Second, 10, time.Second},
		{0, 0, 1, 250 * time.Millisecond},
	}
	for _, tc := range cases {
		if got := clampBackoff(tc.base, tc.max, tc.attempt); got != tc.want {
			t.Fatalf("clampBackoff(%v,%v,%d): want=%v got=%v", tc.base, tc.max, tc.attempt, tc.want, got)
		}
	}
}

func TestLoadTLSConfigRequiresCertAndKey(t *testing.T) {
	cfg := config.TemporalConfig{ClientCAPath: "/tmp/ca.pem"}
	if !tlsConfigured(cfg) {
		t.Fatalf("CA path alone should count as TLS configured")
	}
	if _, err := loadTLSConfig(cfg); err == nil {
		t.Fatalf("expected error without cert and key")
	}
}

func TestRetryRPCStopsOnNonRetryable(t *testing.T) {
	calls := 0
	boom := errors.New("permission denied")
	err := retryRPC(context.Background(), nil, "test", time.Second, func(context.Context) error {
		calls++
		return boom
	}, isRetryableRPC)
	if !errors.Is(err, boom) {
		t.Fatalf("err: want=%v got=%v", boom, err)
	}
	if calls != 1 {
		t.Fatalf("calls: want=1 got=%d", calls)
	}
}

func TestRetryRPCRetriesUnavailable(t *testing.T) {
	t.Setenv("TEMPORAL_DIAL_BACKOFF", "1ms")
	calls := 0
	err := retryRPC(context.Background(), nil, "test", time.Second, func(context.Context) error {
		calls++
		if calls < 3 {
			return status.Error(codes.Unavailable, "down")
		}
		return nil
	}, isRetryableRPC)
	if err != nil {
		t.Fatalf("retryRPC: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls: want=3 got=%d", calls)
	}
}
