package temporalx

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/api/workflowservice/v1"
	temporalsdkclient "go.temporal.io/sdk/client"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/yungbote/neurobridge-tutor/internal/config"
	"github.com/yungbote/neurobridge-tutor/internal/platform/envutil"
	"github.com/yungbote/neurobridge-tutor/internal/platform/logger"
)

// NewClient dials Temporal, retrying until cfg.DialMaxWait elapses. It returns
// a nil client and nil error when no address is configured, which selects the
// polling worker.
func NewClient(ctx context.Context, log *logger.Logger, cfg config.TemporalConfig) (temporalsdkclient.Client, error) {
	if !cfg.Enabled() {
		if log != nil {
			log.Info("TEMPORAL_ADDRESS not set; using the polling worker")
		}
		return nil, nil
	}
	opts, err := clientOptions(log, cfg)
	if err != nil {
		return nil, err
	}
	opts.Namespace = cfg.Namespace

	dialTimeout := nonNegative("TEMPORAL_DIAL_TIMEOUT", 5*time.Second)
	var c temporalsdkclient.Client
	err = retryRPC(ctx, log, "dial", cfg.DialMaxWait, func(ctx context.Context) error {
		dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
		defer cancel()
		var dialErr error
		c, dialErr = temporalsdkclient.DialContext(dialCtx, opts)
		return dialErr
	}, func(error) bool { return true })
	if err != nil {
		return nil, fmt.Errorf("temporal dial failed (address=%s namespace=%s): %w", cfg.Address, cfg.Namespace, err)
	}

	if cfg.AutoRegisterNamespace {
		if err := EnsureNamespace(ctx, log, cfg); err != nil {
			c.Close()
			return nil, err
		}
	}
	return c, nil
}

// EnsureNamespace registers cfg.Namespace when it does not exist yet. Managed
// Temporal deployments provision namespaces ahead of time and leave
// AutoRegisterNamespace off.
func EnsureNamespace(ctx context.Context, log *logger.Logger, cfg config.TemporalConfig) error {
	namespace := strings.TrimSpace(cfg.Namespace)
	if namespace == "" || !cfg.Enabled() {
		return nil
	}
	// No namespace on these options: the namespace client must reach the
	// server before the namespace exists.
	opts, err := clientOptions(log, cfg)
	if err != nil {
		return err
	}
	nsClient, err := temporalsdkclient.NewNamespaceClient(opts)
	if err != nil {
		return fmt.Errorf("temporal namespace: init client: %w", err)
	}
	defer nsClient.Close()

	retention := time.Duration(clampDays(envutil.Int("TEMPORAL_NAMESPACE_RETENTION_DAYS", 7))) * 24 * time.Hour
	maxWait := nonNegative("TEMPORAL_NAMESPACE_ENSURE_TIMEOUT", 10*time.Second)

	return retryRPC(ctx, log, "namespace", maxWait, func(ctx context.Context) error {
		_, err := nsClient.Describe(ctx, namespace)
		var notFound *serviceerror.NamespaceNotFound
		if !errors.As(err, &notFound) {
			return err
		}
		err = nsClient.Register(ctx, &workflowservice.RegisterNamespaceRequest{
			Namespace:                        namespace,
			Description:                      "tutor task execution",
			WorkflowExecutionRetentionPeriod: durationpb.New(retention),
		})
		var exists *serviceerror.NamespaceAlreadyExists
		if err == nil || errors.As(err, &exists) {
			if log != nil {
				log.Info("Registered Temporal namespace", "namespace", namespace, "retention", retention.String())
			}
			return nil
		}
		return err
	}, isRetryableRPC)
}

func clientOptions(log *logger.Logger, cfg config.TemporalConfig) (temporalsdkclient.Options, error) {
	opts := temporalsdkclient.Options{HostPort: cfg.Address}
	if log != nil {
		opts.Logger = log
	}
	if tlsConfigured(cfg) {
		tlsCfg, err := loadTLSConfig(cfg)
		if err != nil {
			return opts, err
		}
		opts.ConnectionOptions.TLS = tlsCfg
	}
	return opts, nil
}

// retryRPC calls fn until it succeeds, returns an error retryable rejects, or
// maxWait elapses. A non-positive maxWait means a single attempt.
func retryRPC(ctx context.Context, log *logger.Logger, op string, maxWait time.Duration, fn func(context.Context) error, retryable func(error) bool) error {
	backoff := nonNegative("TEMPORAL_DIAL_BACKOFF", 250*time.Millisecond)
	backoffMax := nonNegative("TEMPORAL_DIAL_BACKOFF_MAX", 5*time.Second)
	deadline := time.Now().Add(maxWait)

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			if log != nil && attempt > 1 {
				log.Info("Temporal reachable", "op", op, "attempts", attempt)
			}
			return nil
		}
		if maxWait <= 0 || !retryable(err) || time.Now().After(deadline) {
			return err
		}
		if log != nil {
			log.Warn("Temporal not reachable; retrying", "op", op, "attempt", attempt, "error", err)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("temporal %s: %w (last error: %v)", op, ctx.Err(), err)
		case <-time.After(clampBackoff(backoff, backoffMax, attempt)):
		}
	}
}

func isRetryableRPC(err error) bool {
	if err == nil {
		return false
	}
	s, ok := status.FromError(err)
	if !ok {
		return errors.Is(err, context.DeadlineExceeded)
	}
	switch s.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
		return true
	default:
		return false
	}
}

func clampDays(days int) int {
	if days < 1 || days > 365 {
		return 7
	}
	return days
}
