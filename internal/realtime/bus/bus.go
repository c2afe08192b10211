package bus

import (
	"context"

	"github.com/yungbote/neurobridge-tutor/internal/realtime"
)

// Bus carries realtime messages between the worker processes that change
// learner state and the API processes that stream it.
type Bus interface {
	Publish(ctx context.Context, msg realtime.Message) error
	StartForwarder(ctx context.Context, onMsg func(m realtime.Message)) error
	Close() error
}
