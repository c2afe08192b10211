package dbctx

import (
	"context"
	"sync"
)

type hooksKey struct{}

type commitHooks struct {
	mu  sync.Mutex
	fns []func()
}

// WithCommitHooks returns a context that collects AfterCommit callbacks and a
// flush func. flush(true) runs them in registration order; flush(false)
// discards them.
func WithCommitHooks(ctx context.Context) (context.Context, func(committed bool)) {
	if ctx == nil {
		ctx = context.Background()
	}
	h := &commitHooks{}
	flush := func(committed bool) {
		h.mu.Lock()
		fns := h.fns
		h.fns = nil
		h.mu.Unlock()
		if !committed {
			return
		}
		for _, fn := range fns {
			fn()
		}
	}
	return context.WithValue(ctx, hooksKey{}, h), flush
}

// AfterCommit defers fn until the surrounding transaction commits. Without a
// hook registry on ctx fn runs immediately.
func AfterCommit(ctx context.Context, fn func()) {
	if fn == nil {
		return
	}
	if ctx != nil {
		if h, ok := ctx.Value(hooksKey{}).(*commitHooks); ok && h != nil {
			h.mu.Lock()
			h.fns = append(h.fns, fn)
			h.mu.Unlock()
			return
		}
	}
	fn()
}
