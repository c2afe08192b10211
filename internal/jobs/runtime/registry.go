package runtime

import (
	"fmt"
	"sort"
	"sync"
)

const (
	KindInterpretBehavior    = "interpret_behavior"
	KindUpdateBKTAndSnapshot = "update_bkt_and_snapshot"
	KindSnapshotState        = "snapshot_state"
	KindSaveProgress         = "save_progress"
	KindSaveCodeSubmission   = "save_code_submission"
	KindSaveBehavior         = "save_behavior"
	KindLogAIEvent           = "log_ai_event"
	KindSaveChatMessage      = "save_chat_message"
)

type Handler interface {
	Type() string
	Run(ctx *Context) error
}

/*
Policy is declared next to every handler registration and decides what the
worker does with a failed run:
	- BestEffort: the failure is logged and the task is dropped, never retried.
	- Retryable: the task is requeued with backoff until attempts run out.
	- neither: the task is marked failed on the first error.
Partitioned tasks carry the participant id as their partition key and run one
at a time per participant, in enqueue order.
*/
type Policy struct {
	Retryable   bool
	BestEffort  bool
	Partitioned bool
}

type registration struct {
	handler Handler
	policy  Policy
}

type Registry struct {
	mu       sync.RWMutex
	handlers map[string]registration
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]registration)}
}

func (r *Registry) Register(h Handler, policy Policy) error {
	if h == nil {
		return fmt.Errorf("nil handler")
	}
	t := h.Type()
	if t == "" {
		return fmt.Errorf("handler Type() is empty")
	}
	if policy.Retryable && policy.BestEffort {
		return fmt.Errorf("handler %s: policy cannot be both retryable and best-effort", t)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[t]; exists {
		return fmt.Errorf("handler already registered for kind=%s", t)
	}
	r.handlers[t] = registration{handler: h, policy: policy}
	return nil
}

func (r *Registry) Get(kind string) (Handler, Policy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.handlers[kind]
	return reg.handler, reg.policy, ok
}

func (r *Registry) Policy(kind string) (Policy, bool) {
	_, p, ok := r.Get(kind)
	return p, ok
}

func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
