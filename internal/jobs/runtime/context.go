package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	types "github.com/yungbote/neurobridge-tutor/internal/domain/jobs"
	"github.com/yungbote/neurobridge-tutor/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-tutor/internal/platform/logger"
)

/*
Context is the execution handle a handler receives for one claimed task.
It wraps:
	- Ctx: cancellation for the run, carrying the session's commit hooks
	- Task: the task_run row as claimed
	- Session: the scoped transaction every write must go through
	- args: the decoded task arguments
Handlers never touch task_run status; the worker settles it from the
returned error and the registered Policy.
*/
type Context struct {
	Ctx     context.Context
	Task    *types.TaskRun
	Session *Session
	Log     *logger.Logger

	args      map[string]any
	argsErr   error
	discarded bool
}

// NewContext decodes the task payload eagerly. A payload that is not a JSON
// object leaves Args empty and is reported by ArgsErr.
func NewContext(ctx context.Context, task *types.TaskRun, session *Session, log *logger.Logger) *Context {
	c := &Context{Ctx: ctx, Task: task, Session: session, Log: log}
	if session != nil {
		c.Ctx = session.ctx
	}
	c.decodeArgs()
	return c
}

func (c *Context) decodeArgs() {
	c.args = map[string]any{}
	if c.Task == nil || len(c.Task.Payload) == 0 {
		return
	}
	var m map[string]any
	if err := json.Unmarshal(c.Task.Payload, &m); err != nil {
		c.argsErr = err
		return
	}
	if m != nil {
		c.args = m
	}
}

func (c *Context) DBC() dbctx.Context {
	if c.Session == nil {
		return dbctx.Context{Ctx: c.Ctx}
	}
	return c.Session.DBC()
}

func (c *Context) TaskID() uuid.UUID {
	if c.Task == nil {
		return uuid.Nil
	}
	return c.Task.ID
}

// Args never returns nil.
func (c *Context) Args() map[string]any {
	return c.args
}

func (c *Context) ArgsErr() error {
	return c.argsErr
}

// RawArgs is the payload as stored, for error logs.
func (c *Context) RawArgs() string {
	if c.Task == nil {
		return ""
	}
	return string(c.Task.Payload)
}

func (c *Context) String(key string) string {
	v, ok := c.args[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

func (c *Context) Bool(key string) (bool, bool) {
	switch v := c.args[key].(type) {
	case bool:
		return v, true
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1":
			return true, true
		case "false", "0":
			return false, true
		}
	case float64:
		return v != 0, true
	}
	return false, false
}

// Decode re-encodes the arguments into out.
func (c *Context) Decode(out any) error {
	raw, err := json.Marshal(c.args)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// Discard rolls back the session on release even when the handler returns
// nil. Handlers that swallow a failure call it so a partial write is not
// committed.
func (c *Context) Discard() {
	c.discarded = true
}

func (c *Context) Discarded() bool {
	return c.discarded
}
