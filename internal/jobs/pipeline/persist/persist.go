// Package persist holds the lightweight tasks that each write one record
// through their own session. They are plain inserts: a retried task may
// write a duplicate row.
package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/yungbote/neurobridge-tutor/internal/data/repos"
	"github.com/yungbote/neurobridge-tutor/internal/domain/activity"
	"github.com/yungbote/neurobridge-tutor/internal/domain/behavior"
	"github.com/yungbote/neurobridge-tutor/internal/domain/chat"
	"github.com/yungbote/neurobridge-tutor/internal/jobs/runtime"
	"github.com/yungbote/neurobridge-tutor/internal/platform/logger"
)

var Policy = runtime.Policy{Retryable: true}

// EventLogPolicy keeps event_log writes in the participant's partition, so
// their Seq order matches interpretation order.
var EventLogPolicy = runtime.Policy{Retryable: true, Partitioned: true}

type SaveProgress struct {
	log  *logger.Logger
	repo repos.ProgressRepo
}

func NewSaveProgress(baseLog *logger.Logger, repo repos.ProgressRepo) *SaveProgress {
	return &SaveProgress{log: baseLog.With("job", runtime.KindSaveProgress), repo: repo}
}

func (p *SaveProgress) Type() string { return runtime.KindSaveProgress }

type progressArgs struct {
	ParticipantID string     `json:"participant_id"`
	TopicID       string     `json:"topic_id"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

func (p *SaveProgress) Run(jc *runtime.Context) error {
	var in progressArgs
	if err := decodeArgs(jc, &in); err != nil {
		return err
	}
	if err := require("participant_id", in.ParticipantID, "topic_id", in.TopicID); err != nil {
		return err
	}
	row := &activity.UserProgress{
		ParticipantID: strings.TrimSpace(in.ParticipantID),
		TopicID:       strings.TrimSpace(in.TopicID),
	}
	if in.CompletedAt != nil {
		row.CompletedAt = in.CompletedAt.UTC()
	}
	if err := p.repo.Create(jc.DBC(), row); err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}

type SaveCodeSubmission struct {
	log  *logger.Logger
	repo repos.SubmissionRepo
}

func NewSaveCodeSubmission(baseLog *logger.Logger, repo repos.SubmissionRepo) *SaveCodeSubmission {
	return &SaveCodeSubmission{log: baseLog.With("job", runtime.KindSaveCodeSubmission), repo: repo}
}

func (p *SaveCodeSubmission) Type() string { return runtime.KindSaveCodeSubmission }

type submissionArgs struct {
	ParticipantID string     `json:"participant_id"`
	TopicID       string     `json:"topic_id"`
	Code          string     `json:"code"`
	IsCorrect     bool       `json:"is_correct"`
	SubmittedAt   *time.Time `json:"submitted_at,omitempty"`
}

func (p *SaveCodeSubmission) Run(jc *runtime.Context) error {
	var in submissionArgs
	if err := decodeArgs(jc, &in); err != nil {
		return err
	}
	if err := require("participant_id", in.ParticipantID, "topic_id", in.TopicID); err != nil {
		return err
	}
	row := &activity.CodeSubmission{
		ParticipantID: strings.TrimSpace(in.ParticipantID),
		TopicID:       strings.TrimSpace(in.TopicID),
		Code:          in.Code,
		IsCorrect:     in.IsCorrect,
	}
	if in.SubmittedAt != nil {
		row.SubmittedAt = in.SubmittedAt.UTC()
	}
	if err := p.repo.Create(jc.DBC(), row); err != nil {
		return fmt.Errorf("save code submission: %w", err)
	}
	return nil
}

// SaveBehavior writes the verbatim audit record of one behavior event. A
// storage failure is logged and returned so the task is retried.
type SaveBehavior struct {
	log       *logger.Logger
	events    repos.EventLogRepo
	kind      string
	auditOnly bool
}

func NewSaveBehavior(baseLog *logger.Logger, events repos.EventLogRepo) *SaveBehavior {
	return &SaveBehavior{log: baseLog.With("job", runtime.KindSaveBehavior), events: events, kind: runtime.KindSaveBehavior}
}

// NewLogAIEvent records tutor interaction events in the same audit log. They
// are never interpreted, so recovery does not replay them.
func NewLogAIEvent(baseLog *logger.Logger, events repos.EventLogRepo) *SaveBehavior {
	return &SaveBehavior{log: baseLog.With("job", runtime.KindLogAIEvent), events: events, kind: runtime.KindLogAIEvent, auditOnly: true}
}

func (p *SaveBehavior) Type() string { return p.kind }

func (p *SaveBehavior) Run(jc *runtime.Context) error {
	if jc.String("participant_id") == "" {
		p.log.Error("behavior data without participant_id; dropping", "task_id", jc.TaskID(), "payload", jc.RawArgs())
		return runtime.Malformed("%s: missing participant_id", p.kind)
	}
	ev, err := behavior.FromMap(jc.Args())
	if err != nil {
		var verr *behavior.ValidationError
		if errors.As(err, &verr) {
			p.log.Error("invalid behavior data; dropping", "task_id", jc.TaskID(), "error", err, "payload", jc.RawArgs())
			return runtime.Malformed("%s: %v", p.kind, err)
		}
		return err
	}
	row, err := p.events.CreateFromBehavior(jc.DBC(), ev, p.auditOnly)
	if err != nil {
		p.log.Error("failed to save behavior event",
			"participant_id", ev.ParticipantID,
			"event_type", string(ev.Type),
			"error", err,
			"payload", jc.RawArgs(),
		)
		return fmt.Errorf("save behavior: %w", err)
	}
	p.log.Debug("behavior event saved", "participant_id", ev.ParticipantID, "event_type", string(ev.Type), "event_id", row.ID)
	return nil
}

type SaveChatMessage struct {
	log  *logger.Logger
	repo repos.ChatMessageRepo
}

func NewSaveChatMessage(baseLog *logger.Logger, repo repos.ChatMessageRepo) *SaveChatMessage {
	return &SaveChatMessage{log: baseLog.With("job", runtime.KindSaveChatMessage), repo: repo}
}

func (p *SaveChatMessage) Type() string { return runtime.KindSaveChatMessage }

type chatArgs struct {
	ParticipantID string         `json:"participant_id"`
	Role          string         `json:"role"`
	Message       string         `json:"message"`
	UserState     map[string]any `json:"user_state,omitempty"`
	AIContext     map[string]any `json:"ai_context,omitempty"`
	Timestamp     *time.Time     `json:"timestamp,omitempty"`
}

func (p *SaveChatMessage) Run(jc *runtime.Context) error {
	var in chatArgs
	if err := decodeArgs(jc, &in); err != nil {
		return err
	}
	if err := require("participant_id", in.ParticipantID, "role", in.Role); err != nil {
		return err
	}
	row := &chat.Message{
		ParticipantID: strings.TrimSpace(in.ParticipantID),
		Role:          strings.TrimSpace(in.Role),
		Message:       in.Message,
		UserState:     jsonOrNil(in.UserState),
		AIContext:     jsonOrNil(in.AIContext),
	}
	if in.Timestamp != nil {
		row.Timestamp = in.Timestamp.UTC()
	}
	if err := p.repo.Create(jc.DBC(), row); err != nil {
		return fmt.Errorf("save chat message: %w", err)
	}
	return nil
}

func decodeArgs(jc *runtime.Context, out any) error {
	if err := jc.ArgsErr(); err != nil {
		return runtime.Malformed("%s: payload is not an object: %v", jc.Task.Kind, err)
	}
	if err := jc.Decode(out); err != nil {
		return runtime.Malformed("%s: %v", jc.Task.Kind, err)
	}
	return nil
}

// require takes field/value pairs and reports the first empty one.
func require(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			return runtime.Malformed("missing %s", pairs[i])
		}
	}
	return nil
}

func jsonOrNil(m map[string]any) datatypes.JSON {
	if len(m) == 0 {
		return nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}
