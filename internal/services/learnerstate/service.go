package learnerstate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/neurobridge-tutor/internal/data/repos"
	"github.com/yungbote/neurobridge-tutor/internal/domain/behavior"
	"github.com/yungbote/neurobridge-tutor/internal/domain/learner"
	"github.com/yungbote/neurobridge-tutor/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-tutor/internal/platform/logger"
	"github.com/yungbote/neurobridge-tutor/internal/realtime"
)

var ErrMissingParticipant = errors.New("missing participant id")

// Replayer re-applies one logged event to a summary without side effects.
type Replayer interface {
	Replay(s *learner.Summary, ev *behavior.Event)
}

// Notifier publishes state change notifications. bus.Bus satisfies it.
type Notifier interface {
	Publish(ctx context.Context, msg realtime.Message) error
}

type Options struct {
	Model    learner.MasteryModel
	Cache    Cache
	Locker   Locker
	Notifier Notifier
	Replayer Replayer

	SnapshotEventInterval int
	SnapshotTimeInterval  time.Duration

	Now func() time.Time
}

type Service interface {
	// Get returns the committed summary, or a fresh one when the participant
	// has none yet. It never writes the store.
	Get(dbc dbctx.Context, participantID string) (*learner.Summary, error)
	GetOrCreate(dbc dbctx.Context, participantID string) (*learner.Summary, error)
	// Mutate runs fn on the participant's summary under the participant lock
	// and saves the result. An error from fn discards the change.
	Mutate(dbc dbctx.Context, participantID string, fn func(s *learner.Summary) error) (*learner.Summary, error)
	UpdateBKTOnSubmission(dbc dbctx.Context, participantID, topicID string, correct bool) (float64, error)
	// ApplyObservation is UpdateBKTOnSubmission keyed by observationID, so a
	// redelivered observation leaves mastery unchanged.
	ApplyObservation(dbc dbctx.Context, participantID, topicID string, correct bool, observationID string) (learner.MasteryRecord, bool, error)
	MaybeCreateSnapshot(dbc dbctx.Context, participantID string) (bool, error)
	CreateSnapshot(dbc dbctx.Context, participantID string) error
	// Recover reconstructs a summary from the latest snapshot plus the events
	// logged after it. The result is not saved.
	Recover(dbc dbctx.Context, participantID string) (*learner.Summary, error)
	// Rebuild recovers and saves.
	Rebuild(dbc dbctx.Context, participantID string) (*learner.Summary, error)
}

type service struct {
	log    *logger.Logger
	store  Store
	events repos.EventLogRepo
	opts   Options
}

func New(baseLog *logger.Logger, store Store, events repos.EventLogRepo, opts Options) Service {
	if opts.Model == nil {
		opts.Model = learner.DefaultBKT()
	}
	if opts.Cache == nil {
		opts.Cache = nopCache{}
	}
	if opts.Locker == nil {
		opts.Locker = NewKeyedLocker()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		log:    baseLog.With("service", "LearnerStateService"),
		store:  store,
		events: events,
		opts:   opts,
	}
}

func ctxOf(dbc dbctx.Context) context.Context {
	if dbc.Ctx == nil {
		return context.Background()
	}
	return dbc.Ctx
}

func (s *service) Get(dbc dbctx.Context, participantID string) (*learner.Summary, error) {
	participantID = strings.TrimSpace(participantID)
	if participantID == "" {
		return nil, ErrMissingParticipant
	}
	ctx := ctxOf(dbc)
	if cached, ok, err := s.opts.Cache.Get(ctx, participantID); err != nil {
		s.log.Warn("learner state cache read failed", "participant_id", participantID, "error", err)
	} else if ok {
		return cached, nil
	}
	sum, err := s.store.Load(dbc, participantID)
	if err != nil {
		return nil, fmt.Errorf("load learner state: %w", err)
	}
	if sum == nil {
		return learner.NewSummary(participantID, s.opts.Now()), nil
	}
	if err := s.opts.Cache.Fill(ctx, sum); err != nil {
		s.log.Warn("learner state cache fill failed", "participant_id", participantID, "error", err)
	}
	return sum, nil
}

func (s *service) GetOrCreate(dbc dbctx.Context, participantID string) (*learner.Summary, error) {
	return s.mutate(dbc, participantID, func(*learner.Summary) (bool, error) { return false, nil })
}

func (s *service) Mutate(dbc dbctx.Context, participantID string, fn func(*learner.Summary) error) (*learner.Summary, error) {
	return s.mutate(dbc, participantID, func(sum *learner.Summary) (bool, error) {
		if err := fn(sum); err != nil {
			return false, err
		}
		return true, nil
	})
}

func (s *service) UpdateBKTOnSubmission(dbc dbctx.Context, participantID, topicID string, correct bool) (float64, error) {
	rec, _, err := s.ApplyObservation(dbc, participantID, topicID, correct, "")
	if err != nil {
		return 0, err
	}
	return rec.MasteryProb, nil
}

func (s *service) ApplyObservation(dbc dbctx.Context, participantID, topicID string, correct bool, observationID string) (learner.MasteryRecord, bool, error) {
	topicID = strings.TrimSpace(topicID)
	if topicID == "" {
		return learner.MasteryRecord{}, false, fmt.Errorf("missing topic id")
	}
	var (
		rec     learner.MasteryRecord
		applied bool
	)
	_, err := s.mutate(dbc, participantID, func(sum *learner.Summary) (bool, error) {
		rec, applied = sum.ApplyMastery(topicID, correct, s.opts.Model, s.opts.Now(), observationID)
		return applied, nil
	})
	if err != nil {
		return learner.MasteryRecord{}, false, err
	}
	if !applied {
		s.log.Info("Mastery observation already applied", "participant_id", participantID, "topic_id", topicID, "observation_id", observationID)
	}
	return rec, applied, nil
}

// mutate is the single write path. fn reports whether it changed the summary;
// a new participant's summary is saved either way.
//
// The participant lock is released when mutate returns, which can be before
// the enclosing transaction commits. One task may call several write paths
// for the same participant inside one session, so the lock is not held to
// commit. Writers in different sessions are ordered by the task partition
// (every task kind that reaches this service is Partitioned).
func (s *service) mutate(dbc dbctx.Context, participantID string, fn func(*learner.Summary) (bool, error)) (*learner.Summary, error) {
	participantID = strings.TrimSpace(participantID)
	if participantID == "" {
		return nil, ErrMissingParticipant
	}
	unlock, err := s.opts.Locker.Lock(ctxOf(dbc), participantID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return s.mutateLocked(dbc, participantID, fn)
}

func (s *service) mutateLocked(dbc dbctx.Context, participantID string, fn func(*learner.Summary) (bool, error)) (*learner.Summary, error) {
	sum, err := s.store.Load(dbc, participantID)
	if err != nil {
		return nil, fmt.Errorf("load learner state: %w", err)
	}
	created := false
	if sum == nil {
		sum = learner.NewSummary(participantID, s.opts.Now())
		created = true
	}
	changed, err := fn(sum)
	if err != nil {
		return nil, err
	}
	if !changed && !created {
		return sum, nil
	}
	if err := s.save(dbc, sum); err != nil {
		return nil, err
	}
	return sum, nil
}

// save writes the store and, once the surrounding transaction commits, the
// cache and the change notification.
func (s *service) save(dbc dbctx.Context, sum *learner.Summary) error {
	if err := s.store.Save(dbc, sum); err != nil {
		return fmt.Errorf("save learner state: %w", err)
	}
	committed := sum.Clone()
	ctx := ctxOf(dbc)
	dbctx.AfterCommit(ctx, func() {
		if err := s.opts.Cache.Set(context.WithoutCancel(ctx), committed); err != nil {
			s.log.Warn("learner state cache write failed", "participant_id", committed.ParticipantID, "error", err)
		}
		s.publish(ctx, realtime.EventLearnerStateChanged, committed)
	})
	return nil
}

func (s *service) publish(ctx context.Context, event realtime.Event, sum *learner.Summary) {
	if s.opts.Notifier == nil {
		return
	}
	msg := realtime.Message{
		Channel: realtime.ParticipantChannel(sum.ParticipantID),
		Event:   event,
		Data: map[string]any{
			"participant_id": sum.ParticipantID,
			"event_count":    sum.EventCount,
			"updated_at":     sum.UpdatedAt,
		},
	}
	if err := s.opts.Notifier.Publish(context.WithoutCancel(ctx), msg); err != nil {
		s.log.Warn("learner state notification failed", "participant_id", sum.ParticipantID, "error", err)
	}
}
