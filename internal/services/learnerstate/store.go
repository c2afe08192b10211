package learnerstate

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"

	"github.com/yungbote/neurobridge-tutor/internal/data/repos"
	"github.com/yungbote/neurobridge-tutor/internal/domain/learner"
	"github.com/yungbote/neurobridge-tutor/internal/platform/dbctx"
)

// Store is the authoritative home of learner summaries. Load returns nil, nil
// for a participant with no summary yet.
type Store interface {
	Load(dbc dbctx.Context, participantID string) (*learner.Summary, error)
	Save(dbc dbctx.Context, s *learner.Summary) error
}

type profileStore struct {
	profiles repos.LearnerProfileRepo
}

// NewProfileStore keeps summaries in the learner_profile table.
func NewProfileStore(profiles repos.LearnerProfileRepo) Store {
	return &profileStore{profiles: profiles}
}

func (s *profileStore) Load(dbc dbctx.Context, participantID string) (*learner.Summary, error) {
	row, err := s.profiles.Get(dbc, participantID)
	if err != nil || row == nil {
		return nil, err
	}
	data := map[string]any{}
	if len(row.Summary) > 0 {
		if err := json.Unmarshal(row.Summary, &data); err != nil {
			return nil, fmt.Errorf("decode learner profile: %w", err)
		}
	}
	return learner.SummaryFromProfileData(participantID, data)
}

func (s *profileStore) Save(dbc dbctx.Context, sum *learner.Summary) error {
	raw, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("encode learner profile: %w", err)
	}
	return s.profiles.Upsert(dbc, sum.ParticipantID, datatypes.JSON(raw))
}
