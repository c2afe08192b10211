package learner

import (
	"encoding/json"
	"math"
	"time"
)

const observationMemory = 32

// MasteryRecord is the one shape mastery takes inside the service. Anything
// else (legacy maps, bare probabilities) is converted by NormalizeMastery when
// it enters.
type MasteryRecord struct {
	MasteryProb  float64   `json:"mastery_prob"`
	PInit        float64   `json:"p_init"`
	PTransit     float64   `json:"p_transit"`
	PSlip        float64   `json:"p_slip"`
	PGuess       float64   `json:"p_guess"`
	Observations int       `json:"observations"`
	Correct      int       `json:"correct"`
	UpdatedAt    time.Time `json:"updated_at"`

	// AppliedObservations remembers recent observation ids so a redelivered
	// update task is applied once.
	AppliedObservations []string `json:"applied_observations,omitempty"`
}

// MasteryModel turns correctness observations into mastery probabilities.
type MasteryModel interface {
	Init() MasteryRecord
	Update(rec MasteryRecord, correct bool) MasteryRecord
}

// BKT is a two-state Bayesian knowledge tracing model.
type BKT struct {
	PInit    float64
	PTransit float64
	PSlip    float64
	PGuess   float64
}

func DefaultBKT() BKT {
	return BKT{PInit: 0.1, PTransit: 0.1, PSlip: 0.1, PGuess: 0.2}
}

func (m BKT) Init() MasteryRecord {
	return MasteryRecord{
		MasteryProb: m.PInit,
		PInit:       m.PInit,
		PTransit:    m.PTransit,
		PSlip:       m.PSlip,
		PGuess:      m.PGuess,
	}
}

func (m BKT) Update(rec MasteryRecord, correct bool) MasteryRecord {
	slip, guess, transit := rec.PSlip, rec.PGuess, rec.PTransit
	if slip == 0 && guess == 0 && transit == 0 {
		slip, guess, transit = m.PSlip, m.PGuess, m.PTransit
	}
	p := clamp01(rec.MasteryProb)
	var posterior float64
	if correct {
		num := p * (1 - slip)
		posterior = safeDiv(num, num+(1-p)*guess, p)
	} else {
		num := p * slip
		posterior = safeDiv(num, num+(1-p)*(1-guess), p)
	}
	rec.MasteryProb = clamp01(posterior + (1-posterior)*transit)
	rec.Observations++
	if correct {
		rec.Correct++
	}
	return rec
}

func (r MasteryRecord) hasApplied(id string) bool {
	if id == "" {
		return false
	}
	for _, seen := range r.AppliedObservations {
		if seen == id {
			return true
		}
	}
	return false
}

// ApplyMastery feeds one observation for topicID through model. A non-empty
// observationID that was already applied leaves the record untouched and
// reports false.
func (s *Summary) ApplyMastery(topicID string, correct bool, model MasteryModel, at time.Time, observationID string) (MasteryRecord, bool) {
	s.ensureMaps()
	rec, ok := s.BKTModels[topicID]
	if !ok {
		rec = model.Init()
	}
	if rec.hasApplied(observationID) {
		return rec, false
	}
	rec = model.Update(rec, correct)
	rec.UpdatedAt = at
	if observationID != "" {
		rec.AppliedObservations = append(rec.AppliedObservations, observationID)
		if n := len(rec.AppliedObservations); n > observationMemory {
			rec.AppliedObservations = append([]string(nil), rec.AppliedObservations[n-observationMemory:]...)
		}
	}
	s.BKTModels[topicID] = rec
	return rec, true
}

// NormalizeMastery accepts the representations mastery has been stored in
// over time and returns the canonical record.
func NormalizeMastery(v any) (MasteryRecord, bool) {
	switch t := v.(type) {
	case MasteryRecord:
		return t, true
	case *MasteryRecord:
		if t == nil {
			return MasteryRecord{}, false
		}
		return *t, true
	case float64:
		return MasteryRecord{MasteryProb: clamp01(t)}, true
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return MasteryRecord{}, false
		}
		return MasteryRecord{MasteryProb: clamp01(f)}, true
	case map[string]any:
		if _, ok := t["mastery_prob"]; !ok {
			return MasteryRecord{}, false
		}
		raw, err := json.Marshal(t)
		if err != nil {
			return MasteryRecord{}, false
		}
		var rec MasteryRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return MasteryRecord{}, false
		}
		rec.MasteryProb = clamp01(rec.MasteryProb)
		return rec, true
	default:
		return MasteryRecord{}, false
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

func safeDiv(num, den, fallback float64) float64 {
	if den == 0 {
		return fallback
	}
	return num / den
}
