package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Job ledger records. One record tracks one unit of outstanding or completed
// vision-service work. A record is active from dispatch until exactly one
// terminal callback has been recorded; it never goes back to active. Ledgers
// are stored as a jsonb column on the owning row and must only be mutated
// inside that row's transaction.

type DetectionJob struct {
	Model    string      `json:"model"`
	Active   bool        `json:"active"`
	Start    time.Time   `json:"start"`
	AssetIDs []uuid.UUID `json:"asset_ids"`

	// Set once the job goes inactive.
	Result json.RawMessage `json:"json_result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

type IdentificationJob struct {
	AnnotationID      uuid.UUID `json:"annotation"`
	Algorithm         string    `json:"algorithm"`
	MatchingSetPolicy string    `json:"matching_set"`
	Active            bool      `json:"active"`
	Start             time.Time `json:"start"`

	Result *IdentificationScores `json:"result,omitempty"`
	Error  string                `json:"error,omitempty"`
}

// IdentificationScores holds the two score collections a successful
// identification callback yields, keyed by local row ids after the candidate
// content guids have been cross-referenced back.
type IdentificationScores struct {
	ByAnnotation map[uuid.UUID]float64 `json:"scores_by_annotation"`
	ByIndividual map[uuid.UUID]float64 `json:"scores_by_individual"`
}

type DetectionJobMap map[uuid.UUID]*DetectionJob

type IdentificationJobMap map[uuid.UUID]*IdentificationJob

func (m DetectionJobMap) AnyActive() bool {
	for _, j := range m {
		if j != nil && j.Active {
			return true
		}
	}
	return false
}

func (m IdentificationJobMap) AnyActive() bool {
	for _, j := range m {
		if j != nil && j.Active {
			return true
		}
	}
	return false
}

// LatestPerAlgorithm returns, per algorithm, the most recently started job
// for the given query annotation, and whether any job for that annotation is
// still active.
func (m IdentificationJobMap) LatestPerAlgorithm(annotID uuid.UUID) (map[string]*IdentificationJob, bool) {
	latest := map[string]*IdentificationJob{}
	active := false
	for _, j := range m {
		if j == nil || j.AnnotationID != annotID {
			continue
		}
		if j.Active {
			active = true
		}
		if prev, ok := latest[j.Algorithm]; !ok || j.Start.After(prev.Start) {
			latest[j.Algorithm] = j
		}
	}
	return latest, active
}

func decodeJSONColumn(raw datatypes.JSON, out any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func encodeJSONColumn(in any) (datatypes.JSON, error) {
	b, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}
