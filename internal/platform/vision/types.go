package vision

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
)

// StatusCompleted is the only terminal status the vision service reports for
// a job that produced results. Anything else terminal ("exception",
// "corrupted", ...) is an unsuccessful-but-well-formed outcome.
const StatusCompleted = "completed"

// DetectionRequest is the detection dispatch body. The job id field is
// spelled job_id here; the identification dispatch and both callbacks use
// jobid. The asymmetry is the vision service's, not ours.
type DetectionRequest struct {
	JobID            uuid.UUID      `json:"job_id"`
	CallbackURL      string         `json:"callback_url"`
	CallbackDetailed bool           `json:"callback_detailed"`
	ImageUUIDList    []uuid.UUID    `json:"image_uuid_list"`
	ModelParams      map[string]any `json:"-"`
}

// MarshalJSON merges the model-specific parameters into the request body.
func (r DetectionRequest) MarshalJSON() ([]byte, error) {
	type plain DetectionRequest
	base, err := json.Marshal(plain(r))
	if err != nil {
		return nil, err
	}
	if len(r.ModelParams) == 0 {
		return base, nil
	}
	merged := map[string]any{}
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range r.ModelParams {
		merged[k] = v
	}
	return json.Marshal(merged)
}

type DetectionResultRow struct {
	Class     string    `json:"class"`
	Viewpoint string    `json:"viewpoint"`
	UUID      uuid.UUID `json:"uuid"`
	XTL       int       `json:"xtl"`
	YTL       int       `json:"ytl"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Theta     float64   `json:"theta"`
}

type DetectionResult struct {
	ImageUUIDList []uuid.UUID            `json:"image_uuid_list"`
	ResultsList   [][]DetectionResultRow `json:"results_list"`
}

type DetectionCallback struct {
	JobID  uuid.UUID        `json:"jobid"`
	Status string           `json:"status"`
	Result *DetectionResult `json:"json_result,omitempty"`
}

type IdentificationRequest struct {
	JobID                 uuid.UUID   `json:"jobid"`
	CallbackURL           string      `json:"callback_url"`
	CallbackDetailed      bool        `json:"callback_detailed"`
	QueryAnnotUUIDList    []uuid.UUID `json:"query_annot_uuid_list"`
	DatabaseAnnotUUIDList []uuid.UUID `json:"database_annot_uuid_list"`
	DatabaseAnnotNameList []string    `json:"database_annot_name_list"`
	Algorithm             string      `json:"algorithm"`
}

type MatchSummaryRow struct {
	DUUID uuid.UUID `json:"duuid"`
	Score float64   `json:"score"`
}

type IdentificationResult struct {
	QueryAnnotUUIDList []uuid.UUID       `json:"query_annot_uuid_list"`
	SummaryAnnot       []MatchSummaryRow `json:"summary_annot"`
	SummaryName        []MatchSummaryRow `json:"summary_name"`
}

type IdentificationCallback struct {
	JobID  uuid.UUID             `json:"jobid"`
	Status string                `json:"status"`
	Result *IdentificationResult `json:"json_result,omitempty"`
}

func IsTerminalStatus(status string) bool {
	return strings.TrimSpace(status) != ""
}
