package services

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/openwild/sightline-backend/internal/data/repos"
	"github.com/openwild/sightline-backend/internal/domain"
	"github.com/openwild/sightline-backend/internal/pkg/dbctx"
	"github.com/openwild/sightline-backend/internal/pkg/logger"
	"github.com/openwild/sightline-backend/internal/platform/apierr"
)

const (
	MatchingSetPolicyMine     = "mine"
	MatchingSetPolicyExtended = "extended"
	MatchingSetPolicyAll      = "all"
)

// Filter macros. They are only ever substituted in value position; a macro
// appearing as a filter key is a configuration error.
const (
	MacroNeighboringViewpoints = "%query_neighboring_viewpoints%"
	MacroQuerySightingID       = "%query_sighting_id%"
	MacroQueryEncounterID      = "%query_encounter_id%"
)

// MatchingSetService selects the candidate annotation pool an identification
// job compares a query annotation against. Only annotations whose encounter's
// sighting has reached the processed stage qualify; the query itself is
// always excluded.
type MatchingSetService interface {
	Build(dbc dbctx.Context, query *domain.Annotation, policy string, filter map[string]any) ([]*domain.Annotation, error)
}

type matchingSetService struct {
	log            *logger.Logger
	annotations    repos.AnnotationRepo
	encounters     repos.EncounterRepo
	collaborations CollaborationService
}

func NewMatchingSetService(
	baseLog *logger.Logger,
	annotations repos.AnnotationRepo,
	encounters repos.EncounterRepo,
	collaborations CollaborationService,
) MatchingSetService {
	return &matchingSetService{
		log:            baseLog.With("service", "MatchingSetService"),
		annotations:    annotations,
		encounters:     encounters,
		collaborations: collaborations,
	}
}

func (s *matchingSetService) Build(dbc dbctx.Context, query *domain.Annotation, policy string, filter map[string]any) ([]*domain.Annotation, error) {
	if query == nil {
		return nil, apierr.New(400, "configuration_error", fmt.Errorf("matching set requires a query annotation"))
	}
	if query.EncounterID == nil {
		return nil, apierr.New(400, "configuration_error", fmt.Errorf("query annotation %s has no encounter and no matching context", query.ID))
	}

	queryEncounter, err := s.queryEncounter(dbc, *query.EncounterID)
	if err != nil {
		return nil, err
	}

	var candidates []*domain.Annotation
	switch policy {
	case MatchingSetPolicyMine:
		candidates, err = s.annotations.GetCandidatesByOwners(dbc, []uuid.UUID{queryEncounter.OwnerID})
	case MatchingSetPolicyExtended:
		var owners []uuid.UUID
		owners, err = s.collaborations.VisibleOwnerIDs(dbc, queryEncounter.OwnerID)
		if err == nil {
			candidates, err = s.annotations.GetCandidatesByOwners(dbc, owners)
		}
	case MatchingSetPolicyAll:
		candidates, err = s.annotations.GetAllCandidates(dbc)
	default:
		return nil, apierr.New(400, "configuration_error", fmt.Errorf("unknown matching set policy %q", policy))
	}
	if err != nil {
		return nil, err
	}

	resolved, err := resolveFilterMacros(filter, query, queryEncounter)
	if err != nil {
		return nil, err
	}

	seen := map[uuid.UUID]struct{}{query.ID: {}}
	out := make([]*domain.Annotation, 0, len(candidates))
	for _, cand := range candidates {
		if _, dup := seen[cand.ID]; dup {
			continue
		}
		seen[cand.ID] = struct{}{}
		match, err := filterMatches(resolved, cand)
		if err != nil {
			return nil, err
		}
		if match {
			out = append(out, cand)
		}
	}

	// Deterministic ordering keeps dispatch payloads stable across retries.
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (s *matchingSetService) queryEncounter(dbc dbctx.Context, encounterID uuid.UUID) (*domain.Encounter, error) {
	rows, err := s.encounters.GetByIDs(dbc, []uuid.UUID{encounterID})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apierr.New(400, "configuration_error", fmt.Errorf("encounter %s not found for query annotation", encounterID))
	}
	return rows[0], nil
}

// resolveFilterMacros rewrites macro placeholders in value position with the
// concrete values derived from the query annotation. Macros never rewrite
// keys or operators.
func resolveFilterMacros(filter map[string]any, query *domain.Annotation, queryEncounter *domain.Encounter) (map[string]any, error) {
	if len(filter) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(filter))
	for key, val := range filter {
		if key == MacroNeighboringViewpoints || key == MacroQuerySightingID || key == MacroQueryEncounterID {
			return nil, apierr.New(400, "configuration_error", fmt.Errorf("macro %q is not allowed as a filter key", key))
		}
		resolved, err := resolveFilterValue(val, query, queryEncounter)
		if err != nil {
			return nil, err
		}
		out[key] = resolved
	}
	return out, nil
}

func resolveFilterValue(val any, query *domain.Annotation, queryEncounter *domain.Encounter) (any, error) {
	switch v := val.(type) {
	case string:
		switch v {
		case MacroNeighboringViewpoints:
			vps := NeighboringViewpoints(query.Viewpoint)
			out := make([]any, 0, len(vps))
			for _, vp := range vps {
				out = append(out, vp)
			}
			return out, nil
		case MacroQuerySightingID:
			return queryEncounter.SightingID.String(), nil
		case MacroQueryEncounterID:
			return queryEncounter.ID.String(), nil
		default:
			return v, nil
		}
	case []any:
		out := make([]any, 0, len(v))
		for _, elem := range v {
			resolved, err := resolveFilterValue(elem, query, queryEncounter)
			if err != nil {
				return nil, err
			}
			// The viewpoint macro expands to a list; splice it in place.
			if nested, ok := resolved.([]any); ok {
				if s, isMacro := elem.(string); isMacro && s == MacroNeighboringViewpoints {
					out = append(out, nested...)
					continue
				}
			}
			out = append(out, resolved)
		}
		return out, nil
	default:
		return val, nil
	}
}

// filterMatches evaluates a resolved filter against one candidate. Every
// entry must match (implicit AND); list values mean "any of".
func filterMatches(filter map[string]any, cand *domain.Annotation) (bool, error) {
	for key, val := range filter {
		got, err := candidateField(cand, key)
		if err != nil {
			return false, err
		}
		if !valueMatches(val, got) {
			return false, nil
		}
	}
	return true, nil
}

func candidateField(cand *domain.Annotation, key string) (string, error) {
	switch key {
	case "viewpoint":
		return cand.Viewpoint, nil
	case "ia_class":
		return cand.IAClass, nil
	case "annotation_id":
		return cand.ID.String(), nil
	case "content_guid":
		return cand.ContentGUID.String(), nil
	case "encounter_id":
		if cand.EncounterID == nil {
			return "", nil
		}
		return cand.EncounterID.String(), nil
	case "sighting_id":
		if cand.Encounter == nil {
			return "", nil
		}
		return cand.Encounter.SightingID.String(), nil
	case "owner_id":
		if cand.Encounter == nil {
			return "", nil
		}
		return cand.Encounter.OwnerID.String(), nil
	default:
		return "", apierr.New(400, "configuration_error", fmt.Errorf("unknown matching set filter field %q", key))
	}
}

func valueMatches(want any, got string) bool {
	switch v := want.(type) {
	case string:
		return v == got
	case []any:
		for _, elem := range v {
			if s, ok := elem.(string); ok && s == got {
				return true
			}
		}
		return false
	case nil:
		return got == ""
	default:
		return fmt.Sprintf("%v", v) == got
	}
}
