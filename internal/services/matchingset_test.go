package services

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/openwild/sightline-backend/internal/data/repos/testutil"
	"github.com/openwild/sightline-backend/internal/domain"
	"github.com/openwild/sightline-backend/internal/pkg/dbctx"
)

func annotIDs(rows []*domain.Annotation) map[uuid.UUID]struct{} {
	out := map[uuid.UUID]struct{}{}
	for _, r := range rows {
		out[r.ID] = struct{}{}
	}
	return out
}

func isSubset(sub, super map[uuid.UUID]struct{}) bool {
	for id := range sub {
		if _, ok := super[id]; !ok {
			return false
		}
	}
	return true
}

func TestMatchingSetPolicySubsets(t *testing.T) {
	env := newTestEnv(t)
	dbc := dbctx.Context{Ctx: context.Background()}

	owner := testutil.CreateUser(t, env.db)
	collaborator := testutil.CreateUser(t, env.db)
	stranger := testutil.CreateUser(t, env.db)
	if err := env.db.Create(&domain.Collaboration{
		ID:       uuid.New(),
		OwnerID:  collaborator.ID,
		ViewerID: owner.ID,
		State:    domain.CollaborationStateApproved,
	}).Error; err != nil {
		t.Fatalf("create collaboration: %v", err)
	}

	group := testutil.CreateAssetGroup(t, env.db, owner)
	queryAsset := testutil.CreateAsset(t, env.db, group, "q.jpg")
	ownAsset := testutil.CreateAsset(t, env.db, group, "own.jpg")
	collabAsset := testutil.CreateAsset(t, env.db, group, "collab.jpg")
	strangerAsset := testutil.CreateAsset(t, env.db, group, "stranger.jpg")

	_, _, queryAnnots := testutil.CreateProcessedSighting(t, env.db, owner, queryAsset)
	query := queryAnnots[0]
	_, _, ownAnnots := testutil.CreateProcessedSighting(t, env.db, owner, ownAsset)
	_, _, collabAnnots := testutil.CreateProcessedSighting(t, env.db, collaborator, collabAsset)
	_, _, strangerAnnots := testutil.CreateProcessedSighting(t, env.db, stranger, strangerAsset)

	mine, err := env.matching.Build(dbc, query, MatchingSetPolicyMine, nil)
	if err != nil {
		t.Fatalf("mine: %v", err)
	}
	extended, err := env.matching.Build(dbc, query, MatchingSetPolicyExtended, nil)
	if err != nil {
		t.Fatalf("extended: %v", err)
	}
	all, err := env.matching.Build(dbc, query, MatchingSetPolicyAll, nil)
	if err != nil {
		t.Fatalf("all: %v", err)
	}

	mineIDs, extendedIDs, allIDs := annotIDs(mine), annotIDs(extended), annotIDs(all)
	if !isSubset(mineIDs, extendedIDs) || !isSubset(extendedIDs, allIDs) {
		t.Fatalf("policy subset property violated: mine=%d extended=%d all=%d", len(mineIDs), len(extendedIDs), len(allIDs))
	}

	if _, ok := mineIDs[ownAnnots[0].ID]; !ok {
		t.Fatalf("mine misses the owner's own candidate")
	}
	if _, ok := mineIDs[collabAnnots[0].ID]; ok {
		t.Fatalf("mine includes a collaborator candidate")
	}
	if _, ok := extendedIDs[collabAnnots[0].ID]; !ok {
		t.Fatalf("extended misses the collaborator candidate")
	}
	if _, ok := extendedIDs[strangerAnnots[0].ID]; ok {
		t.Fatalf("extended includes a stranger candidate")
	}
	if _, ok := allIDs[strangerAnnots[0].ID]; !ok {
		t.Fatalf("all misses the stranger candidate")
	}

	// The query never matches against itself.
	for _, set := range []map[uuid.UUID]struct{}{mineIDs, extendedIDs, allIDs} {
		if _, ok := set[query.ID]; ok {
			t.Fatalf("query included in its own matching set")
		}
	}
}

func TestMatchingSetExcludesUnprocessedSightings(t *testing.T) {
	env := newTestEnv(t)
	dbc := dbctx.Context{Ctx: context.Background()}

	owner := testutil.CreateUser(t, env.db)
	group := testutil.CreateAssetGroup(t, env.db, owner)
	queryAsset := testutil.CreateAsset(t, env.db, group, "q2.jpg")
	pendingAsset := testutil.CreateAsset(t, env.db, group, "pending.jpg")

	_, _, queryAnnots := testutil.CreateProcessedSighting(t, env.db, owner, queryAsset)
	pendingSighting, _, pendingAnnots := testutil.CreateProcessedSighting(t, env.db, owner, pendingAsset)
	if err := env.db.Model(&domain.Sighting{}).Where("id = ?", pendingSighting.ID).
		Update("stage", domain.SightingStageUnReviewed).Error; err != nil {
		t.Fatalf("downgrade sighting: %v", err)
	}

	got, err := env.matching.Build(dbc, queryAnnots[0], MatchingSetPolicyMine, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if _, ok := annotIDs(got)[pendingAnnots[0].ID]; ok {
		t.Fatalf("unprocessed sighting's annotation qualified as candidate")
	}
}

func TestMatchingSetViewpointMacro(t *testing.T) {
	env := newTestEnv(t)
	dbc := dbctx.Context{Ctx: context.Background()}

	owner := testutil.CreateUser(t, env.db)
	group := testutil.CreateAssetGroup(t, env.db, owner)
	queryAsset := testutil.CreateAsset(t, env.db, group, "q3.jpg")
	nearAsset := testutil.CreateAsset(t, env.db, group, "near.jpg")
	farAsset := testutil.CreateAsset(t, env.db, group, "far.jpg")

	_, _, queryAnnots := testutil.CreateProcessedSighting(t, env.db, owner, queryAsset)
	query := queryAnnots[0] // viewpoint left
	_, _, nearAnnots := testutil.CreateProcessedSighting(t, env.db, owner, nearAsset)
	if err := env.db.Model(&domain.Annotation{}).Where("id = ?", nearAnnots[0].ID).
		Update("viewpoint", "upleft").Error; err != nil {
		t.Fatalf("set viewpoint: %v", err)
	}
	_, _, farAnnots := testutil.CreateProcessedSighting(t, env.db, owner, farAsset)
	if err := env.db.Model(&domain.Annotation{}).Where("id = ?", farAnnots[0].ID).
		Update("viewpoint", "right").Error; err != nil {
		t.Fatalf("set viewpoint: %v", err)
	}

	got, err := env.matching.Build(dbc, query, MatchingSetPolicyMine, map[string]any{
		"viewpoint": MacroNeighboringViewpoints,
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	ids := annotIDs(got)
	if _, ok := ids[nearAnnots[0].ID]; !ok {
		t.Fatalf("neighboring viewpoint candidate filtered out")
	}
	if _, ok := ids[farAnnots[0].ID]; ok {
		t.Fatalf("opposite viewpoint candidate passed the filter")
	}
}

func TestMatchingSetFilterPlainValue(t *testing.T) {
	env := newTestEnv(t)
	dbc := dbctx.Context{Ctx: context.Background()}

	owner := testutil.CreateUser(t, env.db)
	group := testutil.CreateAssetGroup(t, env.db, owner)
	queryAsset := testutil.CreateAsset(t, env.db, group, "q4.jpg")
	otherAsset := testutil.CreateAsset(t, env.db, group, "other.jpg")

	_, _, queryAnnots := testutil.CreateProcessedSighting(t, env.db, owner, queryAsset)
	_, _, otherAnnots := testutil.CreateProcessedSighting(t, env.db, owner, otherAsset)
	if err := env.db.Model(&domain.Annotation{}).Where("id = ?", otherAnnots[0].ID).
		Update("ia_class", "zebra").Error; err != nil {
		t.Fatalf("set class: %v", err)
	}

	got, err := env.matching.Build(dbc, queryAnnots[0], MatchingSetPolicyMine, map[string]any{
		"ia_class": "zebra",
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	ids := annotIDs(got)
	if _, ok := ids[otherAnnots[0].ID]; !ok {
		t.Fatalf("matching class filtered out")
	}
	if len(ids) != 1 {
		t.Fatalf("expected only the zebra candidate, got %d", len(ids))
	}
}

func TestMatchingSetMacroAsKeyRejected(t *testing.T) {
	env := newTestEnv(t)
	dbc := dbctx.Context{Ctx: context.Background()}

	owner := testutil.CreateUser(t, env.db)
	group := testutil.CreateAssetGroup(t, env.db, owner)
	asset := testutil.CreateAsset(t, env.db, group, "q5.jpg")
	_, _, annots := testutil.CreateProcessedSighting(t, env.db, owner, asset)

	_, err := env.matching.Build(dbc, annots[0], MatchingSetPolicyMine, map[string]any{
		MacroQuerySightingID: "anything",
	})
	assertAPIErr(t, err, 400, "configuration_error")
}

func TestMatchingSetUnknownPolicyRejected(t *testing.T) {
	env := newTestEnv(t)
	dbc := dbctx.Context{Ctx: context.Background()}

	owner := testutil.CreateUser(t, env.db)
	group := testutil.CreateAssetGroup(t, env.db, owner)
	asset := testutil.CreateAsset(t, env.db, group, "q6.jpg")
	_, _, annots := testutil.CreateProcessedSighting(t, env.db, owner, asset)

	_, err := env.matching.Build(dbc, annots[0], "everyone", nil)
	assertAPIErr(t, err, 400, "configuration_error")
}

func TestMatchingSetUncuratedQueryRejected(t *testing.T) {
	env := newTestEnv(t)
	dbc := dbctx.Context{Ctx: context.Background()}

	owner := testutil.CreateUser(t, env.db)
	group := testutil.CreateAssetGroup(t, env.db, owner)
	asset := testutil.CreateAsset(t, env.db, group, "q7.jpg")
	uncurated := &domain.Annotation{
		ID:          uuid.New(),
		AssetID:     asset.ID,
		ContentGUID: uuid.New(),
		IAClass:     "whale_fin",
		Viewpoint:   "left",
	}
	if err := env.db.Create(uncurated).Error; err != nil {
		t.Fatalf("create annotation: %v", err)
	}

	_, err := env.matching.Build(dbc, uncurated, MatchingSetPolicyMine, nil)
	assertAPIErr(t, err, 400, "configuration_error")
}
