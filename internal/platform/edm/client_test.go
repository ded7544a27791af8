package edm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/openwild/sightline-backend/internal/domain"
	"github.com/openwild/sightline-backend/internal/pkg/logger"
)

func testClient(t *testing.T, handler http.Handler) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	t.Setenv("EDM_BASE_URL", srv.URL)

	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	c, err := NewClient(log)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestCreateSightingWireFormat(t *testing.T) {
	remoteID := uuid.New()
	encID := uuid.New()
	var gotPath, gotMethod string
	var body map[string]any

	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":%q,"version":7,"encounter_ids":[%q]}`, remoteID, encID)
	}))

	cfg := &domain.SightingConfig{
		LocationID:      "kenya-mara",
		Time:            "2026-03-14T09:00:00Z",
		TimeSpecificity: "time",
		Encounters:      []domain.EncounterConfig{{GUID: uuid.New()}},
	}
	out, err := c.CreateSighting(context.Background(), cfg)
	if err != nil {
		t.Fatalf("create sighting: %v", err)
	}

	if gotMethod != http.MethodPost || gotPath != "/api/v0/org.ecocean.Occurrence" {
		t.Fatalf("expected POST /api/v0/org.ecocean.Occurrence, got %s %s", gotMethod, gotPath)
	}
	if body["location_id"] != "kenya-mara" {
		t.Fatalf("location_id: %v", body["location_id"])
	}
	if body["time_specificity"] != "time" {
		t.Fatalf("time_specificity: %v", body["time_specificity"])
	}
	if out.ID != remoteID || out.Version != 7 {
		t.Fatalf("unexpected result: %+v", out)
	}
	if len(out.EncounterIDs) != 1 || out.EncounterIDs[0] != encID {
		t.Fatalf("encounter_ids: %v", out.EncounterIDs)
	}
}

func TestCreateSightingRejectsMissingID(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"version":1}`)
	}))

	if _, err := c.CreateSighting(context.Background(), &domain.SightingConfig{}); err == nil {
		t.Fatalf("expected error for response without id")
	}
}

func TestCreateSightingNon2xx(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "occurrence rejected", http.StatusUnprocessableEntity)
	}))

	_, err := c.CreateSighting(context.Background(), &domain.SightingConfig{})
	if err == nil || !strings.Contains(err.Error(), "422") {
		t.Fatalf("expected http 422 error, got %v", err)
	}
}

func TestDeleteSightingToleratesNotFound(t *testing.T) {
	id := uuid.New()
	var gotPath, gotMethod string
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		http.NotFound(w, r)
	}))

	if err := c.DeleteSighting(context.Background(), id); err != nil {
		t.Fatalf("delete of already-gone sighting must succeed: %v", err)
	}
	if gotMethod != http.MethodDelete || gotPath != "/api/v0/org.ecocean.Occurrence/"+id.String() {
		t.Fatalf("expected DELETE with id path, got %s %s", gotMethod, gotPath)
	}
}
