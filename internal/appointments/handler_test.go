package appointments

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"clinic-backend/internal/middleware"
	"clinic-backend/internal/models"
	"clinic-backend/internal/validation"
)

func newListRouter(t *testing.T) (http.Handler, *fakeRepo) {
	t.Helper()
	svc, repo := newTestService(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(svc, validation.New(), log, nil, time.Minute, svc.location, nil, nil)
	return http.HandlerFunc(h.List), repo
}

func seedAppointments(repo *fakeRepo, n int) {
	base := time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		id := string(rune('a' + i))
		repo.appointments[id] = models.Appointment{
			ID:          id,
			PatientID:   "pat-1",
			DoctorID:    "doc-1",
			ScheduledAt: base.Add(time.Duration(i) * 30 * time.Minute),
			Status:      models.AppointmentStatusConfirmed,
		}
	}
}

func listIDs(t *testing.T, handler http.Handler, target string) []string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req = req.WithContext(middleware.WithIdentity(req.Context(), patient))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Appointments []models.Appointment `json:"appointments"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	ids := make([]string, 0, len(body.Appointments))
	for _, a := range body.Appointments {
		ids = append(ids, a.ID)
	}
	return ids
}

func TestListPaginatesByScheduledTime(t *testing.T) {
	handler, repo := newListRouter(t)
	seedAppointments(repo, 5)

	ids := listIDs(t, handler, "/api/appointments?limit=2&offset=1")
	if len(ids) != 2 || ids[0] != "b" || ids[1] != "c" {
		t.Fatalf("unexpected page: %v", ids)
	}

	ids = listIDs(t, handler, "/api/appointments?offset=4")
	if len(ids) != 1 || ids[0] != "e" {
		t.Fatalf("unexpected last page: %v", ids)
	}
}

func TestListDefaultsWithoutPagingParams(t *testing.T) {
	handler, repo := newListRouter(t)
	seedAppointments(repo, 3)

	ids := listIDs(t, handler, "/api/appointments")
	if len(ids) != 3 || ids[0] != "a" || ids[2] != "c" {
		t.Fatalf("unexpected listing: %v", ids)
	}
}

func TestListRejectsMalformedPagingParams(t *testing.T) {
	handler, _ := newListRouter(t)

	for _, target := range []string{
		"/api/appointments?limit=abc",
		"/api/appointments?limit=0",
		"/api/appointments?offset=-1",
	} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		req = req.WithContext(middleware.WithIdentity(req.Context(), patient))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", target, rec.Code)
		}
	}
}
