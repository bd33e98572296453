package history

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/moto-assistant/pkg/logging"
)

func TestListTurnsDefaultsToFifty(t *testing.T) {
	store := NewInMemoryStore()
	for i := 0; i < 60; i++ {
		if err := store.Append(context.Background(), &Turn{CorrespondentID: "c-1", Content: "x"}); err != nil {
			t.Fatal(err)
		}
	}
	h := NewHandler(store, logging.Default())
	r := chi.NewRouter()
	r.Get("/admin/correspondents/{id}/turns", h.ListTurns)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/correspondents/c-1/turns", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp TurnsResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 50 {
		t.Fatalf("expected 50 turns, got %d", resp.Count)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/correspondents/c-1/turns?limit=5", nil))
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 5 {
		t.Fatalf("expected 5 turns, got %d", resp.Count)
	}
}
