package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nechamalaber-rgb/jewishdata.com/pkg/archive"
)

// fakeStore returns canned results or a forced error.
type fakeStore struct {
	results []archive.Record
	err     error

	lastQuery archive.Query
}

func (f *fakeStore) Search(ctx context.Context, query archive.Query) ([]archive.Record, error) {
	f.lastQuery = query
	return f.results, f.err
}

func (f *fakeStore) Close() {}

func doSearch(t *testing.T, server *Server, body any) *http.Response {
	t.Helper()
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/api/search", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	resp, err := server.App().Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func TestSearchReturnsResults(t *testing.T) {
	store := &fakeStore{results: []archive.Record{
		{Surname: "Goldberg", GivenName: "Moshe", Year: "1897"},
	}}
	server := NewServer(store, "0")

	resp := doSearch(t, server, map[string]string{"surname": " Goldberg ", "givenName": "Moshe", "location": "Warsaw"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var parsed struct {
		Results []archive.Record `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if len(parsed.Results) != 1 || parsed.Results[0].Surname != "Goldberg" {
		t.Errorf("unexpected results: %v", parsed.Results)
	}

	if store.lastQuery.Surname != "Goldberg" {
		t.Errorf("surname not trimmed: %q", store.lastQuery.Surname)
	}
	if store.lastQuery.GivenName != "Moshe" {
		t.Errorf("given name not passed: %q", store.lastQuery.GivenName)
	}
	if store.lastQuery.Location != "Warsaw" {
		t.Errorf("location not passed: %q", store.lastQuery.Location)
	}
}

func TestSearchMissingSurname(t *testing.T) {
	server := NewServer(&fakeStore{}, "0")

	resp := doSearch(t, server, map[string]string{"surname": "  "})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for blank surname, got %d", resp.StatusCode)
	}

	var parsed map[string]string
	json.NewDecoder(resp.Body).Decode(&parsed)
	if parsed["error"] == "" {
		t.Error("expected error message in body")
	}
}

func TestSearchInvalidBody(t *testing.T) {
	server := NewServer(&fakeStore{}, "0")

	req := httptest.NewRequest(http.MethodPost, "/api/search", bytes.NewReader([]byte("not json")))
	req.Header.Set("Content-Type", "application/json")
	resp, err := server.App().Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed body, got %d", resp.StatusCode)
	}
}

func TestSearchStoreError(t *testing.T) {
	server := NewServer(&fakeStore{err: errors.New("connection refused")}, "0")

	resp := doSearch(t, server, map[string]string{"surname": "Goldberg"})
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected 500 on store failure, got %d", resp.StatusCode)
	}

	var parsed map[string]string
	json.NewDecoder(resp.Body).Decode(&parsed)
	if parsed["error"] == "" {
		t.Error("expected error message in body")
	}
}

func TestSearchEmptyResultsNotNull(t *testing.T) {
	server := NewServer(&fakeStore{}, "0")

	resp := doSearch(t, server, map[string]string{"surname": "Nobody"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var parsed map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if string(parsed["results"]) != "[]" {
		t.Errorf("expected empty array, got %s", parsed["results"])
	}
}

func TestHealth(t *testing.T) {
	server := NewServer(&fakeStore{}, "0")

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	resp, err := server.App().Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}
