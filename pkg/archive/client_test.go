package archive

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newBridge(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL)
}

func TestSearchReturnsRecords(t *testing.T) {
	client := newBridge(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var query Query
		if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if query.Surname != "Goldberg" {
			t.Errorf("expected surname Goldberg, got %q", query.Surname)
		}
		if query.GivenName != "Moshe" {
			t.Errorf("expected given name Moshe, got %q", query.GivenName)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"results": []Record{
				{Surname: "Goldberg", GivenName: "Moshe", Year: "1897", Location: "Warsaw", RecordType: "Birth Record", Details: "Son of Yaakov."},
				{Surname: "Goldberg", GivenName: "Rivka"},
			},
		})
	})

	results := client.Search(Query{Surname: "  Goldberg  ", GivenName: " Moshe "})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Location != "Warsaw" {
		t.Errorf("explicit location overwritten: %q", results[0].Location)
	}
	if results[0].Details != "Son of Yaakov." {
		t.Errorf("explicit details overwritten: %q", results[0].Details)
	}
	if results[1].Location != DefaultLocation {
		t.Errorf("expected default location, got %q", results[1].Location)
	}
	if results[1].RecordType != DefaultRecordType {
		t.Errorf("expected default record type, got %q", results[1].RecordType)
	}
	if results[1].Details != DefaultDetails {
		t.Errorf("expected default details, got %q", results[1].Details)
	}
}

func TestSearchEmptySurname(t *testing.T) {
	called := false
	client := newBridge(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	if results := client.Search(Query{Surname: "   "}); len(results) != 0 {
		t.Errorf("expected no results for blank surname, got %v", results)
	}
	if called {
		t.Error("bridge should not be queried for a blank surname")
	}
}

func TestSearchFailsClosed(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"database unavailable"}`, http.StatusInternalServerError)
		}},
		{"malformed body", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("not json"))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newBridge(t, tt.handler)
			if results := client.Search(Query{Surname: "Goldberg"}); len(results) != 0 {
				t.Errorf("expected empty results, got %v", results)
			}
		})
	}
}

func TestSearchUnreachableBridge(t *testing.T) {
	client := NewClient("http://127.0.0.1:1")
	if results := client.Search(Query{Surname: "Cohen"}); len(results) != 0 {
		t.Errorf("expected empty results for unreachable bridge, got %v", results)
	}
}

func TestToolHandlerNeverErrors(t *testing.T) {
	client := NewClient("http://127.0.0.1:1")
	handler := client.ToolHandler()

	result, err := handler(map[string]any{"surname": "Goldberg"})
	if err != nil {
		t.Fatalf("tool handler returned error: %v", err)
	}
	if result["count"] != 0 {
		t.Errorf("expected count 0, got %v", result["count"])
	}
	if _, ok := result["results"].([]Record); !ok {
		t.Errorf("expected results slice, got %T", result["results"])
	}
}

func TestToolDeclaration(t *testing.T) {
	name, desc, params := ToolDeclaration()
	if name != ToolName {
		t.Errorf("unexpected tool name %q", name)
	}
	if desc == "" {
		t.Error("empty tool description")
	}
	required, _ := params["required"].([]string)
	if len(required) != 1 || required[0] != "surname" {
		t.Errorf("expected surname required, got %v", required)
	}
}

func TestFullName(t *testing.T) {
	if got := (Record{Surname: "Goldberg", GivenName: "Moshe"}).FullName(); got != "Moshe Goldberg" {
		t.Errorf("unexpected full name %q", got)
	}
	if got := (Record{Surname: "Goldberg"}).FullName(); got != "Goldberg" {
		t.Errorf("unexpected surname-only name %q", got)
	}
}

func TestFormatRecord(t *testing.T) {
	full := Record{Surname: "Goldberg", GivenName: "Moshe", Year: "1897", Location: "Warsaw", RecordType: "Birth Record"}
	if got := FormatRecord(full); got != "Moshe Goldberg, 1897, Warsaw (Birth Record)" {
		t.Errorf("unexpected format: %q", got)
	}

	bare := Record{Surname: "Goldberg", GivenName: "Rivka"}
	if got := FormatRecord(bare); got != "Rivka Goldberg, Archives (Historical Record)" {
		t.Errorf("unexpected bare format: %q", got)
	}
}
