package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/nechamalaber-rgb/jewishdata.com/pkg/archive"
)

func textReply(text string) map[string]any {
	return map[string]any{
		"candidates": []any{
			map[string]any{"content": map[string]any{
				"role":  "model",
				"parts": []any{map[string]any{"text": text}},
			}},
		},
	}
}

func functionCallReply(name string, args map[string]any) map[string]any {
	return map[string]any{
		"candidates": []any{
			map[string]any{"content": map[string]any{
				"role": "model",
				"parts": []any{map[string]any{"functionCall": map[string]any{
					"name": name,
					"args": args,
				}}},
			}},
		},
	}
}

// scriptedAPI replays one canned response per request.
type scriptedAPI struct {
	next      int
	responses []any
	statuses  []int
	requests  []genRequest
	lock      sync.Mutex
}

func newScriptedAPI(t *testing.T, api *scriptedAPI) *Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.lock.Lock()
		defer api.lock.Unlock()

		var req genRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		api.requests = append(api.requests, req)

		i := api.next
		api.next++
		if i < len(api.statuses) && api.statuses[i] != 0 {
			w.WriteHeader(api.statuses[i])
			json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "upstream failure"}})
			return
		}
		json.NewEncoder(w).Encode(api.responses[i])
	}))
	t.Cleanup(server.Close)

	client, err := NewClient("test-key", WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	client.sleep = func(time.Duration) {}
	return client
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(""); err != ErrNoAPIKey {
		t.Errorf("expected ErrNoAPIKey, got %v", err)
	}
}

func TestGenerateSimpleReply(t *testing.T) {
	api := &scriptedAPI{responses: []any{textReply("Shalom! How can I help?")}}
	client := newScriptedAPI(t, api)

	reply, err := client.Generate(context.Background(), nil, "hello", nil)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if reply != "Shalom! How can I help?" {
		t.Errorf("unexpected reply: %q", reply)
	}
}

func TestGenerateEmptyMessage(t *testing.T) {
	client, err := NewClient("test-key")
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if _, err := client.Generate(context.Background(), nil, "   ", nil); err != ErrEmptyMessage {
		t.Errorf("expected ErrEmptyMessage, got %v", err)
	}
}

func TestGenerateSendsHistoryAndImage(t *testing.T) {
	api := &scriptedAPI{responses: []any{textReply("I see an old photograph.")}}
	client := newScriptedAPI(t, api)

	history := []Message{
		{Role: RoleUser, Text: "hello"},
		{Role: RoleModel, Text: "Shalom!"},
	}
	jpeg := []byte{0xff, 0xd8, 0xff, 0xe0}

	if _, err := client.Generate(context.Background(), history, "what is this?", jpeg); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	api.lock.Lock()
	defer api.lock.Unlock()
	req := api.requests[0]

	if len(req.Contents) != 3 {
		t.Fatalf("expected 3 contents, got %d", len(req.Contents))
	}
	if req.Contents[1].Role != "model" {
		t.Errorf("history role lost: %q", req.Contents[1].Role)
	}

	last := req.Contents[2]
	if len(last.Parts) != 2 || last.Parts[1].InlineData == nil {
		t.Fatalf("expected text + inline image parts, got %+v", last.Parts)
	}
	if last.Parts[1].InlineData.MimeType != "image/jpeg" {
		t.Errorf("wrong image mime type: %q", last.Parts[1].InlineData.MimeType)
	}
}

func TestGenerateRetriesServerErrors(t *testing.T) {
	api := &scriptedAPI{
		statuses:  []int{500, 503, 0},
		responses: []any{nil, nil, textReply("finally")},
	}
	client := newScriptedAPI(t, api)

	reply, err := client.Generate(context.Background(), nil, "hello", nil)
	if err != nil {
		t.Fatalf("Generate failed after retries: %v", err)
	}
	if reply != "finally" {
		t.Errorf("unexpected reply: %q", reply)
	}

	api.lock.Lock()
	defer api.lock.Unlock()
	if len(api.requests) != 3 {
		t.Errorf("expected 3 attempts, got %d", len(api.requests))
	}
}

func TestGenerateDoesNotRetryClientErrors(t *testing.T) {
	api := &scriptedAPI{
		statuses:  []int{400},
		responses: []any{nil},
	}
	client := newScriptedAPI(t, api)

	_, err := client.Generate(context.Background(), nil, "hello", nil)
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != 400 {
		t.Errorf("expected status 400, got %d", apiErr.StatusCode)
	}

	api.lock.Lock()
	defer api.lock.Unlock()
	if len(api.requests) != 1 {
		t.Errorf("expected no retries for 400, got %d attempts", len(api.requests))
	}
}

func TestGenerateToolLoop(t *testing.T) {
	bridge := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"results": []archive.Record{{Surname: "Goldberg", GivenName: "Moshe", Year: "1897"}},
		})
	}))
	defer bridge.Close()

	api := &scriptedAPI{responses: []any{
		functionCallReply("search_database", map[string]any{"surname": "Goldberg"}),
		textReply("I found a record for Moshe Goldberg from 1897."),
	}}
	client := newScriptedAPI(t, api)
	client.searcher = archive.NewClient(bridge.URL)

	reply, err := client.Generate(context.Background(), nil, "find Goldbergs", nil)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if reply != "I found a record for Moshe Goldberg from 1897." {
		t.Errorf("unexpected reply: %q", reply)
	}

	api.lock.Lock()
	defer api.lock.Unlock()

	// The second request must carry the call and its response.
	second := api.requests[1]
	n := len(second.Contents)
	if n < 3 {
		t.Fatalf("expected expanded contents, got %d", n)
	}
	if second.Contents[n-2].Parts[0].FunctionCall == nil {
		t.Error("model function call not echoed into history")
	}
	fr := second.Contents[n-1].Parts[0].FunctionResponse
	if fr == nil || fr.Name != "search_database" {
		t.Errorf("function response missing: %+v", second.Contents[n-1])
	}
	if fr.Response["count"] != float64(1) {
		t.Errorf("expected 1 result in tool response, got %v", fr.Response["count"])
	}
}

func TestGenerateToolLoopBounded(t *testing.T) {
	// Model calls the tool forever.
	responses := make([]any, maxToolRounds)
	for i := range responses {
		responses[i] = functionCallReply("search_database", map[string]any{"surname": "Katz"})
	}
	api := &scriptedAPI{responses: responses}
	client := newScriptedAPI(t, api)

	if _, err := client.Generate(context.Background(), nil, "find Katz", nil); err == nil {
		t.Error("expected error when tool loop never terminates")
	}
}
