// Package archive queries the genealogy record bridge on behalf of the
// assistant. Lookups fail closed: when the bridge is unreachable or
// misbehaves the client reports zero results rather than inventing
// records or surfacing an error into the conversation.
package archive

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/nechamalaber-rgb/jewishdata.com/internal/httpc"
	"github.com/nechamalaber-rgb/jewishdata.com/internal/log"
)

// ToolName is the function name declared to the model for record search.
const ToolName = "search_database"

// Display defaults for records with missing metadata.
const (
	DefaultLocation   = "Archives"
	DefaultRecordType = "Historical Record"
	DefaultDetails    = "View this record on JewishData.com"
)

// Record is one genealogy record returned by the bridge.
type Record struct {
	ID         string `json:"id,omitempty"`
	Surname    string `json:"surname"`
	GivenName  string `json:"givenName,omitempty"`
	Location   string `json:"location,omitempty"`
	Year       string `json:"year,omitempty"`
	RecordType string `json:"recordType,omitempty"`
	Details    string `json:"details,omitempty"`
}

// FullName joins the given name and surname for display.
func (r Record) FullName() string {
	if r.GivenName == "" {
		return r.Surname
	}
	return r.GivenName + " " + r.Surname
}

// Query is a record search request.
type Query struct {
	Surname   string `json:"surname"`
	GivenName string `json:"givenName,omitempty"`
	Location  string `json:"location,omitempty"`
}

// Client talks to the record bridge.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the bridge at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpc.NewClient(10 * time.Second),
	}
}

type searchResponse struct {
	Results []Record `json:"results"`
}

// Search queries the bridge for records matching the surname. An empty
// surname, an unreachable bridge, a non-200 status or a malformed body
// all yield an empty result set and no error.
func (c *Client) Search(query Query) []Record {
	surname := strings.TrimSpace(query.Surname)
	if surname == "" {
		return nil
	}

	body, err := json.Marshal(Query{
		Surname:   surname,
		GivenName: strings.TrimSpace(query.GivenName),
		Location:  strings.TrimSpace(query.Location),
	})
	if err != nil {
		return nil
	}

	resp, err := c.http.Post(c.baseURL+"/api/search", "application/json", bytes.NewReader(body))
	if err != nil {
		log.Warn("archive bridge unreachable", "error", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Warn("archive bridge returned error", "status", resp.StatusCode)
		return nil
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		log.Warn("archive bridge response malformed", "error", err)
		return nil
	}

	results := parsed.Results
	for i := range results {
		if results[i].Location == "" {
			results[i].Location = DefaultLocation
		}
		if results[i].RecordType == "" {
			results[i].RecordType = DefaultRecordType
		}
		if results[i].Details == "" {
			results[i].Details = DefaultDetails
		}
	}

	log.Debug("archive search", "surname", surname, "results", len(results))
	return results
}

// ToolDeclaration returns the function schema to register with the live
// session or chat model.
func ToolDeclaration() (name, description string, parameters map[string]any) {
	return ToolName,
		"Search historical genealogy archives for records matching a family surname, optionally narrowed by given name or by town and region.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"surname": map[string]any{
					"type":        "string",
					"description": "Family surname to search for.",
				},
				"givenName": map[string]any{
					"type":        "string",
					"description": "Given (first) name to narrow the search.",
				},
				"location": map[string]any{
					"type":        "string",
					"description": "Town, region or country to narrow the search.",
				},
			},
			"required": []string{"surname"},
		}
}

// ToolHandler adapts Search into a live-session tool handler. It never
// returns an error; failures surface as zero results.
func (c *Client) ToolHandler() func(args map[string]any) (map[string]any, error) {
	return func(args map[string]any) (map[string]any, error) {
		surname, _ := args["surname"].(string)
		givenName, _ := args["givenName"].(string)
		location, _ := args["location"].(string)

		results := c.Search(Query{Surname: surname, GivenName: givenName, Location: location})
		if results == nil {
			results = []Record{}
		}
		return map[string]any{
			"results": results,
			"count":   len(results),
		}, nil
	}
}

// FormatRecord renders a record as a short human-readable line for
// transcripts and exports.
func FormatRecord(r Record) string {
	parts := []string{r.FullName()}
	if r.Year != "" {
		parts = append(parts, r.Year)
	}
	location := r.Location
	if location == "" {
		location = DefaultLocation
	}
	recordType := r.RecordType
	if recordType == "" {
		recordType = DefaultRecordType
	}
	parts = append(parts, location)
	return strings.Join(parts, ", ") + " (" + recordType + ")"
}
