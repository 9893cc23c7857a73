// Package export sends the visitor's saved genealogy records to a Google
// Doc so they can be shared with family or a researcher.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/docs/v1"
	"google.golang.org/api/option"

	"github.com/nechamalaber-rgb/jewishdata.com/internal/log"
	"github.com/nechamalaber-rgb/jewishdata.com/pkg/archive"
	"github.com/nechamalaber-rgb/jewishdata.com/pkg/store"
)

const tokenFile = "google_token.json"

// DocsExporter handles OAuth2 authentication and document creation.
type DocsExporter struct {
	config    *oauth2.Config
	tokenPath string

	mu          sync.RWMutex
	token       *oauth2.Token
	docsService *docs.Service
}

// Config configures the exporter.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	DataDir      string // token is stored here
}

// New creates a Docs exporter. A previously saved token is loaded from
// the data directory when present.
func New(cfg Config) (*DocsExporter, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("export: client ID and secret are required")
	}
	if cfg.RedirectURL == "" {
		cfg.RedirectURL = "http://localhost:8080/api/export/callback"
	}

	e := &DocsExporter{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes: []string{
				"https://www.googleapis.com/auth/documents",
				"https://www.googleapis.com/auth/drive.file",
			},
			Endpoint: google.Endpoint,
		},
		tokenPath: filepath.Join(cfg.DataDir, tokenFile),
	}

	if err := e.loadToken(); err == nil {
		if err := e.initService(); err != nil {
			log.Debug("stored token unusable, re-auth required", "error", err)
			e.token = nil
		}
	}

	return e, nil
}

// IsAuthenticated returns true if the exporter has a valid token.
func (e *DocsExporter) IsAuthenticated() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.token != nil && e.token.Valid()
}

// AuthURL returns the OAuth2 authorization URL for user consent.
func (e *DocsExporter) AuthURL() string {
	return e.config.AuthCodeURL("export-state", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// HandleCallback exchanges the authorization code for a token and saves
// it for future sessions.
func (e *DocsExporter) HandleCallback(ctx context.Context, code string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	token, err := e.config.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("export: exchange code: %w", err)
	}

	e.mu.Lock()
	e.token = token
	e.mu.Unlock()

	if err := e.saveToken(); err != nil {
		log.Warn("failed to save oauth token", "error", err)
	}
	return e.initService()
}

// Disconnect clears the authentication and removes the stored token.
func (e *DocsExporter) Disconnect() error {
	e.mu.Lock()
	e.token = nil
	e.docsService = nil
	e.mu.Unlock()

	if err := os.Remove(e.tokenPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("export: remove token: %w", err)
	}
	return nil
}

// ExportRecords creates a Google Doc listing the saved records and
// returns its ID and edit URL.
func (e *DocsExporter) ExportRecords(ctx context.Context, records []store.SavedRecord) (docID, url string, err error) {
	e.mu.RLock()
	service := e.docsService
	e.mu.RUnlock()

	if service == nil {
		return "", "", fmt.Errorf("export: not authenticated")
	}
	if len(records) == 0 {
		return "", "", fmt.Errorf("export: no saved records to export")
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	title := fmt.Sprintf("Family Records - exported %s", time.Now().Format("January 2, 2006"))
	created, err := service.Documents.Create(&docs.Document{Title: title}).Context(ctx).Do()
	if err != nil {
		return "", "", fmt.Errorf("export: create document: %w", err)
	}

	content := FormatRecords(records)
	_, err = service.Documents.BatchUpdate(created.DocumentId, &docs.BatchUpdateDocumentRequest{
		Requests: []*docs.Request{{
			InsertText: &docs.InsertTextRequest{
				Location: &docs.Location{Index: 1},
				Text:     content,
			},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return created.DocumentId, DocURL(created.DocumentId),
			fmt.Errorf("export: created doc but failed to add content: %w", err)
	}

	log.Info("exported saved records", "count", len(records), "doc", created.DocumentId)
	return created.DocumentId, DocURL(created.DocumentId), nil
}

// DocURL returns the URL to view and edit a document.
func DocURL(docID string) string {
	return fmt.Sprintf("https://docs.google.com/document/d/%s/edit", docID)
}

// FormatRecords renders saved records as plain document text.
func FormatRecords(records []store.SavedRecord) string {
	var content string
	content += fmt.Sprintf("Saved Genealogy Records (%d)\n\n", len(records))

	for i, saved := range records {
		content += fmt.Sprintf("%d. %s\n", i+1, archive.FormatRecord(saved.Record))
		if saved.Record.Details != "" {
			content += fmt.Sprintf("   %s\n", saved.Record.Details)
		}
		if saved.Note != "" {
			content += fmt.Sprintf("   Note: %s\n", saved.Note)
		}
		content += fmt.Sprintf("   Saved: %s\n\n", saved.SavedAt.Format("January 2, 2006"))
	}

	return content
}

// Status reports the connection state for the widget UI.
type Status struct {
	Connected bool   `json:"connected"`
	AuthURL   string `json:"auth_url,omitempty"`
}

// GetStatus returns the current connection status.
func (e *DocsExporter) GetStatus() Status {
	status := Status{Connected: e.IsAuthenticated()}
	if !status.Connected {
		status.AuthURL = e.AuthURL()
	}
	return status
}

func (e *DocsExporter) initService() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.token == nil {
		return fmt.Errorf("export: no token available")
	}

	ctx := context.Background()
	client := e.config.Client(ctx, e.token)

	service, err := docs.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return fmt.Errorf("export: create docs service: %w", err)
	}
	e.docsService = service
	return nil
}

func (e *DocsExporter) loadToken() error {
	data, err := os.ReadFile(e.tokenPath)
	if err != nil {
		return err
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return err
	}

	e.mu.Lock()
	e.token = &token
	e.mu.Unlock()
	return nil
}

func (e *DocsExporter) saveToken() error {
	e.mu.RLock()
	token := e.token
	e.mu.RUnlock()

	if token == nil {
		return fmt.Errorf("export: no token to save")
	}

	if err := os.MkdirAll(filepath.Dir(e.tokenPath), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(e.tokenPath, data, 0600)
}
