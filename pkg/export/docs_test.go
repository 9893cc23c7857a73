package export

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/nechamalaber-rgb/jewishdata.com/pkg/archive"
	"github.com/nechamalaber-rgb/jewishdata.com/pkg/store"
)

func TestNewRequiresCredentials(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error without client credentials")
	}
}

func TestNewWithoutStoredToken(t *testing.T) {
	e, err := New(Config{
		ClientID:     "id",
		ClientSecret: "secret",
		DataDir:      t.TempDir(),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if e.IsAuthenticated() {
		t.Error("expected unauthenticated exporter")
	}

	status := e.GetStatus()
	if status.Connected {
		t.Error("status should not be connected")
	}
	if !strings.Contains(status.AuthURL, "accounts.google.com") {
		t.Errorf("unexpected auth url: %s", status.AuthURL)
	}
}

func TestFormatRecords(t *testing.T) {
	savedAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	records := []store.SavedRecord{
		{
			Record: archive.Record{
				Surname:    "Goldberg",
				GivenName:  "Moshe",
				Year:       "1897",
				Location:   "Warsaw",
				RecordType: "Birth Record",
				Details:    "Son of Yaakov and Chana Goldberg.",
			},
			Note:    "possible great-grandfather",
			SavedAt: savedAt,
		},
		{
			Record:  archive.Record{Surname: "Katz", GivenName: "Sarah"},
			SavedAt: savedAt,
		},
	}

	content := FormatRecords(records)

	for _, want := range []string{
		"Saved Genealogy Records (2)",
		"1. Moshe Goldberg, 1897, Warsaw (Birth Record)",
		"Son of Yaakov and Chana Goldberg.",
		"Note: possible great-grandfather",
		"2. Sarah Katz, Archives (Historical Record)",
		"Saved: August 1, 2026",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("formatted content missing %q:\n%s", want, content)
		}
	}
}

func TestDocURL(t *testing.T) {
	if got := DocURL("abc123"); got != "https://docs.google.com/document/d/abc123/edit" {
		t.Errorf("unexpected url: %s", got)
	}
}

func TestExportWithoutAuth(t *testing.T) {
	e, err := New(Config{ClientID: "id", ClientSecret: "secret", DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, _, err := e.ExportRecords(context.Background(), []store.SavedRecord{{}}); err == nil {
		t.Error("expected error when not authenticated")
	}
}
