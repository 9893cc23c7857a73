// Widget server for the genealogy archive chat assistant. Serves the
// embeddable chat UI, the typed chat API, history and saved-record
// storage, and the websocket bridge into the live voice session.
package main

import (
	"flag"
	stdlog "log"
	"os"

	"github.com/nechamalaber-rgb/jewishdata.com/internal/config"
	"github.com/nechamalaber-rgb/jewishdata.com/internal/log"
	"github.com/nechamalaber-rgb/jewishdata.com/pkg/archive"
	"github.com/nechamalaber-rgb/jewishdata.com/pkg/chat"
	"github.com/nechamalaber-rgb/jewishdata.com/pkg/export"
	"github.com/nechamalaber-rgb/jewishdata.com/pkg/live"
	"github.com/nechamalaber-rgb/jewishdata.com/pkg/store"
	"github.com/nechamalaber-rgb/jewishdata.com/pkg/web"
)

const systemPrompt = `You are a warm, knowledgeable genealogy assistant for a Jewish heritage archive.
Help visitors explore their family history. When asked about specific family names,
use the search_database tool and only cite records it returns. Never invent records.
If no records are found, say so and suggest alternative spellings or nearby towns.`

func main() {
	port := flag.String("port", config.DefaultWidgetPort, "HTTP listen port")
	staticDir := flag.String("static", "./web", "Directory of widget static assets")
	dataDir := flag.String("data", "", "Data directory (overrides DATA_DIR env var)")
	flag.Parse()

	log.Init(config.Env("LOG_LEVEL", "info"))

	apiKey := config.GeminiAPIKey()

	dir := *dataDir
	if dir == "" {
		dir = config.DataDir()
	}

	st, err := store.New(dir)
	if err != nil {
		stdlog.Fatalf("store: %v", err)
	}

	searcher := archive.NewClient(config.BridgeURL())

	chatClient, err := chat.NewClient(apiKey,
		chat.WithSystemPrompt(systemPrompt),
		chat.WithSearcher(searcher),
	)
	if err != nil {
		stdlog.Fatalf("chat client: %v", err)
	}

	var exporter *export.DocsExporter
	if id, secret := os.Getenv("GOOGLE_CLIENT_ID"), os.Getenv("GOOGLE_CLIENT_SECRET"); id != "" && secret != "" {
		exporter, err = export.New(export.Config{
			ClientID:     id,
			ClientSecret: secret,
			RedirectURL:  "http://localhost:" + *port + "/api/export/callback",
			DataDir:      dir,
		})
		if err != nil {
			stdlog.Fatalf("export: %v", err)
		}
	} else {
		log.Info("Docs export disabled, set GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET to enable")
	}

	server := web.NewServer(web.Config{
		Port:         *port,
		StaticDir:    *staticDir,
		SystemPrompt: systemPrompt,
		LiveConfig: live.Config{
			APIKey:       apiKey,
			SystemPrompt: systemPrompt,
		},
	}, st, chatClient, searcher, exporter)

	if err := server.Start(); err != nil {
		stdlog.Fatalf("server: %v", err)
	}
}
