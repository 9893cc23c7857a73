// Package web serves the genealogy chat widget: static assets, the typed
// chat API, history and saved-record storage, the event stream, and the
// websocket bridge that proxies browser audio into a live voice session.
package web

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberws "github.com/gofiber/websocket/v2"

	"github.com/nechamalaber-rgb/jewishdata.com/internal/log"
	"github.com/nechamalaber-rgb/jewishdata.com/pkg/archive"
	"github.com/nechamalaber-rgb/jewishdata.com/pkg/chat"
	"github.com/nechamalaber-rgb/jewishdata.com/pkg/export"
	"github.com/nechamalaber-rgb/jewishdata.com/pkg/hub"
	"github.com/nechamalaber-rgb/jewishdata.com/pkg/live"
	"github.com/nechamalaber-rgb/jewishdata.com/pkg/store"
)

// Config holds widget server configuration.
type Config struct {
	Port         string
	StaticDir    string
	SystemPrompt string

	// LiveConfig seeds each voice session opened over /ws/live.
	LiveConfig live.Config
}

// Server is the widget HTTP and websocket server.
type Server struct {
	app    *fiber.App
	config Config

	store    *store.Store
	chat     *chat.Client
	searcher *archive.Client
	exporter *export.DocsExporter // nil when Docs export is not configured

	eventHub *hub.Hub
}

// NewServer wires the widget server. exporter may be nil.
func NewServer(config Config, st *store.Store, chatClient *chat.Client, searcher *archive.Client, exporter *export.DocsExporter) *Server {
	s := &Server{
		config:   config,
		store:    st,
		chat:     chatClient,
		searcher: searcher,
		exporter: exporter,
		eventHub: hub.New("events"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Genealogy Chat Widget",
		DisableStartupMessage: true,
		BodyLimit:             8 * 1024 * 1024, // inline photos
	})

	app.Use(cors.New())

	if config.StaticDir != "" {
		app.Static("/", config.StaticDir)
	}

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Post("/chat", s.handleChat)
	api.Get("/history", s.handleGetHistory)
	api.Delete("/history", s.handleClearHistory)
	api.Get("/records", s.handleGetRecords)
	api.Post("/records", s.handleSaveRecord)
	api.Delete("/records/:id", s.handleDeleteRecord)

	if s.exporter != nil {
		exp := api.Group("/export")
		exp.Get("/status", s.handleExportStatus)
		exp.Get("/auth", s.handleExportAuth)
		exp.Get("/callback", s.handleExportCallback)
		exp.Post("/", s.handleExport)
		exp.Post("/disconnect", s.handleExportDisconnect)
	}

	// Event stream for UI updates.
	app.Use("/ws/events", func(c *fiber.Ctx) error {
		if fiberws.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/events", fiberws.New(s.handleEventsWS))

	// Live voice bridge.
	app.Use("/ws/live", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/live", websocket.New(s.handleLiveWS))

	s.app = app
	return s
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start runs the hub and listens until shutdown.
func (s *Server) Start() error {
	go s.eventHub.Run()
	log.Info("widget server listening", "port", s.config.Port)
	return s.app.Listen(":" + s.config.Port)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// handleEventsWS attaches an event-stream client to the broadcast hub.
func (s *Server) handleEventsWS(conn *fiberws.Conn) {
	client := hub.NewClient(s.eventHub, conn)
	client.Run()
}

// broadcastEvent pushes a UI event to all event-stream clients.
func (s *Server) broadcastEvent(eventType string, payload fiber.Map) {
	event := fiber.Map{"type": eventType}
	for k, v := range payload {
		event[k] = v
	}
	if err := s.eventHub.BroadcastJSON(event); err != nil {
		log.Warn("event broadcast failed", "type", eventType, "error", err)
	}
}
