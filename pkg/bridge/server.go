// Package bridge serves the genealogy record lookup API consumed by the
// chat widget's search tool.
package bridge

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/nechamalaber-rgb/jewishdata.com/internal/log"
	"github.com/nechamalaber-rgb/jewishdata.com/pkg/archive"
)

// Server is the record bridge HTTP server.
type Server struct {
	app   *fiber.App
	store Store
	port  string
}

// NewServer creates a bridge server over the given store.
func NewServer(store Store, port string) *Server {
	s := &Server{store: store, port: port}

	app := fiber.New(fiber.Config{
		AppName:               "Record Bridge",
		DisableStartupMessage: true,
	})

	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/health", s.handleHealth)
	api.Post("/search", s.handleSearch)

	s.app = app
	return s
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start listens on the configured port until the server is shut down.
func (s *Server) Start() error {
	log.Info("record bridge listening", "port", s.port)
	return s.app.Listen(":" + s.port)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

type searchRequest struct {
	Surname   string `json:"surname"`
	GivenName string `json:"givenName"`
	Location  string `json:"location"`
}

func (s *Server) handleSearch(c *fiber.Ctx) error {
	var req searchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	surname := strings.TrimSpace(req.Surname)
	if surname == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "surname is required",
		})
	}

	results, err := s.store.Search(c.Context(), archive.Query{
		Surname:   surname,
		GivenName: strings.TrimSpace(req.GivenName),
		Location:  strings.TrimSpace(req.Location),
	})
	if err != nil {
		log.Error("record search failed", "surname", surname, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "record lookup failed",
		})
	}

	if results == nil {
		results = []archive.Record{}
	}
	log.Debug("record search", "surname", surname, "results", len(results))
	return c.JSON(fiber.Map{"results": results})
}
