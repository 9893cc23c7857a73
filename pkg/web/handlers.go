package web

import (
	"encoding/base64"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/nechamalaber-rgb/jewishdata.com/internal/config"
	"github.com/nechamalaber-rgb/jewishdata.com/internal/log"
	"github.com/nechamalaber-rgb/jewishdata.com/pkg/archive"
	"github.com/nechamalaber-rgb/jewishdata.com/pkg/chat"
)

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":        "ok",
		"env":           config.Env("GO_ENV", "development"),
		"messages":      len(s.store.History()),
		"saved_records": len(s.store.Records()),
		"export_ready":  s.exporter != nil && s.exporter.IsAuthenticated(),
	})
}

type chatRequest struct {
	Message     string `json:"message"`
	ImageBase64 string `json:"image_base64"`
}

func (s *Server) handleChat(c *fiber.Ctx) error {
	var req chatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	message := strings.TrimSpace(req.Message)
	var image []byte
	if req.ImageBase64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.ImageBase64)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid image encoding"})
		}
		image = decoded
	}
	if message == "" && len(image) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "message is required"})
	}

	history := s.store.ChatHistory()
	reply, err := s.chat.Generate(c.Context(), history, message, image)
	if err != nil {
		log.Error("chat generation failed", "error", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "reply generation failed"})
	}

	if _, err := s.store.AppendMessage(chat.RoleUser, message); err != nil {
		log.Warn("failed to persist user message", "error", err)
	}
	saved, err := s.store.AppendMessage(chat.RoleModel, reply)
	if err != nil {
		log.Warn("failed to persist reply", "error", err)
	}

	s.broadcastEvent("message", fiber.Map{"role": chat.RoleModel, "text": reply})
	return c.JSON(fiber.Map{"reply": reply, "id": saved.ID})
}

func (s *Server) handleGetHistory(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"messages": s.store.History()})
}

func (s *Server) handleClearHistory(c *fiber.Ctx) error {
	if err := s.store.ClearHistory(); err != nil {
		log.Error("failed to clear history", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "clear failed"})
	}
	s.broadcastEvent("history_cleared", fiber.Map{})
	return c.JSON(fiber.Map{"success": true})
}

func (s *Server) handleGetRecords(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"records": s.store.Records()})
}

type saveRecordRequest struct {
	Record archive.Record `json:"record"`
	Note   string         `json:"note"`
}

func (s *Server) handleSaveRecord(c *fiber.Ctx) error {
	var req saveRecordRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if strings.TrimSpace(req.Record.Surname) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "record surname is required"})
	}

	saved, err := s.store.SaveRecord(req.Record, strings.TrimSpace(req.Note))
	if err != nil {
		log.Error("failed to save record", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "save failed"})
	}

	s.broadcastEvent("record_saved", fiber.Map{"id": saved.ID})
	return c.Status(fiber.StatusCreated).JSON(saved)
}

func (s *Server) handleDeleteRecord(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := s.store.DeleteRecord(id); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "record not found"})
	}
	s.broadcastEvent("record_deleted", fiber.Map{"id": id})
	return c.JSON(fiber.Map{"success": true})
}

func (s *Server) handleExportStatus(c *fiber.Ctx) error {
	return c.JSON(s.exporter.GetStatus())
}

func (s *Server) handleExportAuth(c *fiber.Ctx) error {
	return c.Redirect(s.exporter.AuthURL(), fiber.StatusTemporaryRedirect)
}

func (s *Server) handleExportCallback(c *fiber.Ctx) error {
	code := c.Query("code")
	if code == "" {
		return c.Status(fiber.StatusBadRequest).SendString("missing authorization code")
	}
	if err := s.exporter.HandleCallback(c.Context(), code); err != nil {
		log.Error("oauth callback failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).SendString("authentication failed")
	}
	c.Set("Content-Type", "text/html")
	return c.SendString("<html><body><p>Connected. You can close this window.</p></body></html>")
}

func (s *Server) handleExport(c *fiber.Ctx) error {
	records := s.store.Records()
	docID, url, err := s.exporter.ExportRecords(c.Context(), records)
	if err != nil {
		log.Error("export failed", "error", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"doc_id": docID, "url": url})
}

func (s *Server) handleExportDisconnect(c *fiber.Ctx) error {
	if err := s.exporter.Disconnect(); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "disconnect failed"})
	}
	return c.JSON(fiber.Map{"success": true})
}
