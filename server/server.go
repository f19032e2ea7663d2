package server

import (
	"log/slog"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/papercomputeco/reel/pkg/chat"
	"github.com/papercomputeco/reel/pkg/config"
	"github.com/papercomputeco/reel/pkg/header"
	"github.com/papercomputeco/reel/server/mcp"
)

// bodyLimit fits the largest attachment after base64 encoding, with room
// for the rest of the request.
const bodyLimit = 32 << 20

// Server is the browser-facing HTTP server.
type Server struct {
	config        Config
	chat          *chat.Service
	logger        *slog.Logger
	app           *fiber.App
	headerHandler *header.Handler
	now           func() time.Time
}

// NewServer creates a Server. The chat service is shared with the caller,
// which owns closing it.
func NewServer(config Config, svc *chat.Service, logger *slog.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		// Attachments arrive base64 encoded inside JSON.
		BodyLimit: bodyLimit,
	})

	s := &Server{
		config:        config,
		chat:          svc,
		logger:        logger,
		app:           app,
		headerHandler: header.NewHandler(),
		now:           time.Now,
	}

	app.Use(recover.New())
	app.Use(s.logRequests)

	app.Get("/ping", s.handlePing)

	app.Get("/conversations", s.handleListConversations)
	app.Post("/conversations", s.handleCreateConversation)
	app.Get("/conversations/:id", s.handleGetConversation)
	app.Patch("/conversations/:id", s.handleRenameConversation)
	app.Delete("/conversations/:id", s.handleDeleteConversation)
	app.Post("/conversations/:id/select", s.handleSelectConversation)

	app.Post("/conversations/:id/messages", s.handleSendMessage)
	app.Delete("/conversations/:id/messages", s.handleClearMessages)
	app.Post("/conversations/:id/retry", s.handleRetry)
	app.Post("/conversations/:id/cancel", s.handleCancel)

	app.Get("/export", s.handleExport)
	app.Post("/import", s.handleImport)
	app.Delete("/conversations", s.handleClear)

	mcpServer, err := mcp.NewServer(mcp.Config{Chat: svc, Logger: logger})
	if err != nil {
		logger.Error("MCP tools disabled", "error", err)
	} else {
		app.All("/mcp", adaptor.HTTPHandler(mcpServer.Handler()))
	}

	return s
}

// Reload applies new client settings to later sessions.
func (s *Server) Reload(cfg *config.Config) {
	if err := s.chat.SetConfig(cfg); err != nil {
		s.logger.Error("config reload rejected", "error", err)
		return
	}
	s.logger.Info("config reloaded", "model", cfg.Client.Model, "url", cfg.Client.APIURL)
}

// Run starts the server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting server", "listen", s.config.ListenAddr)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) logRequests(c *fiber.Ctx) error {
	start := s.now()
	err := c.Next()
	s.logger.Debug("request",
		"method", c.Method(),
		"path", c.Path(),
		"status", c.Response().StatusCode(),
		"duration", s.now().Sub(start),
	)
	return err
}
