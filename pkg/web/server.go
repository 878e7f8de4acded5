// Package web serves the local interview monitor: a small fiber app with
// REST views of session state and transcript, plus a websocket feed for
// live viewers.
package web

import (
	"log/slog"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/jack-ferreri12/BasicInterviewer-v1/internal/log"
	"github.com/jack-ferreri12/BasicInterviewer-v1/pkg/hub"
	"github.com/jack-ferreri12/BasicInterviewer-v1/pkg/transcript"
)

// Server is the local monitor. It implements transcript.Sink so the
// recorder can push lines to it directly.
type Server struct {
	app     *fiber.App
	port    string
	session string
	logger  *slog.Logger
	live    *hub.Hub

	mu      sync.RWMutex
	state   string
	mic     string
	current int
	total   int
	lines   []transcript.Line
}

// NewServer builds the monitor for one interview session.
func NewServer(port, sessionID string) *Server {
	s := &Server{
		port:    port,
		session: sessionID,
		logger:  log.With("component", "web"),
		live:    hub.New(),
		state:   "idle",
	}

	app := fiber.New(fiber.Config{
		AppName:               "Interview Monitor",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} ${status} ${method} ${path}\n",
	}))

	app.Get("/", s.handleIndex)
	app.Get("/health", s.handleHealth)
	app.Get("/state", s.handleState)
	app.Get("/transcript", s.handleTranscript)
	app.Get("/transcript.txt", s.handleTranscriptText)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/live", websocket.New(s.handleLive))

	s.app = app
	return s
}

// StartAsync serves in the background; listen errors are logged, the
// interview does not depend on the monitor.
func (s *Server) StartAsync() {
	go func() {
		s.logger.Info("monitor listening", "addr", "http://localhost:"+s.port)
		go s.live.Run()
		if err := s.app.Listen(":" + s.port); err != nil {
			s.logger.Error("monitor stopped", "error", err)
		}
	}()
}

// Shutdown stops the fiber app.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// AppendLine implements transcript.Sink: one new transcript row, pushed
// to live viewers as it happens.
func (s *Server) AppendLine(label, text string) {
	s.mu.Lock()
	s.lines = append(s.lines, transcript.Line{Label: label, Text: text})
	s.mu.Unlock()
	s.live.Broadcast(hub.TranscriptUpdate(label, text))
}

// PublishState records a session state change and pushes it to viewers.
func (s *Server) PublishState(state string) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.live.Broadcast(hub.StateUpdate(state))
}

// PublishMic records a microphone status string and pushes it to viewers.
func (s *Server) PublishMic(status string) {
	s.mu.Lock()
	s.mic = status
	s.mu.Unlock()
	s.live.Broadcast(hub.MicUpdate(status))
}

// PublishProgress records question progress and pushes it to viewers.
func (s *Server) PublishProgress(current, total int) {
	s.mu.Lock()
	s.current, s.total = current, total
	s.mu.Unlock()
	s.live.Broadcast(hub.ProgressUpdate(current, total))
}

// SetFinal replaces the accumulated lines with the authoritative rendered
// transcript at session end.
func (s *Server) SetFinal(lines []transcript.Line) {
	s.mu.Lock()
	s.lines = append([]transcript.Line(nil), lines...)
	s.mu.Unlock()
}

var _ transcript.Sink = (*Server)(nil)
