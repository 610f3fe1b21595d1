package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"Gena/ai"
	"Gena/chat"
	"Gena/core"
	"Gena/lib/sl"
	"Gena/session"
	"Gena/storage"
)

// Server is the HTTP face of the chatbot: conversation routes, session
// monitoring, context-cache administration and a health check.
type Server struct {
	conf     *core.Config
	log      *slog.Logger
	chat     *chat.Service
	sessions *session.Manager
	gemini   *ai.Gemini
	store    storage.ConversationStorage

	echo *echo.Echo
	http *http.Server
}

func New(conf *core.Config, log *slog.Logger, svc *chat.Service, sessions *session.Manager, gemini *ai.Gemini, store storage.ConversationStorage) *Server {
	s := &Server{
		conf:     conf,
		log:      log.With(sl.Module("server")),
		chat:     svc,
		sessions: sessions,
		gemini:   gemini,
		store:    store,
	}

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     conf.CorsOrigins,
		AllowCredentials: true,
	}))
	e.Use(s.requestLogger())
	s.registerRoutes(e)
	s.echo = e

	s.http = &http.Server{
		Addr:              conf.Listen,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes(e *echo.Echo) {
	e.GET("/health", s.health)

	g := e.Group("/api")
	g.POST("/conversations", s.createConversation)
	g.POST("/conversations/:id/messages", s.sendMessage)
	g.GET("/conversations/user/:user_id", s.listConversations)
	g.GET("/conversations/:id/history", s.conversationHistory)
	g.GET("/conversations/:id/token-stats", s.conversationTokenStats)
	g.GET("/chat-sessions", s.activeSessions)
	g.GET("/context-cache/info", s.cacheInfo)
	g.GET("/context-cache/list", s.cacheList)
	g.DELETE("/context-cache", s.cacheDeleteAll)
}

// Handler exposes the underlying router, used by the package tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start() error {
	s.log.Info("http server listening", slog.String("addr", s.conf.Listen))
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
