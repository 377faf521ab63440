// Package web serves the browser chat: a server-rendered page, a small JSON
// API and a websocket that pushes conversation changes.
package web

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"meowpedia/internal/chat"
	"meowpedia/internal/history"
)

const (
	cookieName = "meow_sid"
	keyPrefix  = "web:"
)

//go:embed templates/*.html
var templatesFS embed.FS

type Server struct {
	sessions  *history.Manager
	chat      *chat.Service
	model     string
	addr      string
	engine    *gin.Engine
	server    *http.Server
	upgrader  websocket.Upgrader
	startTime time.Time
}

// NewServer builds the router. model is only displayed in the page header.
func NewServer(addr string, sessions *history.Manager, svc *chat.Service, model string) *Server {
	s := &Server{
		sessions:  sessions,
		chat:      svc,
		model:     model,
		addr:      addr,
		startTime: time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	r.SetHTMLTemplate(template.Must(template.New("").ParseFS(templatesFS, "templates/*.html")))

	r.GET("/", s.handleIndex)
	r.POST("/send", s.handleSend)
	r.POST("/suggest/:index", s.handleSuggest)
	r.POST("/reset", s.handleReset)
	r.GET("/ws", s.handleWS)

	api := r.Group("/api")
	api.GET("/messages", s.handleListMessages)
	api.POST("/messages", s.handlePostMessage)
	api.POST("/reset", s.handleAPIReset)
	api.GET("/suggestions", s.handleSuggestions)
	api.GET("/status", s.handleStatus)

	s.engine = r
	s.server = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		// No WriteTimeout: a turn holds the request until the model replies.
	}
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

// Start blocks serving until Stop is called.
func (s *Server) Start() error {
	log.Info("web server listening", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// session resolves the caller's conversation, issuing a cookie on first visit.
func (s *Server) session(c *gin.Context) (string, *history.Conversation) {
	sid, err := c.Cookie(cookieName)
	if err != nil {
		sid = ""
	}
	if _, perr := uuid.Parse(sid); perr != nil {
		sid = uuid.NewString()
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(cookieName, sid, 0, "/", "", false, true)
	}
	key := keyPrefix + sid
	conv, created := s.sessions.Get(key)
	if created {
		log.Debug("web session started", "session", key)
	}
	return key, conv
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"took", time.Since(start))
	}
}
