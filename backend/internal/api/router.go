// Package api exposes the HTTP surface: the telephony webhook and media
// stream, the call usage log, and read-only views of live sessions and
// customer history.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"pizza-phone-agent/backend/internal/calllog"
	"pizza-phone-agent/backend/internal/graph"
	"pizza-phone-agent/backend/internal/menu"
	"pizza-phone-agent/backend/internal/session"
	"pizza-phone-agent/backend/pkg/config"
)

// CustomerLookup answers order history questions for a phone number.
type CustomerLookup interface {
	CustomerHistory(ctx context.Context, phone string) (*graph.Customer, error)
}

// Deps wires a Server. Customers is optional.
type Deps struct {
	Config    *config.Config
	Sessions  *session.Manager
	Menus     menu.Provider
	Calls     calllog.Store
	Customers CustomerLookup
	Logger    *zap.Logger
	Now       func() time.Time
}

// Server holds the HTTP handlers.
type Server struct {
	cfg       *config.Config
	sessions  *session.Manager
	menus     menu.Provider
	calls     calllog.Store
	customers CustomerLookup
	logger    *zap.Logger
	now       func() time.Time
	startedAt time.Time
	upgrader  websocket.Upgrader
}

// NewServer creates the handlers.
func NewServer(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Menus == nil {
		d.Menus = menu.NewStaticProvider(nil)
	}
	if d.Calls == nil {
		d.Calls = calllog.NewMemoryStore()
	}
	return &Server{
		cfg:       d.Config,
		sessions:  d.Sessions,
		menus:     d.Menus,
		calls:     d.Calls,
		customers: d.Customers,
		logger:    d.Logger,
		now:       d.Now,
		startedAt: d.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Media streams come from the telephony provider, not a browser.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Router builds the gin engine with every route mounted.
func (s *Server) Router() *gin.Engine {
	if s.cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(ginLogger(s.logger))
	router.Use(gin.Recovery())
	router.Use(cors())

	router.GET("/health", s.handleHealth)

	router.POST("/incoming-call", s.handleIncomingCall)
	router.GET("/media-stream", s.handleMediaStream)

	api := router.Group("/api")
	{
		api.POST("/calls/log", s.handleLogCall)
		api.GET("/calls/stats", s.handleCallStats)

		api.GET("/sessions", s.handleListSessions)
		api.DELETE("/sessions/:id", s.handleDestroySession)

		api.GET("/customers/:phone", s.handleCustomer)
	}

	return router
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"timestamp":   s.now().UTC().Format(time.RFC3339),
		"uptime":      s.now().Sub(s.startedAt).Seconds(),
		"environment": s.cfg.Env,
		"sessions":    s.sessions.Count(),
	})
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// ginLogger is a custom logger middleware for Gin
func ginLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Info("HTTP Request",
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		)
	}
}
