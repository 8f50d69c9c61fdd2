package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"bullmeter/internal/auth"
	"bullmeter/internal/logger"
	"bullmeter/internal/websocket"
	"bullmeter/pkg/interfaces"
	"bullmeter/pkg/types"
)

// StatsSource reports component counters for the health endpoint
type StatsSource interface {
	GetStats() map[string]int
}

// Server is the HTTP round-control surface. It holds no round state; every
// request goes through the RoundController.
type Server struct {
	controller interfaces.RoundController
	auth       *auth.Authenticator
	registry   StatsSource
	hub        StatsSource
	engine     *gin.Engine
	log        *logger.Logger
	startedAt  time.Time
}

// Options configures the HTTP surface
type Options struct {
	AllowedOrigins []string
}

func NewServer(controller interfaces.RoundController, authenticator *auth.Authenticator, registry, hub StatsSource, opts Options, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	if authenticator == nil {
		authenticator = auth.NewAuthenticator("", 0)
	}

	s := &Server{
		controller: controller,
		auth:       authenticator,
		registry:   registry,
		hub:        hub,
		engine:     gin.New(),
		log:        log,
		startedAt:  time.Now(),
	}

	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.engine.Use(cors.New(corsConfig(opts.AllowedOrigins)))
	s.setupRoutes()
	return s
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Requested-With"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}

	allowAll := len(origins) == 0
	for _, origin := range origins {
		if origin == "*" {
			allowAll = true
		}
	}
	if allowAll {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cfg
}

func (s *Server) setupRoutes() {
	s.engine.GET("/health", s.healthCheck)

	api := s.engine.Group("/api/bullmeter")
	{
		api.POST("/vote", s.vote)
		api.POST("/spam", s.spam)
		api.GET("/state", s.state)
		api.GET("/rounds/live", s.liveRounds)
	}

	host := s.engine.Group("/api/bullmeter")
	host.Use(s.auth.Middleware())
	{
		host.POST("/start", s.start)
		host.POST("/update", s.update)
		host.POST("/end", s.end)
		host.POST("/reveal", s.reveal)
	}
}

// ServeHTTP lets the server be mounted on a plain mux
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type HealthResponse struct {
	Status      string         `json:"status"`
	Timestamp   time.Time      `json:"timestamp"`
	Uptime      string         `json:"uptime"`
	Connections map[string]int `json:"connections"`
	Hub         map[string]int `json:"hub"`
	LiveRounds  int            `json:"live_rounds"`
}

type streamRequest struct {
	StreamID string `json:"streamId"`
}

// POST /api/bullmeter/start
func (s *Server) start(c *gin.Context) {
	var req types.StartRequest
	if !s.bind(c, &req) {
		return
	}
	req.HostID = auth.HostID(c)

	round, err := s.controller.Start(&req)
	if err != nil {
		s.sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "prompt": round})
}

// POST /api/bullmeter/update
func (s *Server) update(c *gin.Context) {
	var req types.UpdateRequest
	if !s.bind(c, &req) {
		return
	}

	round, err := s.controller.Update(&req)
	if err != nil {
		s.sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "prompt": round})
}

// POST /api/bullmeter/end
func (s *Server) end(c *gin.Context) {
	var req streamRequest
	if !s.bind(c, &req) {
		return
	}

	round, err := s.controller.End(req.StreamID)
	if err != nil {
		s.sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "prompt": round})
}

// POST /api/bullmeter/reveal
func (s *Server) reveal(c *gin.Context) {
	var req streamRequest
	if !s.bind(c, &req) {
		return
	}

	settlement, err := s.controller.Reveal(req.StreamID)
	if err != nil {
		s.sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": settlement})
}

// POST /api/bullmeter/vote
func (s *Server) vote(c *gin.Context) {
	var req types.VoteRequest
	if !s.bind(c, &req) {
		return
	}
	req.SourceAddress = websocket.ClientAddress(c.Request)

	vote, err := s.controller.Vote(&req)
	if err != nil {
		s.sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "vote": vote})
}

// POST /api/bullmeter/spam
func (s *Server) spam(c *gin.Context) {
	var req types.SpamRequest
	if !s.bind(c, &req) {
		return
	}
	req.SourceAddress = websocket.ClientAddress(c.Request)

	event, err := s.controller.Spam(&req)
	if err != nil {
		s.sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "spam": event})
}

// GET /api/bullmeter/state?streamId=
func (s *Server) state(c *gin.Context) {
	stats, err := s.controller.State(c.Query("streamId"))
	if err != nil {
		s.sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "prompt": stats})
}

// GET /api/bullmeter/rounds/live
func (s *Server) liveRounds(c *gin.Context) {
	rounds := s.controller.LiveRounds()
	if rounds == nil {
		rounds = []*types.Round{}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "prompts": rounds})
}

// GET /health
func (s *Server) healthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:     "ok",
		Timestamp:  time.Now(),
		Uptime:     time.Since(s.startedAt).Round(time.Second).String(),
		LiveRounds: len(s.controller.LiveRounds()),
	}
	if s.registry != nil {
		response.Connections = s.registry.GetStats()
	}
	if s.hub != nil {
		response.Hub = s.hub.GetStats()
	}
	c.JSON(http.StatusOK, response)
}

func (s *Server) bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		s.abort(c, http.StatusBadRequest, "Invalid JSON")
		return false
	}
	return true
}

// sendError maps the error taxonomy onto HTTP status codes
func (s *Server) sendError(c *gin.Context, err error) {
	code := StatusFor(err)
	message := err.Error()
	if code == http.StatusInternalServerError {
		s.log.Errorf("HTTP %s %s failed: %v", c.Request.Method, c.FullPath(), err)
		message = "Internal server error"
	}
	s.abort(c, code, message)
}

func (s *Server) abort(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(code, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

// StatusFor returns the HTTP status for an error from the RoundController
func StatusFor(err error) int {
	switch types.KindOf(err) {
	case types.KindNone:
		return http.StatusOK
	case types.KindInvalidInput:
		return http.StatusBadRequest
	case types.KindRateLimited:
		return http.StatusTooManyRequests
	case types.KindRoundNotFound:
		return http.StatusNotFound
	case types.KindRoundNotAccepting:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debugf("HTTP %s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
