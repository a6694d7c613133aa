package insights

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/magicmac/myday/internal/schema"
	"github.com/magicmac/myday/internal/supabase"
)

// Error messages returned to clients as {"error": "..."}.
const (
	msgNotConfigured   = "AI insights are not configured. ANTHROPIC_API_KEY is missing."
	msgMissingBearer   = "Missing bearer token."
	msgInvalidSession  = "Invalid session."
	msgLoadFailed      = "Failed to load tasks."
	msgNotEnoughData   = "Not enough data yet. Use the app for a few more days to get AI insights."
	msgBadFormat       = "Unexpected AI response format."
	msgBadCredentials  = "Email and password (at least 8 characters) are required."
	msgInvalidToken    = "Invalid session token."
	msgAdminRequired   = "Admin access required."
	msgCreateFailed    = "Failed to create user."
	msgProfileFailed   = "Failed to save user profile."
	msgUnexpected      = "Unexpected server error."
	msgUserCreated     = "User created successfully."
	minPasswordLength  = 8
	defaultReadTimeout = 10 * time.Second
)

// TaskSource lists a user's tasks on or after a cutoff day, oldest first.
type TaskSource interface {
	ListTasksSince(ctx context.Context, token, userID, cutoffDay string) ([]schema.Task, error)
}

// AdminBackend is the service-role surface used by the create-user route.
type AdminBackend interface {
	GetProfile(ctx context.Context, token, userID string) (*supabase.Profile, error)
	AdminCreateUser(ctx context.Context, email, password string) (*supabase.User, error)
	UpsertProfile(ctx context.Context, token string, p supabase.Profile) error
}

// Config holds server configuration
type Config struct {
	// Host to bind (default: 127.0.0.1)
	Host string

	// Port to listen on (default: 8788, 0 picks a free port)
	Port int

	// Tasks loads the caller's history with the caller's token (required)
	Tasks TaskSource

	// Verifier resolves bearer tokens (required)
	Verifier *Verifier

	// Completer writes reports; nil means insights are not configured
	Completer Completer

	// Admin and AdminToken enable the create-user route; AdminToken is the
	// service-role key used for profile reads and writes
	Admin      AdminBackend
	AdminToken string

	// AllowOrigins for CORS (default: all)
	AllowOrigins []string

	// Today returns the local day key (default: schema.TodayKey)
	Today func() string

	// Logger for server activity (default: stderr logger)
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Host:   "127.0.0.1",
		Port:   8788,
		Today:  schema.TodayKey,
		Logger: log.New(os.Stderr, "[insights] ", log.LstdFlags),
	}
}

// Server serves the insights and admin routes.
type Server struct {
	cfg      Config
	engine   *gin.Engine
	addr     string
	listener net.Listener
	server   *http.Server
	wg       sync.WaitGroup
	logger   *log.Logger
}

// NewServer creates a server and its routes.
func NewServer(config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Host == "" {
		config.Host = "127.0.0.1"
	}
	if config.Today == nil {
		config.Today = schema.TodayKey
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[insights] ", log.LstdFlags)
	}
	if len(config.AllowOrigins) == 0 {
		config.AllowOrigins = []string{"*"}
	}

	s := &Server{
		cfg:    *config,
		addr:   net.JoinHostPort(config.Host, fmt.Sprint(config.Port)),
		logger: config.Logger,
	}
	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLogger())
	r.Use(cors.New(cors.Config{
		AllowOrigins: s.cfg.AllowOrigins,
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Authorization", "Content-Type"},
	}))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		api.POST("/insights", s.handleInsights)
		api.POST("/admin/create-user", s.handleCreateUser)
	}
	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Printf("%s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Round(time.Millisecond))
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Start begins serving in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln
	s.server = &http.Server{
		Handler:     s.engine,
		ReadTimeout: defaultReadTimeout,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Insights server listening on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Server error: %v", err)
		}
	}()
	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	s.wg.Wait()
	return nil
}

// GetAddr returns the actual listening address
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

func fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func (s *Server) handleInsights(c *gin.Context) {
	if s.cfg.Completer == nil {
		fail(c, http.StatusInternalServerError, msgNotConfigured)
		return
	}
	token := bearerToken(c.GetHeader("Authorization"))
	if token == "" {
		fail(c, http.StatusUnauthorized, msgMissingBearer)
		return
	}

	ctx := c.Request.Context()
	userID, err := s.cfg.Verifier.Verify(ctx, token)
	if err != nil {
		fail(c, http.StatusUnauthorized, msgInvalidSession)
		return
	}

	cutoff, err := Cutoff(s.cfg.Today())
	if err != nil {
		fail(c, http.StatusInternalServerError, msgUnexpected)
		return
	}
	tasks, err := s.cfg.Tasks.ListTasksSince(ctx, token, userID, cutoff)
	if err != nil {
		s.logger.Printf("Failed to load tasks for %s: %v", userID, err)
		fail(c, http.StatusInternalServerError, msgLoadFailed)
		return
	}

	days := Aggregate(tasks)
	if len(days) < MinDays {
		fail(c, http.StatusBadRequest, msgNotEnoughData)
		return
	}

	text, err := s.cfg.Completer.Complete(ctx, BuildPrompt(days))
	if err != nil {
		s.logger.Printf("Completion failed: %v", err)
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	report, err := ParseResponse(text)
	if errors.Is(err, ErrUnexpectedFormat) {
		fail(c, http.StatusInternalServerError, msgBadFormat)
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, report)
}

type createUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	IsAdmin  bool   `json:"isAdmin"`
}

func (s *Server) handleCreateUser(c *gin.Context) {
	token := bearerToken(c.GetHeader("Authorization"))
	if token == "" {
		fail(c, http.StatusUnauthorized, msgMissingBearer)
		return
	}

	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusInternalServerError, msgUnexpected)
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || len(req.Password) < minPasswordLength {
		fail(c, http.StatusBadRequest, msgBadCredentials)
		return
	}
	if s.cfg.Admin == nil {
		s.logger.Println("Create-user called without service credentials")
		fail(c, http.StatusInternalServerError, msgUnexpected)
		return
	}

	ctx := c.Request.Context()
	callerID, err := s.cfg.Verifier.Verify(ctx, token)
	if err != nil {
		fail(c, http.StatusUnauthorized, msgInvalidToken)
		return
	}

	profile, err := s.cfg.Admin.GetProfile(ctx, s.cfg.AdminToken, callerID)
	if err != nil || !profile.IsAdmin {
		fail(c, http.StatusForbidden, msgAdminRequired)
		return
	}

	user, err := s.cfg.Admin.AdminCreateUser(ctx, email, req.Password)
	if err != nil || user == nil || user.ID == "" {
		msg := msgCreateFailed
		var apiErr *supabase.APIError
		if errors.As(err, &apiErr) && apiErr.Message != "" {
			msg = apiErr.Message
		}
		fail(c, http.StatusBadRequest, msg)
		return
	}

	err = s.cfg.Admin.UpsertProfile(ctx, s.cfg.AdminToken, supabase.Profile{
		ID:      user.ID,
		Email:   email,
		IsAdmin: req.IsAdmin,
	})
	if err != nil {
		s.logger.Printf("Failed to save profile for %s: %v", user.ID, err)
		msg := msgProfileFailed
		var apiErr *supabase.APIError
		if errors.As(err, &apiErr) && apiErr.Message != "" {
			msg = apiErr.Message
		}
		fail(c, http.StatusInternalServerError, msg)
		return
	}

	s.logger.Printf("Created user %s (admin=%v) by %s", email, req.IsAdmin, callerID)
	c.JSON(http.StatusOK, gin.H{"message": msgUserCreated})
}
