package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"chatgateway/internal/auth"
	"chatgateway/internal/config"
	"chatgateway/internal/domain"
	"chatgateway/internal/store"
)

const (
	maxBodyBytes        = 16 << 20 // generous: inline images travel as base64
	shutdownGracePeriod = 10 * time.Second
	readTimeout         = 30 * time.Second
	idleTimeout         = 120 * time.Second
)

// Generator is the slice of the gateway the server depends on.
type Generator interface {
	Generate(ctx context.Context, provider, modelAlias string, turns []domain.Turn, opts domain.GenerationOptions) (*domain.GenerationResult, error)
	GenerateStream(ctx context.Context, provider, modelAlias string, turns []domain.Turn, opts domain.GenerationOptions) (<-chan domain.StreamEvent, error)
	Providers() []string
	ModelAliases(provider string) []string
}

// ConversationStore is the persistence surface the server depends on. A nil
// store disables the conversation routes.
type ConversationStore interface {
	CreateConversation(ctx context.Context, userID, title, provider, model string) (*store.Conversation, error)
	GetConversation(ctx context.Context, userID string, id int64) (*store.Conversation, error)
	ListConversations(ctx context.Context, userID string, limit, offset int) ([]store.Conversation, error)
	DeleteConversation(ctx context.Context, userID string, id int64) error
	AddMessage(ctx context.Context, userID string, conversationID int64, role, content string, images []string) (*store.Message, error)
	ListMessages(ctx context.Context, userID string, conversationID int64) ([]store.Message, error)
}

type Server struct {
	cfg       config.Config
	generator Generator
	store     ConversationStore
	app       *echo.Echo
	address   string
}

// New constructs an HTTP server wired with routing and middleware. The
// store may be nil when persistence is not configured.
func New(cfg config.Config, generator Generator, convStore ConversationStore) (*Server, error) {
	if generator == nil {
		return nil, errors.New("generator must not be nil")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogLatency: true,
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
				"error", v.Error,
			)
			return nil
		},
	}))
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            31536000,
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'; form-action 'none'",
	}))

	srv := &Server{
		cfg:       cfg,
		generator: generator,
		store:     convStore,
		app:       e,
		address:   fmt.Sprintf(":%d", cfg.Server.Port),
	}

	srv.registerRoutes()

	return srv, nil
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	slog.Info("starting server", "addr", s.address, "persistence", s.store != nil, "auth", s.cfg.Auth.Secret != "")

	httpServer := &http.Server{
		Addr:        s.address,
		Handler:     s.app,
		ReadTimeout: readTimeout,
		IdleTimeout: idleTimeout,
		// No write timeout: streaming responses stay open for as long as
		// generation takes.
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.app.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if err := s.app.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		slog.Info("server shutdown complete")
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) registerRoutes() {
	s.app.GET("/health", s.handleHealth)

	api := s.app.Group("/api")
	if s.cfg.Auth.Secret != "" {
		api.Use(auth.NewVerifier(s.cfg.Auth.Secret).Middleware())
	}

	api.GET("/providers", s.handleListProviders)
	api.GET("/providers/:provider/models", s.handleListModels)
	api.POST("/generate", s.handleGenerate)
	api.POST("/generate/stream", s.handleGenerateStream)

	if s.store != nil {
		api.POST("/conversations", s.handleCreateConversation)
		api.GET("/conversations", s.handleListConversations)
		api.GET("/conversations/:id", s.handleGetConversation)
		api.DELETE("/conversations/:id", s.handleDeleteConversation)
		api.POST("/conversations/:id/messages", s.handleConversationMessage)
		api.POST("/conversations/:id/messages/stream", s.handleConversationMessageStream)
	}
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func decodeRequestBody[T any](c echo.Context, target *T) error {
	req := c.Request()
	defer req.Body.Close()

	req.Body = http.MaxBytesReader(c.Response(), req.Body, maxBodyBytes)

	decoder := json.NewDecoder(req.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return requestError{
				Status:  http.StatusBadRequest,
				Kind:    "invalid_request",
				Message: "request body is required",
			}
		}
		return requestError{
			Status:  http.StatusBadRequest,
			Kind:    "invalid_request",
			Message: fmt.Sprintf("invalid JSON payload: %v", err),
		}
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return requestError{
			Status:  http.StatusBadRequest,
			Kind:    "invalid_request",
			Message: "request body must contain a single JSON object",
		}
	}
	return nil
}

type requestError struct {
	Status  int
	Kind    string
	Message string
}

func (e requestError) Error() string {
	return e.Message
}

type errorBody struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeError(c echo.Context, status int, kind, message string) error {
	var payload errorBody
	payload.Error.Kind = kind
	payload.Error.Message = message
	return c.JSON(status, payload)
}

func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var reqErr requestError
	if errors.As(err, &reqErr) {
		_ = writeError(c, reqErr.Status, reqErr.Kind, reqErr.Message)
		return
	}

	var echoErr *echo.HTTPError
	if errors.As(err, &echoErr) {
		_ = writeError(c, echoErr.Code, "invalid_request", fmt.Sprintf("%v", echoErr.Message))
		return
	}

	_ = writeError(c, http.StatusInternalServerError, "server_error", "internal server error")
}

// toHTTPError maps gateway and store failures onto API error responses.
func toHTTPError(err error) error {
	var reqErr requestError
	if errors.As(err, &reqErr) {
		return reqErr
	}

	if errors.Is(err, domain.ErrNotFound) {
		return requestError{
			Status:  http.StatusNotFound,
			Kind:    "not_found",
			Message: "conversation not found",
		}
	}

	kind := domain.ErrorKind(err)
	status := http.StatusBadGateway
	if kind == domain.KindUnsupportedProvider {
		status = http.StatusBadRequest
	}

	return requestError{
		Status:  status,
		Kind:    kind,
		Message: err.Error(),
	}
}
