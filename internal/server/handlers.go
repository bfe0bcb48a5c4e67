package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"chatgateway/internal/auth"
	"chatgateway/internal/domain"
	"chatgateway/internal/store"
)

const (
	defaultConversationLimit = 20
	maxConversationLimit     = 100
)

type turnPayload struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type optionsPayload struct {
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

type generateRequest struct {
	Provider string          `json:"provider"`
	Model    string          `json:"model"`
	Turns    []turnPayload   `json:"turns"`
	Options  *optionsPayload `json:"options,omitempty"`
}

func (r generateRequest) validate() error {
	if r.Provider == "" {
		return badRequest("provider is required")
	}
	if r.Model == "" {
		return badRequest("model is required")
	}
	if len(r.Turns) == 0 {
		return badRequest("at least one turn is required")
	}
	for i, turn := range r.Turns {
		switch turn.Role {
		case domain.RoleUser, domain.RoleAssistant, domain.RoleSystem:
		default:
			return badRequest(fmt.Sprintf("turns[%d]: unknown role %q", i, turn.Role))
		}
		if turn.Content == "" && len(turn.Images) == 0 {
			return badRequest(fmt.Sprintf("turns[%d]: content or images required", i))
		}
	}
	return nil
}

func (r generateRequest) domainTurns() []domain.Turn {
	turns := make([]domain.Turn, 0, len(r.Turns))
	for _, t := range r.Turns {
		turns = append(turns, toDomainTurn(t.Role, t.Content, t.Images))
	}
	return turns
}

func (r generateRequest) options() domain.GenerationOptions {
	if r.Options == nil {
		return domain.GenerationOptions{}
	}
	return domain.GenerationOptions{
		Temperature: r.Options.Temperature,
		MaxTokens:   r.Options.MaxTokens,
	}
}

// toDomainTurn builds a multi-part turn when images are attached, otherwise
// a plain text one.
func toDomainTurn(role, content string, images []string) domain.Turn {
	turn := domain.Turn{Role: role, Content: content}
	if len(images) == 0 {
		return turn
	}

	parts := make([]domain.ContentPart, 0, len(images)+1)
	if content != "" {
		parts = append(parts, domain.ContentPart{Type: domain.PartText, Text: content})
	}
	for _, uri := range images {
		parts = append(parts, domain.ContentPart{Type: domain.PartImage, ImageURI: uri})
	}
	turn.Parts = parts
	return turn
}

func badRequest(message string) requestError {
	return requestError{
		Status:  http.StatusBadRequest,
		Kind:    "invalid_request",
		Message: message,
	}
}

type providersResponse struct {
	Providers []string `json:"providers"`
}

type modelsResponse struct {
	Provider string   `json:"provider"`
	Models   []string `json:"models"`
}

func (s *Server) handleListProviders(c echo.Context) error {
	return c.JSON(http.StatusOK, providersResponse{Providers: s.generator.Providers()})
}

func (s *Server) handleListModels(c echo.Context) error {
	name := c.Param("provider")
	return c.JSON(http.StatusOK, modelsResponse{
		Provider: name,
		Models:   s.generator.ModelAliases(name),
	})
}

func (s *Server) handleGenerate(c echo.Context) error {
	var req generateRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}
	if err := req.validate(); err != nil {
		return err
	}

	result, err := s.generator.Generate(c.Request().Context(), req.Provider, req.Model, req.domainTurns(), req.options())
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleGenerateStream(c echo.Context) error {
	var req generateRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}
	if err := req.validate(); err != nil {
		return err
	}

	events, err := s.generator.GenerateStream(c.Request().Context(), req.Provider, req.Model, req.domainTurns(), req.options())
	if err != nil {
		return toHTTPError(err)
	}

	_, err = pipeStream(c, events)
	return err
}

type createConversationRequest struct {
	Title    string `json:"title"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

func (s *Server) handleCreateConversation(c echo.Context) error {
	var req createConversationRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}
	if req.Provider == "" {
		return badRequest("provider is required")
	}
	if req.Model == "" {
		return badRequest("model is required")
	}

	conv, err := s.store.CreateConversation(c.Request().Context(), auth.UserID(c), req.Title, req.Provider, req.Model)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, conv)
}

type conversationListResponse struct {
	Conversations []store.Conversation `json:"conversations"`
}

func (s *Server) handleListConversations(c echo.Context) error {
	limit := defaultConversationLimit
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return badRequest("limit must be a positive integer")
		}
		limit = min(parsed, maxConversationLimit)
	}

	offset := 0
	if raw := c.QueryParam("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return badRequest("offset must be a non-negative integer")
		}
		offset = parsed
	}

	convs, err := s.store.ListConversations(c.Request().Context(), auth.UserID(c), limit, offset)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, conversationListResponse{Conversations: convs})
}

type conversationDetailResponse struct {
	Conversation *store.Conversation `json:"conversation"`
	Messages     []store.Message     `json:"messages"`
}

func (s *Server) handleGetConversation(c echo.Context) error {
	id, err := conversationID(c)
	if err != nil {
		return err
	}
	userID := auth.UserID(c)
	ctx := c.Request().Context()

	conv, err := s.store.GetConversation(ctx, userID, id)
	if err != nil {
		return toHTTPError(err)
	}
	messages, err := s.store.ListMessages(ctx, userID, id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.JSON(http.StatusOK, conversationDetailResponse{
		Conversation: conv,
		Messages:     messages,
	})
}

func (s *Server) handleDeleteConversation(c echo.Context) error {
	id, err := conversationID(c)
	if err != nil {
		return err
	}
	if err := s.store.DeleteConversation(c.Request().Context(), auth.UserID(c), id); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type conversationMessageRequest struct {
	Content string          `json:"content"`
	Images  []string        `json:"images,omitempty"`
	Options *optionsPayload `json:"options,omitempty"`
}

func (r conversationMessageRequest) validate() error {
	if r.Content == "" && len(r.Images) == 0 {
		return badRequest("content or images required")
	}
	return nil
}

func (r conversationMessageRequest) options() domain.GenerationOptions {
	if r.Options == nil {
		return domain.GenerationOptions{}
	}
	return domain.GenerationOptions{
		Temperature: r.Options.Temperature,
		MaxTokens:   r.Options.MaxTokens,
	}
}

type conversationMessageResponse struct {
	Message *store.Message           `json:"message"`
	Result  *domain.GenerationResult `json:"result"`
}

func (s *Server) handleConversationMessage(c echo.Context) error {
	id, err := conversationID(c)
	if err != nil {
		return err
	}
	var req conversationMessageRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}
	if err := req.validate(); err != nil {
		return err
	}

	userID := auth.UserID(c)
	ctx := c.Request().Context()

	conv, turns, err := s.prepareConversationTurns(ctx, userID, id, req.Content, req.Images)
	if err != nil {
		return toHTTPError(err)
	}

	result, err := s.generator.Generate(ctx, conv.Provider, conv.Model, turns, req.options())
	if err != nil {
		return toHTTPError(err)
	}

	reply, err := s.persistExchange(ctx, userID, id, req.Content, req.Images, result.Content)
	if err != nil {
		return toHTTPError(err)
	}

	return c.JSON(http.StatusOK, conversationMessageResponse{
		Message: reply,
		Result:  result,
	})
}

func (s *Server) handleConversationMessageStream(c echo.Context) error {
	id, err := conversationID(c)
	if err != nil {
		return err
	}
	var req conversationMessageRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}
	if err := req.validate(); err != nil {
		return err
	}

	userID := auth.UserID(c)
	ctx := c.Request().Context()

	conv, turns, err := s.prepareConversationTurns(ctx, userID, id, req.Content, req.Images)
	if err != nil {
		return toHTTPError(err)
	}

	events, err := s.generator.GenerateStream(ctx, conv.Provider, conv.Model, turns, req.options())
	if err != nil {
		return toHTTPError(err)
	}

	result, err := pipeStream(c, events)
	if err != nil {
		return err
	}
	if !result.Completed {
		return nil
	}

	// The response is already committed, so a persistence failure can only
	// be logged. Writes use a fresh context because the request one may be
	// cancelled by the client closing the stream it just finished reading.
	if _, err := s.persistExchange(context.WithoutCancel(ctx), userID, id, req.Content, req.Images, result.FinalText); err != nil {
		slog.Error("persist streamed exchange", "conversation_id", id, "err", err)
	}
	return nil
}

// prepareConversationTurns loads the conversation history and appends the
// incoming user turn, producing the turn list for generation.
func (s *Server) prepareConversationTurns(ctx context.Context, userID string, id int64, content string, images []string) (*store.Conversation, []domain.Turn, error) {
	conv, err := s.store.GetConversation(ctx, userID, id)
	if err != nil {
		return nil, nil, err
	}

	history, err := s.store.ListMessages(ctx, userID, id)
	if err != nil {
		return nil, nil, err
	}

	turns := make([]domain.Turn, 0, len(history)+1)
	for _, msg := range history {
		turns = append(turns, toDomainTurn(msg.Role, msg.Content, msg.Images))
	}
	turns = append(turns, toDomainTurn(domain.RoleUser, content, images))

	return conv, turns, nil
}

// persistExchange records the user turn and the assistant reply, returning
// the stored assistant message.
func (s *Server) persistExchange(ctx context.Context, userID string, id int64, content string, images []string, reply string) (*store.Message, error) {
	if _, err := s.store.AddMessage(ctx, userID, id, domain.RoleUser, content, images); err != nil {
		return nil, fmt.Errorf("store user message: %w", err)
	}
	msg, err := s.store.AddMessage(ctx, userID, id, domain.RoleAssistant, reply, nil)
	if err != nil {
		return nil, fmt.Errorf("store assistant message: %w", err)
	}
	return msg, nil
}

func conversationID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		return 0, badRequest("conversation id must be a positive integer")
	}
	return id, nil
}
