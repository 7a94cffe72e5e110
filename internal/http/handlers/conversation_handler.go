// Conversation HTTP handlers.
//
// This file exposes REST endpoints for onboarding conversations:
//   - POST   /conversations                  (start)
//   - GET    /conversations                  (list, filtered + paginated)
//   - GET    /conversations/:id              (detail: collected data + error ledger)
//   - GET    /conversations/:id/messages     (ordered history, paginated)
//   - POST   /conversations/:id/messages     (append + project metadata)
//   - POST   /conversations/:id/confirm      (provision, idempotent)
//   - POST   /conversations/:id/escalate     (hand off to a human)
//   - POST   /conversations/:id/end          (abandon on user request)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sporttia/onboarding-backend/internal/auth"
	"github.com/sporttia/onboarding-backend/internal/domain"
	"github.com/sporttia/onboarding-backend/internal/http/middleware"
	"github.com/sporttia/onboarding-backend/internal/provisioning"
	"github.com/sporttia/onboarding-backend/internal/repo"
	"github.com/sporttia/onboarding-backend/internal/services"
	"github.com/sporttia/onboarding-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// LifecycleService defines conversation lifecycle operations consumed by the
// HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type LifecycleService interface {
	// Start creates a new active conversation for a session, negotiating language.
	Start(ctx context.Context, sessionID, requestedLanguage string) (*domain.Conversation, error)
	// Get loads one conversation by ID.
	Get(ctx context.Context, id string) (*domain.Conversation, error)
	// Collected loads the collected-data projection of a conversation.
	Collected(ctx context.Context, id string) (*domain.CollectedData, error)
	// AppendMessage stores a message and projects its metadata.
	AppendMessage(ctx context.Context, conversationID, role, content string, metadata *domain.MessageMetadata) (*domain.Message, error)
	// Messages returns a page of the ordered history and the total count.
	Messages(ctx context.Context, conversationID string, page, pageSize int) ([]domain.Message, int64, error)
	// Confirm runs the provisioning attempt and completes the conversation.
	Confirm(ctx context.Context, conversationID string) (*domain.SportsCenter, error)
	// Escalate hands an active conversation off to a human operator.
	Escalate(ctx context.Context, conversationID, reason string) error
	// EndSession abandons an active conversation on explicit request.
	EndSession(ctx context.Context, conversationID string) error
}

// QueryService defines the backoffice listing operations.
type QueryService interface {
	Conversations(ctx context.Context, f repo.ConversationFilter, page, pageSize int) ([]domain.Conversation, services.Page, error)
	Errors(ctx context.Context, f repo.ErrorFilter, page, pageSize int) ([]domain.ErrorEvent, services.Page, error)
	Feedback(ctx context.Context, f repo.FeedbackFilter, page, pageSize int) ([]domain.Feedback, services.Page, float64, error)
}

// MetricsService computes the aggregated dashboard for a date window.
type MetricsService interface {
	Dashboard(ctx context.Context, startDate, endDate time.Time) (*services.DashboardMetrics, error)
}

// FeedbackService captures end-of-conversation feedback.
type FeedbackService interface {
	Submit(ctx context.Context, conversationID *string, rating *int, message, language string) (*domain.Feedback, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints of the backoffice API. It depends on
// abstract service interfaces to keep transport concerns separate from
// business logic. DB and IdemTTL back the replay store for the idempotent
// confirmation endpoint.
type Handlers struct {
	lifecycle LifecycleService
	query     QueryService
	metrics   MetricsService
	fbSvc     FeedbackService

	db      *gorm.DB
	idemTTL time.Duration
}

// New constructs a Handlers instance bound to the given services.
func New(lifecycle LifecycleService, query QueryService, metrics MetricsService, fbSvc FeedbackService, db *gorm.DB, idemTTL time.Duration) *Handlers {
	if idemTTL <= 0 {
		idemTTL = 24 * time.Hour
	}
	return &Handlers{
		lifecycle: lifecycle,
		query:     query,
		metrics:   metrics,
		fbSvc:     fbSvc,
		db:        db,
		idemTTL:   idemTTL,
	}
}

// principalID resolves the authenticated principal via the auth package,
// falling back to the "X-User-ID" header and finally to "anonymous".
func principalID(c *gin.Context) string {
	if s := auth.Principal(c); s != "" {
		return s
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return "anonymous"
}

//
// DTOs
//

// StartConversationRequest is the JSON payload for starting a conversation.
type StartConversationRequest struct {
	// SessionID links the conversation to an upstream chat session.
	SessionID string `json:"session_id"`
	// Language is the requested conversation language (tag or Accept-Language list).
	Language string `json:"language"`
}

// AppendMessageRequest is the JSON payload for appending a message.
type AppendMessageRequest struct {
	Role     string                  `json:"role" binding:"required"`
	Content  string                  `json:"content" binding:"required"`
	Metadata *domain.MessageMetadata `json:"metadata"`
}

// EscalateRequest is the JSON payload for a manual escalation.
type EscalateRequest struct {
	Reason string `json:"reason"`
}

// ConversationDetail combines a conversation with its collected-data
// projection and error ledger for the detail endpoint.
type ConversationDetail struct {
	Conversation *domain.Conversation  `json:"conversation"`
	Collected    *domain.CollectedData `json:"collected_data"`
	Errors       []domain.ErrorEvent   `json:"errors"`
}

// ConfirmResponse reports the outcome of a provisioning confirmation.
type ConfirmResponse struct {
	SportsCenter *domain.SportsCenter `json:"sports_center"`
	Replayed     bool                 `json:"replayed,omitempty"`
}

// ListConversationsResponse wraps a page of conversations.
type ListConversationsResponse struct {
	Conversations []domain.Conversation `json:"conversations"`
	Pagination    services.Page         `json:"pagination"`
}

// ListMessagesResponse wraps a page of conversation messages.
type ListMessagesResponse struct {
	Messages   []domain.Message `json:"messages"`
	Pagination services.Page    `json:"pagination"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params.
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// parseDateQuery reads a "YYYY-MM-DD" query param. The end flag moves the
// resulting instant to the end of that day so ranges are inclusive.
func parseDateQuery(c *gin.Context, name string, end bool) (*time.Time, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, false
	}
	if end {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, true
}

// requireConversationID validates the :id path param as a UUID.
func requireConversationID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "conversation id must be a UUID")
		return "", false
	}
	return id, true
}

//
// Handlers
//

// StartConversation creates a new active conversation and returns it.
func (h *Handlers) StartConversation(c *gin.Context) {
	var req StartConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	lang := req.Language
	if lang == "" {
		lang = c.GetHeader("Accept-Language")
	}

	conv, err := h.lifecycle.Start(c.Request.Context(), req.SessionID, lang)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		return
	}
	ok(c, http.StatusCreated, conv)
}

// ListConversations returns a filtered, sorted, paginated page of
// conversations. Unknown status values yield an empty page, not an error.
func (h *Handlers) ListConversations(c *gin.Context) {
	page, pageSize := clampPagination(c)

	from, okFrom := parseDateQuery(c, "from", false)
	to, okTo := parseDateQuery(c, "to", true)
	if !okFrom || !okTo {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "dates must be formatted YYYY-MM-DD")
		return
	}

	f := repo.ConversationFilter{
		Status:   strings.TrimSpace(c.Query("status")),
		From:     from,
		To:       to,
		Search:   strings.TrimSpace(c.Query("search")),
		SortKey:  strings.TrimSpace(c.Query("sort")),
		SortDesc: !strings.EqualFold(c.Query("order"), "asc"),
	}

	items, pg, err := h.query.Conversations(c.Request.Context(), f, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListConversationsResponse{Conversations: items, Pagination: pg})
}

// GetConversation returns one conversation with its collected data and the
// error ledger entries recorded against it.
func (h *Handlers) GetConversation(c *gin.Context) {
	id, valid := requireConversationID(c)
	if !valid {
		return
	}

	ctx := c.Request.Context()
	conv, err := h.lifecycle.Get(ctx, id)
	if err != nil {
		if errors.Is(err, services.ErrConversationNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "conversation not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	cd, err := h.lifecycle.Collected(ctx, id)
	if err != nil && !errors.Is(err, services.ErrConversationNotFound) {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	events, err := repo.ListErrorsByConversation(ctx, h.db, id)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, ConversationDetail{Conversation: conv, Collected: cd, Errors: events})
}

// ListConversationMessages returns a page of the ordered message history.
func (h *Handlers) ListConversationMessages(c *gin.Context) {
	id, valid := requireConversationID(c)
	if !valid {
		return
	}
	page, pageSize := clampPagination(c)

	items, total, err := h.lifecycle.Messages(c.Request.Context(), id, page, pageSize)
	if err != nil {
		if errors.Is(err, services.ErrConversationNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "conversation not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListMessagesResponse{
		Messages: items,
		Pagination: services.Page{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// AppendMessage stores a message on a conversation and routes its metadata
// through the collected-data projector. Messages on terminal conversations
// are accepted for audit but change nothing else.
func (h *Handlers) AppendMessage(c *gin.Context) {
	id, valid := requireConversationID(c)
	if !valid {
		return
	}

	var req AppendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	msg, err := h.lifecycle.AppendMessage(c.Request.Context(), id, req.Role, req.Content, req.Metadata)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrConversationNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "conversation not found")
		case errors.Is(err, services.ErrInvalidRole), errors.Is(err, services.ErrEmptyContent):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusCreated, msg)
}

// Confirm triggers the provisioning attempt for a confirmed, complete
// conversation. With an Idempotency-Key header the operation is exactly-once:
// a replayed confirmation serves the previously provisioned sports center.
func (h *Handlers) Confirm(c *gin.Context) {
	id, valid := requireConversationID(c)
	if !valid {
		return
	}
	ctx := c.Request.Context()
	pid := principalID(c)
	key, hasKey := middleware.GetIdempotencyKey(c)

	// Serve replays from the stored result without re-provisioning.
	if hasKey && middleware.IsReplay(c) {
		if resp, served := h.serveConfirmReplay(ctx, pid, id, key); served {
			ok(c, http.StatusOK, resp)
			return
		}
	}

	sc, err := h.lifecycle.Confirm(ctx, id)
	if err != nil {
		h.failConfirm(c, err)
		return
	}

	if hasKey {
		if _, cerr := repo.CreateIdempotency(ctx, h.db, pid, id, key, sc.ID, http.StatusOK, h.idemTTL); cerr != nil && !errors.Is(cerr, repo.ErrDuplicate) {
			middleware.LoggerFrom(c).Warn().Err(cerr).Msg("idempotency record not stored")
		}
	}
	middleware.ObserveTransition(domain.StatusCompleted)
	ok(c, http.StatusOK, ConfirmResponse{SportsCenter: sc})
}

// serveConfirmReplay loads the stored confirmation result for a replayed key.
func (h *Handlers) serveConfirmReplay(ctx context.Context, pid, conversationID, key string) (*ConfirmResponse, bool) {
	rec, err := repo.GetIdempotency(ctx, h.db, pid, conversationID, key, time.Now().UTC())
	if err != nil || rec.ResultID == "" {
		return nil, false
	}
	sc, err := repo.GetSportsCenter(ctx, h.db, rec.ResultID)
	if err != nil {
		return nil, false
	}
	return &ConfirmResponse{SportsCenter: sc, Replayed: true}, true
}

// failConfirm maps confirmation failures onto the error envelope.
func (h *Handlers) failConfirm(c *gin.Context, err error) {
	var apiErr *provisioning.APIError
	switch {
	case errors.Is(err, services.ErrConversationNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "conversation not found")
	case errors.Is(err, services.ErrTerminalStatus):
		fail(c, http.StatusConflict, ErrCodeTerminalStatus, "conversation is not active")
	case errors.Is(err, services.ErrNotConfirmed):
		fail(c, http.StatusConflict, ErrCodeNotConfirmed, "collected data not confirmed by the user")
	case errors.Is(err, services.ErrIncompleteData):
		fail(c, http.StatusUnprocessableEntity, ErrCodeIncompleteData, "collected data incomplete")
	case errors.Is(err, services.ErrConflict):
		fail(c, http.StatusConflict, ErrCodeConflict, "conversation status changed concurrently")
	case errors.As(err, &apiErr):
		fail(c, http.StatusBadGateway, ErrCodeProvisioningFailed, apiErr.Error())
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

// Escalate hands an active conversation off to a human operator.
func (h *Handlers) Escalate(c *gin.Context) {
	id, valid := requireConversationID(c)
	if !valid {
		return
	}

	var req EscalateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
			return
		}
	}

	err := h.lifecycle.Escalate(c.Request.Context(), id, strings.TrimSpace(req.Reason))
	switch {
	case err == nil:
		middleware.ObserveTransition(domain.StatusError)
		noContent(c)
	case errors.Is(err, services.ErrConversationNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "conversation not found")
	case errors.Is(err, services.ErrConflict):
		fail(c, http.StatusConflict, ErrCodeConflict, "conversation already terminal")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

// EndSession abandons an active conversation on explicit user request.
func (h *Handlers) EndSession(c *gin.Context) {
	id, valid := requireConversationID(c)
	if !valid {
		return
	}

	err := h.lifecycle.EndSession(c.Request.Context(), id)
	switch {
	case err == nil:
		middleware.ObserveTransition(domain.StatusAbandoned)
		noContent(c)
	case errors.Is(err, services.ErrConversationNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "conversation not found")
	case errors.Is(err, services.ErrConflict):
		fail(c, http.StatusConflict, ErrCodeConflict, "conversation already terminal")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}
