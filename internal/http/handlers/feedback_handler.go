// Feedback HTTP handlers.
//
// This file exposes the REST endpoints for end-of-conversation feedback:
//   - POST /feedback  (submit a rating and/or free-text message)
//   - GET  /feedback  (list, filtered + paginated, with average rating)
//
// Handlers in this file are transport-thin: they validate input, delegate to
// application services, and translate service errors into HTTP results.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sporttia/onboarding-backend/internal/domain"
	"github.com/sporttia/onboarding-backend/internal/repo"
	"github.com/sporttia/onboarding-backend/internal/services"
)

// SubmitFeedbackRequest is the JSON payload for submitting feedback.
//
// Rating, when present, must be 1..5. ConversationID is optional; when set
// it links the feedback to an existing conversation.
type SubmitFeedbackRequest struct {
	ConversationID *string `json:"conversation_id,omitempty"`
	Rating         *int    `json:"rating,omitempty"`
	Message        string  `json:"message"`
	Language       string  `json:"language"`
}

// ListFeedbackResponse wraps a page of feedback with the all-time average rating.
type ListFeedbackResponse struct {
	Feedback      []domain.Feedback `json:"feedback"`
	AverageRating float64           `json:"average_rating"`
	Pagination    services.Page     `json:"pagination"`
}

// SubmitFeedback records one feedback entry.
func (h *Handlers) SubmitFeedback(c *gin.Context) {
	var req SubmitFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	fb, err := h.fbSvc.Submit(c.Request.Context(), req.ConversationID, req.Rating, req.Message, req.Language)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidRating):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "rating must be between 1 and 5")
		case errors.Is(err, services.ErrConversationNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "conversation not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusCreated, fb)
}

// ListFeedback returns a filtered, paginated page of feedback together with
// the all-time average rating.
func (h *Handlers) ListFeedback(c *gin.Context) {
	page, pageSize := clampPagination(c)

	from, okFrom := parseDateQuery(c, "from", false)
	to, okTo := parseDateQuery(c, "to", true)
	if !okFrom || !okTo {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "dates must be formatted YYYY-MM-DD")
		return
	}

	f := repo.FeedbackFilter{
		From:     from,
		To:       to,
		SortDesc: !strings.EqualFold(c.Query("order"), "asc"),
	}

	items, pg, avg, err := h.query.Feedback(c.Request.Context(), f, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListFeedbackResponse{Feedback: items, AverageRating: avg, Pagination: pg})
}
