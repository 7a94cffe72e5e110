// Failure ledger HTTP handler.
//
// Exposes GET /errors, the append-only ledger of recorded failures, filtered
// by type and occurrence window, searchable by conversation-ID prefix, newest
// first by default.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sporttia/onboarding-backend/internal/domain"
	"github.com/sporttia/onboarding-backend/internal/repo"
	"github.com/sporttia/onboarding-backend/internal/services"
)

// ListErrorsResponse wraps a page of failure ledger entries.
type ListErrorsResponse struct {
	Errors     []domain.ErrorEvent `json:"errors"`
	Pagination services.Page       `json:"pagination"`
}

// ListErrors returns a filtered, paginated page of the failure ledger.
// Unknown type values yield an empty page, not an error.
func (h *Handlers) ListErrors(c *gin.Context) {
	page, pageSize := clampPagination(c)

	from, okFrom := parseDateQuery(c, "from", false)
	to, okTo := parseDateQuery(c, "to", true)
	if !okFrom || !okTo {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "dates must be formatted YYYY-MM-DD")
		return
	}

	f := repo.ErrorFilter{
		Type:     strings.TrimSpace(c.Query("type")),
		From:     from,
		To:       to,
		Search:   strings.TrimSpace(c.Query("search")),
		SortDesc: !strings.EqualFold(c.Query("order"), "asc"),
	}

	items, pg, err := h.query.Errors(c.Request.Context(), f, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListErrorsResponse{Errors: items, Pagination: pg})
}
