// Dashboard metrics HTTP handler.
//
// Exposes GET /metrics/dashboard, the aggregated reporting endpoint consumed
// by the backoffice UI. The window is selected with start_date/end_date query
// params (YYYY-MM-DD, inclusive); when absent the last 30 days are reported.
package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sporttia/onboarding-backend/internal/services"
)

// Dashboard computes the metrics dashboard for the requested date window.
func (h *Handlers) Dashboard(c *gin.Context) {
	now := time.Now().UTC()
	start := now.AddDate(0, 0, -30)
	end := now

	if raw := strings.TrimSpace(c.Query("start_date")); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "start_date must be formatted YYYY-MM-DD")
			return
		}
		start = t
	}
	if raw := strings.TrimSpace(c.Query("end_date")); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "end_date must be formatted YYYY-MM-DD")
			return
		}
		end = t
	}

	m, err := h.metrics.Dashboard(c.Request.Context(), start, end)
	if err != nil {
		if errors.Is(err, services.ErrInvalidWindow) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, m)
}
