package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func newLimitedRouter(rps float64, burst int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	rl := NewRateLimiter(rps, burst, KeyByPrincipalOrIP())
	r.GET("/ping", rl.Handler(), func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	return r
}

func TestRateLimiterExhaustsBurst(t *testing.T) {
	r := newLimitedRouter(0, 2)

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, w.Code)
		}
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After header")
	}
	if !strings.Contains(w.Body.String(), `"code":"rate_limited"`) {
		t.Fatalf("missing error envelope: %s", w.Body.String())
	}
}

func TestRateLimiterKeysByPrincipal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	rl := NewRateLimiter(0, 1, KeyByPrincipalOrIP())
	r.GET("/ping", func(c *gin.Context) {
		if p := c.GetHeader("X-Test-Principal"); p != "" {
			c.Set("principal_id", p)
		}
	}, rl.Handler(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	send := func(principal string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		if principal != "" {
			req.Header.Set("X-Test-Principal", principal)
		}
		r.ServeHTTP(w, req)
		return w.Code
	}

	if send("alice") != http.StatusOK {
		t.Fatal("alice's first request must pass")
	}
	if send("alice") != http.StatusTooManyRequests {
		t.Fatal("alice's bucket should be empty")
	}
	// A different principal has its own bucket.
	if send("bob") != http.StatusOK {
		t.Fatal("bob must not share alice's bucket")
	}
}

func TestRateLimiterReplayBypass(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	rl := NewRateLimiter(0, 1, KeyByPrincipalOrIP())
	r.GET("/ping", func(c *gin.Context) {
		c.Set(ctxKeyRateBypass, true)
	}, rl.Handler(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	// Bypass flag keeps every request flowing past an empty bucket.
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: expected bypass, got %d", i+1, w.Code)
		}
	}
}

func TestNewRateLimiterCoercesBurst(t *testing.T) {
	rl := NewRateLimiter(1, 0, KeyByPrincipalOrIP())
	if rl.burst != 1 {
		t.Fatalf("expected burst coerced to 1, got %d", rl.burst)
	}
}
