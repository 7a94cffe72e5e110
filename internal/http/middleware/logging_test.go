package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRequestIDGeneratesAndPropagates(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ping", RequestID(), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("request_id"))
	})

	// Absent header: a fresh ID is minted and echoed back.
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	generated := w.Header().Get("X-Request-ID")
	if generated == "" {
		t.Fatal("missing X-Request-ID response header")
	}
	if w.Body.String() != generated {
		t.Fatalf("context/header mismatch: %q vs %q", w.Body.String(), generated)
	}

	// Client-supplied ID is reused.
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", "client-rid-7")
	r.ServeHTTP(w, req)
	if w.Header().Get("X-Request-ID") != "client-rid-7" || w.Body.String() != "client-rid-7" {
		t.Fatalf("client id not propagated: %q / %q", w.Header().Get("X-Request-ID"), w.Body.String())
	}
}

func TestRecoveryConvertsPanic(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/boom", RequestID(), Logger(), Recovery(), func(c *gin.Context) {
		panic("kaboom")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, `"code":"internal_error"`) || !strings.Contains(body, "request_id") {
		t.Fatalf("unexpected panic envelope: %s", body)
	}
}

func TestLoggerAttachesRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ping", RequestID(), Logger(), func(c *gin.Context) {
		if LoggerFrom(c) == nil {
			t.Fatal("request-scoped logger missing")
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping?search=x", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestRedact(t *testing.T) {
	cases := map[string]string{
		"search=ana.ruiz%40club.es": "search=ana.ruiz%40club.es",
		"search=ana.ruiz@club.es":   "search=[REDACTED:email]",
		"id=6f1e0b9a-2a44-4a61-8b7e-aa12bcd34e56": "id=[REDACTED:id]",
		"phone=612 345 6789":                      "phone=[REDACTED:phone]",
		"status=active":                           "status=active",
		"": "",
	}
	for in, want := range cases {
		if got := redact(in); got != want {
			t.Fatalf("redact(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdef", 4); got != "abcd…" {
		t.Fatalf("unexpected truncation: %q", got)
	}
	if got := truncate("abc", 4); got != "abc" {
		t.Fatalf("short strings must pass through: %q", got)
	}
	if got := truncate("abc", 0); got != "abc" {
		t.Fatalf("max<=0 disables truncation: %q", got)
	}
}
