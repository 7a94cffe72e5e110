package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func newSecuredRouter(opt SecurityOptions) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ping", RequestID(), SecurityHeaders(opt), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func TestSecurityHeadersBaseline(t *testing.T) {
	r := newSecuredRouter(SecurityOptions{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	h := w.Header()
	if h.Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("missing nosniff: %v", h)
	}
	if h.Get("X-Frame-Options") != "DENY" {
		t.Fatalf("missing frame options: %v", h)
	}
	if h.Get("Referrer-Policy") != "no-referrer" {
		t.Fatalf("missing referrer policy: %v", h)
	}
	if h.Get("Strict-Transport-Security") != "" {
		t.Fatal("HSTS must be off by default")
	}
	if h.Get("Cache-Control") != "" {
		t.Fatal("no-store must be opt-in")
	}
	if !strings.Contains(h.Get("Access-Control-Expose-Headers"), "X-Request-ID") {
		t.Fatalf("request id not exposed: %v", h)
	}
}

func TestSecurityHeadersNoStore(t *testing.T) {
	r := newSecuredRouter(SecurityOptions{NoStore: true})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	h := w.Header()
	if h.Get("Cache-Control") != "no-store" || h.Get("Pragma") != "no-cache" || h.Get("Expires") != "0" {
		t.Fatalf("cache controls missing: %v", h)
	}
}

func TestSecurityHeadersHSTSOnlyOverHTTPS(t *testing.T) {
	r := newSecuredRouter(SecurityOptions{EnableHSTS: true, HSTSMaxAge: time.Hour})

	// Plain HTTP never gets HSTS.
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if w.Header().Get("Strict-Transport-Security") != "" {
		t.Fatal("HSTS must not be sent over HTTP")
	}

	// A proxy-terminated HTTPS request does.
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	r.ServeHTTP(w, req)
	got := w.Header().Get("Strict-Transport-Security")
	if !strings.Contains(got, "max-age=3600") || !strings.Contains(got, "includeSubDomains") {
		t.Fatalf("unexpected HSTS value: %q", got)
	}
}

func TestSecurityHeadersPolicyOptIn(t *testing.T) {
	r := newSecuredRouter(SecurityOptions{EnablePolicy: true})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	h := w.Header()
	if h.Get("Permissions-Policy") == "" || h.Get("X-Permitted-Cross-Domain-Policies") != "none" {
		t.Fatalf("feature policies missing: %v", h)
	}
}
