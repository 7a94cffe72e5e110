package provisioning

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sporttia/onboarding-backend/internal/domain"
)

func TestCreateSportsCenterSuccess(t *testing.T) {
	var gotPath, gotContentType string
	var gotBody CreateRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "ext-9", "name": "Club Sur", "city": "Cadiz"})
	}))
	defer srv.Close()

	cli := NewHTTPClient(srv.URL, time.Second)
	res, err := cli.CreateSportsCenter(context.Background(), CreateRequest{
		Name:       "Club Sur",
		City:       "Cadiz",
		Language:   "es",
		AdminName:  "Ana",
		AdminEmail: "ana@club.es",
		Facilities: []domain.Facility{{Name: "Pista 1"}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if res.ExternalID != "ext-9" || res.City != "Cadiz" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if gotPath != "/scs" {
		t.Fatalf("unexpected path: %s", gotPath)
	}
	if gotContentType != "application/json" {
		t.Fatalf("unexpected content type: %s", gotContentType)
	}
	if gotBody.AdminEmail != "ana@club.es" || len(gotBody.Facilities) != 1 {
		t.Fatalf("unexpected payload: %+v", gotBody)
	}
}

func TestCreateSportsCenterUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cli := NewHTTPClient(srv.URL, time.Second)
	_, err := cli.CreateSportsCenter(context.Background(), CreateRequest{Name: "x"})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("unexpected status: %d", apiErr.StatusCode)
	}
	if !strings.Contains(apiErr.Error(), "quota exceeded") {
		t.Fatalf("body lost: %s", apiErr.Error())
	}
}

func TestCreateSportsCenterContextCancel(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	cli := NewHTTPClient(srv.URL, time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := cli.CreateSportsCenter(ctx, CreateRequest{Name: "x"}); err == nil {
		t.Fatal("expected context deadline to fail the call")
	}
}

func TestNewHTTPClientDefaultTimeout(t *testing.T) {
	cli := NewHTTPClient("http://example.invalid", 0)
	if cli.HTTP.Timeout != 15*time.Second {
		t.Fatalf("unexpected default timeout: %v", cli.HTTP.Timeout)
	}
}
