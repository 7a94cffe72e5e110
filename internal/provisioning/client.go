// Package provisioning wraps the external Sporttia API that turns a
// completed onboarding form into a real sports-center record. The core only
// depends on the Client interface; the HTTP implementation lives here so the
// whole collaborator can be swapped out in tests.
package provisioning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sporttia/onboarding-backend/internal/domain"
)

// CreateRequest is the snapshot of collected data sent to the provisioning
// collaborator. All fields are mandatory by the time a call is attempted;
// the completeness guard runs before provisioning.
type CreateRequest struct {
	Name       string            `json:"name"`
	City       string            `json:"city"`
	Language   string            `json:"language"`
	AdminName  string            `json:"admin_name"`
	AdminEmail string            `json:"admin_email"`
	Facilities []domain.Facility `json:"facilities"`
}

// CreateResult is the provisioning outcome on success.
type CreateResult struct {
	ExternalID string `json:"id"`
	Name       string `json:"name"`
	City       string `json:"city"`
}

// APIError is returned when the collaborator answered with a non-success
// status. It maps onto the sporttia_api_error classification.
type APIError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("sporttia api: status %d: %s", e.StatusCode, e.Body)
}

// Client is the provisioning boundary consumed by the lifecycle service.
// Implementations must be safe for concurrent use and honor the context.
type Client interface {
	// CreateSportsCenter attempts to provision a sports center from the
	// given snapshot. It is called at most once per confirmation; retries
	// are governed by the failure tracker, never here.
	CreateSportsCenter(ctx context.Context, req CreateRequest) (*CreateResult, error)
}

// HTTPClient calls the Sporttia REST API.
type HTTPClient struct {
	BaseURL string
	HTTP    *http.Client
}

// NewHTTPClient builds an HTTPClient with a bounded request timeout.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPClient{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// CreateSportsCenter POSTs the snapshot to /scs and decodes the created
// record. Non-2xx responses are returned as *APIError; transport failures
// propagate as-is. Response bodies are read with a hard cap so a misbehaving
// upstream cannot exhaust memory.
func (c *HTTPClient) CreateSportsCenter(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/scs", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var out CreateResult
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
