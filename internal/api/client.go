// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api provides the synchronous client for the LexOS Command Center
// backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Configuration constants for the backend API.
const (
	// DefaultBaseURL is the base URL of a local Command Center instance.
	DefaultBaseURL = "http://localhost:8000"

	// DefaultTimeout is the default timeout for API requests. The client
	// imposes no additional application-level timeout beyond this.
	DefaultTimeout = 60 * time.Second

	// MaxResponseSize is the maximum allowed response body size.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB limit
)

// Error variables for common backend errors.
var (
	// ErrUnauthenticated indicates the backend rejected the bearer
	// credential. Never retried automatically.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrNotFound indicates the backend has no entity for the identifier.
	ErrNotFound = errors.New("not found")
)

// TransportError represents a network or HTTP failure from the backend.
type TransportError struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("backend error (HTTP %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("backend error: %s", e.Message)
}

// CredentialSource supplies the bearer credential attached to every call.
// An empty token means anonymous calls are attempted, which is not itself
// an error.
type CredentialSource interface {
	Token() string
}

// apiErrorResponse matches the backend's error envelope.
type apiErrorResponse struct {
	Detail string `json:"detail"`
}

// =============================================================================
// CLIENT
// =============================================================================

// Client is an explicitly constructed backend client. It is passed to
// consumers rather than imported as ambient state, so tests and alternate
// deployments can inject their own configuration.
type Client struct {
	baseURL    string
	httpClient *http.Client
	creds      CredentialSource
	userAgent  string
}

// NewClient creates a backend client for the given base URL.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
			Timeout: DefaultTimeout,
		},
		userAgent: "lexos-tui/0.1.0",
	}
}

// WithTimeout sets the request timeout.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	c.httpClient.Timeout = timeout
	return c
}

// WithCredentials sets the bearer credential source.
func (c *Client) WithCredentials(src CredentialSource) *Client {
	c.creds = src
	return c
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// =============================================================================
// OPERATIONS
// =============================================================================

// Chat sends one chat turn and returns the routed model response.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var resp ChatResponse
	if err := c.post(ctx, "/api/chat", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateCrew registers a crew execution context with the backend and
// returns the identifier it assigned.
func (c *Client) CreateCrew(ctx context.Context, req CreateCrewRequest) (*CreateCrewResponse, error) {
	var resp CreateCrewResponse
	if err := c.post(ctx, "/api/crew/create", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RunCrew kicks off the crew's tasks and blocks until the backend reports
// the result.
func (c *Client) RunCrew(ctx context.Context, crewID string) (*RunCrewResponse, error) {
	var resp RunCrewResponse
	path := "/api/crew/" + url.PathEscape(crewID) + "/run"
	if err := c.post(ctx, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CrewStatus fetches the backend's view of a crew.
func (c *Client) CrewStatus(ctx context.Context, crewID string) (*CrewStatusResponse, error) {
	var resp CrewStatusResponse
	path := "/api/crew/" + url.PathEscape(crewID) + "/status"
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Templates fetches the available agent-template and tool vocabularies.
func (c *Client) Templates(ctx context.Context) (*TemplatesResponse, error) {
	var resp TemplatesResponse
	if err := c.get(ctx, "/api/crew/templates", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ConversationHistory fetches the stored turns for a conversation.
func (c *Client) ConversationHistory(ctx context.Context, conversationID string) ([]HistoryTurn, error) {
	var resp historyResponse
	path := "/api/memory/conversation/" + url.PathEscape(conversationID)
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.History, nil
}

// MemoryStore writes one record to the backend's long-term memory and
// returns the identifier it assigned.
func (c *Client) MemoryStore(ctx context.Context, req MemoryStoreRequest) (*MemoryStoreResponse, error) {
	var resp MemoryStoreResponse
	if err := c.post(ctx, "/api/memory/store", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// MemoryRetrieve queries long-term memory and returns the matching
// records in backend shape.
func (c *Client) MemoryRetrieve(ctx context.Context, req MemoryRetrieveRequest) ([]map[string]any, error) {
	var resp memoryRetrieveResponse
	if err := c.post(ctx, "/api/memory/retrieve", req, &resp); err != nil {
		return nil, err
	}
	return resp.Memories, nil
}

// Health checks backend component availability.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.get(ctx, "/health", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// =============================================================================
// REQUEST PLUMBING
// =============================================================================

// post issues a JSON POST and decodes the response into out.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, out)
}

// get issues a GET and decodes the response into out.
func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, out)
}

// do executes one request. Failures are never retried here; retry policy
// belongs to whoever invoked the user-facing action.
func (c *Client) do(req *http.Request, out any) error {
	c.setHeaders(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)

	// Drop the credential from the in-memory request immediately so it can
	// never leak into logs.
	req.Header.Del("Authorization")

	if err != nil {
		return &TransportError{Message: err.Error()}
	}
	defer resp.Body.Close()

	c.logResponse(req, resp, time.Since(start))

	body, err := readResponse(resp)
	if err != nil {
		return &TransportError{Status: resp.StatusCode, Message: err.Error()}
	}

	if resp.StatusCode != http.StatusOK {
		return c.handleErrorResponse(resp.StatusCode, body)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &TransportError{Status: resp.StatusCode, Message: "failed to parse response: " + err.Error()}
	}
	return nil
}

// setHeaders sets the required headers, attaching the bearer credential
// when one is present.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.creds != nil {
		if token := c.creds.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
}

// logResponse logs method, path, status and duration. Never bodies, never
// headers.
func (c *Client) logResponse(req *http.Request, resp *http.Response, duration time.Duration) {
	log.Printf("api: %s %s -> %d (%v)", req.Method, req.URL.Path, resp.StatusCode, duration)
}

// readResponse reads the response body with a size cap.
func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) == MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// handleErrorResponse converts HTTP error responses to typed errors.
func (c *Client) handleErrorResponse(statusCode int, body []byte) error {
	message := strings.TrimSpace(string(body))
	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Detail != "" {
		message = apiErr.Detail
	}

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrUnauthenticated, message)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, message)
	default:
		return &TransportError{Status: statusCode, Message: message}
	}
}
