// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type staticCreds string

func (s staticCreds) Token() string { return string(s) }

func TestChatSendsRequestAndDecodesResponse(t *testing.T) {
	var gotReq ChatRequest
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/chat" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatal(err)
		}
		json.NewEncoder(w).Encode(ChatResponse{
			Text:       "hi there",
			ModelUsed:  "llama-3.1-70b",
			Provider:   "local",
			TokensUsed: 12,
			Cost:       0.0001,
			LatencyMs:  430,
		})
	}))
	defer server.Close()

	client := NewClient(server.URL).WithCredentials(staticCreds("secret-token"))
	resp, err := client.Chat(context.Background(), ChatRequest{
		Prompt:      "hello",
		Temperature: 0.7,
		MaxTokens:   1024,
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if resp.Text != "hi there" || resp.Provider != "local" {
		t.Errorf("resp = %+v", resp)
	}
	if gotReq.Prompt != "hello" || gotReq.MaxTokens != 1024 {
		t.Errorf("request = %+v", gotReq)
	}
	if gotAuth != "Bearer secret-token" {
		t.Errorf("Authorization = %q", gotAuth)
	}
}

func TestAnonymousCallsCarryNoAuthorization(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "" {
			t.Errorf("Authorization = %q, want empty", got)
		}
		json.NewEncoder(w).Encode(HealthResponse{Status: "ok"})
	}))
	defer server.Close()

	// Credential source present but empty: still anonymous.
	client := NewClient(server.URL).WithCredentials(staticCreds(""))
	resp, err := client.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if !resp.Healthy() {
		t.Error("Healthy() = false, want true")
	}
}

func TestCrewEndpoints(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method + " " + r.URL.Path {
		case "POST /api/crew/create":
			json.NewEncoder(w).Encode(CreateCrewResponse{CrewID: "abc123"})
		case "POST /api/crew/abc123/run":
			json.NewEncoder(w).Encode(RunCrewResponse{CrewID: "abc123", Result: "report", Duration: 3.2})
		case "GET /api/crew/abc123/status":
			json.NewEncoder(w).Encode(CrewStatusResponse{CrewID: "abc123", Name: "Desk", AgentCount: 2, TaskCount: 1, HasResult: true})
		case "GET /api/crew/templates":
			json.NewEncoder(w).Encode(TemplatesResponse{
				AgentTemplates: []string{"researcher", "writer"},
				Tools:          []string{"web_search"},
			})
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL)
	ctx := context.Background()

	created, err := client.CreateCrew(ctx, CreateCrewRequest{CrewName: "Desk", ProcessType: "sequential"})
	if err != nil {
		t.Fatalf("CreateCrew: %v", err)
	}
	if created.CrewID != "abc123" {
		t.Errorf("CrewID = %s", created.CrewID)
	}

	ran, err := client.RunCrew(ctx, "abc123")
	if err != nil {
		t.Fatalf("RunCrew: %v", err)
	}
	if ran.Result != "report" || ran.Duration != 3.2 {
		t.Errorf("run = %+v", ran)
	}

	status, err := client.CrewStatus(ctx, "abc123")
	if err != nil {
		t.Fatalf("CrewStatus: %v", err)
	}
	if status.AgentCount != 2 || !status.HasResult {
		t.Errorf("status = %+v", status)
	}

	templates, err := client.Templates(ctx)
	if err != nil {
		t.Fatalf("Templates: %v", err)
	}
	if len(templates.AgentTemplates) != 2 || templates.Tools[0] != "web_search" {
		t.Errorf("templates = %+v", templates)
	}
}

func TestConversationHistoryUnwrapsEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/memory/conversation/conv_1" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"history":[{"user":"hi","assistant":"hello","metadata":{"provider":"local"}}]}`))
	}))
	defer server.Close()

	turns, err := NewClient(server.URL).ConversationHistory(context.Background(), "conv_1")
	if err != nil {
		t.Fatalf("ConversationHistory: %v", err)
	}
	if len(turns) != 1 || turns[0].Assistant != "hello" {
		t.Errorf("turns = %+v", turns)
	}
	if turns[0].Metadata["provider"] != "local" {
		t.Errorf("metadata = %v", turns[0].Metadata)
	}
}

func TestMemoryEndpoints(t *testing.T) {
	var storeReq MemoryStoreRequest
	var retrieveReq MemoryRetrieveRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method + " " + r.URL.Path {
		case "POST /api/memory/store":
			if err := json.NewDecoder(r.Body).Decode(&storeReq); err != nil {
				t.Fatal(err)
			}
			json.NewEncoder(w).Encode(MemoryStoreResponse{MemoryID: "mem_1"})
		case "POST /api/memory/retrieve":
			if err := json.NewDecoder(r.Body).Decode(&retrieveReq); err != nil {
				t.Fatal(err)
			}
			w.Write([]byte(`{"memories":[{"text":"prefers terse answers","score":0.91}]}`))
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL)

	stored, err := client.MemoryStore(context.Background(), MemoryStoreRequest{
		Text:       "prefers terse answers",
		Metadata:   map[string]any{"source": "chat"},
		UserID:     "u1",
		MemoryType: "preference",
	})
	if err != nil {
		t.Fatalf("MemoryStore: %v", err)
	}
	if stored.MemoryID != "mem_1" {
		t.Errorf("MemoryID = %q", stored.MemoryID)
	}
	if storeReq.Text != "prefers terse answers" || storeReq.MemoryType != "preference" {
		t.Errorf("store request = %+v", storeReq)
	}

	memories, err := client.MemoryRetrieve(context.Background(), MemoryRetrieveRequest{
		Query:  "answer style",
		UserID: "u1",
		Limit:  3,
	})
	if err != nil {
		t.Fatalf("MemoryRetrieve: %v", err)
	}
	if len(memories) != 1 || memories[0]["text"] != "prefers terse answers" {
		t.Errorf("memories = %+v", memories)
	}
	if retrieveReq.Query != "answer style" || retrieveReq.Limit != 3 {
		t.Errorf("retrieve request = %+v", retrieveReq)
	}
}

func TestErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "401 maps to unauthenticated",
			status: http.StatusUnauthorized,
			body:   `{"detail":"invalid token"}`,
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrUnauthenticated) {
					t.Errorf("err = %v, want ErrUnauthenticated", err)
				}
			},
		},
		{
			name:   "403 maps to unauthenticated",
			status: http.StatusForbidden,
			body:   `{"detail":"forbidden"}`,
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrUnauthenticated) {
					t.Errorf("err = %v, want ErrUnauthenticated", err)
				}
			},
		},
		{
			name:   "404 maps to not found",
			status: http.StatusNotFound,
			body:   `{"detail":"crew not found"}`,
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrNotFound) {
					t.Errorf("err = %v, want ErrNotFound", err)
				}
			},
		},
		{
			name:   "500 maps to transport error with detail",
			status: http.StatusInternalServerError,
			body:   `{"detail":"model crashed"}`,
			check: func(t *testing.T, err error) {
				var terr *TransportError
				if !errors.As(err, &terr) {
					t.Fatalf("err = %v, want TransportError", err)
				}
				if terr.Status != http.StatusInternalServerError || terr.Message != "model crashed" {
					t.Errorf("terr = %+v", terr)
				}
			},
		},
		{
			name:   "non-JSON error body kept verbatim",
			status: http.StatusBadGateway,
			body:   "upstream exploded",
			check: func(t *testing.T, err error) {
				var terr *TransportError
				if !errors.As(err, &terr) {
					t.Fatalf("err = %v, want TransportError", err)
				}
				if terr.Message != "upstream exploded" {
					t.Errorf("Message = %q", terr.Message)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewClient(server.URL).Health(context.Background())
			if err == nil {
				t.Fatal("expected error")
			}
			tt.check(t, err)
		})
	}
}

func TestNetworkFailureIsTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse connections

	_, err := NewClient(server.URL).Health(context.Background())

	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("err = %v, want TransportError", err)
	}
	if terr.Status != 0 {
		t.Errorf("Status = %d, want 0 for network-level failure", terr.Status)
	}
}

func TestNewClientDefaultsAndTrimsSlash(t *testing.T) {
	if got := NewClient("").BaseURL(); got != DefaultBaseURL {
		t.Errorf("BaseURL = %q, want default", got)
	}
	if got := NewClient("http://example.com/").BaseURL(); got != "http://example.com" {
		t.Errorf("BaseURL = %q, trailing slash should be trimmed", got)
	}
}
