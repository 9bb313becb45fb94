// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api provides the synchronous client for the LexOS Command Center
// backend.
package api

// =============================================================================
// CHAT
// =============================================================================

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Prompt         string  `json:"prompt"`
	ConversationID string  `json:"conversation_id,omitempty"`
	SystemPrompt   string  `json:"system_prompt,omitempty"`
	MaxTokens      int     `json:"max_tokens,omitempty"`
	Temperature    float64 `json:"temperature,omitempty"`
	TopP           float64 `json:"top_p,omitempty"`
	ForceProvider  string  `json:"force_provider,omitempty"`
	TaskType       string  `json:"task_type,omitempty"`
}

// ChatResponse is the routed model response for a chat turn.
type ChatResponse struct {
	Text       string         `json:"text"`
	ModelUsed  string         `json:"model_used"`
	Provider   string         `json:"provider"`
	TokensUsed int            `json:"tokens_used"`
	Cost       float64        `json:"cost"`
	LatencyMs  float64        `json:"latency_ms"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// =============================================================================
// CREWS
// =============================================================================

// CrewTaskSpec describes one task in a crew-creation request. AgentIndex is
// a position into the request's AgentTemplates list, per the backend
// contract.
type CrewTaskSpec struct {
	Description    string `json:"description"`
	AgentIndex     int    `json:"agent_index"`
	ExpectedOutput string `json:"expected_output"`
}

// CreateCrewRequest is the body of POST /api/crew/create.
type CreateCrewRequest struct {
	CrewName       string         `json:"crew_name"`
	AgentTemplates []string       `json:"agent_templates"`
	Tasks          []CrewTaskSpec `json:"tasks"`
	ProcessType    string         `json:"process_type"`
}

// CreateCrewResponse carries the backend-assigned crew identifier.
type CreateCrewResponse struct {
	CrewID string `json:"crew_id"`
}

// RunCrewResponse is the result of POST /api/crew/{id}/run. Duration is in
// seconds, as reported by the backend.
type RunCrewResponse struct {
	CrewID   string  `json:"crew_id"`
	Result   string  `json:"result"`
	Duration float64 `json:"duration"`
}

// CrewStatusResponse is the result of GET /api/crew/{id}/status.
type CrewStatusResponse struct {
	CrewID      string  `json:"crew_id"`
	Name        string  `json:"name"`
	CreatedAt   float64 `json:"created_at"`
	CompletedAt float64 `json:"completed_at,omitempty"`
	Duration    float64 `json:"duration,omitempty"`
	HasResult   bool    `json:"has_result"`
	AgentCount  int     `json:"agent_count"`
	TaskCount   int     `json:"task_count"`
}

// TemplatesResponse lists the agent-template and tool vocabularies offered
// by the backend.
type TemplatesResponse struct {
	AgentTemplates []string `json:"agent_templates"`
	Tools          []string `json:"tools"`
}

// =============================================================================
// MEMORY
// =============================================================================

// HistoryTurn is one stored user/assistant exchange.
type HistoryTurn struct {
	User      string         `json:"user"`
	Assistant string         `json:"assistant"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// historyResponse is the internal envelope of GET /api/memory/conversation/{id}.
type historyResponse struct {
	History []HistoryTurn `json:"history"`
}

// MemoryStoreRequest writes one record to the backend's long-term memory.
// MemoryType defaults server-side to "general" when empty.
type MemoryStoreRequest struct {
	Text       string         `json:"text"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	UserID     string         `json:"user_id,omitempty"`
	MemoryType string         `json:"memory_type,omitempty"`
}

// MemoryStoreResponse carries the identifier assigned to a stored record.
type MemoryStoreResponse struct {
	MemoryID string `json:"memory_id"`
}

// MemoryRetrieveRequest queries long-term memory. Limit defaults
// server-side to 5 when zero.
type MemoryRetrieveRequest struct {
	Query      string `json:"query"`
	UserID     string `json:"user_id,omitempty"`
	MemoryType string `json:"memory_type,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

// memoryRetrieveResponse is the internal envelope of POST /api/memory/retrieve.
// Records are backend-shaped and handed through opaque.
type memoryRetrieveResponse struct {
	Memories []map[string]any `json:"memories"`
}

// =============================================================================
// HEALTH
// =============================================================================

// HealthResponse reports backend component availability.
type HealthResponse struct {
	Status     string          `json:"status"`
	Timestamp  string          `json:"timestamp,omitempty"`
	Components map[string]bool `json:"components"`
	Version    string          `json:"version,omitempty"`
}

// Healthy reports whether the backend considers itself up.
func (h *HealthResponse) Healthy() bool {
	return h.Status == "ok"
}
