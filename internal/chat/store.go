// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"time"

	"github.com/jeranaias/lexos-tui/internal/api"
	"github.com/jeranaias/lexos-tui/internal/model"
	"github.com/jeranaias/lexos-tui/internal/prefs"
	"github.com/jeranaias/lexos-tui/internal/push"
	"github.com/jeranaias/lexos-tui/internal/store"
)

// StoreName is the snapshot name for conversation state.
const StoreName = "conversations"

const (
	// PlaceholderContent is the sentinel content of an assistant message
	// awaiting its real response.
	PlaceholderContent = "…"

	// FailureNotice replaces a placeholder when the exchange fails.
	FailureNotice = "Sorry, I couldn't get a response. Please try again."
)

// =============================================================================
// STATE
// =============================================================================

// State is the conversation store's full state. Snapshots handed out by
// Read are immutable: mutators replace a changed conversation with a copy
// instead of writing through its pointer, so a reader holding an older
// snapshot never observes a half-applied change.
type State struct {
	// Conversations is ordered most-recent-first by creation.
	Conversations []*model.Conversation `json:"conversations"`

	// ActiveID selects the conversation user intents apply to. It is not
	// validated against the list; selecting an unknown identifier yields
	// "no active conversation" semantics downstream.
	ActiveID string `json:"active_id"`

	// Transient flags, not persisted.
	Loading   bool   `json:"-"`
	LastError string `json:"-"`
}

// conversationByID returns the conversation with the identifier, or nil.
func (st State) conversationByID(id string) *model.Conversation {
	for _, c := range st.Conversations {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// active returns the active conversation, or nil.
func (st State) active() *model.Conversation {
	if st.ActiveID == "" {
		return nil
	}
	return st.conversationByID(st.ActiveID)
}

// withConversation returns a state in which the targeted conversation is
// replaced by a mutated deep copy. The conversation list itself is also
// copied, so earlier snapshots keep both their list and their entries.
// Unknown identifiers return the state unchanged.
func (st State) withConversation(id string, mutate func(conv *model.Conversation)) State {
	for i, c := range st.Conversations {
		if c.ID == id {
			conversations := make([]*model.Conversation, len(st.Conversations))
			copy(conversations, st.Conversations)
			clone := c.Clone()
			mutate(clone)
			conversations[i] = clone
			st.Conversations = conversations
			return st
		}
	}
	return st
}

// withoutConversation returns a state whose list lacks the targeted
// conversation. The surviving entries land in a fresh list.
func (st State) withoutConversation(id string) State {
	conversations := make([]*model.Conversation, 0, len(st.Conversations))
	for _, c := range st.Conversations {
		if c.ID != id {
			conversations = append(conversations, c)
		}
	}
	st.Conversations = conversations
	return st
}

// =============================================================================
// TRANSPORT DEPENDENCIES
// =============================================================================

// Transport is the slice of the backend client the conversation store
// needs. Satisfied by *api.Client.
type Transport interface {
	Chat(ctx context.Context, req api.ChatRequest) (*api.ChatResponse, error)
	ConversationHistory(ctx context.Context, conversationID string) ([]api.HistoryTurn, error)
}

// PushSender is the duplex channel chat turns prefer when it is up.
// Satisfied by *push.Socket.
type PushSender interface {
	Connected() bool
	Send(req api.ChatRequest, onResult push.ResultHandler) error
}

// SamplingSource supplies the model preferences carried on every chat
// turn. Satisfied by *prefs.Store.
type SamplingSource interface {
	Sampling() prefs.Sampling
}

// =============================================================================
// STORE
// =============================================================================

// Store is the conversation state machine.
type Store struct {
	state     *store.Store[State]
	transport Transport
	push      PushSender
	prefs     SamplingSource
}

// Open rehydrates conversation state from the given directory.
func Open(dir string, transport Transport, samplingSrc SamplingSource) *Store {
	return &Store{
		state:     store.Open(StoreName, dir, State{}),
		transport: transport,
		prefs:     samplingSrc,
	}
}

// NewInMemory creates a conversation store with no persistence, for tests.
func NewInMemory(transport Transport, samplingSrc SamplingSource) *Store {
	return &Store{
		state:     store.New(State{}),
		transport: transport,
		prefs:     samplingSrc,
	}
}

// WithPush attaches the duplex channel. Turns prefer it while it is
// connected and use the synchronous surface otherwise.
func (s *Store) WithPush(sender PushSender) *Store {
	s.push = sender
	return s
}

// Read returns the current state.
func (s *Store) Read() State {
	return s.state.Read()
}

// Subscribe registers a listener for state changes.
func (s *Store) Subscribe(fn store.Listener[State]) func() {
	return s.state.Subscribe(fn)
}

// ActiveConversation returns the active conversation, or nil.
func (s *Store) ActiveConversation() *model.Conversation {
	return s.state.Read().active()
}

// =============================================================================
// CONVERSATION LIFECYCLE
// =============================================================================

// CreateConversation allocates a new conversation, prepends it to the list
// and marks it active. It never fails.
func (s *Store) CreateConversation(title, systemPrompt string) string {
	conv := model.NewConversation(title, systemPrompt)
	s.state.Update(func(st State) State {
		st.Conversations = append([]*model.Conversation{conv}, st.Conversations...)
		st.ActiveID = conv.ID
		return st
	})
	return conv.ID
}

// SetActiveConversation is a pure selection change. The identifier is not
// validated.
func (s *Store) SetActiveConversation(id string) {
	s.state.Update(func(st State) State {
		st.ActiveID = id
		return st
	})
}

// DeleteConversation removes the targeted conversation. Deleting the
// active conversation selects the next most-recently-updated conversation,
// or none if none remain. Unknown identifiers are a silent no-op.
func (s *Store) DeleteConversation(id string) {
	s.state.Update(func(st State) State {
		st = st.withoutConversation(id)
		if st.ActiveID == id {
			st.ActiveID = mostRecentlyUpdatedID(st.Conversations)
		}
		return st
	})
}

// mostRecentlyUpdatedID returns the identifier of the conversation with
// the latest update timestamp, or "".
func mostRecentlyUpdatedID(conversations []*model.Conversation) string {
	var id string
	var latest time.Time
	for _, c := range conversations {
		if id == "" || c.UpdatedAt.After(latest) {
			id = c.ID
			latest = c.UpdatedAt
		}
	}
	return id
}

// =============================================================================
// MESSAGE OPERATIONS
// =============================================================================

// AddMessage appends a message to the active conversation and bumps its
// update timestamp. It is a no-op when there is no active conversation.
func (s *Store) AddMessage(msg *model.Message) {
	s.state.Update(func(st State) State {
		return st.withConversation(st.ActiveID, func(conv *model.Conversation) {
			conv.AddMessage(msg)
		})
	})
}

// UpdateMessage replaces the content of the message with the identifier
// inside the active conversation only. Stale identifiers are a silent
// no-op.
func (s *Store) UpdateMessage(id, content string) {
	s.state.Update(func(st State) State {
		return st.withConversation(st.ActiveID, func(conv *model.Conversation) {
			if msg := conv.MessageByID(id); msg != nil {
				msg.Content = content
				conv.UpdatedAt = time.Now()
			}
		})
	})
}

// DeleteMessage removes the message with the identifier from the active
// conversation. Stale identifiers are a silent no-op.
func (s *Store) DeleteMessage(id string) {
	s.state.Update(func(st State) State {
		return st.withConversation(st.ActiveID, func(conv *model.Conversation) {
			conv.RemoveMessage(id)
		})
	})
}

// =============================================================================
// SEND-TURN PROTOCOL
// =============================================================================

// Send submits one user turn: it synchronously appends the user message
// and a placeholder assistant message, then issues the chat request and
// reconciles the placeholder with the result. When no conversation is
// active one is created lazily.
//
// Send blocks for the duration of the network call; run it from whatever
// concurrency context drives the UI. The placeholder identifier, not the
// message pointer, is what the reconciliation closes over, so any number
// of turns may be in flight at once.
func (s *Store) Send(ctx context.Context, content string) string {
	convID := s.state.Read().ActiveID
	if s.state.Read().conversationByID(convID) == nil {
		convID = s.CreateConversation("", "")
	}

	userMsg := model.NewUserMessage(content)
	placeholder := model.NewAssistantMessage(PlaceholderContent)

	var systemPrompt string
	s.state.Update(func(st State) State {
		return st.withConversation(convID, func(conv *model.Conversation) {
			conv.AddMessage(userMsg)
			conv.AddMessage(placeholder)
			systemPrompt = conv.SystemPrompt
		})
	})

	sampling := s.prefs.Sampling()
	req := api.ChatRequest{
		Prompt:         content,
		ConversationID: convID,
		SystemPrompt:   systemPrompt,
		MaxTokens:      sampling.MaxTokens,
		Temperature:    sampling.Temperature,
		TopP:           sampling.TopP,
		ForceProvider:  sampling.ForceProvider,
		TaskType:       "chat",
	}

	resp, err := s.dispatch(ctx, req)
	if err != nil {
		s.reconcile(convID, placeholder.ID, FailureNotice, nil)
		s.state.Update(func(st State) State {
			st.LastError = err.Error()
			return st
		})
		return placeholder.ID
	}

	s.reconcile(convID, placeholder.ID, resp.Text, &model.Provenance{
		Model:       resp.ModelUsed,
		Provider:    resp.Provider,
		TokensUsed:  resp.TokensUsed,
		Cost:        resp.Cost,
		LatencyMs:   resp.LatencyMs,
		Annotations: stringAnnotations(resp.Metadata),
	})
	return placeholder.ID
}

// dispatch routes one chat request, preferring the duplex channel while it
// is connected. When the channel refuses the send outright nothing was
// transmitted, so the same attempt moves to the synchronous surface; a
// failure after transmission is terminal for the attempt — never retried.
func (s *Store) dispatch(ctx context.Context, req api.ChatRequest) (*api.ChatResponse, error) {
	if s.push == nil || !s.push.Connected() {
		return s.transport.Chat(ctx, req)
	}

	type outcome struct {
		res *push.Result
		err error
	}
	ch := make(chan outcome, 1)
	if err := s.push.Send(req, func(res *push.Result, err error) {
		ch <- outcome{res: res, err: err}
	}); err != nil {
		return s.transport.Chat(ctx, req)
	}

	select {
	case out := <-ch:
		if out.err != nil {
			return nil, out.err
		}
		resp := out.res.ChatResponse
		return &resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// stringAnnotations keeps the string-valued entries of a response's
// metadata for the message's provenance record.
func stringAnnotations(metadata map[string]any) map[string]string {
	var annotations map[string]string
	for k, v := range metadata {
		if s, ok := v.(string); ok {
			if annotations == nil {
				annotations = make(map[string]string)
			}
			annotations[k] = s
		}
	}
	return annotations
}

// reconcile replaces a placeholder's content. Both the conversation and
// the message are re-resolved by identifier at mutation time; if either
// was deleted while the request was in flight the write is a harmless
// no-op.
func (s *Store) reconcile(convID, messageID, content string, meta *model.Provenance) {
	s.state.Update(func(st State) State {
		return st.withConversation(convID, func(conv *model.Conversation) {
			if msg := conv.MessageByID(messageID); msg != nil {
				msg.Content = content
				msg.Meta = meta
				conv.UpdatedAt = time.Now()
			}
		})
	})
}

// =============================================================================
// HISTORY LOADING
// =============================================================================

// LoadHistory fetches the stored turns for a conversation and replaces its
// message sequence wholesale. A failed load leaves the previous messages
// intact and only sets the error flag; it is never partially applied.
func (s *Store) LoadHistory(ctx context.Context, conversationID string) error {
	s.state.Update(func(st State) State {
		st.Loading = true
		st.LastError = ""
		return st
	})

	turns, err := s.transport.ConversationHistory(ctx, conversationID)
	if err != nil {
		s.state.Update(func(st State) State {
			st.Loading = false
			st.LastError = err.Error()
			return st
		})
		return err
	}

	messages := historyMessages(turns)
	s.state.Update(func(st State) State {
		st.Loading = false
		return st.withConversation(conversationID, func(conv *model.Conversation) {
			conv.Messages = messages
			conv.UpdatedAt = time.Now()
		})
	})
	return nil
}

// historyMessages reconstructs alternating user/assistant pairs from
// stored turns. Each assistant timestamp sits one millisecond after its
// paired user timestamp, so ordering is stable even when the stored
// timestamps would otherwise tie.
func historyMessages(turns []api.HistoryTurn) []*model.Message {
	messages := make([]*model.Message, 0, len(turns)*2)
	for _, turn := range turns {
		userTS := turnTimestamp(turn.Metadata)

		user := model.NewUserMessage(turn.User)
		user.Timestamp = userTS

		assistant := model.NewAssistantMessage(turn.Assistant)
		assistant.Timestamp = userTS.Add(time.Millisecond)
		assistant.Meta = turnProvenance(turn.Metadata)

		messages = append(messages, user, assistant)
	}
	return messages
}

// turnTimestamp extracts the stored turn timestamp, falling back to now.
func turnTimestamp(metadata map[string]any) time.Time {
	if raw, ok := metadata["timestamp"].(string); ok {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			return ts
		}
		if ts, err := time.Parse("2006-01-02T15:04:05.999999", raw); err == nil {
			return ts
		}
	}
	return time.Now()
}

// turnProvenance extracts assistant provenance from turn metadata.
func turnProvenance(metadata map[string]any) *model.Provenance {
	if len(metadata) == 0 {
		return nil
	}
	meta := &model.Provenance{}
	if v, ok := metadata["model_used"].(string); ok {
		meta.Model = v
	}
	if v, ok := metadata["provider"].(string); ok {
		meta.Provider = v
	}
	if v, ok := metadata["tokens_used"].(float64); ok {
		meta.TokensUsed = int(v)
	}
	if v, ok := metadata["cost"].(float64); ok {
		meta.Cost = v
	}
	if meta.Model == "" && meta.Provider == "" && meta.TokensUsed == 0 && meta.Cost == 0 {
		return nil
	}
	return meta
}
