// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations, messages,
// agents and crews.
package model

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"
)

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation holds an ordered, titled sequence of messages.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Messages []*Message `json:"messages"`

	// SystemPrompt is the optional system directive sent with every turn.
	SystemPrompt string `json:"system_prompt,omitempty"`
}

// NewConversation creates a new conversation with a generated ID.
func NewConversation(title, systemPrompt string) *Conversation {
	now := time.Now()
	return &Conversation{
		ID:           generateConversationID(),
		Title:        title,
		CreatedAt:    now,
		UpdatedAt:    now,
		Messages:     make([]*Message, 0),
		SystemPrompt: systemPrompt,
	}
}

// =============================================================================
// MESSAGE ACCESS
// =============================================================================

// AddMessage appends a message and bumps the update timestamp.
func (c *Conversation) AddMessage(msg *Message) {
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = time.Now()
	c.updateTitle()
}

// MessageByID returns a message by its ID, or nil.
func (c *Conversation) MessageByID(id string) *Message {
	for _, msg := range c.Messages {
		if msg.ID == id {
			return msg
		}
	}
	return nil
}

// RemoveMessage removes a message by ID and reports whether it was present.
func (c *Conversation) RemoveMessage(id string) bool {
	for i, msg := range c.Messages {
		if msg.ID == id {
			c.Messages = append(c.Messages[:i], c.Messages[i+1:]...)
			c.UpdatedAt = time.Now()
			return true
		}
	}
	return false
}

// MessageCount returns the number of messages.
func (c *Conversation) MessageCount() int {
	return len(c.Messages)
}

// IsEmpty returns true if there are no messages.
func (c *Conversation) IsEmpty() bool {
	return len(c.Messages) == 0
}

// =============================================================================
// TITLE MANAGEMENT
// =============================================================================

// updateTitle auto-generates a title from the first user message if not set.
func (c *Conversation) updateTitle() {
	if c.Title != "" {
		return
	}
	for _, msg := range c.Messages {
		if msg.Role == RoleUser {
			c.Title = strings.ReplaceAll(msg.Preview(50), "\n", " ")
			return
		}
	}
}

// GetTitle returns the conversation title or a default.
func (c *Conversation) GetTitle() string {
	if c.Title != "" {
		return c.Title
	}
	return "New Conversation"
}

// Preview returns a short preview of the conversation for list views.
func (c *Conversation) Preview() string {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == RoleUser {
			return c.Messages[i].Preview(100)
		}
	}
	if len(c.Messages) > 0 {
		return c.Messages[0].Preview(100)
	}
	return "Empty conversation"
}

// Clone creates a deep copy of the conversation.
func (c *Conversation) Clone() *Conversation {
	clone := &Conversation{
		ID:           c.ID,
		Title:        c.Title,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
		SystemPrompt: c.SystemPrompt,
		Messages:     make([]*Message, len(c.Messages)),
	}
	for i, msg := range c.Messages {
		msgCopy := *msg
		clone.Messages[i] = &msgCopy
	}
	return clone
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// generateConversationID creates a unique conversation ID.
func generateConversationID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return "conv_" + hex.EncodeToString(bytes)
}
