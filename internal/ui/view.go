// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"fmt"
	"strings"

	"github.com/jeranaias/lexos-tui/internal/chat"
	"github.com/jeranaias/lexos-tui/internal/model"
)

// View renders the full frame from store state.
func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")
	b.WriteString(m.renderConversation())
	b.WriteString("\n")
	if crews := m.renderCrews(); crews != "" {
		b.WriteString(crews)
		b.WriteString("\n")
	}
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())

	return b.String()
}

func (m *Model) renderHeader() string {
	conn := m.theme.ConnDown.Render("○ offline")
	if m.connected {
		conn = m.theme.ConnUp.Render("● connected")
	}

	title := "LexOS"
	if conv := m.chat.ActiveConversation(); conv != nil {
		title = conv.GetTitle()
	}
	return m.theme.Header.Render(m.theme.Title.Render(title) + "  " + conn)
}

func (m *Model) renderConversation() string {
	conv := m.chat.ActiveConversation()
	if conv == nil || conv.IsEmpty() {
		return m.theme.Meta.Render("  No messages yet. Type below to start.")
	}

	lines := make([]string, 0, conv.MessageCount())
	for _, msg := range conv.Messages {
		lines = append(lines, m.renderMessage(msg))
	}
	if m.inFlight > 0 {
		lines = append(lines, m.theme.Spinner.Render(m.spin.View())+m.theme.Meta.Render(" thinking"))
	}
	if lastErr := m.chat.Read().LastError; lastErr != "" {
		lines = append(lines, m.theme.ErrorLine.Render("  "+lastErr))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderMessage(msg *model.Message) string {
	label := msg.Role.DisplayName() + ": "
	switch msg.Role {
	case model.RoleUser:
		return m.theme.UserLine.Render(label) + msg.Content
	case model.RoleAssistant:
		line := m.theme.ReplyLine.Render(label)
		if msg.Content == chat.PlaceholderContent {
			return line + m.theme.Meta.Render(chat.PlaceholderContent)
		}
		line += msg.Content
		if msg.Meta != nil {
			line += "\n" + m.theme.Meta.Render(fmt.Sprintf("  %s via %s · %d tokens · $%.4f",
				msg.Meta.Model, msg.Meta.Provider, msg.Meta.TokensUsed, msg.Meta.Cost))
		}
		return line
	default:
		return m.theme.Meta.Render(label + msg.Content)
	}
}

// renderCrews shows a one-line summary per crew, or nothing when no crews
// exist.
func (m *Model) renderCrews() string {
	st := m.orchestrate.Read()
	if len(st.Crews) == 0 {
		return ""
	}

	lines := make([]string, 0, len(st.Crews)+1)
	lines = append(lines, m.theme.Title.Render("Crews"))
	for _, crew := range st.Crews {
		line := fmt.Sprintf("  %s [%s] %d agents, %d tasks",
			crew.Name, crew.Status, len(crew.AgentIDs), len(crew.Tasks))
		switch crew.Status {
		case model.CrewRunning:
			line += " " + m.theme.Spinner.Render(m.spin.View())
		case model.CrewCompleted:
			line += fmt.Sprintf(" (%.1fs)", crew.Duration.Seconds())
		}
		lines = append(lines, m.theme.StatusBar.Render(line))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderStatusBar() string {
	sampling := m.prefs.Sampling()
	left := fmt.Sprintf("temp %.1f · max %d · top_p %.1f", sampling.Temperature, sampling.MaxTokens, sampling.TopP)
	if sampling.ForceProvider != "" {
		left += " · " + sampling.ForceProvider
	}

	keys := m.theme.Shortcut.Render("enter") + m.theme.StatusBar.Render(" send  ") +
		m.theme.Shortcut.Render("ctrl+n") + m.theme.StatusBar.Render(" new  ") +
		m.theme.Shortcut.Render("ctrl+c") + m.theme.StatusBar.Render(" quit")

	return m.theme.StatusBar.Render(left) + "   " + keys
}
