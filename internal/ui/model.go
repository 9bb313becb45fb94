// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ui provides the terminal front end. It is a thin shell: all
// state lives in the stores, which the view reads on every render; the
// model here holds only widget state and in-flight counters.
package ui

import (
	"context"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/lexos-tui/internal/chat"
	"github.com/jeranaias/lexos-tui/internal/orchestrate"
	"github.com/jeranaias/lexos-tui/internal/prefs"
)

// =============================================================================
// MESSAGES
// =============================================================================

// stateChangedMsg signals that one of the stores mutated.
type stateChangedMsg struct{}

// connectionMsg carries a push-channel connection transition.
type connectionMsg struct {
	connected bool
}

// sendDoneMsg signals one Send call returned, success or not.
type sendDoneMsg struct{}

// =============================================================================
// MODEL
// =============================================================================

// Model is the root bubbletea model.
type Model struct {
	chat        *chat.Store
	orchestrate *orchestrate.Store
	prefs       *prefs.Store

	theme Theme
	input textarea.Model
	spin  spinner.Model

	width, height int
	inFlight      int
	connected     bool

	// updates funnels store notifications and connection transitions into
	// the bubbletea event loop.
	updates chan tea.Msg
}

// New builds the root model and wires it to the stores. The returned
// cleanup removes the store subscriptions.
func New(chatStore *chat.Store, orchStore *orchestrate.Store, prefStore *prefs.Store) (*Model, func()) {
	input := textarea.New()
	input.Placeholder = "Send a message..."
	input.CharLimit = 0
	input.SetHeight(3)
	input.ShowLineNumbers = false
	input.Focus()

	spin := spinner.New()
	spin.Spinner = spinner.MiniDot

	m := &Model{
		chat:        chatStore,
		orchestrate: orchStore,
		prefs:       prefStore,
		theme:       NewTheme(prefStore.Read().Theme),
		input:       input,
		spin:        spin,
		updates:     make(chan tea.Msg, 64),
	}

	unsubChat := chatStore.Subscribe(func(chat.State) { m.post(stateChangedMsg{}) })
	unsubOrch := orchStore.Subscribe(func(orchestrate.State) { m.post(stateChangedMsg{}) })
	unsubPrefs := prefStore.Subscribe(func(prefs.State) { m.post(stateChangedMsg{}) })

	cleanup := func() {
		unsubChat()
		unsubOrch()
		unsubPrefs()
	}
	return m, cleanup
}

// SetConnected feeds push-channel connection transitions into the event
// loop. Safe to call from any goroutine.
func (m *Model) SetConnected(connected bool) {
	m.post(connectionMsg{connected: connected})
}

// post queues a message for the event loop, dropping it when the buffer is
// full. A dropped state-change notification is harmless: the view re-reads
// the stores on the next render anyway.
func (m *Model) post(msg tea.Msg) {
	select {
	case m.updates <- msg:
	default:
	}
}

// waitForUpdate blocks until the next queued message.
func (m *Model) waitForUpdate() tea.Cmd {
	return func() tea.Msg {
		return <-m.updates
	}
}

// =============================================================================
// BUBBLETEA INTERFACE
// =============================================================================

// Init starts the blink and spinner tickers and the update pump.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spin.Tick, m.waitForUpdate())
}

// Update handles one event.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.SetWidth(msg.Width - 2)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "ctrl+n":
			m.chat.CreateConversation("", "")
			return m, nil
		case "enter":
			return m, m.submit()
		}

	case stateChangedMsg:
		m.theme = NewTheme(m.prefs.Read().Theme)
		return m, m.waitForUpdate()

	case connectionMsg:
		m.connected = msg.connected
		return m, m.waitForUpdate()

	case sendDoneMsg:
		m.inFlight--
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit dispatches the composed message as one chat turn.
func (m *Model) submit() tea.Cmd {
	content := m.input.Value()
	if content == "" {
		return nil
	}
	m.input.Reset()
	m.inFlight++

	return func() tea.Msg {
		m.chat.Send(context.Background(), content)
		return sendDoneMsg{}
	}
}
