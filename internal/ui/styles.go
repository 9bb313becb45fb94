// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import "github.com/charmbracelet/lipgloss"

// Theme holds the styled components for the application.
type Theme struct {
	Header    lipgloss.Style
	Title     lipgloss.Style
	ConnUp    lipgloss.Style
	ConnDown  lipgloss.Style
	UserLine  lipgloss.Style
	ReplyLine lipgloss.Style
	Meta      lipgloss.Style
	ErrorLine lipgloss.Style
	Spinner   lipgloss.Style
	StatusBar lipgloss.Style
	Shortcut  lipgloss.Style
}

// NewTheme builds the style set for the named theme. Unknown names fall
// back to dark.
func NewTheme(name string) Theme {
	fg := lipgloss.Color("252")
	dim := lipgloss.Color("241")
	accent := lipgloss.Color("39")
	if name == "light" {
		fg = lipgloss.Color("235")
		dim = lipgloss.Color("245")
		accent = lipgloss.Color("27")
	}

	return Theme{
		Header:    lipgloss.NewStyle().Foreground(fg).Bold(true).Padding(0, 1),
		Title:     lipgloss.NewStyle().Foreground(accent).Bold(true),
		ConnUp:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		ConnDown:  lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		UserLine:  lipgloss.NewStyle().Foreground(accent),
		ReplyLine: lipgloss.NewStyle().Foreground(fg),
		Meta:      lipgloss.NewStyle().Foreground(dim).Italic(true),
		ErrorLine: lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		Spinner:   lipgloss.NewStyle().Foreground(accent),
		StatusBar: lipgloss.NewStyle().Foreground(dim),
		Shortcut:  lipgloss.NewStyle().Foreground(fg).Bold(true),
	}
}
