// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package prefs holds user preference state: sampling parameters carried on
// every chat turn, plus appearance settings.
package prefs

import (
	"github.com/jeranaias/lexos-tui/internal/store"
)

// StoreName is the snapshot name for preference state.
const StoreName = "preferences"

// Sampling holds the model preferences sent with each chat request.
type Sampling struct {
	Temperature   float64 `json:"temperature"`
	MaxTokens     int     `json:"max_tokens"`
	TopP          float64 `json:"top_p"`
	ForceProvider string  `json:"force_provider,omitempty"`
}

// State is the full preference state.
type State struct {
	Sampling Sampling `json:"sampling"`
	Theme    string   `json:"theme"`
}

// Defaults returns the initial preference state, matching the backend's
// own request defaults.
func Defaults() State {
	return State{
		Sampling: Sampling{
			Temperature: 0.7,
			MaxTokens:   1024,
			TopP:        0.9,
		},
		Theme: "dark",
	}
}

// Store wraps the persisted preference container.
type Store struct {
	state *store.Store[State]
}

// Open rehydrates preference state from the given directory.
func Open(dir string) *Store {
	return &Store{state: store.Open(StoreName, dir, Defaults())}
}

// NewInMemory creates a preference store with no persistence, for tests.
func NewInMemory() *Store {
	return &Store{state: store.New(Defaults())}
}

// Read returns the current preference state.
func (s *Store) Read() State {
	return s.state.Read()
}

// Subscribe registers a listener for preference changes.
func (s *Store) Subscribe(fn store.Listener[State]) func() {
	return s.state.Subscribe(fn)
}

// Sampling returns the current sampling parameters.
func (s *Store) Sampling() Sampling {
	return s.state.Read().Sampling
}

// SetSampling replaces the sampling parameters.
func (s *Store) SetSampling(sampling Sampling) {
	s.state.Update(func(st State) State {
		st.Sampling = sampling
		return st
	})
}

// SetTheme sets the appearance theme name.
func (s *Store) SetTheme(theme string) {
	s.state.Update(func(st State) State {
		st.Theme = theme
		return st
	})
}
