// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store provides the shared state container used by every state
// machine in the client.
package store

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/jeranaias/lexos-tui/internal/util"
)

// =============================================================================
// STORE TYPE
// =============================================================================

// Listener receives the full state after every update.
type Listener[T any] func(state T)

// Store holds a single typed state value and funnels all mutation through
// Update, so readers never observe a partially applied change.
//
// When a snapshot directory is configured the state is serialized to
// <dir>/<name>.json after every update using an atomic write, and rehydrated
// on construction. A missing or unreadable snapshot falls back to the
// provided default state; it never fails construction, so one corrupt store
// cannot take down the others.
type Store[T any] struct {
	mu        sync.Mutex
	state     T
	listeners []Listener[T]

	// Snapshot configuration. Empty dir disables persistence.
	name string
	dir  string
}

// New creates an in-memory store with no snapshot persistence.
func New[T any](initial T) *Store[T] {
	return &Store[T]{state: initial}
}

// Open creates a store named for its snapshot file under dir, rehydrating
// prior state when a schema-compatible snapshot exists.
func Open[T any](name, dir string, defaults T) *Store[T] {
	s := &Store[T]{state: defaults, name: name, dir: dir}

	data, err := os.ReadFile(s.snapshotPath())
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("store %s: unreadable snapshot, using defaults: %v", name, err)
		}
		return s
	}

	var restored T
	if err := json.Unmarshal(data, &restored); err != nil {
		log.Printf("store %s: corrupt snapshot, using defaults: %v", name, err)
		return s
	}

	s.state = restored
	return s
}

// =============================================================================
// READ / UPDATE / SUBSCRIBE
// =============================================================================

// Read returns the current state.
func (s *Store[T]) Read() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Update applies the mutator atomically and notifies all current
// subscribers with the new state. Listeners registered during notification
// are not invoked for that cycle.
//
// The mutator must treat the state it receives as immutable: any entity it
// changes must be replaced by a copy, never written through a shared
// pointer, because snapshots handed out by Read are still being read
// elsewhere.
func (s *Store[T]) Update(mutator func(state T) T) {
	s.mu.Lock()
	s.state = mutator(s.state)
	state := s.state

	// Snapshot the listener list so listeners added during this
	// notification wait for the next cycle.
	listeners := make([]Listener[T], len(s.listeners))
	copy(listeners, s.listeners)

	// Persist before releasing the lock. Concurrent updates would otherwise
	// race their snapshot writes and could leave the older state durable.
	s.persist(state)
	s.mu.Unlock()

	for _, fn := range listeners {
		if fn != nil {
			fn(state)
		}
	}
}

// Subscribe registers a listener for future updates and returns a function
// that removes it.
func (s *Store[T]) Subscribe(fn Listener[T]) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.listeners = append(s.listeners, fn)
	idx := len(s.listeners) - 1

	removed := false
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if removed || idx >= len(s.listeners) {
			return
		}
		// Replace rather than reslice so indices held by other
		// unsubscribe closures stay valid.
		s.listeners[idx] = nil
		removed = true
	}
}

// =============================================================================
// SNAPSHOT PERSISTENCE
// =============================================================================

// persist writes the snapshot if persistence is configured. Snapshot
// failures are logged, never propagated: losing durability must not break a
// mutation that already happened in memory.
func (s *Store[T]) persist(state T) {
	if s.dir == "" {
		return
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		log.Printf("store %s: snapshot marshal failed: %v", s.name, err)
		return
	}

	if err := util.AtomicWriteFile(s.snapshotPath(), data, 0644); err != nil {
		log.Printf("store %s: snapshot write failed: %v", s.name, err)
	}
}

func (s *Store[T]) snapshotPath() string {
	return filepath.Join(s.dir, s.name+".json")
}
