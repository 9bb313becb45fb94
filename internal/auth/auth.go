// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package auth stores the bearer credential attached to backend calls.
//
// Absence of a credential is not an error: anonymous calls are attempted
// and the backend decides whether to reject them.
package auth

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jeranaias/lexos-tui/internal/util"
)

// tokenFile is the credential file name under the state directory.
const tokenFile = "credentials"

// Store reads and writes the bearer credential. It implements the API
// client's CredentialSource.
type Store struct {
	mu    sync.Mutex
	path  string
	token string
}

// NewStore opens the credential store under the given state directory,
// loading any previously saved token.
func NewStore(stateDir string) *Store {
	s := &Store{path: filepath.Join(stateDir, tokenFile)}
	if data, err := os.ReadFile(s.path); err == nil {
		s.token = strings.TrimSpace(string(data))
	}
	return s
}

// Token returns the current bearer credential, or "" when none is stored.
func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// SetToken persists a new credential. The file is written with owner-only
// permissions.
func (s *Store) SetToken(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	token = strings.TrimSpace(token)
	if err := util.AtomicWriteFile(s.path, []byte(token+"\n"), 0600); err != nil {
		return err
	}
	s.token = token
	return nil
}

// Clear removes the stored credential. Clearing an absent credential is a
// no-op.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	s.token = ""
	return nil
}
