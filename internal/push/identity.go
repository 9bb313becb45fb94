// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package push

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/jeranaias/lexos-tui/internal/util"
)

// clientIDFile is the name of the persisted client identifier under the
// state directory.
const clientIDFile = "client_id"

// LoadClientID returns the locally generated, storage-persisted client
// identifier used to address this client's push channel. It is generated
// once per installation and reused across restarts so the backend sees a
// stable identity.
func LoadClientID(stateDir string) (string, error) {
	path := filepath.Join(stateDir, clientIDFile)

	data, err := os.ReadFile(path)
	if err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	} else if !os.IsNotExist(err) {
		return "", err
	}

	id := uuid.NewString()
	if err := util.AtomicWriteFile(path, []byte(id+"\n"), 0600); err != nil {
		return "", err
	}
	return id, nil
}
