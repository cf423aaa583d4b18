// Copyright 2026 The Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

package itemdef

import (
	"encoding/base64"
	"fmt"

	"github.com/keyfold/keyfold/vault"
)

// Validate checks a Definition for structural issues. Returns a list
// of human-readable issue descriptions. An empty list means the
// definition is ready to import.
//
// Structural checks:
//   - Kind must be one of the vault item kinds
//   - Name must be non-empty (ReadFile fills the file-name default)
//   - Payload must be non-empty, valid base64
func Validate(definition *Definition) []string {
	var issues []string

	if definition.Kind == "" {
		issues = append(issues, "kind is required")
	} else if _, err := vault.ParseKind(definition.Kind); err != nil {
		issues = append(issues, fmt.Sprintf(
			"unknown kind %q (valid kinds: %s, %s, %s, %s)",
			definition.Kind,
			vault.KindPassword, vault.KindNote, vault.KindKeyPair, vault.KindToken,
		))
	}

	if definition.Name == "" {
		issues = append(issues, "name is required")
	}

	if definition.Payload == "" {
		issues = append(issues, "payload is required")
	} else if _, err := base64.StdEncoding.DecodeString(definition.Payload); err != nil {
		issues = append(issues, fmt.Sprintf("payload is not valid base64: %v", err))
	}

	return issues
}
