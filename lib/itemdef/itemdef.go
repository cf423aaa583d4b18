// Copyright 2026 The Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

// Package itemdef provides parsing and validation for vault item
// definitions. Definitions are authored on disk as JSONC files (JSON
// extended with comments and trailing commas) and imported into the
// vault through the daemon's item.put action.
//
// The typical flow:
//
//  1. ReadFile or Parse: JSONC bytes → Definition
//  2. Validate: structural checks (known kind, name, decodable payload)
//  3. PayloadBytes: base64 payload → sealed ciphertext for the daemon
package itemdef

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
)

// Definition is the on-disk authoring format for a vault item. Payload
// carries the sealed ciphertext base64-encoded, since the definition
// file is text. Name may be omitted; ReadFile then derives it from the
// file name.
type Definition struct {
	Kind    string `json:"kind"`
	Name    string `json:"name,omitempty"`
	Payload string `json:"payload"`
}

// Parse strips JSONC comments and trailing commas from data, then
// unmarshals the result into a Definition.
func Parse(data []byte) (*Definition, error) {
	stripped := jsonc.ToJSON(data)

	var definition Definition
	if err := json.Unmarshal(stripped, &definition); err != nil {
		return nil, fmt.Errorf("parsing item definition: %w", err)
	}

	return &definition, nil
}

// ReadFile reads a JSONC item definition from disk and parses it. A
// definition without a name takes the file's base name (extension
// stripped): "secrets/forge-deploy.jsonc" becomes "forge-deploy".
func ReadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	definition, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if definition.Name == "" {
		definition.Name = NameFromPath(path)
	}

	return definition, nil
}

// NameFromPath extracts an item name from a file path by stripping the
// directory prefix and the file extension.
func NameFromPath(path string) string {
	base := filepath.Base(path)
	extension := filepath.Ext(base)
	return strings.TrimSuffix(base, extension)
}

// PayloadBytes decodes the base64 payload into the sealed ciphertext
// bytes sent to the daemon.
func (d *Definition) PayloadBytes() ([]byte, error) {
	decoded, err := base64.StdEncoding.DecodeString(d.Payload)
	if err != nil {
		return nil, fmt.Errorf("decoding payload: %w", err)
	}
	return decoded, nil
}
