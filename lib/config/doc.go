// Copyright 2026 The Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads keyfold's configuration.
//
// Configuration comes from a single YAML file named by the
// KEYFOLD_CONFIG environment variable or a --config flag. When
// neither is given, built-in defaults rooted at ~/.keyfold apply, so
// a fresh installation runs with no file at all. Environment
// variables never override file values; the only expansion performed
// is ${VAR} and ${VAR:-default} inside path fields, for portability
// of shared config files.
package config
