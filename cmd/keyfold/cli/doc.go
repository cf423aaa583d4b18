// Copyright 2026 The Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command-line framework for the keyfold CLI.
//
// The central type is [Command], which represents a named subcommand
// with optional nested [Command.Subcommands], a [pflag.FlagSet]
// factory, and a Run function. Commands are assembled into a tree in
// cmd/keyfold/commands and dispatched via [Command.Execute], which
// handles flag parsing, subcommand routing, and structured help output
// with examples.
//
// When a user types an unknown subcommand or flag, the framework
// computes Levenshtein edit distance against all known names and
// suggests the closest match (threshold: distance <= 3). This is
// implemented in suggest.go.
//
// Command parameters are plain structs with `flag`, `desc`, and
// `default` tags bound through [FlagsFromParams]. Embedding
// [DaemonConnection] gives a command the shared --socket flag and a
// Connect method for reaching keyfoldd; embedding [JSONOutput] gives
// it --json and the EmitJSON helper.
package cli
