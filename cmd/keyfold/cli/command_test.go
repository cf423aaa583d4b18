// Copyright 2026 The Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestCommand_Execute_DispatchesToSubcommand(t *testing.T) {
	var called string

	root := &Command{
		Name: "keyfold",
		Subcommands: []*Command{
			{
				Name: "version",
				Run: func(_ context.Context, args []string) error {
					called = "version"
					return nil
				},
			},
			{
				Name: "status",
				Run: func(_ context.Context, args []string) error {
					called = "status"
					return nil
				},
			},
		},
	}

	if err := root.Execute(t.Context(), []string{"status"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "status" {
		t.Errorf("dispatched to %q, want %q", called, "status")
	}
}

func TestCommand_Execute_NestedSubcommands(t *testing.T) {
	var called string
	var receivedArgs []string

	root := &Command{
		Name: "keyfold",
		Subcommands: []*Command{
			{
				Name: "account",
				Subcommands: []*Command{
					{
						Name: "switch",
						Run: func(_ context.Context, args []string) error {
							called = "account switch"
							receivedArgs = args
							return nil
						},
					},
				},
			},
		},
	}

	if err := root.Execute(t.Context(), []string{"account", "switch", "personal"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "account switch" {
		t.Errorf("dispatched to %q, want %q", called, "account switch")
	}
	if len(receivedArgs) != 1 || receivedArgs[0] != "personal" {
		t.Errorf("args = %v, want [personal]", receivedArgs)
	}
}

func TestCommand_Execute_PassesContext(t *testing.T) {
	type contextKey struct{}
	ctx := context.WithValue(t.Context(), contextKey{}, "threaded")

	var received context.Context
	root := &Command{
		Name: "keyfold",
		Subcommands: []*Command{
			{
				Name: "watch",
				Run: func(ctx context.Context, args []string) error {
					received = ctx
					return nil
				},
			},
		},
	}

	if err := root.Execute(ctx, []string{"watch"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if received == nil || received.Value(contextKey{}) != "threaded" {
		t.Error("Run did not receive the context passed to Execute")
	}
}

func TestCommand_Execute_FlagParsing(t *testing.T) {
	var socketPath string
	var target string

	command := &Command{
		Name: "watch",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("watch", pflag.ContinueOnError)
			flagSet.StringVar(&socketPath, "socket", "/default.sock", "socket path")
			return flagSet
		},
		Run: func(_ context.Context, args []string) error {
			if len(args) > 0 {
				target = args[0]
			}
			return nil
		},
	}

	if err := command.Execute(t.Context(), []string{"--socket", "/custom.sock", "forge/deploy-key"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if socketPath != "/custom.sock" {
		t.Errorf("socketPath = %q, want %q", socketPath, "/custom.sock")
	}
	if target != "forge/deploy-key" {
		t.Errorf("target = %q, want %q", target, "forge/deploy-key")
	}
}

func TestCommand_Execute_UnknownFlagSuggestion(t *testing.T) {
	command := &Command{
		Name: "export",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("export", pflag.ContinueOnError)
			flagSet.String("compression", "zstd", "bundle compression")
			flagSet.String("output", "", "output path")
			return flagSet
		},
		Run: func(_ context.Context, args []string) error { return nil },
	}

	err := command.Execute(t.Context(), []string{"--compresion", "lz4"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown flag")
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "did you mean --compression") {
		t.Errorf("error = %q, want suggestion for '--compression'", errStr)
	}
	// Suggestion should be on the same line as the error, not buried.
	if !strings.Contains(errStr, "compresion") {
		t.Errorf("error = %q, should mention the bad flag", errStr)
	}
	// Should include a pointer to --help.
	if !strings.Contains(errStr, "--help") {
		t.Errorf("error = %q, should point to --help", errStr)
	}
}

func TestCommand_Execute_UnknownFlagNoSuggestion(t *testing.T) {
	command := &Command{
		Name: "export",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("export", pflag.ContinueOnError)
			flagSet.String("compression", "zstd", "bundle compression")
			return flagSet
		},
		Run: func(_ context.Context, args []string) error { return nil },
	}

	err := command.Execute(t.Context(), []string{"--zzzzzzzzz"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown flag")
	}
	if strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error = %q, should not suggest for distant flag", err.Error())
	}
	if !strings.Contains(err.Error(), "--help") {
		t.Errorf("error = %q, should point to --help", err.Error())
	}
}

func TestCommand_Execute_UnknownSubcommandSuggestion(t *testing.T) {
	root := &Command{
		Name: "keyfold",
		Subcommands: []*Command{
			{Name: "account"},
			{Name: "status"},
			{Name: "version"},
		},
	}

	err := root.Execute(t.Context(), []string{"accont"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown subcommand")
	}
	if !strings.Contains(err.Error(), "did you mean \"account\"") {
		t.Errorf("error = %q, want suggestion for 'account'", err.Error())
	}
}

func TestCommand_Execute_UnknownSubcommandNoSuggestion(t *testing.T) {
	root := &Command{
		Name: "keyfold",
		Subcommands: []*Command{
			{Name: "account"},
			{Name: "status"},
		},
	}

	err := root.Execute(t.Context(), []string{"zzzzzzz"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown subcommand")
	}
	if strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error = %q, should not contain suggestion for distant input", err.Error())
	}
}

func TestCommand_Execute_HelpFlag(t *testing.T) {
	for _, helpArg := range []string{"-h", "--help", "help"} {
		t.Run(helpArg, func(t *testing.T) {
			root := &Command{
				Name:    "keyfold",
				Summary: "Secrets manager client",
				Subcommands: []*Command{
					{Name: "account", Summary: "Account operations"},
				},
			}

			err := root.Execute(t.Context(), []string{helpArg})
			if err != nil {
				t.Errorf("Execute(%q) error: %v", helpArg, err)
			}
		})
	}
}

func TestCommand_Execute_NoArgsShowsHelp(t *testing.T) {
	root := &Command{
		Name: "keyfold",
		Subcommands: []*Command{
			{Name: "account", Summary: "Account operations"},
		},
	}

	err := root.Execute(t.Context(), []string{})
	if err == nil {
		t.Fatal("Execute() = nil, want error for missing subcommand")
	}
	if !strings.Contains(err.Error(), "subcommand required") {
		t.Errorf("error = %q, want 'subcommand required'", err.Error())
	}
}

func TestCommand_PrintHelp(t *testing.T) {
	command := &Command{
		Name:        "keyfold",
		Description: "Self-hosted secrets manager client.",
		Subcommands: []*Command{
			{Name: "status", Summary: "Show daemon health"},
			{Name: "account", Summary: "Manage vault accounts"},
			{Name: "version", Summary: "Print version information"},
		},
		Examples: []Example{
			{
				Description: "Follow live vault snapshots",
				Command:     "keyfold watch",
			},
			{
				Description: "Add and activate an account",
				Command:     "keyfold account add personal --server-url https://vault.example.com",
			},
		},
	}

	var buffer bytes.Buffer
	command.PrintHelp(&buffer)
	output := buffer.String()

	// Verify structural elements are present.
	for _, want := range []string{
		"Self-hosted secrets manager client.",
		"Usage:",
		"keyfold <command> [flags]",
		"Commands:",
		"status",
		"Show daemon health",
		"account",
		"Manage vault accounts",
		"Examples:",
		"keyfold watch",
		"keyfold account add personal",
		"Run 'keyfold <command> --help'",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("help output missing %q\n\nFull output:\n%s", want, output)
		}
	}
}

func TestCommand_PrintHelp_WithFlags(t *testing.T) {
	command := &Command{
		Name:    "export",
		Summary: "Export the active account's vault",
		Usage:   "keyfold export [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("export", pflag.ContinueOnError)
			flagSet.String("output", "", "write the bundle to this file")
			flagSet.String("compression", "zstd", "bundle compression")
			return flagSet
		},
	}

	var buffer bytes.Buffer
	command.PrintHelp(&buffer)
	output := buffer.String()

	for _, want := range []string{
		"keyfold export [flags]",
		"Flags:",
		"output",
		"compression",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("help output missing %q\n\nFull output:\n%s", want, output)
		}
	}
}

func TestCommand_FullName(t *testing.T) {
	root := &Command{Name: "keyfold"}
	account := &Command{Name: "account", parent: root}
	switchCmd := &Command{Name: "switch", parent: account}

	if got := root.fullName(); got != "keyfold" {
		t.Errorf("root.fullName() = %q, want %q", got, "keyfold")
	}
	if got := account.fullName(); got != "keyfold account" {
		t.Errorf("account.fullName() = %q, want %q", got, "keyfold account")
	}
	if got := switchCmd.fullName(); got != "keyfold account switch" {
		t.Errorf("switchCmd.fullName() = %q, want %q", got, "keyfold account switch")
	}
}
