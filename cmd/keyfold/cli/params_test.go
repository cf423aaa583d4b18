// Copyright 2026 The Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestBindFlags_BasicTypes(t *testing.T) {
	type params struct {
		Name     string        `flag:"name" desc:"the name"`
		Verbose  bool          `flag:"verbose,v" desc:"enable verbose output"`
		Count    int           `flag:"count" desc:"number of items"`
		Timeout  time.Duration `flag:"timeout" desc:"request timeout"`
		Tags     []string      `flag:"tags" desc:"tag list"`
		Untagged string        // no flag tag — should be skipped
	}

	var p params
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	if err := BindFlags(&p, flagSet); err != nil {
		t.Fatalf("BindFlags: %v", err)
	}

	err := flagSet.Parse([]string{
		"--name", "personal",
		"-v",
		"--count", "42",
		"--timeout", "30s",
		"--tags", "a,b,c",
	})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if p.Name != "personal" {
		t.Errorf("Name = %q, want %q", p.Name, "personal")
	}
	if !p.Verbose {
		t.Error("Verbose = false, want true")
	}
	if p.Count != 42 {
		t.Errorf("Count = %d, want 42", p.Count)
	}
	if p.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", p.Timeout)
	}
	if len(p.Tags) != 3 || p.Tags[0] != "a" || p.Tags[1] != "b" || p.Tags[2] != "c" {
		t.Errorf("Tags = %v, want [a b c]", p.Tags)
	}
	if p.Untagged != "" {
		t.Errorf("Untagged = %q, want empty (should be skipped)", p.Untagged)
	}
}

func TestBindFlags_Defaults(t *testing.T) {
	type params struct {
		Host    string        `flag:"host" desc:"server host" default:"localhost"`
		Port    int           `flag:"port" desc:"server port" default:"8080"`
		Timeout time.Duration `flag:"timeout" desc:"timeout" default:"10s"`
		Debug   bool          `flag:"debug" desc:"debug mode" default:"true"`
		Tags    []string      `flag:"tags" desc:"tags" default:"x,y"`
	}

	var p params
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	if err := BindFlags(&p, flagSet); err != nil {
		t.Fatalf("BindFlags: %v", err)
	}

	// Parse with no arguments — should get all defaults.
	if err := flagSet.Parse(nil); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if p.Host != "localhost" {
		t.Errorf("Host = %q, want %q", p.Host, "localhost")
	}
	if p.Port != 8080 {
		t.Errorf("Port = %d, want 8080", p.Port)
	}
	if p.Timeout != 10*time.Second {
		t.Errorf("Timeout = %v, want 10s", p.Timeout)
	}
	if !p.Debug {
		t.Error("Debug = false, want true")
	}
	if len(p.Tags) != 2 || p.Tags[0] != "x" || p.Tags[1] != "y" {
		t.Errorf("Tags = %v, want [x y]", p.Tags)
	}
}

func TestBindFlags_DefaultsOverriddenByCLI(t *testing.T) {
	type params struct {
		Host string `flag:"host" desc:"server host" default:"localhost"`
		Port int    `flag:"port" desc:"server port" default:"8080"`
	}

	var p params
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	if err := BindFlags(&p, flagSet); err != nil {
		t.Fatalf("BindFlags: %v", err)
	}

	if err := flagSet.Parse([]string{"--host", "example.com", "--port", "9090"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if p.Host != "example.com" {
		t.Errorf("Host = %q, want %q", p.Host, "example.com")
	}
	if p.Port != 9090 {
		t.Errorf("Port = %d, want 9090", p.Port)
	}
}

// TestParamsBinder implements FlagBinder for testing. Named and embedded
// fields use this to verify that BindFlags calls AddFlags instead of
// reflecting tags. Exported so that reflect can call Interface() on it
// when embedded.
type TestParamsBinder struct {
	Alpha string
	Beta  int
}

func (b *TestParamsBinder) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&b.Alpha, "alpha", "", "alpha value")
	flagSet.IntVar(&b.Beta, "beta", 0, "beta value")
}

func TestBindFlags_NamedFlagBinder(t *testing.T) {
	type params struct {
		Binder TestParamsBinder
		Extra  string `flag:"extra" desc:"extra flag"`
	}

	var p params
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	if err := BindFlags(&p, flagSet); err != nil {
		t.Fatalf("BindFlags: %v", err)
	}

	if err := flagSet.Parse([]string{"--alpha", "hello", "--beta", "7", "--extra", "world"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if p.Binder.Alpha != "hello" {
		t.Errorf("Binder.Alpha = %q, want %q", p.Binder.Alpha, "hello")
	}
	if p.Binder.Beta != 7 {
		t.Errorf("Binder.Beta = %d, want 7", p.Binder.Beta)
	}
	if p.Extra != "world" {
		t.Errorf("Extra = %q, want %q", p.Extra, "world")
	}
}

func TestBindFlags_EmbeddedFlagBinder(t *testing.T) {
	type params struct {
		TestParamsBinder
		Extra string `flag:"extra" desc:"extra flag"`
	}

	var p params
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	if err := BindFlags(&p, flagSet); err != nil {
		t.Fatalf("BindFlags: %v", err)
	}

	if err := flagSet.Parse([]string{"--alpha", "hello", "--extra", "world"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if p.Alpha != "hello" {
		t.Errorf("Alpha = %q, want %q", p.Alpha, "hello")
	}
	if p.Extra != "world" {
		t.Errorf("Extra = %q, want %q", p.Extra, "world")
	}
}

func TestBindFlags_EmbeddedStructRecursion(t *testing.T) {
	type inner struct {
		Foo string `flag:"foo" desc:"foo flag"`
		Bar int    `flag:"bar" desc:"bar flag"`
	}
	type params struct {
		inner
		Baz bool `flag:"baz" desc:"baz flag"`
	}

	var p params
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	if err := BindFlags(&p, flagSet); err != nil {
		t.Fatalf("BindFlags: %v", err)
	}

	if err := flagSet.Parse([]string{"--foo", "hello", "--bar", "5", "--baz"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if p.Foo != "hello" {
		t.Errorf("Foo = %q, want %q", p.Foo, "hello")
	}
	if p.Bar != 5 {
		t.Errorf("Bar = %d, want 5", p.Bar)
	}
	if !p.Baz {
		t.Error("Baz = false, want true")
	}
}

func TestBindFlags_Shorthand(t *testing.T) {
	type params struct {
		Output  string `flag:"output,o" desc:"output path"`
		Verbose bool   `flag:"verbose,v" desc:"verbose mode"`
	}

	var p params
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	if err := BindFlags(&p, flagSet); err != nil {
		t.Fatalf("BindFlags: %v", err)
	}

	if err := flagSet.Parse([]string{"-o", "/tmp/out", "-v"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if p.Output != "/tmp/out" {
		t.Errorf("Output = %q, want %q", p.Output, "/tmp/out")
	}
	if !p.Verbose {
		t.Error("Verbose = false, want true")
	}
}

func TestBindFlags_ErrorNotPointer(t *testing.T) {
	type params struct {
		Name string `flag:"name"`
	}
	var p params
	err := BindFlags(p, pflag.NewFlagSet("test", pflag.ContinueOnError))
	if err == nil {
		t.Fatal("expected error for non-pointer, got nil")
	}
	if want := "params must be a pointer to a struct"; !strings.Contains(err.Error(), want) {
		t.Errorf("error = %q, want substring %q", err.Error(), want)
	}
}

func TestBindFlags_ErrorNotStruct(t *testing.T) {
	s := "not a struct"
	err := BindFlags(&s, pflag.NewFlagSet("test", pflag.ContinueOnError))
	if err == nil {
		t.Fatal("expected error for non-struct, got nil")
	}
}

func TestBindFlags_ErrorBadDefault(t *testing.T) {
	type params struct {
		Count int `flag:"count" default:"not_a_number"`
	}
	var p params
	err := BindFlags(&p, pflag.NewFlagSet("test", pflag.ContinueOnError))
	if err == nil {
		t.Fatal("expected error for bad default, got nil")
	}
}

func TestBindFlags_ErrorUnsupportedType(t *testing.T) {
	type params struct {
		Rate float64 `flag:"rate" desc:"sampling rate"`
	}
	var p params
	err := BindFlags(&p, pflag.NewFlagSet("test", pflag.ContinueOnError))
	if err == nil {
		t.Fatal("expected error for unsupported field type, got nil")
	}
	if !strings.Contains(err.Error(), "unsupported type") {
		t.Errorf("error = %q, want 'unsupported type'", err.Error())
	}
}

func TestFlagsFromParams(t *testing.T) {
	type params struct {
		Name string `flag:"name" desc:"the name" default:"world"`
	}

	var p params
	flagSet := FlagsFromParams("test", &p)

	if err := flagSet.Parse([]string{"--name", "personal"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.Name != "personal" {
		t.Errorf("Name = %q, want %q", p.Name, "personal")
	}
}

func TestFlagsFromParams_DefaultUsedWhenNotParsed(t *testing.T) {
	type params struct {
		Name string `flag:"name" desc:"the name" default:"world"`
	}

	var p params
	flagSet := FlagsFromParams("test", &p)

	if err := flagSet.Parse(nil); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.Name != "world" {
		t.Errorf("Name = %q, want %q", p.Name, "world")
	}
}

func TestFlagsFromParams_Panics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for nil input, got none")
		}
	}()
	FlagsFromParams("test", nil)
}

func TestBindFlags_FieldsWithoutTagSkipped(t *testing.T) {
	type params struct {
		Tagged   string `flag:"tagged" desc:"has tag"`
		NoTag    string
		JSONOnly string `json:"json_only"`
	}

	var p params
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	if err := BindFlags(&p, flagSet); err != nil {
		t.Fatalf("BindFlags: %v", err)
	}

	// Only --tagged should be registered.
	if flagSet.Lookup("tagged") == nil {
		t.Error("expected --tagged to be registered")
	}
	if flagSet.Lookup("no-tag") != nil {
		t.Error("expected no --no-tag flag")
	}
	if flagSet.Lookup("json_only") != nil {
		t.Error("expected no --json_only flag")
	}
}

func TestBindFlags_DaemonConnectionCompatibility(t *testing.T) {
	// Verify that DaemonConnection (which implements FlagBinder via
	// AddFlags) works embedded in a params struct alongside JSONOutput.
	type params struct {
		DaemonConnection
		JSONOutput
		Compression string `flag:"compression" desc:"bundle compression" default:"zstd"`
	}

	var p params
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	if err := BindFlags(&p, flagSet); err != nil {
		t.Fatalf("BindFlags: %v", err)
	}

	// DaemonConnection and JSONOutput flags should be registered.
	if flagSet.Lookup("socket") == nil {
		t.Error("expected --socket from DaemonConnection")
	}
	if flagSet.Lookup("json") == nil {
		t.Error("expected --json from JSONOutput")
	}
	// Own flags should also be registered.
	if flagSet.Lookup("compression") == nil {
		t.Error("expected --compression")
	}

	if err := flagSet.Parse([]string{"--socket", "/tmp/keyfoldd.sock", "--json"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.SocketPath != "/tmp/keyfoldd.sock" {
		t.Errorf("SocketPath = %q, want %q", p.SocketPath, "/tmp/keyfoldd.sock")
	}
	if !p.OutputJSON {
		t.Error("OutputJSON = false, want true")
	}
	if p.Compression != "zstd" {
		t.Errorf("Compression = %q, want default %q", p.Compression, "zstd")
	}
}

func TestBindFlags_PositionalArgsRemain(t *testing.T) {
	type params struct {
		Kind string `flag:"kind" desc:"item kind" default:"password"`
	}

	var p params
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	if err := BindFlags(&p, flagSet); err != nil {
		t.Fatalf("BindFlags: %v", err)
	}

	if err := flagSet.Parse([]string{"--kind", "note", "forge/deploy-key"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	remaining := flagSet.Args()
	if len(remaining) != 1 || remaining[0] != "forge/deploy-key" {
		t.Errorf("remaining args = %v, want [forge/deploy-key]", remaining)
	}
	if p.Kind != "note" {
		t.Errorf("Kind = %q, want %q", p.Kind, "note")
	}
}
