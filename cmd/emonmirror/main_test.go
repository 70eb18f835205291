package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/emonmirror/emonmirror/pkg/registry"
	"github.com/emonmirror/emonmirror/pkg/storage/badger"
)

// runCommand executes the CLI in process and captures its output.
func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	root := newRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)

	err := root.Execute()
	return buf.String(), err
}

func TestVersion(t *testing.T) {
	out, err := runCommand(t, "--version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(out, "emonmirror version") {
		t.Errorf("Unexpected version output %q", out)
	}
}

func TestInit_RejectsInvalidFeedID(t *testing.T) {
	_, err := runCommand(t, "--data-dir", t.TempDir(), "init", "abc")
	if err == nil || !strings.Contains(err.Error(), "invalid feed id") {
		t.Errorf("Expected invalid feed id error, got %v", err)
	}
}

func TestInit_RequiresCredentials(t *testing.T) {
	t.Setenv("EMONMIRROR_URL", "")
	t.Setenv("EMONMIRROR_APIKEY", "")

	_, err := runCommand(t, "--data-dir", t.TempDir(), "init", "1")
	if err == nil || !strings.Contains(err.Error(), "EMONMIRROR_URL") {
		t.Errorf("Expected missing credentials error, got %v", err)
	}
}

func TestFeeds_RegisteredButNeverUpdated(t *testing.T) {
	dir := t.TempDir()

	store, err := badger.New(badger.Config{Path: dir})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	reg := &registry.Registry{Feeds: []registry.Feed{{ID: 1, Name: "solar", Unit: "W", Interval: 10}}}
	if err := store.SaveRegistry(context.Background(), reg); err != nil {
		t.Fatalf("SaveRegistry failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// No series has been mirrored yet; the listing must still work.
	out, err := runCommand(t, "--data-dir", dir, "feeds")
	if err != nil {
		t.Fatalf("feeds failed: %v", err)
	}
	if !strings.Contains(out, "solar") || !strings.Contains(out, "0 ticks") {
		t.Errorf("Unexpected feeds output %q", out)
	}
}

func TestShow_UnknownFeed(t *testing.T) {
	_, err := runCommand(t, "--data-dir", t.TempDir(), "show", "solar")
	if err == nil || !strings.Contains(err.Error(), "no series") {
		t.Errorf("Expected missing series error, got %v", err)
	}
}

func TestEnergy_RejectsBadPeriod(t *testing.T) {
	_, err := runCommand(t, "--data-dir", t.TempDir(), "energy", "solar", "--period", "fortnight")
	if err == nil || !strings.Contains(err.Error(), "invalid period") {
		t.Errorf("Expected invalid period error, got %v", err)
	}
}

func TestSummary_RequiresTotalFlag(t *testing.T) {
	_, err := runCommand(t, "--data-dir", t.TempDir(), "summary")
	if err == nil {
		t.Error("Expected error without --total")
	}
}
