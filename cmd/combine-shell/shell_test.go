package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/KevoDB/combiner/pkg/common/log"
	"github.com/KevoDB/combiner/pkg/config"
	"github.com/KevoDB/combiner/pkg/memtable"
	"github.com/KevoDB/combiner/pkg/telemetry"
)

func newTestShell(t *testing.T) (*shell, *bytes.Buffer) {
	t.Helper()
	out := &bytes.Buffer{}
	sh := newShell(out, memStore{memtable.NewMemTable()}, log.NewDiscardLogger(), telemetry.NewForTesting(), 2)
	return sh, out
}

// run executes each line and returns the output of the last one
func run(t *testing.T, sh *shell, out *bytes.Buffer, lines ...string) string {
	t.Helper()
	for _, line := range lines {
		out.Reset()
		if sh.execute(line) {
			t.Fatalf("unexpected exit on %q", line)
		}
	}
	return out.String()
}

func TestShellCombinesOnScan(t *testing.T) {
	sh, out := newTestShell(t)

	got := run(t, sh, out,
		"PUT A f x - 3 1",
		"PUT A f y - 2 2",
		"PUT B f z - 5 3",
		"SCAN",
	)

	if !strings.Contains(got, "A f:x [] 3: 3") {
		t.Errorf("expected combined row A, got:\n%s", got)
	}
	if !strings.Contains(got, "B f:z [] 5: 3") {
		t.Errorf("expected row B, got:\n%s", got)
	}
	if !strings.Contains(got, "2 entries found") {
		t.Errorf("expected 2 entries, got:\n%s", got)
	}

	got = run(t, sh, out, "RAW A")
	if !strings.Contains(got, "2 entries found") {
		t.Errorf("expected the raw records of row A, got:\n%s", got)
	}
}

func TestShellDeletionMarkers(t *testing.T) {
	sh, out := newTestShell(t)

	got := run(t, sh, out,
		"PUT A f x - 3 1",
		"PUT A f x - 2 1",
		"DELETE A f x - 4",
		"PUT A g x - 1 7",
		"SCAN",
	)
	if !strings.Contains(got, "A g:x [] 1: 7") || !strings.Contains(got, "1 entries found") {
		t.Errorf("expected only family g to survive, got:\n%s", got)
	}

	got = run(t, sh, out, "RAW")
	if !strings.Contains(got, "A f:x [] 4 deleted") {
		t.Errorf("expected the raw deletion marker, got:\n%s", got)
	}
}

func TestShellReducerSwitch(t *testing.T) {
	sh, out := newTestShell(t)

	got := run(t, sh, out, ".reducer max encoding=fixedlen")
	if !strings.Contains(got, "Reducer set to max") {
		t.Fatalf("unexpected output:\n%s", got)
	}

	got = run(t, sh, out,
		"PUT A f x - 3 4",
		"PUT A f y - 2 9",
		"SCAN",
	)
	if !strings.Contains(got, "A f:y [] 3: 9") {
		t.Errorf("expected max value 9 under qualifier y, got:\n%s", got)
	}

	got = run(t, sh, out, ".reducer")
	if !strings.Contains(got, "encoding = fixedlen") {
		t.Errorf("expected the configured encoding, got:\n%s", got)
	}

	got = run(t, sh, out, ".reducer max color=red")
	if !strings.Contains(got, "Error:") {
		t.Errorf("expected an option error, got:\n%s", got)
	}

	got = run(t, sh, out, ".reducer median")
	if !strings.Contains(got, `unknown reducer "median"`) {
		t.Errorf("expected an unknown reducer error, got:\n%s", got)
	}

	got = run(t, sh, out, "PUT A f x - 1 lots")
	if !strings.Contains(got, "max reducer stores integers") {
		t.Errorf("expected an encoding error, got:\n%s", got)
	}
}

func TestShellFamiliesAndSeek(t *testing.T) {
	sh, out := newTestShell(t)

	run(t, sh, out,
		"PUT A f x - 1 1",
		"PUT A g x - 1 2",
		"PUT B f x - 1 3",
		"PUT C f x - 1 4",
	)

	got := run(t, sh, out, ".families include g", "SCAN")
	if !strings.Contains(got, "A g:x [] 1: 2") || !strings.Contains(got, "1 entries found") {
		t.Errorf("expected only family g, got:\n%s", got)
	}

	got = run(t, sh, out, ".families", "SEEK B f x - 1")
	if !strings.Contains(got, "B f:x [] 1: 3") || !strings.Contains(got, "2 entries found") {
		t.Errorf("expected rows B and C, got:\n%s", got)
	}
}

func TestShellParallelScan(t *testing.T) {
	sh, out := newTestShell(t)

	run(t, sh, out,
		"PUT A f x - 1 1",
		"PUT A f x - 2 1",
		"PUT B f x - 1 1",
		"PUT C f x - 1 1",
		"PUT D f x - 1 1",
	)

	got := run(t, sh, out, "PSCAN C B")
	for _, want := range []string{
		"-- range 0: 1 entries",
		"A f:x [] 2: 2",
		"-- range 1: 1 entries",
		"-- range 2: 2 entries",
		"4 entries found in 3 ranges",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in:\n%s", want, got)
		}
	}
}

func TestShellSaveLoad(t *testing.T) {
	sh, out := newTestShell(t)
	path := filepath.Join(t.TempDir(), "records.snap")

	got := run(t, sh, out,
		"PUT A f x - 1 1",
		"PUT A f x - 2 5",
		"DELETE B f x - 1",
		".save "+path,
	)
	if !strings.Contains(got, "3 records saved") {
		t.Fatalf("unexpected output:\n%s", got)
	}

	restored, restoredOut := newTestShell(t)
	got = run(t, restored, restoredOut, ".load "+path)
	if !strings.Contains(got, "3 records loaded") {
		t.Fatalf("unexpected output:\n%s", got)
	}

	got = run(t, restored, restoredOut, "SCAN")
	if !strings.Contains(got, "A f:x [] 2: 6") {
		t.Errorf("expected restored records to combine, got:\n%s", got)
	}

	got = run(t, restored, restoredOut, ".stats")
	if !strings.Contains(got, "snapshot_load_ops: 1") {
		t.Errorf("expected the load in the statistics, got:\n%s", got)
	}

	got = run(t, restored, restoredOut, ".load "+filepath.Join(t.TempDir(), "missing.snap"))
	if !strings.Contains(got, "Error:") {
		t.Errorf("expected an error for a missing file, got:\n%s", got)
	}
}

func TestShellCommandErrors(t *testing.T) {
	sh, out := newTestShell(t)

	tests := []struct {
		line string
		want string
	}{
		{"PUT A f x", "PUT requires"},
		{"PUT A f x - v1 1", "invalid version"},
		{"DELETE A", "DELETE requires"},
		{"SCAN a b c", "Invalid SCAN syntax"},
		{"PSCAN", "PSCAN requires"},
		{"FROB", "Unknown command: FROB"},
		{".frob", "Unknown command: .frob"},
		{".families sideways f", ".families requires"},
		{".reducer sum bogus", "expected name=value"},
	}

	for _, tt := range tests {
		if got := run(t, sh, out, tt.line); !strings.Contains(got, tt.want) {
			t.Errorf("%q: expected %q, got:\n%s", tt.line, tt.want, got)
		}
	}

	if !sh.execute(".exit") {
		t.Error("expected .exit to end the shell")
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	cfg, err := loadConfig("", "", "", "")
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	if cfg.Backend != config.BackendMemory {
		t.Errorf("expected memory backend, got %s", cfg.Backend)
	}

	dir := t.TempDir()
	cfg, err = loadConfig("", "", dir, "debug")
	if err != nil {
		t.Fatalf("config with dir: %v", err)
	}
	if cfg.Backend != config.BackendPebble || cfg.DataDir != dir || cfg.LogLevel != "debug" {
		t.Errorf("flags not applied: %+v", cfg)
	}

	if _, err := loadConfig("", "pebble", "", ""); err == nil {
		t.Error("expected pebble without a directory to fail")
	}

	path := filepath.Join(dir, config.DefaultConfigFileName)
	saved := config.NewDefaultConfig("")
	saved.Reducer = "latest"
	if err := saved.Save(path); err != nil {
		t.Fatal(err)
	}
	cfg, err = loadConfig(path, "", "", "")
	if err != nil {
		t.Fatalf("config file: %v", err)
	}
	if cfg.Reducer != "latest" {
		t.Errorf("expected reducer from file, got %s", cfg.Reducer)
	}
}

func TestOpenStore(t *testing.T) {
	cfg := config.NewDefaultConfig(t.TempDir())
	store, err := openStore(cfg, log.NewDiscardLogger())
	if err != nil {
		t.Fatalf("open pebble store: %v", err)
	}

	out := &bytes.Buffer{}
	sh := newShell(out, store, log.NewDiscardLogger(), telemetry.NewForTesting(), 2)
	sh.execute("PUT A f x - 1 2")
	sh.execute("PUT A f x - 2 3")
	out.Reset()
	sh.execute("SCAN")
	if !strings.Contains(out.String(), "A f:x [] 2: 5") {
		t.Errorf("expected combined pebble records, got:\n%s", out.String())
	}

	if err := store.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
}
