package deps

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeStub(t *testing.T, dir, name string, mode os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), mode); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func TestResolveBinaryByPath(t *testing.T) {
	dir := t.TempDir()
	present := writeStub(t, dir, "present", 0o755)
	plain := writeStub(t, dir, "plain", 0o644)

	tests := []struct {
		name      string
		command   string
		available bool
		detail    string
	}{
		{name: "executable", command: present, available: true},
		{name: "missing", command: filepath.Join(dir, "missing"), detail: "does not exist"},
		{name: "not executable", command: plain, detail: "is not executable"},
		{name: "directory", command: dir, detail: "is a directory"},
		{name: "unset", command: "  ", detail: "command not configured"},
		{name: "not on path", command: "clearly-not-present-binary", detail: "not found"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ResolveBinary(tc.command)
			if got.Available != tc.available {
				t.Fatalf("Available = %v, want %v (%+v)", got.Available, tc.available, got)
			}
			if tc.available && got.Path != tc.command {
				t.Fatalf("Path = %q, want %q", got.Path, tc.command)
			}
			if !strings.Contains(got.Detail, tc.detail) {
				t.Fatalf("Detail = %q, want it to contain %q", got.Detail, tc.detail)
			}
		})
	}
}

func TestResolveBinarySearchesPath(t *testing.T) {
	dir := t.TempDir()
	writeStub(t, dir, "recon-job", 0o755)
	t.Setenv("PATH", dir)

	got := ResolveBinary("recon-job")
	if !got.Available || got.Path != filepath.Join(dir, "recon-job") || got.Comm != "recon-job" {
		t.Fatalf("expected PATH lookup to resolve, got %+v", got)
	}
}

func TestCommNameTruncates(t *testing.T) {
	if got := CommName("/opt/bin/pet-ct-reconstruction"); got != "pet-ct-reconstr" {
		t.Fatalf("expected 15-byte comm, got %q", got)
	}
	if got := CommName("recon"); got != "recon" {
		t.Fatalf("short names should be unchanged, got %q", got)
	}
}
