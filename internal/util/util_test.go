// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"os"
	"path/filepath"
	"testing"
)

// =============================================================================
// ATOMIC WRITE TESTS
// =============================================================================

func TestAtomicWriteFile_Basic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := []byte("[model]\nactive = \"gpt-4\"\n")

	if err := AtomicWriteFile(path, data, 0644); err != nil {
		t.Fatalf("AtomicWriteFile failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	if string(content) != string(data) {
		t.Errorf("Content mismatch: got %q, want %q", string(content), string(data))
	}
}

func TestAtomicWriteFile_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subdir", "deep", "test.txt")

	if err := AtomicWriteFile(path, []byte("test data"), 0644); err != nil {
		t.Fatalf("AtomicWriteFile failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("File not created: %v", err)
	}
}

func TestAtomicWriteFile_Overwrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.txt")

	if err := AtomicWriteFile(path, []byte("initial"), 0644); err != nil {
		t.Fatalf("First write failed: %v", err)
	}
	if err := AtomicWriteFile(path, []byte("updated"), 0644); err != nil {
		t.Fatalf("Second write failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	if string(content) != "updated" {
		t.Errorf("Content not updated: got %q", string(content))
	}

	// No temp files left behind
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected 1 entry in dir, got %d", len(entries))
	}
}

func TestAtomicWriteFile_DirPerm(t *testing.T) {
	path := filepath.Join(t.TempDir(), "newdir", "test.txt")

	if err := atomicWriteFileWithDir(path, []byte("test"), 0600, 0700); err != nil {
		t.Fatalf("atomicWriteFileWithDir failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("File not created: %v", err)
	}
}

// =============================================================================
// STRING WIDTH TESTS
// =============================================================================

func TestStringWidth(t *testing.T) {
	testCases := []struct {
		input    string
		expected int
	}{
		{"", 0},
		{"/help", 5},
		{"日本語", 6},
		{"@git:状態", 9},
	}

	for _, tc := range testCases {
		if got := StringWidth(tc.input); got != tc.expected {
			t.Errorf("StringWidth(%q) = %d, want %d", tc.input, got, tc.expected)
		}
	}
}

func TestPadRight(t *testing.T) {
	testCases := []struct {
		input    string
		width    int
		expected string
	}{
		{"ab", 5, "ab   "},
		{"abcdef", 3, "abcdef"},
		{"日本", 6, "日本  "},
		{"", 2, "  "},
	}

	for _, tc := range testCases {
		if got := PadRight(tc.input, tc.width); got != tc.expected {
			t.Errorf("PadRight(%q, %d) = %q, want %q", tc.input, tc.width, got, tc.expected)
		}
	}
}

func TestTruncateWidth(t *testing.T) {
	testCases := []struct {
		input    string
		maxWidth int
		expected string
	}{
		{"hello", 10, "hello"},
		{"hello world", 8, "hello..."},
		{"hello", 2, "he"},
		{"hello", 0, ""},
		{"日本語テキスト", 7, "日本..."},
	}

	for _, tc := range testCases {
		got := TruncateWidth(tc.input, tc.maxWidth)
		if got != tc.expected {
			t.Errorf("TruncateWidth(%q, %d) = %q, want %q", tc.input, tc.maxWidth, got, tc.expected)
		}
		if StringWidth(got) > tc.maxWidth && tc.maxWidth > 0 {
			t.Errorf("TruncateWidth(%q, %d) exceeds width: %q", tc.input, tc.maxWidth, got)
		}
	}
}

func TestSingleLine(t *testing.T) {
	if got := SingleLine("@git:commit\n  -m   \"x\"\t"); got != `@git:commit -m "x"` {
		t.Errorf("SingleLine = %q", got)
	}
}
