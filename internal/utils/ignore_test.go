package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadIgnoreList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ignore.txt")
	content := "# comments are skipped\nSneak Preview\n\n  Kinderkino  \n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write ignore file: %v", err)
	}

	list, err := LoadIgnoreList(path)
	if err != nil {
		t.Fatalf("LoadIgnoreList failed: %v", err)
	}
	if list.Len() != 2 {
		t.Fatalf("expected 2 terms, got %d", list.Len())
	}

	matched, term := list.Matches("KINDERKINO: Paddington")
	if !matched || term != "Kinderkino" {
		t.Errorf("expected match on Kinderkino, got %v %q", matched, term)
	}
	if matched, _ := list.Matches("Dune"); matched {
		t.Error("expected no match for Dune")
	}
}

func TestLoadIgnoreListMissingFile(t *testing.T) {
	list, err := LoadIgnoreList(filepath.Join(t.TempDir(), "missing.txt"))
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	if list.Len() != 0 {
		t.Errorf("expected empty list, got %d terms", list.Len())
	}
}

func TestIgnoreListWith(t *testing.T) {
	base := NewIgnoreList("Oper")
	merged := base.With("Ballett", " ")

	if base.Len() != 1 {
		t.Errorf("base list must not change, got %d terms", base.Len())
	}
	if merged.Len() != 2 {
		t.Errorf("expected 2 terms, got %d", merged.Len())
	}
	if matched, _ := merged.Matches("", "https://example.org/ballett/123"); !matched {
		t.Error("expected url to match")
	}

	var nilList *IgnoreList
	if matched, _ := nilList.Matches("anything"); matched {
		t.Error("nil list must not match")
	}
}
