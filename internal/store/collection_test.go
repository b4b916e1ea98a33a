package store

import (
	"strings"
	"testing"
)

func TestCollectionNameForIsDeterministic(t *testing.T) {
	a := CollectionNameFor("/home/dev/project-x")
	b := CollectionNameFor("/home/dev/project-x")
	if a != b {
		t.Fatalf("expected identical paths to produce identical names, got %q and %q", a, b)
	}
}

func TestCollectionNameForDiffersByPath(t *testing.T) {
	a := CollectionNameFor("/home/dev/project-x")
	b := CollectionNameFor("/home/dev/project-y")
	if a == b {
		t.Fatal("expected distinct paths to produce distinct names")
	}
}

func TestCollectionNameForStripsSpecialCharsAndBoundsLength(t *testing.T) {
	name := CollectionNameFor(strings.Repeat("a/b c!", 40))
	if len(name) > maxCollectionNameLength {
		t.Fatalf("name exceeds bound: %d chars", len(name))
	}
	for _, r := range name {
		ok := r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_'
		if !ok {
			t.Fatalf("unexpected character %q in %q", r, name)
		}
	}
}
