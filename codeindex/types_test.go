package codeindex

import "testing"

func TestGenerateEntityID_Deterministic(t *testing.T) {
	a := GenerateEntityID("repo", "a.py", "foo", "(x)")
	b := GenerateEntityID("repo", "a.py", "foo", "(x)")
	if a != b {
		t.Fatalf("expected deterministic IDs, got %q and %q", a, b)
	}
	if len(a) != 16 {
		t.Fatalf("expected 16-char ID, got %q", a)
	}
}

func TestGenerateEntityID_DiffersOnSignature(t *testing.T) {
	a := GenerateEntityID("repo", "a.py", "foo", "(x)")
	b := GenerateEntityID("repo", "a.py", "foo", "(y)")
	if a == b {
		t.Fatal("expected different signatures to produce different IDs")
	}
}

func TestGenerateEdgeID_Deterministic(t *testing.T) {
	a := GenerateEdgeID("e1", "e2", EdgeCalls)
	b := GenerateEdgeID("e1", "e2", EdgeCalls)
	if a != b {
		t.Fatalf("expected deterministic edge IDs, got %q and %q", a, b)
	}
	c := GenerateEdgeID("e2", "e1", EdgeCalls)
	if a == c {
		t.Fatal("expected direction to matter for edge ID")
	}
}
