package logging

import "testing"

func TestNewSetsLevel(t *testing.T) {
	l := New(LevelDebug, "test")
	if l.Level() != LevelDebug {
		t.Fatalf("expected LevelDebug, got %v", l.Level())
	}
}

func TestNewDefaultsComponent(t *testing.T) {
	l := New(LevelInfo, "")
	if l == nil {
		t.Fatalf("expected non-nil logger")
	}
}

func TestWithPreservesLevel(t *testing.T) {
	l := New(LevelError, "base")
	child := l.With("peer", "abc123")
	if child.Level() != LevelError {
		t.Fatalf("expected level preserved on With, got %v", child.Level())
	}
}

func TestSlogLevelMapping(t *testing.T) {
	cases := map[Level]bool{
		LevelSilent: true,
		LevelError:  true,
		LevelInfo:   true,
		LevelDebug:  true,
	}
	for lvl := range cases {
		_ = lvl.slogLevel()
	}
}
