package favorites

import (
	"path/filepath"
	"testing"
)

func TestPutCreatesAndPersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "favorites.json")

	s, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	pub := "aa"
	rec, err := s.Put(pub, func(r *Record) {
		r.WeFavored = true
		r.Nickname = "alice"
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !rec.WeFavored || rec.Nickname != "alice" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.FavoredAt == 0 || rec.LastUpdated == 0 {
		t.Fatalf("timestamps not set: %+v", rec)
	}

	reloaded, err := NewStore(path)
	if err != nil {
		t.Fatalf("reload NewStore: %v", err)
	}
	got, ok := reloaded.Get(pub)
	if !ok {
		t.Fatalf("record not persisted")
	}
	if !got.WeFavored || got.Nickname != "alice" {
		t.Fatalf("unexpected reloaded record: %+v", got)
	}
}

func TestIsMutual(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(filepath.Join(dir, "favorites.json"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	pub := "bb"
	s.Put(pub, func(r *Record) { r.WeFavored = true })
	rec, _ := s.Get(pub)
	if rec.IsMutual() {
		t.Fatalf("expected not mutual with only WeFavored set")
	}
	s.Put(pub, func(r *Record) { r.TheyFavored = true })
	rec, _ = s.Get(pub)
	if !rec.IsMutual() {
		t.Fatalf("expected mutual once both sides favor")
	}
}

func TestRemoveNotifiesListener(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(filepath.Join(dir, "favorites.json"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	pub := "cc"
	s.Put(pub, func(r *Record) { r.WeFavored = true })

	var gotOld, gotNew *Record
	s.OnChange(func(p string, old, new *Record) {
		if p != pub {
			t.Fatalf("unexpected pub in listener: %q", p)
		}
		gotOld, gotNew = old, new
	})

	if err := s.Remove(pub); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if gotOld == nil || gotNew != nil {
		t.Fatalf("expected old!=nil new==nil on remove, got old=%v new=%v", gotOld, gotNew)
	}
	if _, ok := s.Get(pub); ok {
		t.Fatalf("record should be gone after Remove")
	}
}

func TestClearRemovesAll(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(filepath.Join(dir, "favorites.json"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	s.Put("dd", func(r *Record) { r.WeFavored = true })
	s.Put("ee", func(r *Record) { r.TheyFavored = true })
	if s.Len() != 2 {
		t.Fatalf("expected 2 records before clear, got %d", s.Len())
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("expected 0 records after clear, got %d", s.Len())
	}
}

func TestListReturnsSnapshot(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(filepath.Join(dir, "favorites.json"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	s.Put("ff", func(r *Record) { r.WeFavored = true })
	s.Put("gg", func(r *Record) { r.TheyFavored = true })

	list := s.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 records, got %d", len(list))
	}
}
