package history

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStore_RecordFillsDefaults(t *testing.T) {
	store := NewMemoryStore(0)

	got, err := store.Record(context.Background(), Entry{JobID: "job-1", FileName: "a.csv", Status: StatusComplete})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if got.ID == "" {
		t.Error("ID should be generated")
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
}

func TestMemoryStore_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	// Recorded out of order on purpose.
	for _, offset := range []int{2, 0, 1} {
		_, err := store.Record(ctx, Entry{
			JobID:     string(rune('a' + offset)),
			CreatedAt: base.Add(time.Duration(offset) * time.Hour),
		})
		if err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	got, err := store.List(ctx, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"c", "b", "a"}
	if len(got) != len(want) {
		t.Fatalf("List returned %d entries, want %d", len(got), len(want))
	}
	for i, e := range got {
		if e.JobID != want[i] {
			t.Errorf("entry %d = %q, want %q", i, e.JobID, want[i])
		}
	}
}

func TestMemoryStore_ListLimit(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)
	for i := 0; i < 5; i++ {
		store.Record(ctx, Entry{JobID: "j"})
	}

	got, _ := store.List(ctx, 2)
	if len(got) != 2 {
		t.Errorf("List(2) returned %d entries", len(got))
	}
}

func TestMemoryStore_Cap(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(2)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"old", "mid", "new"} {
		store.Record(ctx, Entry{JobID: id, CreatedAt: base.Add(time.Duration(i) * time.Minute)})
	}

	got, _ := store.List(ctx, 0)
	if len(got) != 2 || got[0].JobID != "new" || got[1].JobID != "mid" {
		t.Errorf("List = %+v, want [new mid]", got)
	}
}

func TestMemoryStore_Prune(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)
	cutoff := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	store.Record(ctx, Entry{JobID: "stale", CreatedAt: cutoff.Add(-time.Hour)})
	store.Record(ctx, Entry{JobID: "fresh", CreatedAt: cutoff.Add(time.Hour)})

	removed, err := store.Prune(ctx, cutoff)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	got, _ := store.List(ctx, 0)
	if len(got) != 1 || got[0].JobID != "fresh" {
		t.Errorf("remaining = %+v", got)
	}
}
