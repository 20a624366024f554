package job

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStore_CreateAndGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	job := New(Input{StoragePath: "a.mp4"})

	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	saved, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saved.ID != job.ID {
		t.Errorf("expected ID %s, got %s", job.ID, saved.ID)
	}

	if err := store.Create(ctx, job); !errors.Is(err, ErrJobExists) {
		t.Errorf("expected ErrJobExists, got %v", err)
	}
}

func TestMemoryStore_Get_NotFound(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Get(context.Background(), "nonexistent")
	if !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestMemoryStore_Get_ReturnsClone(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	job := New(Input{})
	_ = store.Create(ctx, job)

	got, _ := store.Get(ctx, job.ID)
	got.Status = StatusDone

	again, _ := store.Get(ctx, job.ID)
	if again.Status != StatusQueued {
		t.Errorf("expected stored status to be unaffected, got %s", again.Status)
	}
}

func TestMemoryStore_Transact_Abort(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	job := New(Input{})
	_ = store.Create(ctx, job)

	_, err := store.Transact(ctx, job.ID, func(*Job) (*Patch, error) { return nil, nil })
	if !errors.Is(err, ErrTxAborted) {
		t.Errorf("expected ErrTxAborted, got %v", err)
	}

	got, _ := store.Get(ctx, job.ID)
	if got.Version != 0 {
		t.Errorf("expected no write on abort, version=%d", got.Version)
	}
}

func TestMemoryStore_Merge(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	job := New(Input{})
	_ = store.Create(ctx, job)

	err := store.Merge(ctx, job.ID, Patch{Message: Ptr("probing"), AppendLog: []LogEntry{NewLogEntry("x")}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := store.Get(ctx, job.ID)
	if got.Message != "probing" || len(got.Log) != 1 {
		t.Errorf("unexpected job after merge: %+v", got)
	}

	if err := store.Merge(ctx, "missing", Patch{}); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestMemoryStore_QueryOldestWithStatus(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Now()

	for i, name := range []string{"c", "a", "b"} {
		j := NewWithID(name, Input{})
		j.CreatedAt = base.Add(time.Duration(i) * time.Second)
		_ = store.Create(ctx, j)
	}
	done := NewWithID("d", Input{})
	done.Status = StatusDone
	done.CreatedAt = base.Add(-time.Hour)
	_ = store.Create(ctx, done)

	ids, err := store.QueryOldestWithStatus(ctx, StatusQueued, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 2 || ids[0] != "c" || ids[1] != "a" {
		t.Errorf("expected [c a], got %v", ids)
	}
}
