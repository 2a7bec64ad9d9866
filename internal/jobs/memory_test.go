package jobs

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreUpsertAndGet(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	ctx := context.Background()

	record := &Record{
		JobID:  "job-1",
		Status: StatusQueued,
		Progress: ProgressInfo{
			Percent: 0,
			Stage:   StageQueued,
		},
	}
	if err := store.Upsert(ctx, record); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}

	got, err := store.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got == nil {
		t.Fatal("expected record")
	}
	if got.Status != StatusQueued || got.Progress.Stage != StageQueued {
		t.Fatalf("unexpected record: %#v", got)
	}
	if got.ExpiresAt.IsZero() {
		t.Fatal("expected expiry to be set")
	}
}

func TestMemoryStoreGetMissing(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	got, err := store.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing job, got %#v", got)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore(time.Millisecond)
	ctx := context.Background()
	if err := store.Upsert(ctx, &Record{JobID: "job-exp", Status: StatusQueued}); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	got, err := store.Get(ctx, "job-exp")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected expired record to be gone, got %#v", got)
	}
}

func TestMemoryStoreUpdate(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	ctx := context.Background()
	if err := store.Upsert(ctx, &Record{JobID: "job-u", Status: StatusQueued}); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}

	err := store.Update(ctx, "job-u", func(r *Record) {
		r.Status = StatusRunning
		r.Progress.Percent = 20
	})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}

	got, _ := store.Get(ctx, "job-u")
	if got.Status != StatusRunning || got.Progress.Percent != 20 {
		t.Fatalf("update not applied: %#v", got)
	}
}

func TestMemoryStoreTerminalIsImmutable(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	ctx := context.Background()
	if err := store.Upsert(ctx, &Record{JobID: "job-t", Status: StatusQueued}); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}
	if err := store.Update(ctx, "job-t", func(r *Record) {
		r.Status = StatusCancelled
	}); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}

	// 終端状態に達した後の更新は無視される
	if err := store.Update(ctx, "job-t", func(r *Record) {
		r.Status = StatusSucceeded
		r.Progress.Percent = 100
	}); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}

	got, _ := store.Get(ctx, "job-t")
	if got.Status != StatusCancelled {
		t.Fatalf("terminal state mutated: %#v", got)
	}
	if got.Progress.Percent == 100 {
		t.Fatal("terminal record progress mutated")
	}
}

func TestMemoryStoreSnapshotIsolation(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	ctx := context.Background()
	if err := store.Upsert(ctx, &Record{JobID: "job-s", Status: StatusQueued}); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}

	got, _ := store.Get(ctx, "job-s")
	got.Status = StatusFailed

	again, _ := store.Get(ctx, "job-s")
	if again.Status != StatusQueued {
		t.Fatalf("caller mutation leaked into store: %#v", again)
	}
}

func TestStatusTerminal(t *testing.T) {
	for _, status := range []Status{StatusSucceeded, StatusFailed, StatusCancelled} {
		if !status.Terminal() {
			t.Fatalf("%s should be terminal", status)
		}
	}
	for _, status := range []Status{StatusQueued, StatusRunning} {
		if status.Terminal() {
			t.Fatalf("%s should not be terminal", status)
		}
	}
}
