package jobs

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore(time.Minute)

	record := &Record{
		JobID:    "job-1",
		Status:   StatusProcessing,
		Filename: "doc.pdf",
	}
	if err := store.Upsert(context.Background(), record); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}
	if record.CreatedAt.IsZero() || record.ExpiresAt.IsZero() {
		t.Fatalf("expected timestamps to be stamped: %#v", record)
	}

	got, err := store.Get(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got == nil {
		t.Fatal("expected a record")
	}
	if got.Status != StatusProcessing || got.Filename != "doc.pdf" {
		t.Fatalf("unexpected record: %#v", got)
	}

	// 返却値はコピーであり、書き換えてもストア内の状態は変わらない
	got.Status = StatusFailed
	again, err := store.Get(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if again.Status != StatusProcessing {
		t.Fatalf("stored record was mutated: %#v", again)
	}
}

func TestMemoryStoreUnknownJob(t *testing.T) {
	store := NewMemoryStore(time.Minute)

	got, err := store.Get(context.Background(), "never-created")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for unknown job, got %#v", got)
	}
}

func TestMemoryStoreLazyExpiry(t *testing.T) {
	store := NewMemoryStore(30 * time.Millisecond)

	if err := store.Upsert(context.Background(), &Record{JobID: "job-ttl", Status: StatusProcessing}); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}

	time.Sleep(60 * time.Millisecond)

	got, err := store.Get(context.Background(), "job-ttl")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected expired record to be absent, got %#v", got)
	}

	// 期限切れエントリはアクセス時に削除される
	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.records) != 0 || len(store.expires) != 0 {
		t.Fatalf("expected expired entry to be purged: records=%d expires=%d", len(store.records), len(store.expires))
	}
}

func TestMemoryStoreUpsertResetsTTL(t *testing.T) {
	store := NewMemoryStore(60 * time.Millisecond)

	record := &Record{JobID: "job-reset", Status: StatusProcessing}
	if err := store.Upsert(context.Background(), record); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}

	time.Sleep(40 * time.Millisecond)
	record.Status = StatusCompleted
	if err := store.Upsert(context.Background(), record); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}

	time.Sleep(40 * time.Millisecond)
	got, err := store.Get(context.Background(), "job-reset")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got == nil {
		t.Fatal("record should still be present after the TTL reset")
	}
	if got.Status != StatusCompleted {
		t.Fatalf("unexpected status: %s", got.Status)
	}
}

func TestMemoryStorePing(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	if !store.Ping(context.Background()) {
		t.Fatal("memory store ping must always succeed")
	}
}
