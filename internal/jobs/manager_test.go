package jobs

import (
	"context"
	"errors"
	"log"
	"os"
	"testing"
	"time"

	"github.com/yourusername/markdown-forge/internal/config"
	"github.com/yourusername/markdown-forge/internal/markdown"
	"github.com/yourusername/markdown-forge/internal/storage"
)

// gateConverter は release が閉じられるまで変換結果を返さないスタブです。
type gateConverter struct {
	release  chan struct{}
	markdown string
	err      error
}

func (c *gateConverter) ConvertFile(ctx context.Context, path string) (string, error) {
	<-c.release
	return c.markdown, c.err
}

func (c *gateConverter) ConvertURL(ctx context.Context, url string) (string, error) {
	<-c.release
	return c.markdown, c.err
}

func newTestManager(t *testing.T, converter markdown.Converter) (*Manager, *markdown.Service, *storage.Local) {
	t.Helper()
	workspaces := storage.NewLocal(t.TempDir())
	svc := markdown.NewService(workspaces, converter, 0)
	cfg := &config.Config{JobExpireSeconds: 60}

	manager, err := NewManager(cfg, svc, NewMemoryStore(time.Minute), false, log.New(os.Stderr, "", log.LstdFlags))
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}
	manager.StartWorkers()
	t.Cleanup(func() {
		_ = manager.Shutdown(context.Background())
	})
	return manager, svc, workspaces
}

func waitForTerminal(t *testing.T, manager *Manager, jobID string) *Record {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		record, err := manager.GetRecord(context.Background(), jobID)
		if err != nil {
			t.Fatalf("GetRecord returned error: %v", err)
		}
		if record != nil && record.Status != StatusProcessing {
			return record
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job did not reach a terminal state in time")
	return nil
}

func TestManagerCreateReturnsBeforeConversion(t *testing.T) {
	converter := &gateConverter{release: make(chan struct{}), markdown: "# done"}
	manager, svc, _ := newTestManager(t, converter)

	manifest, err := svc.PrepareURLJob(context.Background(), "https://example.com/doc.html")
	if err != nil {
		t.Fatalf("PrepareURLJob returned error: %v", err)
	}

	jobID, err := manager.Create(context.Background(), manifest)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if jobID != manifest.JobID {
		t.Fatalf("unexpected job id: %s", jobID)
	}

	// 変換はまだブロックされているため、状態は必ず processing
	record, err := manager.GetRecord(context.Background(), jobID)
	if err != nil {
		t.Fatalf("GetRecord returned error: %v", err)
	}
	if record == nil || record.Status != StatusProcessing {
		t.Fatalf("expected processing record, got %#v", record)
	}
	if record.Filename != "doc.html" {
		t.Fatalf("unexpected filename: %s", record.Filename)
	}

	close(converter.release)
	terminal := waitForTerminal(t, manager, jobID)
	if terminal.Status != StatusCompleted {
		t.Fatalf("expected completed, got %#v", terminal)
	}
	if terminal.Markdown != "# done" {
		t.Fatalf("unexpected markdown: %q", terminal.Markdown)
	}
	if terminal.ErrorMessage != "" {
		t.Fatalf("completed record must not carry an error: %q", terminal.ErrorMessage)
	}
}

func TestManagerConversionFailureIsRecorded(t *testing.T) {
	converter := &gateConverter{release: make(chan struct{}), err: errors.New("unsupported document format")}
	close(converter.release)
	manager, svc, workspaces := newTestManager(t, converter)

	manifest, err := svc.PrepareURLJob(context.Background(), "https://example.com/doc.html")
	if err != nil {
		t.Fatalf("PrepareURLJob returned error: %v", err)
	}
	jobID, err := manager.Create(context.Background(), manifest)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	record := waitForTerminal(t, manager, jobID)
	if record.Status != StatusFailed {
		t.Fatalf("expected failed, got %#v", record)
	}
	if record.ErrorMessage != "unsupported document format" {
		t.Fatalf("unexpected error message: %q", record.ErrorMessage)
	}
	if record.Markdown != "" {
		t.Fatalf("failed record must not carry markdown: %q", record.Markdown)
	}

	// 失敗してもワークスペースは削除される
	if _, err := os.Stat(workspaces.Dir(jobID)); !os.IsNotExist(err) {
		t.Fatalf("expected workspace to be removed, stat err=%v", err)
	}
}

func TestManagerUnknownJobIsNotFound(t *testing.T) {
	converter := &gateConverter{release: make(chan struct{})}
	close(converter.release)
	manager, _, _ := newTestManager(t, converter)

	record, err := manager.GetRecord(context.Background(), "no-such-job")
	if err != nil {
		t.Fatalf("GetRecord returned error: %v", err)
	}
	if record != nil {
		t.Fatalf("expected nil record for unknown job, got %#v", record)
	}
}
