package markdown

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/yourusername/markdown-forge/internal/storage"
)

type fixedConverter struct {
	markdown string
	err      error
}

func (c *fixedConverter) ConvertFile(ctx context.Context, path string) (string, error) {
	return c.markdown, c.err
}

func (c *fixedConverter) ConvertURL(ctx context.Context, url string) (string, error) {
	return c.markdown, c.err
}

func newTestService(t *testing.T, converter Converter, maxFileSize int64) *Service {
	t.Helper()
	return NewService(storage.NewLocal(t.TempDir()), converter, maxFileSize)
}

func uploadFileHeader(t *testing.T, filename string, content []byte) *multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	fileWriter, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := io.Copy(fileWriter, bytes.NewReader(content)); err != nil {
		t.Fatalf("failed to write file content: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if err := req.ParseMultipartForm(32 << 20); err != nil {
		t.Fatalf("failed to parse multipart form: %v", err)
	}
	return req.MultipartForm.File["file"][0]
}

func TestPrepareFileJobStoresManifest(t *testing.T) {
	svc := newTestService(t, &fixedConverter{}, 0)
	file := uploadFileHeader(t, "notes.txt", []byte("plain text document\nwith two lines\n"))

	manifest, err := svc.PrepareFileJob(context.Background(), file)
	if err != nil {
		t.Fatalf("PrepareFileJob returned error: %v", err)
	}
	if manifest.JobID == "" {
		t.Fatal("expected a job id")
	}
	if manifest.Filename != "notes.txt" {
		t.Fatalf("unexpected filename: %s", manifest.Filename)
	}

	loaded, err := loadManifest(svc.store.Dir(manifest.JobID))
	if err != nil {
		t.Fatalf("failed to load manifest: %v", err)
	}
	if loaded.StoredName != "notes.txt" || loaded.Size == 0 {
		t.Fatalf("unexpected manifest: %#v", loaded)
	}

	if err := svc.DiscardJob(manifest.JobID); err != nil {
		t.Fatalf("DiscardJob returned error: %v", err)
	}
	if _, err := os.Stat(svc.store.Dir(manifest.JobID)); !os.IsNotExist(err) {
		t.Fatalf("expected workspace to be removed, stat err=%v", err)
	}
}

func TestPrepareFileJobRejectsUnsupportedType(t *testing.T) {
	svc := newTestService(t, &fixedConverter{}, 0)
	file := uploadFileHeader(t, "junk.bin", []byte{0x00, 0xff, 0x13, 0x37, 0x00, 0x01})

	_, err := svc.PrepareFileJob(context.Background(), file)
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Code != "UNSUPPORTED_MEDIA_TYPE" {
		t.Fatalf("expected UNSUPPORTED_MEDIA_TYPE, got %v", err)
	}
}

func TestPrepareFileJobRejectsOversizedFile(t *testing.T) {
	svc := newTestService(t, &fixedConverter{}, 8)
	file := uploadFileHeader(t, "big.txt", []byte("this file is larger than eight bytes"))

	_, err := svc.PrepareFileJob(context.Background(), file)
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Code != "LIMIT_EXCEEDED" {
		t.Fatalf("expected LIMIT_EXCEEDED, got %v", err)
	}
}

func TestPrepareURLJobValidation(t *testing.T) {
	svc := newTestService(t, &fixedConverter{}, 0)

	for _, raw := range []string{"", "not a url", "ftp://example.com/doc.pdf"} {
		_, err := svc.PrepareURLJob(context.Background(), raw)
		var apiErr *Error
		if !errors.As(err, &apiErr) || apiErr.Code != "INVALID_INPUT" {
			t.Fatalf("expected INVALID_INPUT for %q, got %v", raw, err)
		}
	}
}

func TestPrepareURLJobFilename(t *testing.T) {
	svc := newTestService(t, &fixedConverter{}, 0)

	manifest, err := svc.PrepareURLJob(context.Background(), "https://example.com/papers/report.pdf")
	if err != nil {
		t.Fatalf("PrepareURLJob returned error: %v", err)
	}
	if manifest.Filename != "report.pdf" {
		t.Fatalf("unexpected filename: %s", manifest.Filename)
	}

	manifest, err = svc.PrepareURLJob(context.Background(), "https://example.com/")
	if err != nil {
		t.Fatalf("PrepareURLJob returned error: %v", err)
	}
	if manifest.Filename != "url_content" {
		t.Fatalf("unexpected fallback filename: %s", manifest.Filename)
	}
}

func TestRunJobConvertsAndCleansUp(t *testing.T) {
	svc := newTestService(t, &fixedConverter{markdown: "# converted"}, 0)
	manifest, err := svc.PrepareURLJob(context.Background(), "https://example.com/doc.html")
	if err != nil {
		t.Fatalf("PrepareURLJob returned error: %v", err)
	}

	result, err := svc.RunJob(context.Background(), manifest.JobID)
	if err != nil {
		t.Fatalf("RunJob returned error: %v", err)
	}
	if result.Markdown != "# converted" {
		t.Fatalf("unexpected markdown: %q", result.Markdown)
	}
	if result.Filename != "doc.html" {
		t.Fatalf("unexpected filename: %s", result.Filename)
	}

	if _, err := os.Stat(svc.store.Dir(manifest.JobID)); !os.IsNotExist(err) {
		t.Fatalf("expected workspace to be removed, stat err=%v", err)
	}
}

func TestRunJobConverterFailureStillCleansUp(t *testing.T) {
	svc := newTestService(t, &fixedConverter{err: errors.New("unsupported document")}, 0)
	manifest, err := svc.PrepareURLJob(context.Background(), "https://example.com/doc.html")
	if err != nil {
		t.Fatalf("PrepareURLJob returned error: %v", err)
	}

	if _, err := svc.RunJob(context.Background(), manifest.JobID); err == nil {
		t.Fatal("expected converter error")
	}
	if _, err := os.Stat(svc.store.Dir(manifest.JobID)); !os.IsNotExist(err) {
		t.Fatalf("expected workspace to be removed, stat err=%v", err)
	}
}
