// Package markdown はドキュメントからMarkdownへの変換ジョブ機能を提供します。
package markdown

import (
	"context"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/yourusername/markdown-forge/internal/storage"
)

// 変換対象として受け付けるMIMEタイプ。テキスト系は親タイプをたどって判定します。
var supportedMimeTypes = []string{
	"application/pdf",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"application/msword",
	"application/vnd.ms-excel",
	"application/vnd.ms-powerpoint",
	"application/json",
	"text/html",
	"text/csv",
	"text/xml",
}

// Service は変換ジョブの準備と実行を担います。
type Service struct {
	store       *storage.Local
	converter   Converter
	maxFileSize int64
}

// NewService は Service を作成します。
func NewService(store *storage.Local, converter Converter, maxFileSize int64) *Service {
	return &Service{
		store:       store,
		converter:   converter,
		maxFileSize: maxFileSize,
	}
}

// Result は変換ジョブの成果を表します。
type Result struct {
	JobID    string `json:"jobId"`
	Filename string `json:"filename"`
	Markdown string `json:"markdown"`
}

type workspace struct {
	jobID string
	dir   string
	inDir string
}

type storedFile struct {
	path         string
	originalName string
	size         int64
	contentType  string
}

func (s *Service) workspaceFor(jobID string) workspace {
	return workspace{
		jobID: jobID,
		dir:   s.store.Dir(jobID),
		inDir: s.store.InDir(jobID),
	}
}

func (s *Service) createWorkspace() (workspace, error) {
	jobID := uuid.NewString()
	if err := s.store.Create(jobID); err != nil {
		return workspace{}, err
	}
	return s.workspaceFor(jobID), nil
}

// PrepareFileJob はアップロードされたファイルをワークスペースへ保存し、
// マニフェストを書き出してジョブを準備します。
func (s *Service) PrepareFileJob(ctx context.Context, file *multipart.FileHeader) (*JobManifest, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if file == nil {
		return nil, newError("INVALID_INPUT", "変換するファイルを選択してください。", nil)
	}

	ws, err := s.createWorkspace()
	if err != nil {
		return nil, err
	}

	stored, err := s.storeMultipartFile(ctx, file, ws.inDir)
	if err != nil {
		_ = s.store.Remove(ws.jobID)
		return nil, err
	}

	manifest := &JobManifest{
		JobID:       ws.jobID,
		Filename:    stored.originalName,
		StoredName:  filepath.Base(stored.path),
		ContentType: stored.contentType,
		Size:        stored.size,
		CreatedAt:   time.Now().UTC(),
	}
	if err := writeManifest(ws.dir, manifest); err != nil {
		_ = s.store.Remove(ws.jobID)
		return nil, err
	}

	return manifest, nil
}

// PrepareURLJob はURL変換ジョブを準備します。表示名はURLパスの末尾から導出します。
func (s *Service) PrepareURLJob(ctx context.Context, rawURL string) (*JobManifest, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, newError("INVALID_INPUT", "変換するURLは http(s) 形式で指定してください。", err)
	}

	ws, err := s.createWorkspace()
	if err != nil {
		return nil, err
	}

	filename := path.Base(parsed.Path)
	if filename == "." || filename == "/" || filename == "" {
		filename = "url_content"
	}

	manifest := &JobManifest{
		JobID:     ws.jobID,
		Filename:  filename,
		SourceURL: parsed.String(),
		CreatedAt: time.Now().UTC(),
	}
	if err := writeManifest(ws.dir, manifest); err != nil {
		_ = s.store.Remove(ws.jobID)
		return nil, err
	}

	return manifest, nil
}

// RunJob はジョブIDに対応する変換を実行します。
// 成否にかかわらずワークスペースを削除します（削除失敗はログのみ）。
func (s *Service) RunJob(ctx context.Context, jobID string) (*Result, error) {
	if jobID == "" {
		return nil, fmt.Errorf("jobID is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	defer func() {
		if cleanupErr := s.store.Remove(jobID); cleanupErr != nil {
			log.Printf("failed to clean up workspace job=%s: %v", jobID, cleanupErr)
		}
	}()

	ws := s.workspaceFor(jobID)
	manifest, err := loadManifest(ws.dir)
	if err != nil {
		return nil, err
	}

	var text string
	switch {
	case manifest.SourceURL != "":
		text, err = s.converter.ConvertURL(ctx, manifest.SourceURL)
	case manifest.StoredName != "":
		text, err = s.converter.ConvertFile(ctx, filepath.Join(ws.inDir, manifest.StoredName))
	default:
		return nil, fmt.Errorf("manifest has no input source")
	}
	if err != nil {
		return nil, err
	}

	return &Result{
		JobID:    jobID,
		Filename: manifest.Filename,
		Markdown: text,
	}, nil
}

// DiscardJob は未実行ジョブのワークスペースを破棄します。
func (s *Service) DiscardJob(jobID string) error {
	if jobID == "" {
		return fmt.Errorf("jobID is required")
	}
	return s.store.Remove(jobID)
}

func (s *Service) storeMultipartFile(ctx context.Context, file *multipart.FileHeader, inDir string) (storedFile, error) {
	if err := ctx.Err(); err != nil {
		return storedFile{}, err
	}
	if s.maxFileSize > 0 && file.Size > s.maxFileSize {
		return storedFile{}, newError("LIMIT_EXCEEDED", "ファイルサイズが上限を超えています。", nil)
	}

	originalName := filepath.Base(file.Filename)
	if originalName == "." || originalName == string(filepath.Separator) || originalName == "" {
		originalName = "upload"
	}

	src, err := file.Open()
	if err != nil {
		return storedFile{}, fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer src.Close()

	destPath := filepath.Join(inDir, originalName)
	dst, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return storedFile{}, fmt.Errorf("failed to create stored file: %w", err)
	}
	written, err := io.Copy(dst, src)
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return storedFile{}, fmt.Errorf("failed to store uploaded file: %w", err)
	}

	mtype, err := mimetype.DetectFile(destPath)
	if err != nil {
		return storedFile{}, fmt.Errorf("failed to detect file type: %w", err)
	}
	if !isSupportedType(mtype) {
		return storedFile{}, newError("UNSUPPORTED_MEDIA_TYPE", "対応していないファイル形式です。", nil)
	}

	return storedFile{
		path:         destPath,
		originalName: originalName,
		size:         written,
		contentType:  mtype.String(),
	}, nil
}

func isSupportedType(mtype *mimetype.MIME) bool {
	for _, allowed := range supportedMimeTypes {
		if mtype.Is(allowed) {
			return true
		}
	}
	for cur := mtype; cur != nil; cur = cur.Parent() {
		if cur.Is("text/plain") {
			return true
		}
	}
	return false
}
