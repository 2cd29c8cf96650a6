package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/yourusername/markdown-forge/internal/config"
	"github.com/yourusername/markdown-forge/internal/markdown"
)

// TaskPayload は変換ジョブのペイロードです。入力情報はマニフェストに
// 保存済みのため、ジョブIDのみを運びます。
type TaskPayload struct {
	JobID string `json:"jobId"`
}

// Manager はジョブの投入と状態管理を担います。ジョブレコードの書き込みは
// Manager のみが行い、状態は processing から completed / failed へ一方向に遷移します。
type Manager struct {
	cfg    *config.Config
	store  Store
	svc    *markdown.Service
	runner runner
	logger *log.Logger
}

// NewManager は Manager を初期化します。durable が true の場合は Asynq による
// キュー実行、false の場合はプロセス内ワーカープールで変換を実行します。
func NewManager(cfg *config.Config, svc *markdown.Service, store Store, durable bool, logger *log.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if svc == nil {
		return nil, errors.New("svc is nil")
	}
	if store == nil {
		return nil, errors.New("store is nil")
	}
	if logger == nil {
		logger = log.Default()
	}

	manager := &Manager{
		cfg:    cfg,
		store:  store,
		svc:    svc,
		logger: logger,
	}
	if durable {
		manager.runner = newAsynqRunner(cfg.RedisAddr(), manager.handleConvertTask, logger)
	} else {
		manager.runner = newLocalRunner(convertConcurrency, manager.handleConvertTask, logger)
	}
	return manager, nil
}

// StartWorkers はバックグラウンドワーカーを起動します。
func (m *Manager) StartWorkers() {
	m.runner.Start()
}

// Shutdown はワーカーを停止します。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.runner.Shutdown()
	return nil
}

// Create は初期レコードを書き込み、変換タスクを投入します。
// 変換の完了を待たずにジョブIDを返します。
func (m *Manager) Create(ctx context.Context, manifest *markdown.JobManifest) (string, error) {
	if manifest == nil || manifest.JobID == "" {
		return "", fmt.Errorf("manifest with jobId is required")
	}

	record := &Record{
		JobID:    manifest.JobID,
		Status:   StatusProcessing,
		Filename: manifest.Filename,
	}
	if err := m.store.Upsert(ctx, record); err != nil {
		return "", err
	}

	if err := m.runner.Schedule(ctx, TaskPayload{JobID: manifest.JobID}); err != nil {
		return "", err
	}
	return manifest.JobID, nil
}

// GetRecord はジョブ情報を取得します。未知または期限切れのIDでは (nil, nil) を返します。
func (m *Manager) GetRecord(ctx context.Context, jobID string) (*Record, error) {
	return m.store.Get(ctx, jobID)
}

// handleConvertTask はバックグラウンドで変換を実行し、終端状態を書き込みます。
// 変換の失敗は failed レコードとして記録される正常な結果であり、
// タスクエラーとして再試行はしません。
func (m *Manager) handleConvertTask(ctx context.Context, payload TaskPayload) error {
	if payload.JobID == "" {
		return fmt.Errorf("missing jobId in payload")
	}

	result, err := m.svc.RunJob(ctx, payload.JobID)
	if err != nil {
		m.logger.Printf("conversion failed job=%s: %v", payload.JobID, err)
		return m.markFailed(ctx, payload.JobID, err.Error())
	}
	return m.markDone(ctx, payload.JobID, result.Markdown)
}

func (m *Manager) markDone(ctx context.Context, jobID, markdownText string) error {
	return m.updateRecord(ctx, jobID, func(record *Record) {
		record.Status = StatusCompleted
		record.Markdown = markdownText
		record.ErrorMessage = ""
	})
}

func (m *Manager) markFailed(ctx context.Context, jobID, message string) error {
	return m.updateRecord(ctx, jobID, func(record *Record) {
		record.Status = StatusFailed
		record.ErrorMessage = message
		record.Markdown = ""
	})
}

// updateRecord は読み出し・変更・書き戻しを行います。レコードの書き込みは
// Manager に限られるため、トランザクションは不要です。実行中にTTLで消えた
// レコードは新しいレコードとして作り直します。
func (m *Manager) updateRecord(ctx context.Context, jobID string, mutate func(*Record)) error {
	record, err := m.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if record == nil {
		record = &Record{JobID: jobID}
	}
	mutate(record)
	return m.store.Upsert(ctx, record)
}
