package jobs

import "time"

// Status はジョブの実行状態を表します。
// processing → completed / failed の一方向にのみ遷移します。
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Record はジョブの現在状態を表します。
// Markdown は完了時のみ、ErrorMessage は失敗時のみ設定されます。
type Record struct {
	JobID        string    `json:"jobId"`
	Status       Status    `json:"status"`
	Filename     string    `json:"filename"`
	Markdown     string    `json:"markdown,omitempty"`
	ErrorMessage string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
}
