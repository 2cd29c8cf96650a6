// Package storage はジョブごとの一時ワークスペースを提供します。
package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// Local はローカルファイルシステム上のワークスペース管理です。
// 配置: <baseDir>/<jobID>/in/
// ワークスペースは作成したジョブが専有し、ジョブ完了時に削除されます。
type Local struct {
	baseDir string
}

// NewLocal は Local を作成します。
func NewLocal(baseDir string) *Local {
	return &Local{baseDir: baseDir}
}

// Dir はジョブのワークスペースディレクトリのパスを返します。
func (l *Local) Dir(jobID string) string {
	return filepath.Join(l.baseDir, jobID)
}

// InDir はジョブの入力ファイル用ディレクトリのパスを返します。
func (l *Local) InDir(jobID string) string {
	return filepath.Join(l.baseDir, jobID, "in")
}

// Create はジョブ用の空のワークスペースを作成します。
func (l *Local) Create(jobID string) error {
	if jobID == "" {
		return fmt.Errorf("jobID is required")
	}
	if err := os.MkdirAll(l.InDir(jobID), 0o750); err != nil {
		return fmt.Errorf("failed to create workspace: %w", err)
	}
	return nil
}

// Remove はジョブのワークスペースを削除します。
func (l *Local) Remove(jobID string) error {
	if jobID == "" {
		return fmt.Errorf("jobID is required")
	}
	return os.RemoveAll(l.Dir(jobID))
}
