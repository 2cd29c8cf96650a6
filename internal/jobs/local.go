package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore は Redis が利用できない環境向けのインメモリストアです。
// 失効チェックはバックグラウンドタイマーではなく Get 時に行い、
// 期限切れのエントリはアクセス時に削除します。
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
	expires map[string]time.Time
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore は MemoryStore を作成します。
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Record),
		expires: make(map[string]time.Time),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get はジョブ情報を取得します。期限切れのエントリは削除して (nil, nil) を返します。
func (s *MemoryStore) Get(ctx context.Context, jobID string) (*Record, error) {
	if jobID == "" {
		return nil, fmt.Errorf("jobID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := jobKey(jobID)
	record, ok := s.records[key]
	if !ok {
		return nil, nil
	}
	if deadline, ok := s.expires[key]; ok && !s.now().Before(deadline) {
		delete(s.records, key)
		delete(s.expires, key)
		return nil, nil
	}

	copied := record
	return &copied, nil
}

// Upsert はジョブ情報を保存します。書き込みのたびに失効時刻をリセットします。
func (s *MemoryStore) Upsert(ctx context.Context, record *Record) error {
	if record == nil {
		return fmt.Errorf("record is nil")
	}
	stampRecord(record, s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	key := jobKey(record.JobID)
	s.records[key] = *record
	if s.ttl > 0 {
		s.expires[key] = s.now().Add(s.ttl)
	}
	return nil
}

// Ping は常に true を返します。
func (s *MemoryStore) Ping(ctx context.Context) bool {
	return true
}
