package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	jobKeyPrefix = "job:"

	pingTimeout = 2 * time.Second
)

// Store はジョブ状態の保存先を抽象化します。
// Get は未知または期限切れのジョブに対して (nil, nil) を返します。
type Store interface {
	Get(ctx context.Context, jobID string) (*Record, error)
	Upsert(ctx context.Context, record *Record) error
	Ping(ctx context.Context) bool
}

// RedisStore はジョブ状態を Redis に保存します。
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore は RedisStore を作成します。
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		rdb: rdb,
		ttl: ttl,
	}
}

// Get はジョブ情報を取得します。キーが存在しない場合は (nil, nil) を返します。
func (s *RedisStore) Get(ctx context.Context, jobID string) (*Record, error) {
	if jobID == "" {
		return nil, fmt.Errorf("jobID is required")
	}
	data, err := s.rdb.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Upsert はジョブ情報を保存します。書き込みのたびに TTL をリセットします。
func (s *RedisStore) Upsert(ctx context.Context, record *Record) error {
	if record == nil {
		return fmt.Errorf("record is nil")
	}
	stampRecord(record, s.ttl)

	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, jobKey(record.JobID), payload, s.ttl).Err()
}

// Ping は Redis への到達性を確認します。失敗しても false を返すだけでパニックしません。
func (s *RedisStore) Ping(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return s.rdb.Ping(ctx).Err() == nil
}

// SelectStore は起動時に一度だけ利用する Store を決定します。
// Redis への疎通が確認できない場合はインメモリストアへフォールバックし、
// 以降プロセス終了まで選択は変わりません。戻り値の durable は
// Redis が選択されたかどうかを示すタグです。
func SelectStore(ctx context.Context, addr string, ttl time.Duration, logger *log.Logger) (store Store, durable bool) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	redisStore := NewRedisStore(rdb, ttl)
	if redisStore.Ping(ctx) {
		return redisStore, true
	}

	if logger == nil {
		logger = log.Default()
	}
	logger.Printf("WARN: redis is not reachable at %s, falling back to in-memory job store", addr)
	_ = rdb.Close()
	return NewMemoryStore(ttl), false
}

// stampRecord は作成・更新・失効時刻を書き込み時刻基準で設定します。
func stampRecord(record *Record, ttl time.Duration) {
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	if ttl > 0 {
		record.ExpiresAt = now.Add(ttl)
	}
}

func jobKey(id string) string {
	return jobKeyPrefix + id
}
