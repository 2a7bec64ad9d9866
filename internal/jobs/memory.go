package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore は開発・テスト用のインメモリ実装です。
// レコードはスナップショットのコピーで受け渡すため、呼び出し側の変更は反映されません。
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	records map[string]Record
}

// NewMemoryStore は MemoryStore を作成します。
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:     ttl,
		records: make(map[string]Record),
	}
}

// Get はジョブ情報を取得します。
func (s *MemoryStore) Get(ctx context.Context, jobID string) (*Record, error) {
	if jobID == "" {
		return nil, fmt.Errorf("jobID is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[jobID]
	if !ok {
		return nil, nil
	}
	if !record.ExpiresAt.IsZero() && time.Now().After(record.ExpiresAt) {
		delete(s.records, jobID)
		return nil, nil
	}
	out := record
	return &out, nil
}

// Upsert はジョブ情報を保存します（存在しない場合は作成）。
func (s *MemoryStore) Upsert(ctx context.Context, record *Record) error {
	if record == nil {
		return fmt.Errorf("record is nil")
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	if record.ExpiresAt.IsZero() && s.ttl > 0 {
		record.ExpiresAt = record.CreatedAt.Add(s.ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.JobID] = *record
	return nil
}

// Update は既存レコードへ部分更新を適用します。終端状態は不変です。
func (s *MemoryStore) Update(ctx context.Context, jobID string, mutate func(*Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[jobID]
	if !ok {
		return fmt.Errorf("job not found: %s", jobID)
	}
	if record.Status.Terminal() {
		return nil
	}
	mutate(&record)
	record.UpdatedAt = time.Now().UTC()
	s.records[jobID] = record
	return nil
}
