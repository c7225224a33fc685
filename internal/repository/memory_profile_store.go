package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/hitoshi/skycast/internal/model"
)

// MemoryProfileStore はプロセス内メモリに保持するプロフィールストア。
// テストで使用する。
type MemoryProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]model.Profile
}

// NewMemoryProfileStore はMemoryProfileStoreを生成する。
func NewMemoryProfileStore() *MemoryProfileStore {
	return &MemoryProfileStore{
		profiles: make(map[string]model.Profile),
	}
}

// Get は指定IDのプロフィールのコピーを返す。見つからない場合はmodel.ErrNotFoundをラップして返す。
func (s *MemoryProfileStore) Get(_ context.Context, id string) (*model.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[id]
	if !ok {
		return nil, fmt.Errorf("profile %s: %w", id, model.ErrNotFound)
	}
	return &p, nil
}

// Put はプロフィールを保存する。既存レコードがあればCreatedAtを維持し、
// 保存された値をprofile.CreatedAtに書き戻す。
func (s *MemoryProfileStore) Put(_ context.Context, id string, profile *model.Profile) error {
	if profile.ID != id {
		return fmt.Errorf("profile id mismatch: %q != %q", profile.ID, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.profiles[id]; ok {
		profile.CreatedAt = existing.CreatedAt
	}
	s.profiles[id] = *profile
	return nil
}

// Len は保持しているプロフィール数を返す。テスト用。
func (s *MemoryProfileStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.profiles)
}

// compile-time interface check
var _ ProfileStore = (*MemoryProfileStore)(nil)
