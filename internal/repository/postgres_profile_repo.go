package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/skycast/internal/model"
)

// PostgresProfileRepo はPostgreSQLを使用したプロフィールストア。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

// Get は指定IDのプロフィールを取得する。
// 見つからない場合はmodel.ErrNotFoundを、それ以外の失敗はmodel.ErrStoreをラップして返す。
func (r *PostgresProfileRepo) Get(ctx context.Context, id string) (*model.Profile, error) {
	p := &model.Profile{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, display_name, email, avatar_url, created_at FROM profiles WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.DisplayName, &p.Email, &p.AvatarURL, &p.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("profile %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find profile: %w: %w", model.ErrStore, err)
	}

	return p, nil
}

// Put はプロフィールをUPSERTする。
// 競合時は表示属性のみ更新し、created_atは最初に書き込まれた値を維持する。
// 保存されたcreated_atはprofile.CreatedAtに書き戻す。
func (r *PostgresProfileRepo) Put(ctx context.Context, id string, profile *model.Profile) error {
	if profile.ID != id {
		return fmt.Errorf("profile id mismatch: %q != %q", profile.ID, id)
	}

	err := r.db.QueryRowContext(ctx,
		`INSERT INTO profiles (id, display_name, email, avatar_url, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, now())
		 ON CONFLICT (id) DO UPDATE SET
		   display_name = EXCLUDED.display_name,
		   email        = EXCLUDED.email,
		   avatar_url   = EXCLUDED.avatar_url,
		   updated_at   = now()
		 RETURNING created_at`,
		id, profile.DisplayName, profile.Email, profile.AvatarURL, profile.CreatedAt,
	).Scan(&profile.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w: %w", model.ErrStore, err)
	}

	return nil
}

// compile-time interface check
var _ ProfileStore = (*PostgresProfileRepo)(nil)
