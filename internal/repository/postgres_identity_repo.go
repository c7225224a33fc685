package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/skycast/internal/model"
)

// PostgresIdentityRepo はPostgreSQLを使用したidentityリポジトリ。
type PostgresIdentityRepo struct {
	db *sql.DB
}

// NewPostgresIdentityRepo はPostgresIdentityRepoを生成する。
func NewPostgresIdentityRepo(db *sql.DB) *PostgresIdentityRepo {
	return &PostgresIdentityRepo{db: db}
}

// FindByProviderAndSubject はproviderとsubjectでidentityを検索する。
// 見つからない場合はnilを返す。
func (r *PostgresIdentityRepo) FindByProviderAndSubject(ctx context.Context, provider, subject string) (*model.IdentityRecord, error) {
	rec := &model.IdentityRecord{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, provider, subject, display_name, email, avatar_url, created_at, updated_at
		 FROM identities
		 WHERE provider = $1 AND subject = $2`,
		provider, subject,
	).Scan(&rec.ID, &rec.Provider, &rec.Subject, &rec.DisplayName, &rec.Email, &rec.AvatarURL, &rec.CreatedAt, &rec.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}

	return rec, nil
}

// Create はidentityを作成する。
func (r *PostgresIdentityRepo) Create(ctx context.Context, rec *model.IdentityRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO identities (id, provider, subject, display_name, email, avatar_url, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.Provider, rec.Subject, rec.DisplayName, rec.Email, rec.AvatarURL, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert identity: %w", err)
	}
	return nil
}

// UpdateAttributes は表示名・メール・アバターURLを更新する。
func (r *PostgresIdentityRepo) UpdateAttributes(ctx context.Context, rec *model.IdentityRecord) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE identities
		 SET display_name = $1, email = $2, avatar_url = $3, updated_at = $4
		 WHERE id = $5`,
		rec.DisplayName, rec.Email, rec.AvatarURL, rec.UpdatedAt, rec.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update identity: %w", err)
	}
	return nil
}

// compile-time interface check
var _ IdentityRepository = (*PostgresIdentityRepo)(nil)
