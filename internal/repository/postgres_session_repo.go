package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/skycast/internal/model"
)

// PostgresSessionRepo はPostgreSQLを使用したセッションリポジトリ。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

// Upsert はデバイスのセッションを作成または置き換える。
// 時刻はTIMESTAMPTZの精度（マイクロ秒）に丸めてsessionへ書き戻す。
func (r *PostgresSessionRepo) Upsert(ctx context.Context, session *model.Session) error {
	session.CreatedAt = session.CreatedAt.Truncate(time.Microsecond)
	session.ExpiresAt = session.ExpiresAt.Truncate(time.Microsecond)
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (device_id, external_id, expires_at, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (device_id) DO UPDATE SET
		   external_id = EXCLUDED.external_id,
		   expires_at  = EXCLUDED.expires_at,
		   created_at  = EXCLUDED.created_at`,
		session.DeviceID, session.ExternalID, session.ExpiresAt, session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}
	return nil
}

// FindByDeviceID はデバイスの有効なセッションを取得する。期限切れの場合はnilを返す。
func (r *PostgresSessionRepo) FindByDeviceID(ctx context.Context, deviceID string) (*model.Session, error) {
	session := &model.Session{}
	err := r.db.QueryRowContext(ctx,
		`SELECT device_id, external_id, expires_at, created_at
		 FROM sessions
		 WHERE device_id = $1 AND expires_at > now()`,
		deviceID,
	).Scan(&session.DeviceID, &session.ExternalID, &session.ExpiresAt, &session.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	return session, nil
}

// DeleteByDeviceID はデバイスのセッションを削除する。
func (r *PostgresSessionRepo) DeleteByDeviceID(ctx context.Context, deviceID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE device_id = $1`,
		deviceID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteIssued はsessionと同じ発行のセッションだけを削除する。
func (r *PostgresSessionRepo) DeleteIssued(ctx context.Context, session *model.Session) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions
		 WHERE device_id = $1 AND external_id = $2 AND created_at = $3`,
		session.DeviceID, session.ExternalID, session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to delete issued session: %w", err)
	}
	return nil
}

// DeleteExpired は期限切れのセッションを削除し、削除件数を返す。
func (r *PostgresSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted sessions: %w", err)
	}
	return n, nil
}

// compile-time interface check
var _ SessionRepository = (*PostgresSessionRepo)(nil)
