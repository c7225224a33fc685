// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/skycast/internal/model"
)

// ProfileStore はプロフィールドキュメントの永続化インターフェース。
// 認証の照合ロジックはGetとPutの2操作のみに依存する。
type ProfileStore interface {
	// Get は指定IDのプロフィールを取得する。
	// 見つからない場合はmodel.ErrNotFoundをラップしたエラーを返す。
	Get(ctx context.Context, id string) (*model.Profile, error)

	// Put は指定IDにプロフィールを書き込む。
	// 既存レコードのcreated_atは上書きせず、保存されている値をprofile.CreatedAtに書き戻す。
	Put(ctx context.Context, id string, profile *model.Profile) error
}

// IdentityRepository はIdPのsubjectを観測した記録の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndSubject はproviderとsubjectでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndSubject(ctx context.Context, provider, subject string) (*model.IdentityRecord, error)

	// Create はidentityを作成する。
	Create(ctx context.Context, record *model.IdentityRecord) error

	// UpdateAttributes は表示名・メール・アバターURLを最新の値に更新する。
	UpdateAttributes(ctx context.Context, record *model.IdentityRecord) error
}

// SessionRepository はデバイスごとのログインセッションの永続化インターフェース。
type SessionRepository interface {
	// Upsert はデバイスのセッションを作成または置き換える。
	Upsert(ctx context.Context, session *model.Session) error

	// FindByDeviceID はデバイスの有効なセッションを取得する。
	// 存在しないか期限切れの場合はnilを返す。
	FindByDeviceID(ctx context.Context, deviceID string) (*model.Session, error)

	// DeleteByDeviceID はデバイスのセッションを削除する。
	DeleteByDeviceID(ctx context.Context, deviceID string) error

	// DeleteIssued はsessionと同じ発行（デバイス・外部ID・作成時刻）のセッションだけを削除する。
	// 後から発行された別のセッションは残す。
	DeleteIssued(ctx context.Context, session *model.Session) error

	// DeleteExpired は期限切れのセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}
