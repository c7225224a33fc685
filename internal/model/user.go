// Package model はドメインモデルを定義する。
package model

import "time"

// Profile はドキュメントストアに永続化されるユーザーごとのプロフィールを表す。
// IDは外部IdPのExternalIDと一致し、CreatedAt（エポックミリ秒）は初回作成時にのみ設定される。
type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	Email       string `json:"email,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	CreatedAt   int64  `json:"createdAt"`
}

// NewProfileFromIdentity はIdentityの属性からProfileを組み立てる。
// CreatedAtにはnowのエポックミリ秒を設定する。
func NewProfileFromIdentity(identity *Identity, now time.Time) *Profile {
	return &Profile{
		ID:          identity.ExternalID,
		DisplayName: identity.DisplayName,
		Email:       identity.Email,
		AvatarURL:   identity.AvatarURL,
		CreatedAt:   now.UnixMilli(),
	}
}

// Identity は外部IdPが1回の認証で返した検証済みのユーザー属性を表す。
// 空文字列は値なしを意味する。
type Identity struct {
	ExternalID  string
	DisplayName string
	Email       string
	AvatarURL   string
}

// IdentityRecord はIdPのsubjectを初めて観測した記録を表す。
// 初回ログインか再訪かの判定に使う。
type IdentityRecord struct {
	ID          string
	Provider    string
	Subject     string
	DisplayName string
	Email       string
	AvatarURL   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ToIdentity はIdentityRecordをIdentityへ変換する。
func (r *IdentityRecord) ToIdentity() *Identity {
	return &Identity{
		ExternalID:  r.Subject,
		DisplayName: r.DisplayName,
		Email:       r.Email,
		AvatarURL:   r.AvatarURL,
	}
}

// Session はデバイスごとの現在のログインセッションを表す。
type Session struct {
	DeviceID   string
	ExternalID string
	ExpiresAt  time.Time
	CreatedAt  time.Time
}
