// Package auth はIdPトークンの交換とプロフィールの照合を提供する。
package auth

import (
	"context"
	"errors"

	"github.com/hitoshi/skycast/internal/model"
)

// ErrEmptyToken はサインインに空のIDトークンが渡されたことを示す。
var ErrEmptyToken = errors.New("id token is required")

// ErrEmptyUserID はプロフィール取得に空のユーザーIDが渡されたことを示す。
var ErrEmptyUserID = errors.New("user id is required")

// ErrNotSignedIn はサインイン中のユーザーがいないことを示す。
var ErrNotSignedIn = errors.New("no user is signed in")

// ErrClosed はClose済みのReconcilerに操作が発行されたことを示す。
var ErrClosed = errors.New("reconciler is closed")

// ExchangeResult はIdPトークン交換の結果を表す。
type ExchangeResult struct {
	Identity model.Identity
	// IsNewIdentity はIdPがこのsubjectを初めて観測した場合にtrueになる。
	IsNewIdentity bool
}

// IdentityBroker は外部IdPとの境界を表すインターフェース。
// 現在のセッションの真実のソースはBroker側にある。
type IdentityBroker interface {
	// CurrentSession は現在サインイン中のIdentityを返す。セッションがない場合はnilを返す。
	CurrentSession(ctx context.Context) (*model.Identity, error)
	// Exchange はIdPトークンを検証済みIdentityに交換する。
	// 失敗時はmodel.ErrExchangeをラップしたエラーを返す。
	Exchange(ctx context.Context, token string) (*ExchangeResult, error)
	// SignOut はBrokerのセッションを破棄する。
	SignOut(ctx context.Context) error
}
