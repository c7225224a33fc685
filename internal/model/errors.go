// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// 層をまたいで使うセンチネルエラー。errors.Isで判定する。
var (
	// ErrNotFound はプロフィールが存在しないことを示す。
	// 再訪ユーザーのサインイン時のみ自己修復（再作成）のトリガーになる。
	ErrNotFound = errors.New("not found")

	// ErrExchange はIdPがトークンを拒否した、または交換に失敗したことを示す。
	ErrExchange = errors.New("identity exchange failed")

	// ErrStore はプロフィールストアの読み書きに失敗したことを示す。
	ErrStore = errors.New("profile store error")

	// ErrNetwork は天気APIへの通信に失敗したことを示す。
	ErrNetwork = errors.New("network error")

	// ErrCityNotFound は天気APIが都市を解決できなかったことを示す。
	ErrCityNotFound = errors.New("city not found")

	// ErrDecode は天気APIのレスポンスを解釈できなかったことを示す。
	ErrDecode = errors.New("decode error")
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, weather, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidRequest  = "INVALID_REQUEST"
	ErrCodeInvalidToken    = "INVALID_TOKEN"
	ErrCodeInvalidCity     = "INVALID_CITY"
	ErrCodeUnauthenticated = "UNAUTHENTICATED"
	ErrCodeNotSignedIn     = "NOT_SIGNED_IN"
	ErrCodeSignOutFailed   = "SIGN_OUT_FAILED"
	ErrCodeUnavailable     = "SERVICE_UNAVAILABLE"
	ErrCodeInternal        = "INTERNAL_ERROR"
)

// NewInvalidRequestError はリクエストボディが不正な場合のエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "リクエストの形式を確認してください。",
	}
}

// NewInvalidTokenError はIDトークンが空の場合のエラーを生成する。
func NewInvalidTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidToken,
		Message:  "IDトークンが指定されていません。",
		Category: "validation",
		Action:   "Googleアカウントでもう一度サインインしてください。",
	}
}

// NewInvalidCityError は都市名が空の場合のエラーを生成する。
func NewInvalidCityError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCity,
		Message:  "都市名が入力されていません。",
		Category: "validation",
		Action:   "検索したい都市名を入力してください。",
	}
}

// NewUnauthenticatedError は未サインイン状態で保護されたAPIを呼んだ場合のエラーを生成する。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "サインインしてください。",
	}
}

// NewNotSignedInError はサインイン中のユーザーがいない状態でプロフィール操作を行った場合のエラーを生成する。
func NewNotSignedInError() *APIError {
	return &APIError{
		Code:     ErrCodeNotSignedIn,
		Message:  "サインイン中のユーザーがいません。",
		Category: "auth",
		Action:   "サインインしてからもう一度お試しください。",
	}
}

// NewSignOutFailedError はIdPのセッション破棄に失敗した場合のエラーを生成する。
// ローカルの認証状態は既にクリアされている。
func NewSignOutFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeSignOutFailed,
		Message:  "サインアウト処理の一部に失敗しました。",
		Category: "auth",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewUnavailableError はシャットダウン中などで操作を受け付けられない場合のエラーを生成する。
func NewUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeUnavailable,
		Message:  "現在リクエストを受け付けられません。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
