// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/skycast/internal/auth"
	"github.com/hitoshi/skycast/internal/middleware"
	"github.com/hitoshi/skycast/internal/model"
	"github.com/hitoshi/skycast/internal/result"
)

// AuthReconcilerInterface は認証ハンドラーが必要とする照合器のインターフェース。
// auth.Reconcilerが実装する。
type AuthReconcilerInterface interface {
	Snapshot() auth.Snapshot
	AuthState() *result.Cell[*model.Profile]
	ProfileState() *result.Cell[model.Profile]
	SignIn(token string) error
	SignOut(ctx context.Context) error
	RefreshProfile() error
}

// AuthHandler はサインイン・サインアウトとプロフィール参照のHTTPハンドラー。
type AuthHandler struct {
	reconciler AuthReconcilerInterface
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(reconciler AuthReconcilerInterface) *AuthHandler {
	return &AuthHandler{reconciler: reconciler}
}

// signInRequest はサインインリクエストのボディ。
type signInRequest struct {
	IDToken string `json:"idToken" validate:"required"`
}

// SignIn はIDトークンで照合を開始する。結果は/auth/stateまたは/auth/streamで観測する。
// POST /auth/signin
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	if err := h.reconciler.SignIn(req.IDToken); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, h.reconciler.Snapshot())
}

// SignOut はローカルの認証状態をクリアし、IdPのセッションを破棄する。
// POST /auth/signout
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	if err := h.reconciler.SignOut(r.Context()); err != nil {
		if errors.Is(err, auth.ErrClosed) {
			handleServiceError(w, err)
			return
		}
		// ローカル状態はクリア済み
		slog.Warn("sign out partially failed", slog.String("error", err.Error()))
		middleware.WriteErrorResponse(w, http.StatusBadGateway, model.NewSignOutFailedError())
		return
	}

	writeJSON(w, http.StatusOK, h.reconciler.Snapshot())
}

// State は照合状態と認証結果を返す。
// GET /auth/state
func (h *AuthHandler) State(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.reconciler.Snapshot())
}

// Profile はプロフィールストリームの現在値を返す。
// GET /auth/profile
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.reconciler.ProfileState().Get())
}

// RefreshProfile はサインイン中のユーザーのプロフィールを再取得する。
// POST /auth/profile/refresh
func (h *AuthHandler) RefreshProfile(w http.ResponseWriter, r *http.Request) {
	if err := h.reconciler.RefreshProfile(); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, h.reconciler.ProfileState().Get())
}

// Stream は認証結果の変化をServer-Sent Eventsで送る。
// GET /auth/stream
func (h *AuthHandler) Stream(w http.ResponseWriter, r *http.Request) {
	streamResults(w, r, h.reconciler.AuthState(), func(res result.Result[*model.Profile]) any {
		return res
	})
}
