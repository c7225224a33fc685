package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/hitoshi/skycast/internal/auth"
	"github.com/hitoshi/skycast/internal/middleware"
	"github.com/hitoshi/skycast/internal/model"
)

// maxBodyBytes はJSONリクエストボディの上限。
const maxBodyBytes = 64 << 10

var validate = validator.New()

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// decodeRequest はJSONボディをdstに読み込み、validateタグで検証する。
// 失敗した場合は400レスポンスを書き込んでfalseを返す。
func decodeRequest(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("JSONの解析に失敗しました"))
		return false
	}

	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field()+":"+fe.Tag())
			}
			middleware.WriteErrorResponse(w, http.StatusBadRequest,
				model.NewInvalidRequestError(strings.Join(fields, ", ")))
			return false
		}
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError(err.Error()))
		return false
	}
	return true
}

// handleServiceError はReconcilerなどから返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	switch {
	case errors.As(err, &apiErr):
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
	case errors.Is(err, auth.ErrEmptyToken):
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidTokenError())
	case errors.Is(err, auth.ErrNotSignedIn), errors.Is(err, auth.ErrEmptyUserID):
		middleware.WriteErrorResponse(w, http.StatusConflict, model.NewNotSignedInError())
	case errors.Is(err, auth.ErrClosed):
		middleware.WriteErrorResponse(w, http.StatusServiceUnavailable, model.NewUnavailableError())
	default:
		// APIError以外のエラーは内部サーバーエラーとして扱う
		slog.Error("internal server error", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
	}
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidRequest, model.ErrCodeInvalidToken, model.ErrCodeInvalidCity:
		return http.StatusBadRequest
	case model.ErrCodeUnauthenticated:
		return http.StatusUnauthorized
	case model.ErrCodeNotSignedIn:
		return http.StatusConflict
	case model.ErrCodeSignOutFailed:
		return http.StatusBadGateway
	case model.ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
