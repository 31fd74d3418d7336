package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/commentman/internal/model"
)

// apiErrorResponse は統一エラーフォーマットのレスポンスボディ。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// WriteErrorResponse は統一形式のエラーレスポンスをJSONで書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	}); err != nil {
		slog.Error("failed to encode error response",
			slog.String("error", err.Error()),
		)
	}
}

// WriteInternalServerError は内部エラーの統一レスポンスを書き込む。
// 内部の詳細はログにのみ出力し、クライアントには汎用メッセージを返す。
func WriteInternalServerError(w http.ResponseWriter, err error) {
	slog.Error("internal server error",
		slog.String("error", err.Error()),
	)
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     model.ErrCodeInternalError,
		Message:  "サーバー内部でエラーが発生しました。時間をおいて再度お試しください。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}
