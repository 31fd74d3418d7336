package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hitoshi/commentman/internal/credential"
	"github.com/hitoshi/commentman/internal/model"
)

// CredentialServiceInterface はCookie管理ハンドラーが必要とするサービスインターフェース。
type CredentialServiceInterface interface {
	// Verify は現在のCookieの有効性を疎通確認する。
	Verify(ctx context.Context) (*model.VerificationResult, error)
	// Update は新しいCookieを検証して差し替える。
	Update(ctx context.Context, newCookie string) (*model.VerificationResult, error)
}

// CookieHandler は抖音Cookie管理のHTTPハンドラー。
type CookieHandler struct {
	service CredentialServiceInterface
}

// NewCookieHandler はCookieHandlerを生成する。
func NewCookieHandler(service CredentialServiceInterface) *CookieHandler {
	return &CookieHandler{service: service}
}

// updateCookieRequest はCookie更新リクエストのボディ。
// cookieフィールドの文字列、またはcookiesフィールドの名前値ペア配列の
// どちらかを受け付ける。両方指定された場合はcookieを優先する。
type updateCookieRequest struct {
	Cookie  string             `json:"cookie"`
	Cookies []model.CookiePair `json:"cookies"`
}

// verificationResponse はCookie検証結果のAPIレスポンス。
type verificationResponse struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
}

// Verify は現在のCookieの有効性を確認する。
// GET /api/cookie/verify
func (h *CookieHandler) Verify(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Verify(r.Context())
	if err != nil {
		if errors.Is(err, credential.ErrCredentialMissing) {
			writeAPIErrorResponse(w, http.StatusInternalServerError, model.NewCredentialMissingError())
			return
		}
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(verificationResponse{
		Valid:   result.Valid,
		Message: result.Message,
	})
}

// Update は新しいCookieを検証して登録する。
// POST /api/cookie/update
func (h *CookieHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateCookieRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return
	}

	cookie := req.Cookie
	if cookie == "" && len(req.Cookies) > 0 {
		cookie = credential.JoinCookiePairs(req.Cookies)
	}
	if cookie == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("cookieまたはcookiesのいずれかは必須です"))
		return
	}

	result, err := h.service.Update(r.Context(), cookie)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	// 検証に失敗した場合は現在のCookieが維持されている
	if !result.Valid {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewCredentialInvalidError(result.Message))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(verificationResponse{
		Valid:   result.Valid,
		Message: result.Message,
	})
}
