package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/commentman/internal/collector"
	"github.com/hitoshi/commentman/internal/credential"
	"github.com/hitoshi/commentman/internal/model"
)

// CollectorServiceInterface はコメント収集ハンドラーが必要とする収集サービス。
type CollectorServiceInterface interface {
	// Collect は指定動画のコメントを最大maxComments件収集する。
	Collect(ctx context.Context, input string, maxComments int) (*collector.Result, error)
}

// CommentServiceInterface はコメントの保存と参照のサービスインターフェース。
type CommentServiceInterface interface {
	// Save は収集済みコメントを保存する。
	Save(ctx context.Context, comments []model.Comment) (model.SaveSummary, error)
	// Page は指定動画のコメントをページ単位で取得する。
	Page(ctx context.Context, videoID string, page, perPage int) (*model.CommentPage, error)
}

// CommentHandler はコメント収集・参照のHTTPハンドラー。
type CommentHandler struct {
	collector CollectorServiceInterface
	comments  CommentServiceInterface
}

// NewCommentHandler はCommentHandlerを生成する。
func NewCommentHandler(collectorSvc CollectorServiceInterface, commentSvc CommentServiceInterface) *CommentHandler {
	return &CommentHandler{
		collector: collectorSvc,
		comments:  commentSvc,
	}
}

// collectRequest はコメント収集リクエストのボディ。
type collectRequest struct {
	VideoID     string `json:"video_id"`
	MaxComments int    `json:"max_comments"`
}

// collectResponse はコメント収集結果のAPIレスポンス。
type collectResponse struct {
	VideoID  string            `json:"video_id"`
	Total    int               `json:"total"`
	Comments []commentResponse `json:"comments"`
	Pages    int               `json:"pages"`
	Dropped  int               `json:"dropped"`
	Saved    int               `json:"saved"`
	Skipped  int               `json:"skipped"`
	Errors   int               `json:"errors"`
}

// commentResponse はコメント1件のAPIレスポンス。
type commentResponse struct {
	ID                string     `json:"id"`
	VideoID           string     `json:"video_id"`
	CommentID         string     `json:"comment_id"`
	Content           string     `json:"content"`
	AuthorDisplayName string     `json:"author_display_name"`
	AuthorID          string     `json:"author_id"`
	LikeCount         int        `json:"like_count"`
	ReplyCount        int        `json:"reply_count"`
	IPLocation        string     `json:"ip_location"`
	CreatedAt         *time.Time `json:"created_at"`
	CollectedAt       time.Time  `json:"collected_at"`
}

// commentPageResponse はコメント一覧のページAPIレスポンス。
type commentPageResponse struct {
	Total       int               `json:"total"`
	Pages       int               `json:"pages"`
	CurrentPage int               `json:"current_page"`
	Comments    []commentResponse `json:"comments"`
}

// Collect はコメント収集を処理する。
// POST /api/comments/collect
func (h *CommentHandler) Collect(w http.ResponseWriter, r *http.Request) {
	var req collectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return
	}

	if req.VideoID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("video_idは必須です"))
		return
	}
	if req.MaxComments <= 0 {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("max_commentsは1以上を指定してください"))
		return
	}

	result, err := h.collector.Collect(r.Context(), req.VideoID, req.MaxComments)
	if err != nil {
		handleCollectError(w, err)
		return
	}

	if len(result.Comments) == 0 {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewCommentsNotFoundError(result.VideoID))
		return
	}

	// SaveはIDと収集時刻を各要素に付与する
	summary, err := h.comments.Save(r.Context(), result.Comments)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusInternalServerError, model.NewStorageError(err.Error()))
		return
	}

	items := make([]commentResponse, len(result.Comments))
	for i, c := range result.Comments {
		items[i] = toCommentResponse(c)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(collectResponse{
		VideoID:  result.VideoID,
		Total:    len(result.Comments),
		Comments: items,
		Pages:    result.Pages,
		Dropped:  result.Dropped,
		Saved:    summary.Saved,
		Skipped:  summary.Skipped,
		Errors:   summary.Errors,
	})
}

// List は保存済みコメントをページ単位で返す。
// GET /api/comments/{video_id}?page=1&per_page=20
func (h *CommentHandler) List(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "video_id")
	if videoID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("video_idは必須です"))
		return
	}

	page, err := positiveQueryInt(r, "page", 1)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("pageは1以上の整数を指定してください"))
		return
	}
	perPage, err := positiveQueryInt(r, "per_page", 20)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("per_pageは1以上の整数を指定してください"))
		return
	}

	result, err := h.comments.Page(r.Context(), videoID, page, perPage)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if result.Total == 0 {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewCommentsNotFoundError(videoID))
		return
	}

	items := make([]commentResponse, len(result.Items))
	for i, c := range result.Items {
		items[i] = toCommentResponse(c)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(commentPageResponse{
		Total:       result.Total,
		Pages:       result.Pages,
		CurrentPage: result.CurrentPage,
		Comments:    items,
	})
}

// toCommentResponse はmodel.CommentをAPIレスポンス型へ変換する。
func toCommentResponse(c model.Comment) commentResponse {
	return commentResponse{
		ID:                c.ID,
		VideoID:           c.VideoID,
		CommentID:         c.CommentID,
		Content:           c.Content,
		AuthorDisplayName: c.AuthorDisplayName,
		AuthorID:          c.AuthorID,
		LikeCount:         c.LikeCount,
		ReplyCount:        c.ReplyCount,
		IPLocation:        c.IPLocation,
		CreatedAt:         c.CreatedAt,
		CollectedAt:       c.CollectedAt,
	}
}

// positiveQueryInt はクエリパラメータを1以上の整数として解釈する。
// 未指定の場合はデフォルト値を返す。
func positiveQueryInt(r *http.Request, name string, defaultValue int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return 0, errors.New("invalid query parameter")
	}
	return v, nil
}

// handleCollectError は収集サービスのエラーをHTTPステータスへ変換する。
// クレデンシャル未設定は設定不備（500）、リトライ上限到達は上流障害（502）として扱う。
func handleCollectError(w http.ResponseWriter, err error) {
	if errors.Is(err, credential.ErrCredentialMissing) {
		writeAPIErrorResponse(w, http.StatusInternalServerError, model.NewCredentialMissingError())
		return
	}
	if errors.Is(err, collector.ErrRetryExhausted) {
		writeAPIErrorResponse(w, http.StatusBadGateway, model.NewCollectionFailedError(err.Error()))
		return
	}
	handleServiceError(w, err)
}

// includeErrorDetail が有効な場合、内部エラーの詳細をdetailフィールドとして
// レスポンスに含める。本番環境では無効にする。
var includeErrorDetail bool

// SetIncludeErrorDetail はエラーレスポンスへの診断詳細の出力を切り替える。
// アプリケーション起動時に1回だけ呼び出す。
func SetIncludeErrorDetail(v bool) {
	includeErrorDetail = v
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
	Detail   string `json:"detail,omitempty"`
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
// 診断用の詳細は本番環境ではレスポンスに含めない。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	resp := apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	}
	if includeErrorDetail {
		resp.Detail = apiErr.Detail
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))

	resp := apiErrorResponse{
		Code:     model.ErrCodeInternalError,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
	if includeErrorDetail {
		resp.Detail = err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(resp)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidRequest, model.ErrCodeDuplicateUsername:
		return http.StatusBadRequest
	case model.ErrCodeLoginFailed, model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeUserNotFound, model.ErrCodeCommentsNotFound:
		return http.StatusNotFound
	case model.ErrCodeCollectionFailed:
		return http.StatusBadGateway
	case model.ErrCodeCredentialInvalid:
		return http.StatusBadRequest
	case model.ErrCodeCredentialMissing, model.ErrCodeStorageError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
