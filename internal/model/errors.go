// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, collection, credential, system
	Action   string // ユーザー向け対処方法
	Detail   string // 診断用の詳細。本番環境ではレスポンスに含めない
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeDuplicateUsername  = "DUPLICATE_USERNAME"
	ErrCodeLoginFailed        = "LOGIN_FAILED"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeCredentialMissing  = "CREDENTIAL_MISSING"
	ErrCodeCredentialInvalid  = "CREDENTIAL_INVALID"
	ErrCodeCollectionFailed   = "COLLECTION_FAILED"
	ErrCodeCommentsNotFound   = "COMMENTS_NOT_FOUND"
	ErrCodeStorageError       = "STORAGE_ERROR"
	ErrCodeInternalError      = "INTERNAL_ERROR"
)

// NewInvalidRequestError はリクエスト入力不正エラーを生成する。
// リトライ対象外の4xxエラーとして扱う。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "リクエスト内容を確認してください。",
	}
}

// NewDuplicateUsernameError はユーザー名重複エラーを生成する。
func NewDuplicateUsernameError(username string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateUsername,
		Message:  fmt.Sprintf("ユーザー名は既に使用されています: %s", username),
		Category: "validation",
		Action:   "別のユーザー名を指定してください。",
	}
}

// NewLoginFailedError はログイン失敗エラーを生成する。
// ユーザー不存在とパスワード不一致を区別しない。
func NewLoginFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeLoginFailed,
		Message:  "ユーザー名またはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてアクセストークンをAuthorizationヘッダに指定してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewCredentialMissingError はクレデンシャル未設定エラーを生成する。
// クレデンシャル起因の失敗は一時的な障害ではないため自動リトライしない。
func NewCredentialMissingError() *APIError {
	return &APIError{
		Code:     ErrCodeCredentialMissing,
		Message:  "リモートAPI用のCookieが設定されていません。",
		Category: "credential",
		Action:   "環境変数DOUYIN_COOKIEを設定するか、POST /api/cookie/update でCookieを登録してください。",
	}
}

// NewCredentialInvalidError はクレデンシャル無効エラーを生成する。
func NewCredentialInvalidError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeCredentialInvalid,
		Message:  fmt.Sprintf("Cookieの検証に失敗しました: %s", reason),
		Category: "credential",
		Action:   "有効なセッションCookieを取得して再登録してください。",
	}
}

// NewCollectionFailedError はリトライ上限到達後の収集失敗エラーを生成する。
// 失敗原因は診断用のDetailとして保持する。
func NewCollectionFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeCollectionFailed,
		Message:  "コメント収集に失敗しました。",
		Category: "collection",
		Action:   "しばらく待ってから再度お試しください。失敗が続く場合はCookieを確認してください。",
		Detail:   reason,
	}
}

// NewCommentsNotFoundError はコメント未検出エラーを生成する。
func NewCommentsNotFoundError(videoID string) *APIError {
	return &APIError{
		Code:     ErrCodeCommentsNotFound,
		Message:  fmt.Sprintf("指定された動画のコメントが見つかりません: %s", videoID),
		Category: "collection",
		Action:   "動画IDを確認してください。",
	}
}

// NewStorageError は永続化失敗エラーを生成する。
// 失敗原因は診断用のDetailとして保持する。
func NewStorageError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeStorageError,
		Message:  "データベース操作に失敗しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
		Detail:   reason,
	}
}
