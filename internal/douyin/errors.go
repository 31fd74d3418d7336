package douyin

import (
	"context"
	"errors"
	"fmt"
)

// ErrEmptyResponse は上流APIがボディ空のレスポンスを返した場合のエラー。
// Cookie失効時に頻出するパターンで、リトライ対象となる。
var ErrEmptyResponse = errors.New("上流APIのレスポンスボディが空です")

// HTTPStatusError は上流APIが2xx以外のHTTPステータスを返した場合のエラー。
type HTTPStatusError struct {
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("上流APIがステータス %d を返しました", e.StatusCode)
}

// MalformedResponseError は上流APIのレスポンスがJSONとして解析できない場合のエラー。
type MalformedResponseError struct {
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("上流APIレスポンスの解析に失敗しました: %v", e.Err)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

// APIStatusError は上流APIのエンベロープがstatus_code != 0を返した場合のエラー。
// HTTPレベルでは成功していてもアプリケーションレベルで拒否されたことを示す。
type APIStatusError struct {
	StatusCode int64
	Message    string
}

func (e *APIStatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("上流APIがエラーを返しました: status_code=%d message=%s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("上流APIがエラーを返しました: status_code=%d", e.StatusCode)
}

// IsRetryable はエラーがリトライ対象かどうかを判定する。
// コンテキストキャンセルはリトライ対象外。
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrEmptyResponse) {
		return true
	}
	var httpErr *HTTPStatusError
	if errors.As(err, &httpErr) {
		return true
	}
	var malformedErr *MalformedResponseError
	if errors.As(err, &malformedErr) {
		return true
	}
	var apiErr *APIStatusError
	if errors.As(err, &apiErr) {
		return true
	}
	// トランスポートレベルの失敗（接続断、タイムアウト等）もリトライ対象
	return true
}
