// Package douyin は抖音コメントAPIのクライアントを提供する。
// 署名付きリクエストの発行とレスポンスエンベロープの解析を含む。
package douyin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/hitoshi/commentman/internal/signer"
)

// defaultEndpoint は抖音コメント一覧APIのエンドポイント。
const defaultEndpoint = "https://www.douyin.com/aweme/v1/web/comment/list/"

// PageRequest はコメント1ページ分の取得リクエスト。
type PageRequest struct {
	VideoID string // 動画ID（aweme_id）
	Cursor  string // ページングカーソル。先頭ページは"0"
	Count   int    // 取得件数
	Cookie  string // 認証Cookie（"name=value; ..."形式）
}

// Page はコメント1ページ分の取得結果。
// 個々のコメントは正規化前の生JSONとして保持し、解釈は呼び出し元に委ねる。
type Page struct {
	Comments []json.RawMessage
	Cursor   string // 次ページのカーソル（上流が返した場合）
	HasMore  bool
}

// envelope は上流APIレスポンスの外側の構造。
type envelope struct {
	StatusCode int64             `json:"status_code"`
	StatusMsg  string            `json:"status_msg"`
	Comments   []json.RawMessage `json:"comments"`
	Cursor     json.Number       `json:"cursor"`
	HasMore    boolLike          `json:"has_more"`
}

// boolLike は数値(0/1)とboolの両方を受け付けるフラグ型。
// 上流APIはhas_moreを数値で返すことも真偽値で返すこともある。
type boolLike bool

func (b *boolLike) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("true")):
		*b = true
	case bytes.Equal(data, []byte("false")), bytes.Equal(data, []byte("null")):
		*b = false
	default:
		n, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return fmt.Errorf("has_moreの値を解釈できません: %s", string(data))
		}
		*b = n != 0
	}
	return nil
}

// Client は抖音コメントAPIのクライアント。
type Client struct {
	httpClient *http.Client
	signer     signer.Signer
	logger     *slog.Logger
	endpoint   string // テスト用にエンドポイントを差し替え可能
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, s signer.Signer, logger *slog.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		signer:     s,
		logger:     logger,
		endpoint:   defaultEndpoint,
	}
}

// FetchPage はコメント1ページ分を取得する。
// エラーはリトライ判断に使えるよう型で区別して返す:
// HTTPステータス異常は*HTTPStatusError、空ボディはErrEmptyResponse、
// JSON解析失敗は*MalformedResponseError、エンベロープのstatus_code != 0は
// *APIStatusErrorとなる。
func (c *Client) FetchPage(ctx context.Context, req PageRequest) (*Page, error) {
	if req.VideoID == "" {
		return nil, fmt.Errorf("動画IDが空です")
	}

	cursor := req.Cursor
	if cursor == "" {
		cursor = "0"
	}

	params := url.Values{}
	params.Set("aweme_id", req.VideoID)
	params.Set("cursor", cursor)
	params.Set("count", strconv.Itoa(req.Count))
	params.Set("item_type", "0")

	headers := http.Header{}
	if req.Cookie != "" {
		headers.Set("Cookie", req.Cookie)
	}

	// 署名の付与
	signedParams, signedHeaders, err := c.signer.Sign(c.endpoint, params, headers)
	if err != nil {
		return nil, fmt.Errorf("リクエストの署名に失敗しました: %w", err)
	}

	reqURL, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("エンドポイントURLのパースに失敗しました: %w", err)
	}
	reqURL.RawQuery = signedParams.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	httpReq.Header = signedHeaders

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("抖音APIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
			slog.String("video_id", req.VideoID),
			slog.String("cursor", cursor),
		)
		return nil, fmt.Errorf("抖音APIの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("抖音APIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.String("video_id", req.VideoID),
		)
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	// 空ボディはCookie失効の典型的な兆候
	if len(bytes.TrimSpace(body)) == 0 {
		c.logger.Warn("抖音APIが空のレスポンスを返しました",
			slog.String("video_id", req.VideoID),
			slog.String("cursor", cursor),
		)
		return nil, ErrEmptyResponse
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		c.logger.Error("抖音APIレスポンスのパースに失敗しました",
			slog.String("error", err.Error()),
			slog.String("video_id", req.VideoID),
		)
		return nil, &MalformedResponseError{Err: err}
	}

	if env.StatusCode != 0 {
		return nil, &APIStatusError{StatusCode: env.StatusCode, Message: env.StatusMsg}
	}

	return &Page{
		Comments: env.Comments,
		Cursor:   env.Cursor.String(),
		HasMore:  bool(env.HasMore),
	}, nil
}
