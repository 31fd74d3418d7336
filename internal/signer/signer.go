// Package signer は抖音の上流APIリクエストに対する署名を提供する。
package signer

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
)

// Signer はリクエストの署名インターフェース。
// 実装は要求URLとクエリパラメータ、ヘッダを受け取り、
// 署名済みのパラメータとヘッダを返す。署名方式の詳細は実装に閉じる。
type Signer interface {
	Sign(rawURL string, params url.Values, headers http.Header) (url.Values, http.Header, error)
}

// 署名に使用するブラウザ相当のUser-Agent。
// Webエンドポイントはブラウザ由来でないUAのリクエストを拒否する。
const webUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// WebSigner はWebエンドポイント向けの署名実装。
// ブラウザが付与するヘッダ一式とトークン系クエリパラメータを補完する。
type WebSigner struct {
	// referer は署名時に付与するRefererヘッダ。
	referer string
}

// NewWebSigner はWebSignerを生成する。
func NewWebSigner() *WebSigner {
	return &WebSigner{
		referer: "https://www.douyin.com/",
	}
}

// Sign はパラメータとヘッダに署名情報を付与して返す。
// 入力のparamsとheadersは変更せず、コピーに対して付与する。
func (s *WebSigner) Sign(rawURL string, params url.Values, headers http.Header) (url.Values, http.Header, error) {
	if rawURL == "" {
		return nil, nil, fmt.Errorf("署名対象のURLが空です")
	}
	if _, err := url.Parse(rawURL); err != nil {
		return nil, nil, fmt.Errorf("署名対象のURLの解析に失敗しました: %w", err)
	}

	signedParams := url.Values{}
	for key, values := range params {
		for _, v := range values {
			signedParams.Add(key, v)
		}
	}

	signedHeaders := http.Header{}
	for key, values := range headers {
		for _, v := range values {
			signedHeaders.Add(key, v)
		}
	}

	// Webエンドポイントが検証するデバイス系パラメータ
	signedParams.Set("device_platform", "webapp")
	signedParams.Set("aid", "6383")
	signedParams.Set("channel", "channel_pc_web")

	if signedParams.Get("msToken") == "" {
		token, err := randomToken(64)
		if err != nil {
			return nil, nil, fmt.Errorf("msTokenの生成に失敗しました: %w", err)
		}
		signedParams.Set("msToken", token)
	}

	if signedHeaders.Get("User-Agent") == "" {
		signedHeaders.Set("User-Agent", webUserAgent)
	}
	if signedHeaders.Get("Referer") == "" {
		signedHeaders.Set("Referer", s.referer)
	}

	return signedParams, signedHeaders, nil
}

// randomToken は指定バイト長の乱数を16進文字列で返す。
func randomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
