// Package model はドメインモデルを定義する。
package model

// CredentialSource はクレデンシャルの取得元を表す。
type CredentialSource string

const (
	// CredentialSourceExplicit は呼び出し元から明示的に渡された値。
	CredentialSourceExplicit CredentialSource = "explicit"
	// CredentialSourceEnv は環境変数から読み込んだ値。
	CredentialSourceEnv CredentialSource = "env"
	// CredentialSourceFile はクレデンシャルファイルから読み込んだ値。
	CredentialSourceFile CredentialSource = "file"
	// CredentialSourceUpdated はAPI経由の更新で置き換えられた値。
	CredentialSourceUpdated CredentialSource = "updated"
)

// Credential はリモートAPIへのリクエストに必要なセッションクレデンシャル（Cookie）を表す。
// 値は不透明なトークン文字列として扱い、部分的な書き換えは行わない。
type Credential struct {
	Value  string
	Source CredentialSource
}

// VerificationResult はクレデンシャル検証の結果を表す。
type VerificationResult struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
}

// CookiePair はブラウザからエクスポートされたCookieの1エントリを表す。
type CookiePair struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}
