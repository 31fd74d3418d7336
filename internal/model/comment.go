// Package model はドメインモデルを定義する。
package model

import "time"

// Comment は収集済みのコメント1件を表す正規化済みエンティティ。
// comment_idはストア全体で一意であり、同じリモートIDが二重に保存されることはない。
// 一度保存されたコメントは更新も削除もされない（追記専用）。
type Comment struct {
	ID                string
	VideoID           string
	CommentID         string // リモート側が割り当てたコメントID（cid）
	Content           string // Unicodeエスケープを復号済みのネイティブテキスト
	AuthorDisplayName string
	AuthorID          string
	LikeCount         int
	ReplyCount        int
	IPLocation        string
	CreatedAt         *time.Time // リモートのcreate_time（epoch秒）。0/欠落はnil（不明）
	CollectedAt       time.Time  // 保存時刻
}

// SaveSummary はコメント保存処理の結果集計を表す。
type SaveSummary struct {
	Saved   int `json:"saved"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

// CommentPage はページネーション付きのコメント読み出し結果を表す。
// ページ番号は1始まり。
type CommentPage struct {
	Total       int
	Pages       int
	CurrentPage int
	Items       []Comment
}
