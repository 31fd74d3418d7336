// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/commentman/internal/model"
)

// ErrDuplicateUsername はユーザー名の一意制約違反を表す。
var ErrDuplicateUsername = errors.New("username already exists")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByUsername はユーザー名でユーザーを検索する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// Create はユーザーを作成する。
	// ユーザー名が既に存在する場合はErrDuplicateUsernameを返す。
	Create(ctx context.Context, user *model.User) error

	// UpdateLastLogin は最終ログイン時刻を更新する。
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
}

// CommentRepository はコメントデータの永続化インターフェース。
// コメントは追記専用で、comment_idの一意性はストレージ制約としても保証される。
type CommentRepository interface {
	// ExistsByCommentID は指定のリモートコメントIDが保存済みかを返す。
	// 挿入前の重複チェックに使う（最終防衛線はDBの一意制約）。
	ExistsByCommentID(ctx context.Context, commentID string) (bool, error)

	// SaveBatched はコメントを10件単位のトランザクションで保存する。
	// 後続バッチの失敗はコミット済みバッチをロールバックしない（意図した部分永続性）。
	// 既存comment_idはスキップ、一意制約違反の競合もスキップとして数える。
	SaveBatched(ctx context.Context, comments []model.Comment) (model.SaveSummary, error)

	// PageByVideo は指定動画のコメントをcreated_at降順・1始まりページで返す。
	PageByVideo(ctx context.Context, videoID string, page, perPage int) (*model.CommentPage, error)
}
