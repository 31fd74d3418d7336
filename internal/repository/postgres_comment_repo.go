package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/hitoshi/commentman/internal/model"
)

// saveBatchSize はコメント保存のコミット単位。
// 途中で失敗しても、ここまでにコミットされたバッチは保存されたままになる。
const saveBatchSize = 10

// PostgresCommentRepo はPostgreSQLを使用したコメントリポジトリ。
type PostgresCommentRepo struct {
	db *sql.DB
}

// NewPostgresCommentRepo はPostgresCommentRepoを生成する。
func NewPostgresCommentRepo(db *sql.DB) *PostgresCommentRepo {
	return &PostgresCommentRepo{db: db}
}

// ExistsByCommentID は指定のリモートコメントIDが保存済みかを返す。
func (r *PostgresCommentRepo) ExistsByCommentID(ctx context.Context, commentID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM comments WHERE comment_id = $1)`,
		commentID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("コメントの存在確認に失敗しました: %w", err)
	}

	return exists, nil
}

// SaveBatched はコメントを10件単位のトランザクションで保存する。
// バッチ内で挿入エラーが起きた場合、そのバッチだけロールバックして
// 1件ずつの再試行に切り替える。一意制約違反（並行収集の競合）はスキップ扱い。
func (r *PostgresCommentRepo) SaveBatched(ctx context.Context, comments []model.Comment) (model.SaveSummary, error) {
	var sum model.SaveSummary

	for start := 0; start < len(comments); start += saveBatchSize {
		end := start + saveBatchSize
		if end > len(comments) {
			end = len(comments)
		}
		chunk := comments[start:end]

		saved, skipped, err := r.saveChunk(ctx, chunk)
		if err == nil {
			sum.Saved += saved
			sum.Skipped += skipped
			continue
		}

		if ctx.Err() != nil {
			return sum, fmt.Errorf("コメント保存が中断されました: %w", ctx.Err())
		}

		slog.Warn("バッチ保存に失敗したため1件ずつ再試行します",
			slog.Int("chunk_size", len(chunk)),
			slog.String("error", err.Error()),
		)

		s, k, e := r.saveOneByOne(ctx, chunk)
		sum.Saved += s
		sum.Skipped += k
		sum.Errors += e
	}

	return sum, nil
}

// saveChunk は1バッチ分を単一トランザクションで保存する。
// 戻り値は保存数・スキップ数。挿入エラー時はロールバックしてエラーを返す。
func (r *PostgresCommentRepo) saveChunk(ctx context.Context, chunk []model.Comment) (int, int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}

	saved := 0
	skipped := 0
	for i := range chunk {
		c := &chunk[i]

		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM comments WHERE comment_id = $1)`,
			c.CommentID,
		).Scan(&exists); err != nil {
			tx.Rollback()
			return 0, 0, fmt.Errorf("コメントの存在確認に失敗しました: %w", err)
		}
		if exists {
			skipped++
			continue
		}

		if err := insertComment(ctx, tx, c); err != nil {
			tx.Rollback()
			return 0, 0, err
		}
		saved++
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("バッチのコミットに失敗しました: %w", err)
	}

	return saved, skipped, nil
}

// saveOneByOne はバッチ失敗時のフォールバック。
// 1件ずつ自動コミットで挿入し、一意制約違反はスキップ、その他の失敗はエラーとして数える。
func (r *PostgresCommentRepo) saveOneByOne(ctx context.Context, chunk []model.Comment) (saved, skipped, errCount int) {
	for i := range chunk {
		c := &chunk[i]

		exists, err := r.ExistsByCommentID(ctx, c.CommentID)
		if err != nil {
			errCount++
			continue
		}
		if exists {
			skipped++
			continue
		}

		if err := insertComment(ctx, r.db, c); err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
				skipped++
				continue
			}
			slog.Error("コメントの挿入に失敗しました",
				slog.String("comment_id", c.CommentID),
				slog.String("video_id", c.VideoID),
				slog.String("error", err.Error()),
			)
			errCount++
			continue
		}
		saved++
	}

	return saved, skipped, errCount
}

// execer は*sql.DBと*sql.Txの両方を受け付けるための最小インターフェース。
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertComment(ctx context.Context, e execer, c *model.Comment) error {
	var createdAt sql.NullTime
	if c.CreatedAt != nil {
		createdAt = sql.NullTime{Time: *c.CreatedAt, Valid: true}
	}

	_, err := e.ExecContext(ctx,
		`INSERT INTO comments
		   (id, video_id, comment_id, content, author_display_name, author_id,
		    like_count, reply_count, ip_location, created_at, collected_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		c.ID, c.VideoID, c.CommentID, c.Content, c.AuthorDisplayName, c.AuthorID,
		c.LikeCount, c.ReplyCount, c.IPLocation, createdAt, c.CollectedAt,
	)
	return err
}

// PageByVideo は指定動画のコメントをcreated_at降順（不明日時は末尾）で返す。
// ページ番号は1始まり。範囲外のページは空のItemsを返す。
func (r *PostgresCommentRepo) PageByVideo(ctx context.Context, videoID string, page, perPage int) (*model.CommentPage, error) {
	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM comments WHERE video_id = $1`,
		videoID,
	).Scan(&total); err != nil {
		return nil, fmt.Errorf("コメント件数の取得に失敗しました: %w", err)
	}

	pages := 0
	if total > 0 {
		pages = (total + perPage - 1) / perPage
	}

	offset := (page - 1) * perPage
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, video_id, comment_id, content, author_display_name, author_id,
		        like_count, reply_count, ip_location, created_at, collected_at
		 FROM comments
		 WHERE video_id = $1
		 ORDER BY created_at DESC NULLS LAST, collected_at DESC
		 LIMIT $2 OFFSET $3`,
		videoID, perPage, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("コメント一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	items := []model.Comment{}
	for rows.Next() {
		var c model.Comment
		var createdAt sql.NullTime

		if err := rows.Scan(
			&c.ID, &c.VideoID, &c.CommentID, &c.Content, &c.AuthorDisplayName, &c.AuthorID,
			&c.LikeCount, &c.ReplyCount, &c.IPLocation, &createdAt, &c.CollectedAt,
		); err != nil {
			return nil, fmt.Errorf("コメント行の読み取りに失敗しました: %w", err)
		}

		if createdAt.Valid {
			c.CreatedAt = &createdAt.Time
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("コメント一覧の走査に失敗しました: %w", err)
	}

	return &model.CommentPage{
		Total:       total,
		Pages:       pages,
		CurrentPage: page,
		Items:       items,
	}, nil
}
