// Package comment はコメントの保存と参照のアプリケーションサービスを提供する。
package comment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/commentman/internal/metrics"
	"github.com/hitoshi/commentman/internal/model"
	"github.com/hitoshi/commentman/internal/repository"
)

// maxPerPage は1ページあたりの最大取得件数。
const maxPerPage = 100

// defaultPerPage はper_page未指定時の取得件数。
const defaultPerPage = 20

// Service はコメントの保存と参照を提供する。
type Service struct {
	repo    repository.CommentRepository
	metrics metrics.MetricsCollector
	logger  *slog.Logger
}

// NewService はServiceを生成する。
func NewService(repo repository.CommentRepository, mc metrics.MetricsCollector, logger *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		metrics: mc,
		logger:  logger,
	}
}

// Save は収集済みコメントにIDと収集時刻を付与して保存する。
// 保存はバッチ単位で行われ、結果は保存・スキップ・エラーの件数で返る。
func (s *Service) Save(ctx context.Context, comments []model.Comment) (model.SaveSummary, error) {
	now := time.Now().UTC()
	for i := range comments {
		if comments[i].ID == "" {
			comments[i].ID = uuid.New().String()
		}
		if comments[i].CollectedAt.IsZero() {
			comments[i].CollectedAt = now
		}
	}

	summary, err := s.repo.SaveBatched(ctx, comments)
	if err != nil {
		return summary, fmt.Errorf("コメントの保存に失敗しました: %w", err)
	}

	s.metrics.RecordCommentsSaved(summary.Saved)
	s.metrics.RecordCommentsSkipped(summary.Skipped)

	s.logger.Info("コメントを保存しました",
		slog.Int("saved", summary.Saved),
		slog.Int("skipped", summary.Skipped),
		slog.Int("errors", summary.Errors),
	)

	return summary, nil
}

// Page は指定動画のコメントをページ単位で取得する。
// pageは1始まり。perPageが0以下の場合はデフォルト値を適用する。
func (s *Service) Page(ctx context.Context, videoID string, page, perPage int) (*model.CommentPage, error) {
	if videoID == "" {
		return nil, fmt.Errorf("動画IDが空です")
	}
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	result, err := s.repo.PageByVideo(ctx, videoID, page, perPage)
	if err != nil {
		return nil, fmt.Errorf("コメントの取得に失敗しました: %w", err)
	}

	return result, nil
}
