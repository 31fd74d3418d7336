// Package collector はコメント収集のオーケストレーションを提供する。
// ページング、リトライ、スロットリング、レコード正規化を含む。
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/commentman/internal/douyin"
	"github.com/hitoshi/commentman/internal/metrics"
	"github.com/hitoshi/commentman/internal/model"
)

// ErrRetryExhausted はリトライ回数を使い切っても取得に成功しなかった場合のエラー。
var ErrRetryExhausted = errors.New("リトライ回数の上限に達しました")

// PageFetcher はコメント1ページ分の取得インターフェース。
type PageFetcher interface {
	FetchPage(ctx context.Context, req douyin.PageRequest) (*douyin.Page, error)
}

// CredentialProvider は現在のCookie資格情報の参照インターフェース。
type CredentialProvider interface {
	Current() (model.Credential, error)
}

// Config は収集動作のチューニングパラメータ。
type Config struct {
	PageSize         int           // 1ページあたりの取得件数
	RetryMax         int           // ページ取得の最大試行回数
	BackoffBase      time.Duration // リトライ間隔の基準値（2のべき乗で増加）
	ThrottleInterval time.Duration // ページ間の最小間隔
}

// Result は1回の収集実行の結果。
type Result struct {
	VideoID  string          // 正規化後の動画ID
	Comments []model.Comment // 正規化済みコメント（実行内で重複排除済み）
	Pages    int             // 取得したページ数
	Dropped  int             // 正規化で除外されたレコード数
}

// Service はコメント収集サービス。
type Service struct {
	fetcher  PageFetcher
	creds    CredentialProvider
	resolver VideoIDResolver
	limiter  *rate.Limiter
	config   Config
	metrics  metrics.MetricsCollector
	logger   *slog.Logger
}

// NewService はServiceを生成する。
// ページ間のスロットリングはThrottleIntervalあたり1リクエストのレートで行う。
func NewService(fetcher PageFetcher, creds CredentialProvider, resolver VideoIDResolver, config Config, mc metrics.MetricsCollector, logger *slog.Logger) *Service {
	return &Service{
		fetcher:  fetcher,
		creds:    creds,
		resolver: resolver,
		limiter:  rate.NewLimiter(rate.Every(config.ThrottleInterval), 1),
		config:   config,
		metrics:  mc,
		logger:   logger,
	}
}

// Collect は指定された動画のコメントを最大maxComments件収集する。
// inputは動画ID、動画URL、短縮共有リンクのいずれかを受け付ける。
//
// カーソルは"0"から開始し、各ページ取得後に累計取得件数へ進める。
// 上流がhas_more=falseを返すか、コメントが空になるか、目標件数に達した
// 時点で停止する。ページ取得はリトライ付きで行い、使い切った場合は
// ErrRetryExhaustedを含むエラーを返す。
func (s *Service) Collect(ctx context.Context, input string, maxComments int) (*Result, error) {
	if maxComments <= 0 {
		return nil, fmt.Errorf("収集件数は1以上を指定してください: %d", maxComments)
	}

	videoID, err := NormalizeVideoID(ctx, input, s.resolver)
	if err != nil {
		return nil, fmt.Errorf("動画IDの解決に失敗しました: %w", err)
	}

	cred, err := s.creds.Current()
	if err != nil {
		return nil, err
	}

	s.logger.Info("コメント収集を開始します",
		slog.String("video_id", videoID),
		slog.Int("max_comments", maxComments),
	)

	result := &Result{VideoID: videoID}
	seen := make(map[string]bool)
	cursor := "0"
	fetchedTotal := 0

	for len(result.Comments) < maxComments {
		remaining := maxComments - len(result.Comments)
		count := s.config.PageSize
		if remaining < count {
			count = remaining
		}

		page, err := s.fetchWithRetry(ctx, douyin.PageRequest{
			VideoID: videoID,
			Cursor:  cursor,
			Count:   count,
			Cookie:  cred.Value,
		})
		if err != nil {
			s.metrics.RecordCollectFailure(videoID, "fetch_failed")
			return nil, err
		}

		result.Pages++
		s.metrics.RecordPagesFetched(1)

		for _, raw := range page.Comments {
			comment, ok := normalizeComment(videoID, raw)
			if !ok {
				result.Dropped++
				continue
			}
			// 実行内の重複は先勝ちで排除する
			if seen[comment.CommentID] {
				continue
			}
			seen[comment.CommentID] = true
			result.Comments = append(result.Comments, comment)
		}

		// カーソルは累計取得件数へ進める（上流のオフセット方式に合わせる）
		fetchedTotal += len(page.Comments)
		cursor = strconv.Itoa(fetchedTotal)

		if !page.HasMore || len(page.Comments) == 0 {
			break
		}
		if len(result.Comments) >= maxComments {
			break
		}

		// ページ間のスロットリング
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	if len(result.Comments) > maxComments {
		result.Comments = result.Comments[:maxComments]
	}

	s.metrics.RecordCollectSuccess(videoID)
	s.metrics.RecordCommentsDropped(result.Dropped)

	s.logger.Info("コメント収集が完了しました",
		slog.String("video_id", videoID),
		slog.Int("collected", len(result.Comments)),
		slog.Int("pages", result.Pages),
		slog.Int("dropped", result.Dropped),
	)

	return result, nil
}

// fetchWithRetry は指数バックオフ付きでページ取得を試行する。
// リトライ対象外のエラー（コンテキストキャンセル等）は即座に返す。
func (s *Service) fetchWithRetry(ctx context.Context, req douyin.PageRequest) (*douyin.Page, error) {
	var lastErr error

	for attempt := 0; attempt < s.config.RetryMax; attempt++ {
		if attempt > 0 {
			// 待機時間: BackoffBase * 2^attempt
			backoff := s.config.BackoffBase * time.Duration(1<<attempt)
			s.logger.Warn("ページ取得をリトライします",
				slog.String("video_id", req.VideoID),
				slog.String("cursor", req.Cursor),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff),
				slog.String("error", lastErr.Error()),
			)

			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		start := time.Now()
		page, err := s.fetcher.FetchPage(ctx, req)
		s.metrics.RecordFetchLatency(time.Since(start))

		if err == nil {
			return page, nil
		}

		var httpErr *douyin.HTTPStatusError
		if errors.As(err, &httpErr) {
			s.metrics.RecordUpstreamStatus(httpErr.StatusCode)
		}

		if !douyin.IsRetryable(err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("%w: %v", ErrRetryExhausted, lastErr)
}
