// Package credential は抖音Cookie資格情報のライフサイクル管理を提供する。
// 読み込み、検証、更新、ファイルへの永続化を含む。
package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/hitoshi/commentman/internal/douyin"
	"github.com/hitoshi/commentman/internal/model"
)

// ErrCredentialMissing はどの供給源からもCookieを読み込めなかった場合のエラー。
var ErrCredentialMissing = errors.New("抖音Cookieが設定されていません")

// cookieEnvVar はCookieを供給する環境変数名。
const cookieEnvVar = "DOUYIN_COOKIE"

// allowedCookieNames は認証に必要なCookie名の許可リスト。
// JoinCookiePairsはこのリストに含まれる名前のペアのみを結合する。
var allowedCookieNames = map[string]bool{
	"sessionid":           true,
	"sessionid_ss":        true,
	"ttwid":               true,
	"msToken":             true,
	"odin_tt":             true,
	"passport_csrf_token": true,
	"sid_guard":           true,
	"sid_tt":              true,
	"uid_tt":              true,
	"uid_tt_ss":           true,
}

// PageFetcher はCookie検証に使用するコメント取得のインターフェース。
// douyin.Clientの部分集合として定義する。
type PageFetcher interface {
	FetchPage(ctx context.Context, req douyin.PageRequest) (*douyin.Page, error)
}

// Store はCookie資格情報を保持し、読み書きを直列化する。
// 収集中の参照と更新が競合しないようRWMutexで保護する。
type Store struct {
	mu   sync.RWMutex
	cred model.Credential

	filePath   string
	refVideoID string
	fetcher    PageFetcher
	logger     *slog.Logger
}

// NewStore はStoreを生成する。fetcherはVerify/Updateでの疎通確認に使用する。
func NewStore(filePath, refVideoID string, fetcher PageFetcher, logger *slog.Logger) *Store {
	return &Store{
		filePath:   filePath,
		refVideoID: refVideoID,
		fetcher:    fetcher,
		logger:     logger,
	}
}

// Load は優先順位に従ってCookieを読み込む:
// 明示的な値 > 環境変数DOUYIN_COOKIE > Cookieファイル。
// どの供給源からも得られない場合はErrCredentialMissingを返す。
func (s *Store) Load(explicit string) error {
	if explicit != "" {
		s.set(model.Credential{Value: strings.TrimSpace(explicit), Source: model.CredentialSourceExplicit})
		return nil
	}

	if env := os.Getenv(cookieEnvVar); strings.TrimSpace(env) != "" {
		s.set(model.Credential{Value: strings.TrimSpace(env), Source: model.CredentialSourceEnv})
		return nil
	}

	if s.filePath != "" {
		data, err := os.ReadFile(s.filePath)
		if err == nil && strings.TrimSpace(string(data)) != "" {
			s.set(model.Credential{Value: strings.TrimSpace(string(data)), Source: model.CredentialSourceFile})
			return nil
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("Cookieファイルの読み込みに失敗しました",
				slog.String("error", err.Error()),
				slog.String("path", s.filePath),
			)
		}
	}

	return ErrCredentialMissing
}

// Current は現在のCookie資格情報を返す。
// 未設定の場合はErrCredentialMissingを返す。
func (s *Store) Current() (model.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cred.Value == "" {
		return model.Credential{}, ErrCredentialMissing
	}
	return s.cred, nil
}

// Verify は現在のCookieで基準動画のコメントを1件取得し、有効性を確認する。
// 取得に成功すればCookieは有効とみなす。
func (s *Store) Verify(ctx context.Context) (*model.VerificationResult, error) {
	cred, err := s.Current()
	if err != nil {
		return nil, err
	}
	return s.verifyValue(ctx, cred.Value)
}

// Update は新しいCookieを検証し、有効な場合のみ差し替えてファイルへ永続化する。
// 検証に失敗した場合は現在のCookieを維持したままエラーを返す。
func (s *Store) Update(ctx context.Context, newCookie string) (*model.VerificationResult, error) {
	newCookie = strings.TrimSpace(newCookie)
	if newCookie == "" {
		return nil, fmt.Errorf("新しいCookieが空です")
	}

	result, err := s.verifyValue(ctx, newCookie)
	if err != nil {
		return nil, err
	}
	if !result.Valid {
		return result, nil
	}

	// 検証通過後に差し替え
	s.set(model.Credential{Value: newCookie, Source: model.CredentialSourceUpdated})

	if s.filePath != "" {
		if err := os.WriteFile(s.filePath, []byte(newCookie), 0o600); err != nil {
			// メモリ上の差し替えは完了しているため警告に留める
			s.logger.Warn("Cookieファイルへの永続化に失敗しました",
				slog.String("error", err.Error()),
				slog.String("path", s.filePath),
			)
		}
	}

	s.logger.Info("Cookieを更新しました", slog.String("source", string(model.CredentialSourceUpdated)))

	return result, nil
}

// verifyValue は指定されたCookie値の有効性を疎通確認で検証する。
// 上流に到達できない等のインフラ障害はエラー、上流がCookieを拒否した場合は
// Valid=falseの結果として区別する。
func (s *Store) verifyValue(ctx context.Context, cookie string) (*model.VerificationResult, error) {
	_, err := s.fetcher.FetchPage(ctx, douyin.PageRequest{
		VideoID: s.refVideoID,
		Cursor:  "0",
		Count:   1,
		Cookie:  cookie,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		// Cookie起因の拒否パターンは検証失敗として返す。
		// 上流がメッセージを返した場合はそれを優先する。
		var httpErr *douyin.HTTPStatusError
		var apiErr *douyin.APIStatusError
		if errors.Is(err, douyin.ErrEmptyResponse) || errors.As(err, &httpErr) || errors.As(err, &apiErr) {
			s.logger.Warn("Cookieの検証に失敗しました", slog.String("error", err.Error()))
			message := "Cookieが無効または期限切れです"
			if apiErr != nil && apiErr.Message != "" {
				message = apiErr.Message
			}
			return &model.VerificationResult{
				Valid:   false,
				Message: message,
			}, nil
		}

		return nil, fmt.Errorf("Cookieの検証リクエストに失敗しました: %w", err)
	}

	return &model.VerificationResult{
		Valid:   true,
		Message: "Cookieは有効です",
	}, nil
}

// set は資格情報を排他的に差し替える。
func (s *Store) set(cred model.Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = cred
}

// JoinCookiePairs は名前と値のペア群を許可リストで選別し、
// "name=value; name=value"形式のCookieヘッダ文字列へ結合する。
// 許可リスト外の名前は破棄される。順序は入力順を保持する。
func JoinCookiePairs(pairs []model.CookiePair) string {
	var parts []string
	for _, p := range pairs {
		if !allowedCookieNames[p.Name] {
			continue
		}
		if p.Name == "" || p.Value == "" {
			continue
		}
		parts = append(parts, p.Name+"="+p.Value)
	}
	return strings.Join(parts, "; ")
}
