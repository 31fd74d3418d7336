package douyin

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/commentman/internal/security"
)

// maxRedirects は共有リンク解決時に追跡するリダイレクトの上限。
const maxRedirects = 5

// ShareLinkResolver はv.douyin.com形式の短縮共有リンクを
// リダイレクト先の正規URLへ解決する。
// ユーザー入力のURLへアクセスするため、SSRF防止付きクライアントを使用する。
type ShareLinkResolver struct {
	httpClient *http.Client
	guard      security.SSRFGuardService
	logger     *slog.Logger
}

// NewShareLinkResolver はShareLinkResolverを生成する。
// httpClientにはguard.NewSafeClientで生成したクライアントを渡すこと。
func NewShareLinkResolver(httpClient *http.Client, guard security.SSRFGuardService, logger *slog.Logger) *ShareLinkResolver {
	// リダイレクトは自前で追跡する（各ホップでSSRF検証を行うため）
	httpClient.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &ShareLinkResolver{
		httpClient: httpClient,
		guard:      guard,
		logger:     logger,
	}
}

// Resolve は共有リンクをリダイレクトを追跡して最終URLへ解決する。
// 各ホップのURLはSSRF検証を通過する必要がある。
// リダイレクトされないURLはそのまま返す。
func (r *ShareLinkResolver) Resolve(ctx context.Context, shareURL string) (string, error) {
	current := shareURL

	for i := 0; i <= maxRedirects; i++ {
		if err := r.guard.ValidateURL(current); err != nil {
			return "", fmt.Errorf("共有リンクのURLが安全ではありません: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, current, nil)
		if err != nil {
			return "", fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
		}

		resp, err := r.httpClient.Do(req)
		if err != nil {
			r.logger.Warn("共有リンクの解決に失敗しました",
				slog.String("error", err.Error()),
				slog.String("url", current),
			)
			return "", fmt.Errorf("共有リンクの解決に失敗しました: %w", err)
		}
		resp.Body.Close()

		// リダイレクトでなければ現在のURLが最終URL
		if resp.StatusCode < 300 || resp.StatusCode > 399 {
			return current, nil
		}

		location := resp.Header.Get("Location")
		if location == "" {
			return "", fmt.Errorf("リダイレクトレスポンスにLocationヘッダがありません")
		}

		next, err := req.URL.Parse(location)
		if err != nil {
			return "", fmt.Errorf("リダイレクト先URLの解析に失敗しました: %w", err)
		}
		current = next.String()
	}

	return "", fmt.Errorf("リダイレクト回数が上限（%d回）を超えました", maxRedirects)
}
