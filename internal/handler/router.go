package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/commentman/internal/metrics"
	"github.com/hitoshi/commentman/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// サービス
	AuthService       AuthServiceInterface
	CollectorService  CollectorServiceInterface
	CommentService    CommentServiceInterface
	CredentialService CredentialServiceInterface

	// ヘルスチェック
	DB Pinger

	// メトリクス。nilの場合は/metricsを公開しない。
	MetricsGatherer prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	SecurityHeaders → CORS → Logging → Recovery
//
// 認証が必要なルートにはさらに Auth → RateLimit(General) が適用され、
// 収集エンドポイントには収集専用レート制限が追加される。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware())
	r.Use(middleware.NewRecoveryMiddleware())

	authHandler := NewAuthHandler(deps.AuthService)
	commentHandler := NewCommentHandler(deps.CollectorService, deps.CommentService)
	cookieHandler := NewCookieHandler(deps.CredentialService)
	healthHandler := NewHealthHandler(deps.DB)

	// --- 認証不要のルート ---

	r.Get("/api/health", healthHandler.Check)

	r.Post("/api/users/register", authHandler.Register)
	r.Post("/api/users/login", authHandler.Login)

	if deps.MetricsGatherer != nil {
		r.Get("/metrics", metrics.Handler(deps.MetricsGatherer).ServeHTTP)
	}

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Auth → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.SessionFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Post("/api/users/logout", authHandler.Logout)
		r.Get("/api/users/me", authHandler.Me)

		// コメント収集・参照
		r.Route("/api/comments", func(r chi.Router) {
			// POST /api/comments/collect - 収集（専用レート制限を追加）
			r.With(deps.RateLimiter.CollectMiddleware()).Post("/collect", commentHandler.Collect)

			r.Get("/{video_id}", commentHandler.List)
		})

		// Cookie管理
		r.Route("/api/cookie", func(r chi.Router) {
			r.Get("/verify", cookieHandler.Verify)
			r.Post("/update", cookieHandler.Update)
		})
	})

	return r
}
