package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/newsdispatcher/internal/metrics"
	"github.com/hitoshi/newsdispatcher/internal/middleware"
	"github.com/hitoshi/newsdispatcher/internal/source"
)

// healthCheckTimeout はヘルスチェック時のDB疎通確認のタイムアウト。
const healthCheckTimeout = 3 * time.Second

// Pinger はデータベース疎通確認のインターフェース。*sql.DBが満たす。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	DB          Pinger
	Fetchers    []source.Fetcher
	Gatherer    prometheus.Gatherer
	RateLimiter *middleware.RateLimiter
	Logger      *slog.Logger
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → RateLimit
//
// /healthz と /metrics は監視系からのポーリングを想定し、レート制限の外に置く。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	r.Get("/healthz", healthzHandler(deps.DB))
	r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))

	previewHandler := NewPreviewHandler(deps.Fetchers, deps.Logger)

	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.Middleware())

		r.Post("/api/preview", previewHandler.Preview)
	})

	return r
}

// healthzHandler はDB疎通確認を含むヘルスチェックハンドラーを返す。
func healthzHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			writeErrorResponse(w, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "データベースに接続できません。")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}
}
