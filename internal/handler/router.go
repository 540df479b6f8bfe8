package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/greenleads/internal/metrics"
	"github.com/hitoshi/greenleads/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// リード
	LeadService   LeadImporterInterface
	ImportLimiter *middleware.RateLimiter // nilの場合はレート制限なし

	// 運用
	ReadinessChecks map[string]healthcheck.Check
	Gatherer        prometheus.Gatherer // nilの場合は/metricsを公開しない
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → Logging → Recovery
//
// /api/import にはクライアントIPごとのレート制限を追加で適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))

	health := NewHealthHandler(deps.ReadinessChecks)
	r.Get("/health", health.ReadyEndpoint)
	r.Get("/ready", health.ReadyEndpoint)
	r.Get("/live", health.LiveEndpoint)

	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	leadHandler := NewLeadHandler(deps.LeadService, deps.Logger)
	r.Route("/api", func(r chi.Router) {
		if deps.ImportLimiter != nil {
			r.With(deps.ImportLimiter.Middleware()).Post("/import", leadHandler.Import)
		} else {
			r.Post("/import", leadHandler.Import)
		}
		r.Post("/score", leadHandler.Score)
	})

	return r
}
