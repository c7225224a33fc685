package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/skycast/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// 認証
	Reconciler AuthReconcilerInterface

	// 天気
	Weather  WeatherPipelineInterface
	Location *time.Location

	// 運用
	Pinger         Pinger
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Logging → Recovery → SecurityHeaders → CORS → RateLimit
//
// /api/* はさらにAuthGateを通り、サインイン済みのときだけ到達できる。
// /health と /metrics はレート制限の外に置く。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	// --- 運用エンドポイント ---
	r.Get("/health", NewHealthHandler(deps.Pinger))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	authHandler := NewAuthHandler(deps.Reconciler)
	weatherHandler := NewWeatherHandler(deps.Weather, deps.Location)

	r.Group(func(r chi.Router) {
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Middleware())
		}

		// --- 認証不要のルート ---
		r.Route("/auth", func(r chi.Router) {
			r.Post("/signin", authHandler.SignIn)
			r.Post("/signout", authHandler.SignOut)
			r.Get("/state", authHandler.State)
			r.Get("/stream", authHandler.Stream)
			r.Get("/profile", authHandler.Profile)
			r.Post("/profile/refresh", authHandler.RefreshProfile)
		})
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: AuthGate → RateLimit（ユーザー単位）
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthGateMiddleware(deps.Reconciler))
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Middleware())
		}

		r.Route("/api/weather", func(r chi.Router) {
			r.Get("/", weatherHandler.Get)
			r.Put("/city", weatherHandler.SetCity)
			r.Post("/refresh", weatherHandler.Refresh)
			r.Get("/stream", weatherHandler.Stream)
		})
	})

	return r
}
