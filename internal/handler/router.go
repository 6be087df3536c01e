package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/tripshare/internal/metrics"
	"github.com/hitoshi/tripshare/internal/middleware"
)

// HealthChecker はヘルスチェックで依存先の疎通を確認するインターフェース。
// *sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionValidator  middleware.SessionValidator
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger
	Metrics           metrics.MetricsCollector

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// 旅行・メンバー・招待
	TripService       TripServiceInterface
	MemberService     MemberServiceInterface
	InvitationService InvitationServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → RequestID → SecurityHeaders → CORS → Logging → Metrics
//	/api/* のみ: Session → CSRF → RateLimit(General)
//
// 認証ルート（/auth/*）とヘルスチェックはセッション不要。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := deps.Metrics
	if collector == nil {
		collector = metrics.NopCollector{}
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(chimw.RequestID)
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewMetricsMiddleware(collector))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	tripHandler := NewTripHandler(deps.TripService)
	memberHandler := NewMemberHandler(deps.MemberService)
	invitationHandler := NewInvitationHandler(deps.InvitationService)

	// --- 認証不要のルート ---

	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Get("/google/login", authHandler.Login)
		r.Get("/google/callback", authHandler.Callback)
		r.Post("/logout", authHandler.Logout)
	})

	// --- 認証が必要なルート ---
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionValidator))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/me", authHandler.Me)
		r.Method(http.MethodGet, "/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

		r.Route("/trips", func(r chi.Router) {
			r.Get("/", tripHandler.ListTrips)
			r.Post("/", tripHandler.CreateTrip)

			r.Route("/{tripID}", func(r chi.Router) {
				r.Get("/", tripHandler.GetTrip)
				r.Put("/", tripHandler.ReplaceTrip)
				r.Delete("/", tripHandler.DeleteTrip)

				r.Get("/members", memberHandler.ListMembers)
				r.Patch("/members/{userID}", memberHandler.ChangeRole)
				r.Delete("/members/{userID}", memberHandler.RemoveMember)

				// 招待作成は専用のレート制限を追加する
				r.With(deps.RateLimiter.InviteMiddleware()).Post("/invitations", invitationHandler.Invite)
			})
		})

		r.Route("/invitations", func(r chi.Router) {
			r.Get("/", invitationHandler.ListPending)
			r.Route("/{invitationID}", func(r chi.Router) {
				r.Get("/", invitationHandler.GetInvitation)
				r.Post("/accept", invitationHandler.Accept)
				r.Post("/decline", invitationHandler.Decline)
			})
		})
	})

	return r
}

// healthHandler はDB疎通を含むヘルスチェックのハンドラーを返す。
// GET /health
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
