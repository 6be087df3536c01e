package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/tripshare/internal/auth"
	"github.com/hitoshi/tripshare/internal/config"
	"github.com/hitoshi/tripshare/internal/database"
	"github.com/hitoshi/tripshare/internal/handler"
	"github.com/hitoshi/tripshare/internal/invitation"
	"github.com/hitoshi/tripshare/internal/logger"
	"github.com/hitoshi/tripshare/internal/membership"
	"github.com/hitoshi/tripshare/internal/metrics"
	"github.com/hitoshi/tripshare/internal/middleware"
	"github.com/hitoshi/tripshare/internal/notify"
	"github.com/hitoshi/tripshare/internal/repository"
	"github.com/hitoshi/tripshare/internal/trip"
	"github.com/hitoshi/tripshare/internal/worker/cleanup"
)

const (
	dbPingTimeout   = 5 * time.Second
	shutdownTimeout = 10 * time.Second
)

// applyMigrations はserve起動時に未適用のマイグレーションを適用する。テストで差し替える。
var applyMigrations = database.RunMigrations

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 設定読み込み前にログを使えるようにする。レベルだけ先に環境変数から決める。
	logger.SetupDefault(w, logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
		slog.String("notify_backend", cfg.NotifyBackend),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// openDatabase はDB接続を開き、到達確認まで行う。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := database.Ping(context.Background(), db, dbPingTimeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// newRedisClient はREDIS_URLからクライアントを生成する。
func newRedisClient(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	return redis.NewClient(opts), nil
}

// newSender はNOTIFY_BACKENDに応じた通知Senderを生成する。
// queueの場合、返すSenderはRedisへの投入のみを行い、実際の送信はworkerが担う。
// 返すcloseは必ず呼び出すこと。
func newSender(ctx context.Context, cfg *config.Config) (notify.Sender, func(), error) {
	switch cfg.NotifyBackend {
	case config.NotifyBackendSES:
		sender, err := notify.NewSESSenderFromEnv(ctx, cfg.AWSRegion, cfg.SESFromEmail)
		if err != nil {
			return nil, nil, err
		}
		return sender, func() {}, nil
	case config.NotifyBackendQueue:
		rdb, err := newRedisClient(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		queue := notify.NewRedisQueue(rdb, int64(cfg.NotifyQueueMaxSize))
		return notify.NewQueuedSender(queue), func() { rdb.Close() }, nil
	default:
		return notify.NewLogSender(slog.Default()), func() {}, nil
	}
}

// newMetrics はプロセス単位のレジストリとCollectorを生成する。
func newMetrics() (*metrics.Collector, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return metrics.NewCollector(reg), reg
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. マイグレーションとDB接続
	if err := applyMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	identRepo := repository.NewPostgresIdentityRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	tripRepo := repository.NewPostgresTripRepo(db)
	memberRepo := repository.NewPostgresMembershipRepo(db)
	invitationRepo := repository.NewPostgresInvitationRepo(db)

	// 3. メトリクスと通知
	collector, registry := newMetrics()

	sender, closeSender, err := newSender(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("failed to create notification sender: %w", err)
	}
	defer closeSender()

	// 4. ドメインサービスの初期化
	oauthProvider := auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	})
	authService := auth.NewService(
		oauthProvider, userRepo, identRepo, sessionRepo,
		auth.ServiceConfig{
			SessionTTL:      cfg.SessionTTL,
			ExtendThreshold: cfg.SessionExtendThreshold,
		},
	)

	memberService := membership.NewService(tripRepo, memberRepo, userRepo)
	tripService := trip.NewService(tripRepo, memberRepo, memberService, collector)
	invitationService := invitation.NewService(
		invitationRepo, memberService, userRepo, tripRepo, sender, collector,
		invitation.Config{
			TTL:           cfg.InvitationTTL,
			NotifyTimeout: cfg.NotifyTimeout,
			BaseURL:       cfg.BaseURL,
		},
	)

	// 5. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral, cfg.RateLimitInvite),
	)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		SessionValidator:  authService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter: rateLimiter,
		Logger:      slog.Default(),
		Metrics:     collector,

		HealthChecker:  db,
		MetricsHandler: metrics.Handler(registry),

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:      cfg.BaseURL,
			CookieDomain: cfg.CookieDomain,
			CookieSecure: cfg.CookieSecure,
			SessionTTL:   authService.SessionTTL(),
		},

		TripService:       handler.NewTripServiceAdapter(tripService),
		MemberService:     handler.NewMemberServiceAdapter(memberService),
		InvitationService: handler.NewInvitationServiceAdapter(invitationService),
	}

	router := handler.NewRouter(deps)

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serveErr:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	// 送信中の招待通知を待つ。各送信はNOTIFY_TIMEOUTで打ち切られる。
	invitationService.WaitForNotifications()

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れセッションと古い招待の定期削除を行い、
// NOTIFY_BACKEND=queue の場合は通知キューをSESへ送り出す。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	collector, _ := newMetrics()
	sessionRepo := repository.NewPostgresSessionRepo(db)
	cleanupJob := cleanup.NewCleanupJob(sessionRepo, db, slog.Default(), collector)

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	if cfg.NotifyBackend == config.NotifyBackendQueue {
		rdb, err := newRedisClient(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()

		ses, err := notify.NewSESSenderFromEnv(ctx, cfg.AWSRegion, cfg.SESFromEmail)
		if err != nil {
			return fmt.Errorf("failed to create SES sender: %w", err)
		}
		queue := notify.NewRedisQueue(rdb, int64(cfg.NotifyQueueMaxSize))
		go notify.NewDrainer(queue, ses, collector).Run(ctx)
	}

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.SessionCleanupInterval),
		slog.Bool("notify_drainer", cfg.NotifyBackend == config.NotifyBackendQueue),
	)

	// クリーンアップジョブをメインgoroutineで実行（ブロッキング）
	cleanupJob.Start(ctx, cfg.SessionCleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	endpoint := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(endpoint)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
// 解析できない場合は全体を伏せる。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
