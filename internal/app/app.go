package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/skycast/internal/auth"
	"github.com/hitoshi/skycast/internal/config"
	"github.com/hitoshi/skycast/internal/database"
	"github.com/hitoshi/skycast/internal/handler"
	"github.com/hitoshi/skycast/internal/logger"
	"github.com/hitoshi/skycast/internal/metrics"
	"github.com/hitoshi/skycast/internal/middleware"
	"github.com/hitoshi/skycast/internal/repository"
	"github.com/hitoshi/skycast/internal/weather"
	"github.com/hitoshi/skycast/internal/worker/cleanup"
)

const (
	dbPingTimeout    = 5 * time.Second
	shutdownTimeout  = 30 * time.Second
	healthcheckPort  = "8080"
	readHeaderLimit  = 10 * time.Second
	serverIdleLimit  = 120 * time.Second
	discoveryTimeout = 15 * time.Second
)

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップしてから環境変数でConfigを読み込み、
// LOG_LEVELに合わせてログを再設定する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetupDefault(w, cfg.LogLevel)
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
			port = healthcheckPort
		}
		return runHealthcheck(port)
	}

	var migrateArgs MigrateArgs
	if cmd == CommandMigrate {
		parsed, err := ParseMigrateArgs(args[1:])
		if err != nil {
			return err
		}
		migrateArgs = parsed
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("device_id", cfg.DeviceID),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg, migrateArgs)
	default:
		return runServe(ctx, cfg)
	}
}

// openDatabase はDB接続を開き、到達できることを確認する。
func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := database.Ping(ctx, db, dbPingTimeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)
	return db, nil
}

// runServe はAPIサーバーモードで起動する。
// ctxがキャンセルされる（SIGINT/SIGTERM）とグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	discoveryCtx, cancel := context.WithTimeout(ctx, discoveryTimeout)
	verifier, err := auth.NewGoogleVerifier(discoveryCtx, cfg.OIDCIssuer, cfg.GoogleClientID)
	cancel()
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	svc, err := newService(cfg, db, verifier, registry, slog.Default())
	if err != nil {
		return err
	}
	defer svc.Close()

	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: svc.Handler,
		// SSEストリームは長時間書き込み続けるためWriteTimeoutは設定しない
		ReadHeaderTimeout: readHeaderLimit,
		IdleTimeout:       serverIdleLimit,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// service はserveモードで組み立てた長寿命コンポーネントをまとめる。
type service struct {
	Handler    http.Handler
	Reconciler *auth.Reconciler
	Pipeline   *weather.Pipeline

	limiter *middleware.RateLimiter
}

// newService はリポジトリ・認証照合・天気パイプライン・ルーターを組み立てる。
// 認証のコールドスタートと初回の天気クエリはここで発行される。
func newService(
	cfg *config.Config,
	db *sql.DB,
	verifier auth.TokenVerifier,
	registry *prometheus.Registry,
	log *slog.Logger,
) (*service, error) {
	collector := metrics.NewCollector(registry)

	broker := auth.NewOIDCBroker(
		verifier,
		repository.NewPostgresIdentityRepo(db),
		repository.NewPostgresSessionRepo(db),
		auth.OIDCBrokerConfig{
			DeviceID:      cfg.DeviceID,
			SessionMaxAge: cfg.SessionMaxAge,
		},
		log,
	)
	reconciler := auth.NewReconciler(broker, repository.NewPostgresProfileRepo(db), collector, log)
	if err := reconciler.Start(); err != nil {
		reconciler.Close()
		return nil, fmt.Errorf("failed to start auth reconciler: %w", err)
	}

	client := weather.NewOpenWeatherClient(weather.OpenWeatherConfig{
		APIKey:  cfg.OpenWeatherAPIKey,
		BaseURL: cfg.OpenWeatherBaseURL,
		Timeout: cfg.WeatherTimeout,
	}, collector)
	pipeline := weather.NewPipeline(client, cfg.DefaultCity, collector, log)
	pipeline.Refresh()

	limiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral))

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            log,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       limiter,
		Reconciler:        reconciler,
		Weather:           pipeline,
		Location:          time.Local,
		Pinger:            db,
		MetricsHandler:    metrics.Handler(registry),
	})

	return &service{
		Handler:    router,
		Reconciler: reconciler,
		Pipeline:   pipeline,
		limiter:    limiter,
	}, nil
}

// Close は進行中の照合とクエリを止め、レートリミッターを停止する。
func (s *service) Close() {
	s.Pipeline.Close()
	s.Reconciler.Close()
	s.limiter.Stop()
}

// runWorker はワーカーモードで起動する。
// 期限切れセッションの定期削除を行い、ctxがキャンセルされると停止する。
func runWorker(ctx context.Context, cfg *config.Config) error {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	job := cleanup.NewCleanupJob(repository.NewPostgresSessionRepo(db), slog.Default())
	scheduler := cleanup.NewScheduler(job, cfg.SessionCleanupInterval, slog.Default())
	if err := scheduler.Start(); err != nil {
		return err
	}

	slog.Info("worker starting", slog.Duration("cleanup_interval", cfg.SessionCleanupInterval))
	<-ctx.Done()

	slog.Info("shutting down worker...")
	scheduler.Stop()
	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
func runMigrate(cfg *config.Config, args MigrateArgs) error {
	slog.Info("running database migrations",
		slog.String("action", string(args.Action)),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	switch args.Action {
	case MigrateDown:
		if err := database.RollbackMigrations(cfg.DatabaseURL, args.Steps); err != nil {
			return fmt.Errorf("migration rollback failed: %w", err)
		}
		slog.Info("database migrations rolled back", slog.Int("steps", args.Steps))
	case MigrateVersion:
		version, dirty, err := database.MigrationVersion(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		slog.Info("database migration version",
			slog.Uint64("version", uint64(version)),
			slog.Bool("dirty", dirty),
		)
	default:
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		slog.Info("database migrations completed successfully")
	}
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
// 解析できないURLは全体を伏せる。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
