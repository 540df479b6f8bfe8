package app

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/heptiolabs/healthcheck"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/greenleads/internal/auth"
	"github.com/hitoshi/greenleads/internal/config"
	"github.com/hitoshi/greenleads/internal/database"
	"github.com/hitoshi/greenleads/internal/gate"
	"github.com/hitoshi/greenleads/internal/handler"
	"github.com/hitoshi/greenleads/internal/lead"
	"github.com/hitoshi/greenleads/internal/logger"
	"github.com/hitoshi/greenleads/internal/mailbox"
	"github.com/hitoshi/greenleads/internal/metrics"
	"github.com/hitoshi/greenleads/internal/middleware"
	"github.com/hitoshi/greenleads/internal/model"
	"github.com/hitoshi/greenleads/internal/notify"
	"github.com/hitoshi/greenleads/internal/repository"
	"github.com/hitoshi/greenleads/internal/secrets"
	"github.com/hitoshi/greenleads/internal/security"
	"github.com/hitoshi/greenleads/internal/seed"
	"github.com/hitoshi/greenleads/internal/worker/cleanup"
	"github.com/hitoshi/greenleads/internal/worker/ingest"
)

const (
	shutdownTimeout = 30 * time.Second
	cleanupInterval = 24 * time.Hour
)

// stdin はimap-passwordサブコマンドの入力元。テストで差し替える。
var stdin io.Reader = os.Stdin

// Init はアプリケーションの初期化を行う。
// .envがあれば読み込み、環境変数からConfigを読み込んでJSON構造化ログをセットアップする。
// LOG_FILEが設定されている場合はローテーション付きファイルにも出力する。
// 返されるio.Closerはログファイルを閉じる。
func Init(w io.Writer) (*config.Config, io.Closer, error) {
	// .envは開発用。存在しなくてもよい
	_ = godotenv.Load()

	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. ファイル出力を追加する
	out, closer := logger.NewWriter(w, logger.FileOptions{
		Path:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
	logger.SetupDefault(out)

	return cfg, closer, nil
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

	cfg, closer, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	defer closer.Close()

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("email_provider", cfg.EmailProvider),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandSeed:
		return runSeed(cfg, args[1:])
	case CommandImport:
		return runImport(w, cfg, args[1:])
	case CommandGmailAuth:
		return runGmailAuth(w, cfg, args[1:])
	case CommandIMAPPassword:
		return runIMAPPassword(w, cfg)
	default:
		return runServe(cfg)
	}
}

// databaseHandle はDB接続とその上のリポジトリをまとめる。
type databaseHandle struct {
	*sql.DB
	settings *repository.PostgresSettingsRepo
	leads    *repository.PostgresLeadRepo
	notifs   *repository.PostgresNotificationRepo
}

// openDB はDB接続を開き、疎通を確認する。
func openDB(cfg *config.Config) (*databaseHandle, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established")

	return &databaseHandle{
		DB:       db,
		settings: repository.NewPostgresSettingsRepo(db),
		leads:    repository.NewPostgresLeadRepo(db),
		notifs:   repository.NewPostgresNotificationRepo(db),
	}, nil
}

// newRegistry はGoランタイムとプロセスのメトリクスを登録したレジストリを返す。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// runServe はAPIサーバーモードで起動する。
// 手動取り込み・採点・ヘルスチェック・メトリクスを公開する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	h, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer h.Close()

	importSvc := lead.NewImportService(
		h.settings, h.leads, lead.NewExtractor(cfg.MonitoredDomain), slog.Default(),
	)

	limiter := middleware.NewRateLimiter(middleware.PerMinute(cfg.RateLimitImport), slog.Default())
	defer limiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:        slog.Default(),
		LeadService:   importSvc,
		ImportLimiter: limiter,
		ReadinessChecks: map[string]healthcheck.Check{
			"database": handler.DatabaseCheck(h.DB),
		},
		Gatherer: newRegistry(),
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down API server...")
		return shutdown(server)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 同一ホスト上での多重起動をファイルロックで防ぎ、取り込みループ・メトリクスサーバー・
// 生メール本文の保持期限クリーンアップを並行して実行する。
func runWorker(cfg *config.Config) error {
	// 1. 多重起動の防止
	lock := flock.New(cfg.WorkerLockFile)
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire worker lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another worker is already running (lock=%s)", cfg.WorkerLockFile)
	}
	defer lock.Unlock()

	// 2. メールボックスと通知の構成検証（DB接続より先に行う）
	factory, err := mailbox.NewFactory(cfg, slog.Default())
	if err != nil {
		return fmt.Errorf("invalid mailbox configuration: %w", err)
	}
	sender, err := notify.NewSenderFromConfig(cfg, security.NewGatewayGuard(), slog.Default())
	if err != nil {
		return fmt.Errorf("invalid alert configuration: %w", err)
	}

	// 3. DB接続
	h, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer h.Close()

	// 4. 取り込みループの構築
	reg := newRegistry()
	collector := metrics.NewCollector(reg)

	loop := ingest.NewLoop(
		h.settings,
		h.leads,
		gate.NewGuard(h.leads, h.notifs),
		lead.NewExtractor(cfg.MonitoredDomain),
		factory,
		sender,
		collector,
		ingest.Config{
			IngestionEnabled: cfg.IngestionEnabled,
			MonitoredSender:  cfg.MonitoredSender,
			AlertSourceLabel: cfg.AlertSourceLabel,
			MailboxTimeout:   cfg.MailboxTimeout,
		},
		slog.Default(),
	)

	cleanupJob := cleanup.NewCleanupJob(h.leads, collector, cfg.RawBodyRetentionDays, slog.Default())

	metricsServer := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           metrics.SetupMetricsRoute(reg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 5. シグナルで全goroutineを停止する
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("worker starting",
		slog.String("provider", string(factory.Kind())),
		slog.Bool("ingestion_enabled", cfg.IngestionEnabled),
		slog.String("metrics_addr", metricsServer.Addr),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		loop.Start(gctx)
		return nil
	})
	g.Go(func() error {
		cleanupJob.Start(gctx, cleanupInterval)
		return nil
	})
	g.Go(func() error {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return shutdown(metricsServer)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("worker stopped gracefully")
	return nil
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
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

	version, dirty, err := database.Version(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to read migration version: %w", err)
	}
	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}

// runSeed はYAMLシードファイルをsettingsに適用する。
func runSeed(cfg *config.Config, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: seed <file.yaml>")
	}

	h, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer h.Close()

	return seed.Run(context.Background(), h.settings, args[0], slog.Default())
}

// runImport は生メールファイル（RFC 822）を手動でリードとして取り込む。
// 通知は送信しない。
func runImport(w io.Writer, cfg *config.Config, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: import <message.eml>")
	}

	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read message file: %w", err)
	}

	h, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer h.Close()

	svc := lead.NewImportService(h.settings, h.leads, lead.NewExtractor(cfg.MonitoredDomain), slog.Default())
	ld, err := svc.Import(context.Background(), raw)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			return fmt.Errorf("import rejected: %s (%s)", apiErr.Message, apiErr.Code)
		}
		return fmt.Errorf("import failed: %w", err)
	}

	fmt.Fprintf(w, "imported lead %s (%s, score=%d)\n", ld.ID, ld.PostURL, ld.Score)
	return nil
}

// runGmailAuth はGmailのリフレッシュトークン取得を補助する。
// 引数なしでは同意画面のURLを表示し、認可コードを渡すとトークンに交換して表示する。
func runGmailAuth(w io.Writer, cfg *config.Config, args []string) error {
	if cfg.GmailClientID == "" || cfg.GmailClientSecret == "" || cfg.GmailRedirectURI == "" {
		return fmt.Errorf("%w: GMAIL_CLIENT_ID, GMAIL_CLIENT_SECRET and GMAIL_REDIRECT_URI are required", model.ErrConfig)
	}

	provider := auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
		ClientID:     cfg.GmailClientID,
		ClientSecret: cfg.GmailClientSecret,
		RedirectURL:  cfg.GmailRedirectURI,
	})

	if len(args) == 0 {
		fmt.Fprintf(w, "Open this URL and approve access:\n%s\n", provider.GetLoginURL("greenleads"))
		fmt.Fprintln(w, "Then run: gmail-auth <code>")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	token, err := provider.ExchangeCode(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "GMAIL_REFRESH_TOKEN=%s\n", token.RefreshToken)
	return nil
}

// runIMAPPassword は標準入力の1行目をIMAPパスワードとしてOSキーリングに保存する。
func runIMAPPassword(w io.Writer, cfg *config.Config) error {
	if cfg.IMAPUser == "" || cfg.IMAPHost == "" {
		return fmt.Errorf("%w: IMAP_USER and IMAP_HOST are required", model.ErrConfig)
	}

	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return errors.New("password must not be empty")
	}

	account := secrets.IMAPKeyringAccount(cfg.IMAPUser, cfg.IMAPHost)
	if err := secrets.SetIMAPPassword(cfg.IMAPKeyringService, account, password); err != nil {
		return err
	}
	fmt.Fprintf(w, "stored IMAP password for %s in keyring service %q\n", account, cfg.IMAPKeyringService)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
