package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
// キーワードやしきい値など実行中に変わりうる設定はsettingsテーブルで管理する。
type Config struct {
	// Database
	DatabaseURL string

	// Server
	ServerPort  string
	MetricsPort string

	// Ingestion
	EmailProvider    string
	IngestionEnabled bool
	MonitoredDomain  string
	MonitoredSender  string
	AlertSourceLabel string
	MailboxTimeout   time.Duration
	WorkerLockFile   string

	// IMAP
	IMAPHost           string
	IMAPPort           int
	IMAPUser           string
	IMAPPassword       string
	IMAPSecure         bool
	IMAPFolder         string
	IMAPFromFilter     string
	IMAPKeyringService string

	// Gmail
	GmailClientID     string
	GmailClientSecret string
	GmailRedirectURI  string
	GmailRefreshToken string
	GmailFromFilter   string
	GmailLabel        string

	// Alerts
	AlertTimeout     time.Duration
	SMSSendInterval  time.Duration
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string
	SendGridAPIKey   string
	SMTPHost         string
	SMTPPort         int
	SMTPUser         string
	SMTPPass         string
	EmailFrom        string

	// Retention
	RawBodyRetentionDays int

	// Rate Limit
	RateLimitImport int

	// Logging
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
// メールボックスの認証情報はここでは検証しない（プロバイダ生成時に検証する）。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	cfg.EmailProvider = strings.ToLower(getEnvString("EMAIL_PROVIDER", "imap"))
	if cfg.EmailProvider != "imap" && cfg.EmailProvider != "gmail" {
		return nil, fmt.Errorf("EMAIL_PROVIDER must be imap or gmail: %q", cfg.EmailProvider)
	}

	// Optional fields with defaults
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.MetricsPort = getEnvString("METRICS_PORT", "9090")
	cfg.IngestionEnabled = getEnvString("INGESTION_ENABLED", "true") != "false"
	cfg.MonitoredDomain = strings.ToLower(getEnvString("MONITORED_DOMAIN", "nextdoor.com"))
	cfg.MonitoredSender = getEnvString("MONITORED_SENDER", "nextdoor")
	cfg.AlertSourceLabel = getEnvString("ALERT_SOURCE_LABEL", "Nextdoor")
	cfg.MailboxTimeout = getEnvDuration("MAILBOX_TIMEOUT", 60*time.Second)
	cfg.WorkerLockFile = getEnvString("WORKER_LOCK_FILE", "/tmp/greenleads-worker.lock")

	cfg.IMAPHost = os.Getenv("IMAP_HOST")
	cfg.IMAPPort = getEnvInt("IMAP_PORT", 993)
	cfg.IMAPUser = os.Getenv("IMAP_USER")
	cfg.IMAPPassword = os.Getenv("IMAP_PASSWORD")
	cfg.IMAPSecure = getEnvString("IMAP_SECURE", "true") != "false"
	cfg.IMAPFolder = getEnvString("IMAP_FOLDER", "INBOX")
	cfg.IMAPFromFilter = getEnvString("IMAP_FROM_FILTER", "nextdoor")
	cfg.IMAPKeyringService = getEnvString("IMAP_KEYRING_SERVICE", "greenleads")

	cfg.GmailClientID = os.Getenv("GMAIL_CLIENT_ID")
	cfg.GmailClientSecret = os.Getenv("GMAIL_CLIENT_SECRET")
	cfg.GmailRedirectURI = os.Getenv("GMAIL_REDIRECT_URI")
	cfg.GmailRefreshToken = os.Getenv("GMAIL_REFRESH_TOKEN")
	cfg.GmailFromFilter = getEnvString("GMAIL_FROM_FILTER", "nextdoor")
	cfg.GmailLabel = os.Getenv("GMAIL_LABEL")

	cfg.AlertTimeout = getEnvDuration("ALERT_TIMEOUT", 15*time.Second)
	cfg.SMSSendInterval = getEnvDuration("SMS_SEND_INTERVAL", time.Second)
	cfg.TwilioAccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	cfg.TwilioAuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	cfg.TwilioFromNumber = os.Getenv("TWILIO_FROM_NUMBER")
	cfg.SendGridAPIKey = os.Getenv("SENDGRID_API_KEY")
	cfg.SMTPHost = os.Getenv("SMTP_HOST")
	cfg.SMTPPort = getEnvInt("SMTP_PORT", 587)
	cfg.SMTPUser = os.Getenv("SMTP_USER")
	cfg.SMTPPass = os.Getenv("SMTP_PASS")
	cfg.EmailFrom = getEnvString("EMAIL_FROM", "leads@example.com")

	cfg.RawBodyRetentionDays = getEnvInt("RAW_BODY_RETENTION_DAYS", 0)
	cfg.RateLimitImport = getEnvInt("RATE_LIMIT_IMPORT", 30)

	cfg.LogFile = os.Getenv("LOG_FILE")
	cfg.LogMaxSizeMB = getEnvInt("LOG_MAX_SIZE_MB", 50)
	cfg.LogMaxBackups = getEnvInt("LOG_MAX_BACKUPS", 5)
	cfg.LogMaxAgeDays = getEnvInt("LOG_MAX_AGE_DAYS", 14)

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
