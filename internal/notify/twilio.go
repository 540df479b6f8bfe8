package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// defaultTwilioEndpoint はTwilio REST APIのベースURL。
	defaultTwilioEndpoint = "https://api.twilio.com"
	// maxErrorBodySize はエラー応答から読み取る最大バイト数。
	maxErrorBodySize = 4096
)

// TwilioConfig はTwilioの認証情報と送信元番号。
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

// Configured は必要な値がすべて設定されているかを返す。
func (c TwilioConfig) Configured() bool {
	return c.AccountSID != "" && c.AuthToken != "" && c.FromNumber != ""
}

// TwilioClient はTwilio Messages APIでSMSを送信する。
// 連続送信はlimiterで間隔を空ける。
type TwilioClient struct {
	cfg        TwilioConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
	endpoint   string // テスト用にエンドポイントを差し替え可能
}

// NewTwilioClient はTwilioClientを生成する。interval は1通ごとの最小送信間隔。
func NewTwilioClient(cfg TwilioConfig, httpClient *http.Client, interval time.Duration, logger *slog.Logger) *TwilioClient {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &TwilioClient{
		cfg:        cfg,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger,
		endpoint:   defaultTwilioEndpoint,
	}
}

// SendSMS は1件のSMSを送信する。
func (c *TwilioClient) SendSMS(ctx context.Context, to, body string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("SMS送信の待機が中断されました: %w", err)
	}

	reqURL := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json",
		strings.TrimRight(c.endpoint, "/"), url.PathEscape(c.cfg.AccountSID))

	form := url.Values{
		"To":   {to},
		"From": {c.cfg.FromNumber},
		"Body": {body},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.cfg.AccountSID, c.cfg.AuthToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Twilio APIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		c.logger.Error("Twilio APIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.String("body", string(body)),
		)
		return fmt.Errorf("Twilio APIがステータス %d を返しました", resp.StatusCode)
	}
	return nil
}
