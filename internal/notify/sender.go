package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/greenleads/internal/config"
	"github.com/hitoshi/greenleads/internal/security"
)

// SMSGateway は1件のSMSを送信するゲートウェイ。
type SMSGateway interface {
	SendSMS(ctx context.Context, to, body string) error
}

// EmailGateway は複数宛先へ1通のメールを送信するゲートウェイ。
type EmailGateway interface {
	SendEmail(ctx context.Context, to []string, subject, body string) error
}

// Sender はリード通知をSMS・メールで送信する。
// ゲートウェイが未設定、または宛先が空のチャネルは何もしない。
type Sender struct {
	sms     SMSGateway
	email   EmailGateway
	timeout time.Duration
	logger  *slog.Logger
}

// NewSender はSenderを生成する。smsやemailにnilを渡すとそのチャネルは送信しない。
func NewSender(sms SMSGateway, email EmailGateway, timeout time.Duration, logger *slog.Logger) *Sender {
	return &Sender{sms: sms, email: email, timeout: timeout, logger: logger}
}

// NewSenderFromConfig は設定からゲートウェイを選択してSenderを生成する。
// SMSはTwilio、メールはSendGrid（APIキーがある場合）、なければSMTPを使う。
func NewSenderFromConfig(cfg *config.Config, guard security.GatewayGuard, logger *slog.Logger) (*Sender, error) {
	httpClient := guard.NewSafeClient(cfg.AlertTimeout)

	var sms SMSGateway
	twilioCfg := TwilioConfig{
		AccountSID: cfg.TwilioAccountSID,
		AuthToken:  cfg.TwilioAuthToken,
		FromNumber: cfg.TwilioFromNumber,
	}
	if twilioCfg.Configured() {
		if err := guard.ValidateGatewayURL(defaultTwilioEndpoint); err != nil {
			return nil, fmt.Errorf("TwilioのエンドポイントURLが不正です: %w", err)
		}
		sms = NewTwilioClient(twilioCfg, httpClient, cfg.SMSSendInterval, logger)
	}

	var email EmailGateway
	switch {
	case cfg.SendGridAPIKey != "":
		if err := guard.ValidateGatewayURL(defaultSendGridEndpoint); err != nil {
			return nil, fmt.Errorf("SendGridのエンドポイントURLが不正です: %w", err)
		}
		email = NewSendGridClient(cfg.SendGridAPIKey, cfg.EmailFrom, httpClient, logger)
	case cfg.SMTPHost != "":
		email = NewSMTPMailer(SMTPConfig{
			Host: cfg.SMTPHost,
			Port: cfg.SMTPPort,
			User: cfg.SMTPUser,
			Pass: cfg.SMTPPass,
			From: cfg.EmailFrom,
		}, logger)
	}

	logger.Info("通知チャネルを初期化しました",
		slog.Bool("sms", sms != nil),
		slog.Bool("email", email != nil),
	)
	return NewSender(sms, email, cfg.AlertTimeout, logger), nil
}

// SendSMS は各宛先へSMSを送信する。1件でも失敗した場合はエラーを返す。
func (s *Sender) SendSMS(ctx context.Context, p Payload, recipients []string) error {
	if s.sms == nil || len(recipients) == 0 {
		return nil
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	body := p.SMSBody()
	for _, to := range recipients {
		if err := s.sms.SendSMS(ctx, to, body); err != nil {
			return fmt.Errorf("SMS送信に失敗しました (%s): %w", to, err)
		}
	}
	s.logger.Info("SMS通知を送信しました",
		slog.String("post_url", p.PostURL),
		slog.Int("recipient_count", len(recipients)),
	)
	return nil
}

// SendEmail は全宛先へメールを送信する。
func (s *Sender) SendEmail(ctx context.Context, p Payload, recipients []string) error {
	if s.email == nil || len(recipients) == 0 {
		return nil
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.email.SendEmail(ctx, recipients, p.EmailSubject(), p.EmailBody()); err != nil {
		return fmt.Errorf("メール送信に失敗しました: %w", err)
	}
	s.logger.Info("メール通知を送信しました",
		slog.String("post_url", p.PostURL),
		slog.Int("recipient_count", len(recipients)),
	)
	return nil
}

func (s *Sender) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}
