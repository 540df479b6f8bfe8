package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// SMTPConfig はSMTPリレーの接続設定。
type SMTPConfig struct {
	Host string
	Port int
	User string
	Pass string
	From string
}

// SMTPMailer はSMTPリレー経由でメールを送信する。
// サーバーがSTARTTLSを提示した場合は暗号化し、ユーザーが設定されていればPLAIN認証を行う。
type SMTPMailer struct {
	cfg       SMTPConfig
	tlsConfig *tls.Config
	logger    *slog.Logger
	now       func() time.Time
}

// NewSMTPMailer はSMTPMailerを生成する。
func NewSMTPMailer(cfg SMTPConfig, logger *slog.Logger) *SMTPMailer {
	return &SMTPMailer{
		cfg:       cfg,
		tlsConfig: &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12},
		logger:    logger,
		now:       time.Now,
	}
}

// SendEmail は全宛先を1通のメールで送信する。
func (m *SMTPMailer) SendEmail(ctx context.Context, to []string, subject, body string) error {
	msg, err := m.compose(to, subject, body)
	if err != nil {
		return fmt.Errorf("メールの生成に失敗しました: %w", err)
	}

	c, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	if m.cfg.User != "" {
		if err := c.Auth(sasl.NewPlainClient("", m.cfg.User, m.cfg.Pass)); err != nil {
			return fmt.Errorf("SMTP認証に失敗しました: %w", err)
		}
	}

	if err := c.SendMail(m.cfg.From, to, bytes.NewReader(msg)); err != nil {
		m.logger.Error("SMTP送信に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("recipient_count", len(to)),
		)
		return fmt.Errorf("SMTP送信に失敗しました: %w", err)
	}
	return c.Quit()
}

// connect はSMTPクライアントを生成する。
// EHLOでSTARTTLSが提示された場合は接続し直してTLSに切り替える。
func (m *SMTPMailer) connect(ctx context.Context) (*smtp.Client, error) {
	conn, err := m.dial(ctx)
	if err != nil {
		return nil, err
	}
	c := smtp.NewClient(conn)
	offered, _ := c.Extension("STARTTLS")
	if !offered {
		return c, nil
	}
	c.Close()

	conn, err = m.dial(ctx)
	if err != nil {
		return nil, err
	}
	c, err = smtp.NewClientStartTLS(conn, m.tlsConfig)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("STARTTLSに失敗しました: %w", err)
	}
	return c, nil
}

// dial はコンテキストの期限を接続全体に適用してTCP接続を開く。
func (m *SMTPMailer) dial(ctx context.Context) (net.Conn, error) {
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("SMTPサーバーへの接続に失敗しました: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	return conn, nil
}

// compose はtext/plainの単一パートメッセージを生成する。
func (m *SMTPMailer) compose(to []string, subject, body string) ([]byte, error) {
	var h mail.Header
	h.SetDate(m.now())
	h.SetAddressList("From", []*mail.Address{{Address: m.cfg.From}})
	rcpts := make([]*mail.Address, 0, len(to))
	for _, addr := range to {
		rcpts = append(rcpts, &mail.Address{Address: addr})
	}
	h.SetAddressList("To", rcpts)
	h.SetSubject(subject)
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write([]byte(body)); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
