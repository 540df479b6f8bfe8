package mailbox

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/oauth2"

	"github.com/hitoshi/greenleads/internal/auth"
	"github.com/hitoshi/greenleads/internal/config"
	"github.com/hitoshi/greenleads/internal/model"
	"github.com/hitoshi/greenleads/internal/secrets"
)

// Factory は永続化済みカーソルからプロバイダを生成する。
// 認証情報の検証は生成時に1回だけ行う。
type Factory struct {
	kind        model.ProviderKind
	imapCfg     IMAPConfig
	gmailCfg    GmailConfig
	tokenSource oauth2.TokenSource
	logger      *slog.Logger

	// テスト用に差し替え可能な接続関数
	dialIMAP    imapDialFunc
	newGmailAPI gmailAPIFunc
}

// NewFactory は設定を検証してFactoryを生成する。
// 必須の認証情報が欠けている場合はmodel.ErrConfigをラップしたエラーを返す。
func NewFactory(cfg *config.Config, logger *slog.Logger) (*Factory, error) {
	f := &Factory{
		kind:   model.ProviderKind(cfg.EmailProvider),
		logger: logger,
	}

	switch f.kind {
	case model.ProviderGmail:
		var missing []string
		if cfg.GmailClientID == "" {
			missing = append(missing, "GMAIL_CLIENT_ID")
		}
		if cfg.GmailClientSecret == "" {
			missing = append(missing, "GMAIL_CLIENT_SECRET")
		}
		if cfg.GmailRedirectURI == "" {
			missing = append(missing, "GMAIL_REDIRECT_URI")
		}
		if cfg.GmailRefreshToken == "" {
			missing = append(missing, "GMAIL_REFRESH_TOKEN")
		}
		if len(missing) > 0 {
			return nil, fmt.Errorf("%w: missing Gmail OAuth environment variables: %v", model.ErrConfig, missing)
		}

		f.gmailCfg = GmailConfig{FromFilter: cfg.GmailFromFilter, Label: cfg.GmailLabel}
		oauth := auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
			ClientID:     cfg.GmailClientID,
			ClientSecret: cfg.GmailClientSecret,
			RedirectURL:  cfg.GmailRedirectURI,
		})
		// トークンはプロセス全体で共有し、期限切れ時のみ更新する。
		f.tokenSource = oauth.TokenSource(context.Background(), cfg.GmailRefreshToken)

	case model.ProviderIMAP:
		var missing []string
		if cfg.IMAPHost == "" {
			missing = append(missing, "IMAP_HOST")
		}
		if cfg.IMAPPort <= 0 {
			missing = append(missing, "IMAP_PORT")
		}
		if cfg.IMAPUser == "" {
			missing = append(missing, "IMAP_USER")
		}
		var password string
		if cfg.IMAPHost != "" && cfg.IMAPUser != "" {
			pw, err := secrets.IMAPPassword(cfg.IMAPPassword, cfg.IMAPKeyringService,
				secrets.IMAPKeyringAccount(cfg.IMAPUser, cfg.IMAPHost))
			if err != nil {
				missing = append(missing, "IMAP_PASSWORD")
			}
			password = pw
		} else if cfg.IMAPPassword == "" {
			missing = append(missing, "IMAP_PASSWORD")
		}
		if len(missing) > 0 {
			return nil, fmt.Errorf("%w: missing IMAP environment variables: %v", model.ErrConfig, missing)
		}

		f.imapCfg = IMAPConfig{
			Host:       cfg.IMAPHost,
			Port:       cfg.IMAPPort,
			Secure:     cfg.IMAPSecure,
			User:       cfg.IMAPUser,
			Password:   password,
			Folder:     cfg.IMAPFolder,
			FromFilter: cfg.IMAPFromFilter,
		}

	default:
		return nil, fmt.Errorf("%w: unknown EMAIL_PROVIDER %q", model.ErrConfig, cfg.EmailProvider)
	}

	return f, nil
}

// Kind は生成するプロバイダの種別を返す。
func (f *Factory) Kind() model.ProviderKind {
	return f.kind
}

// New はカーソルを初期ウォーターマークとするプロバイダを生成する。
func (f *Factory) New(cursor model.MailboxCursor) Provider {
	if f.kind == model.ProviderGmail {
		p := NewGmailProvider(f.gmailCfg, f.tokenSource, cursor.LastQueryAfter, f.logger)
		if f.newGmailAPI != nil {
			p.newAPI = f.newGmailAPI
		}
		return p
	}

	p := NewIMAPProvider(f.imapCfg, cursor.LastSeenUID, f.logger)
	if f.dialIMAP != nil {
		p.dial = f.dialIMAP
	}
	return p
}
