// Package auth はGmail APIへアクセスするためのGoogle OAuth 2.0フローを提供する。
package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

const (
	defaultGoogleAuthURL  = "https://accounts.google.com/o/oauth2/auth"
	defaultGoogleTokenURL = "https://oauth2.googleapis.com/token"

	// GmailReadonlyScope はメッセージの参照のみを許可するスコープ。
	GmailReadonlyScope = "https://www.googleapis.com/auth/gmail.readonly"
)

// GoogleOAuthConfig はGoogle OAuthプロバイダーの設定。
type GoogleOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// テスト用にオーバーライド可能なURL
	AuthURL  string
	TokenURL string
}

// GoogleOAuthProvider はGmail読み取り用のOAuth 2.0クライアント設定を保持する。
type GoogleOAuthProvider struct {
	config *oauth2.Config
}

// NewGoogleOAuthProvider はGoogleOAuthProviderを生成する。
func NewGoogleOAuthProvider(config GoogleOAuthConfig) *GoogleOAuthProvider {
	if config.AuthURL == "" {
		config.AuthURL = defaultGoogleAuthURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultGoogleTokenURL
	}
	return &GoogleOAuthProvider{
		config: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURL,
			Scopes:       []string{GmailReadonlyScope},
			Endpoint: oauth2.Endpoint{
				AuthURL:   config.AuthURL,
				TokenURL:  config.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
	}
}

// GetLoginURL は同意画面のURLを生成する。
// リフレッシュトークンを得るためにオフラインアクセスと再同意を要求する。
func (p *GoogleOAuthProvider) GetLoginURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// ExchangeCode は認可コードをトークンに交換する。
// リフレッシュトークンが含まれない場合はエラーを返す。
func (p *GoogleOAuthProvider) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}
	if token.RefreshToken == "" {
		return nil, errors.New("refresh token missing from token response")
	}
	return token, nil
}

// TokenSource はリフレッシュトークンから自動更新されるトークンソースを返す。
func (p *GoogleOAuthProvider) TokenSource(ctx context.Context, refreshToken string) oauth2.TokenSource {
	return p.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
}
