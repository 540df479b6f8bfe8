package mailbox

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/emersion/go-imap/v2"
	"github.com/zalando/go-keyring"

	"github.com/hitoshi/greenleads/internal/config"
	"github.com/hitoshi/greenleads/internal/model"
)

func imapTestConfig() *config.Config {
	return &config.Config{
		EmailProvider:      "imap",
		IMAPHost:           "imap.example.com",
		IMAPPort:           993,
		IMAPUser:           "owner@example.com",
		IMAPPassword:       "pw",
		IMAPSecure:         true,
		IMAPFolder:         "INBOX",
		IMAPFromFilter:     "nextdoor",
		IMAPKeyringService: "greenleads",
	}
}

func gmailTestConfig() *config.Config {
	return &config.Config{
		EmailProvider:     "gmail",
		GmailClientID:     "id",
		GmailClientSecret: "secret",
		GmailRedirectURI:  "urn:ietf:wg:oauth:2.0:oob",
		GmailRefreshToken: "refresh",
		GmailFromFilter:   "nextdoor",
		GmailLabel:        "Leads",
	}
}

func TestNewFactory_IMAP_MissingCredentials(t *testing.T) {
	keyring.MockInit()
	var buf bytes.Buffer

	cfg := imapTestConfig()
	cfg.IMAPHost = ""
	cfg.IMAPPassword = ""

	_, err := NewFactory(cfg, newTestLogger(&buf))
	if !errors.Is(err, model.ErrConfig) {
		t.Fatalf("err = %v, want ErrConfig", err)
	}
	for _, name := range []string{"IMAP_HOST", "IMAP_PASSWORD"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("エラーに %s が含まれていない: %v", name, err)
		}
	}
}

func TestNewFactory_IMAP_PasswordFromKeyring(t *testing.T) {
	keyring.MockInit()
	var buf bytes.Buffer

	cfg := imapTestConfig()
	cfg.IMAPPassword = ""
	if err := keyring.Set("greenleads", "imap:owner@example.com@imap.example.com", "kr-pw"); err != nil {
		t.Fatalf("keyring.Set: %v", err)
	}

	f, err := NewFactory(cfg, newTestLogger(&buf))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.imapCfg.Password != "kr-pw" {
		t.Errorf("Password = %q, want %q", f.imapCfg.Password, "kr-pw")
	}
}

func TestNewFactory_IMAP_PasswordMissingEverywhere(t *testing.T) {
	keyring.MockInit()
	var buf bytes.Buffer

	cfg := imapTestConfig()
	cfg.IMAPPassword = ""

	_, err := NewFactory(cfg, newTestLogger(&buf))
	if !errors.Is(err, model.ErrConfig) {
		t.Fatalf("err = %v, want ErrConfig", err)
	}
}

func TestNewFactory_Gmail_MissingCredentials(t *testing.T) {
	var buf bytes.Buffer
	cfg := gmailTestConfig()
	cfg.GmailRefreshToken = ""
	cfg.GmailRedirectURI = ""

	_, err := NewFactory(cfg, newTestLogger(&buf))
	if !errors.Is(err, model.ErrConfig) {
		t.Fatalf("err = %v, want ErrConfig", err)
	}
	if !strings.Contains(err.Error(), "GMAIL_REFRESH_TOKEN") || !strings.Contains(err.Error(), "GMAIL_REDIRECT_URI") {
		t.Errorf("エラーに不足変数が含まれていない: %v", err)
	}
}

func TestNewFactory_UnknownProvider(t *testing.T) {
	var buf bytes.Buffer
	cfg := imapTestConfig()
	cfg.EmailProvider = "pop3"

	_, err := NewFactory(cfg, newTestLogger(&buf))
	if !errors.Is(err, model.ErrConfig) {
		t.Fatalf("err = %v, want ErrConfig", err)
	}
}

func TestFactory_New_SeedsIMAPCursor(t *testing.T) {
	var buf bytes.Buffer
	f, err := NewFactory(imapTestConfig(), newTestLogger(&buf))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sess := &fakeSession{messages: map[imap.UID][]byte{31: []byte("m31")}}
	f.dialIMAP = func(ctx context.Context, cfg IMAPConfig) (imapSession, error) {
		if cfg.FromFilter != "nextdoor" || cfg.Folder != "INBOX" {
			t.Errorf("IMAPConfig = %+v", cfg)
		}
		return sess, nil
	}

	p := f.New(model.MailboxCursor{Kind: model.ProviderIMAP, LastSeenUID: 30})
	if p.Kind() != model.ProviderIMAP {
		t.Fatalf("Kind() = %q", p.Kind())
	}
	if got := p.Watermark().LastSeenUID; got != 30 {
		t.Errorf("初期ウォーターマーク = %d, want 30", got)
	}

	msgs, err := p.FetchNewMessages(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 1 || p.Watermark().LastSeenUID != 31 {
		t.Errorf("msgs = %d, watermark = %d", len(msgs), p.Watermark().LastSeenUID)
	}
}

func TestFactory_New_SeedsGmailCursor(t *testing.T) {
	var buf bytes.Buffer
	f, err := NewFactory(gmailTestConfig(), newTestLogger(&buf))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	api := &fakeGmail{}
	f.newGmailAPI = func(ctx context.Context) (gmailAPI, error) { return api, nil }

	p := f.New(model.MailboxCursor{Kind: model.ProviderGmail, LastQueryAfter: 1700000000})
	if p.Kind() != model.ProviderGmail {
		t.Fatalf("Kind() = %q", p.Kind())
	}
	if _, err := p.FetchNewMessages(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if api.queries[0] != `from:nextdoor label:"Leads" after:1700000000` {
		t.Errorf("query = %q", api.queries[0])
	}
}
