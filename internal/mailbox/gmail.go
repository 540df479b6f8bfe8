package mailbox

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/hitoshi/greenleads/internal/model"
)

// gmailDefaultLookback はカーソル未設定時に遡る期間。
const gmailDefaultLookback = 7 * 24 * time.Hour

// GmailConfig はGmailプロバイダの検索条件。
type GmailConfig struct {
	FromFilter string
	Label      string
}

// gmailAPI はGmailProviderが使うGmail APIの最小集合。
type gmailAPI interface {
	ListMessageIDs(ctx context.Context, query, pageToken string) (ids []string, nextPageToken string, err error)
	GetRaw(ctx context.Context, id string) (raw string, internalDateMillis int64, err error)
}

// gmailAPIFunc はリクエストごとにGmail APIクライアントを生成する関数。
type gmailAPIFunc func(ctx context.Context) (gmailAPI, error)

// GmailProvider はタイムスタンプベースのカーソルでGmailを検索するプロバイダ。
type GmailProvider struct {
	cfg       GmailConfig
	newAPI    gmailAPIFunc
	now       func() time.Time
	logger    *slog.Logger
	lastAfter int64
}

// NewGmailProvider はGmailProviderを生成する。lastAfterはepoch秒（0は未設定）。
func NewGmailProvider(cfg GmailConfig, ts oauth2.TokenSource, lastAfter int64, logger *slog.Logger) *GmailProvider {
	return &GmailProvider{
		cfg: cfg,
		newAPI: func(ctx context.Context) (gmailAPI, error) {
			return newGmailService(ctx, ts)
		},
		now:       time.Now,
		logger:    logger,
		lastAfter: lastAfter,
	}
}

// Kind はプロバイダ種別を返す。
func (p *GmailProvider) Kind() model.ProviderKind {
	return model.ProviderGmail
}

// Watermark は最後に成功した検索の時刻を返す。
func (p *GmailProvider) Watermark() model.MailboxCursor {
	return model.MailboxCursor{Kind: model.ProviderGmail, LastQueryAfter: p.lastAfter}
}

// FetchNewMessages は after:<lastAfter> で検索し、全ページのメッセージを raw 形式で取得する。
// 成功時は件数に関わらずウォーターマークを現在時刻に進める。
func (p *GmailProvider) FetchNewMessages(ctx context.Context) ([]model.RawMessage, error) {
	now := p.now()
	after := p.lastAfter
	if after <= 0 {
		after = now.Add(-gmailDefaultLookback).Unix()
	}
	query := BuildGmailQuery(p.cfg.FromFilter, p.cfg.Label, after)

	api, err := p.newAPI(ctx)
	if err != nil {
		return nil, fmt.Errorf("Gmail APIクライアントの生成に失敗しました: %w", err)
	}

	var ids []string
	pageToken := ""
	for {
		page, next, err := api.ListMessageIDs(ctx, query, pageToken)
		if err != nil {
			return nil, fmt.Errorf("Gmailメッセージ一覧の取得に失敗しました: %w", err)
		}
		ids = append(ids, page...)
		if next == "" {
			break
		}
		pageToken = next
	}

	messages := make([]model.RawMessage, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		raw, internalDate, err := api.GetRaw(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("Gmailメッセージ %s の取得に失敗しました: %w", id, err)
		}
		if raw == "" {
			continue
		}
		body, err := decodeGmailRaw(raw)
		if err != nil {
			p.logger.Warn("Gmailメッセージのデコードに失敗しました",
				slog.String("message_id", id),
				slog.String("error", err.Error()),
			)
			continue
		}
		msg := model.RawMessage{ID: id, Raw: body}
		if internalDate > 0 {
			msg.InternalDate = time.UnixMilli(internalDate)
		}
		messages = append(messages, msg)
	}

	p.lastAfter = now.Unix()
	p.logger.Info("Gmailメッセージを取得しました",
		slog.Int("count", len(messages)),
		slog.String("query", query),
	)
	return messages, nil
}

// BuildGmailQuery はGmail検索クエリを組み立てる。
// ラベル句はラベルが設定されている場合のみ付与する。
func BuildGmailQuery(fromFilter, label string, after int64) string {
	parts := make([]string, 0, 3)
	if fromFilter != "" {
		parts = append(parts, "from:"+fromFilter)
	}
	if label != "" {
		parts = append(parts, fmt.Sprintf("label:%q", label))
	}
	parts = append(parts, fmt.Sprintf("after:%d", after))
	return strings.Join(parts, " ")
}

// decodeGmailRaw はbase64url（パディング有無どちらも可）をデコードする。
func decodeGmailRaw(raw string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(raw, "="))
}

// gmailService はgmail/v1によるgmailAPIの実装。
type gmailService struct {
	svc *gmail.Service
}

func newGmailService(ctx context.Context, ts oauth2.TokenSource) (*gmailService, error) {
	svc, err := gmail.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, err
	}
	return &gmailService{svc: svc}, nil
}

func (g *gmailService) ListMessageIDs(ctx context.Context, query, pageToken string) ([]string, string, error) {
	call := g.svc.Users.Messages.List("me").Q(query).Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	resp, err := call.Do()
	if err != nil {
		return nil, "", err
	}
	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		ids = append(ids, m.Id)
	}
	return ids, resp.NextPageToken, nil
}

func (g *gmailService) GetRaw(ctx context.Context, id string) (string, int64, error) {
	msg, err := g.svc.Users.Messages.Get("me", id).Format("raw").Context(ctx).Do()
	if err != nil {
		return "", 0, err
	}
	return msg.Raw, msg.InternalDate, nil
}

var _ Provider = (*GmailProvider)(nil)
