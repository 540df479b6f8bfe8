package mailbox

import (
	"cmp"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"strconv"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/hitoshi/greenleads/internal/model"
)

// IMAPConfig はIMAPプロバイダの接続設定。
type IMAPConfig struct {
	Host       string
	Port       int
	Secure     bool
	User       string
	Password   string
	Folder     string
	FromFilter string
}

// Addr は "host:port" 形式の接続先を返す。
func (c IMAPConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// fetchedMessage はFETCHで取得した1通分のデータ。
type fetchedMessage struct {
	UID          imap.UID
	InternalDate time.Time
	Body         []byte
}

// imapSession はIMAPProviderが使うIMAPコマンドの最小集合。
// テストではフェイク実装に差し替える。
type imapSession interface {
	Login(username, password string) error
	SelectReadOnly(folder string) error
	SearchUIDs(criteria *imap.SearchCriteria) ([]imap.UID, error)
	FetchRaw(ctx context.Context, uids []imap.UID) ([]fetchedMessage, error)
	Logout() error
}

// imapDialFunc はIMAPサーバーへ接続してセッションを返す関数。
type imapDialFunc func(ctx context.Context, cfg IMAPConfig) (imapSession, error)

// IMAPProvider はUIDベースのカーソルでIMAPフォルダを読むプロバイダ。
type IMAPProvider struct {
	cfg     IMAPConfig
	dial    imapDialFunc
	logger  *slog.Logger
	lastUID uint32
}

// NewIMAPProvider はIMAPProviderを生成する。lastUIDは永続化済みのウォーターマーク。
func NewIMAPProvider(cfg IMAPConfig, lastUID uint32, logger *slog.Logger) *IMAPProvider {
	return &IMAPProvider{
		cfg:     cfg,
		dial:    dialIMAP,
		logger:  logger,
		lastUID: lastUID,
	}
}

// Kind はプロバイダ種別を返す。
func (p *IMAPProvider) Kind() model.ProviderKind {
	return model.ProviderIMAP
}

// Watermark は最後に取得したUIDを返す。
func (p *IMAPProvider) Watermark() model.MailboxCursor {
	return model.MailboxCursor{Kind: model.ProviderIMAP, LastSeenUID: p.lastUID}
}

// FetchNewMessages はlastUIDより大きいUIDのメッセージを昇順に取得する。
// フォルダは読み取り専用で開き、BODY.PEEK[] で取得するため既読フラグは変更しない。
func (p *IMAPProvider) FetchNewMessages(ctx context.Context) ([]model.RawMessage, error) {
	sess, err := p.dial(ctx, p.cfg)
	if err != nil {
		return nil, fmt.Errorf("IMAPサーバーへの接続に失敗しました: %w", err)
	}
	defer func() {
		if err := sess.Logout(); err != nil {
			p.logger.Warn("IMAPログアウトに失敗しました", slog.String("error", err.Error()))
		}
	}()

	if err := sess.Login(p.cfg.User, p.cfg.Password); err != nil {
		return nil, fmt.Errorf("IMAPログインに失敗しました: %w", err)
	}
	if err := sess.SelectReadOnly(p.cfg.Folder); err != nil {
		return nil, fmt.Errorf("フォルダ %s の選択に失敗しました: %w", p.cfg.Folder, err)
	}

	criteria := &imap.SearchCriteria{
		// Stop: 0 は "*" を表す。
		UID: []imap.UIDSet{{imap.UIDRange{Start: imap.UID(p.lastUID + 1), Stop: 0}}},
	}
	if p.cfg.FromFilter != "" {
		criteria.Header = []imap.SearchCriteriaHeaderField{{Key: "From", Value: p.cfg.FromFilter}}
	}

	found, err := sess.SearchUIDs(criteria)
	if err != nil {
		return nil, fmt.Errorf("UID SEARCHに失敗しました: %w", err)
	}

	// "n:*" は新着が無くても最大UIDのメッセージを含むため、カーソル以下を除外する。
	uids := make([]imap.UID, 0, len(found))
	for _, uid := range found {
		if uint32(uid) > p.lastUID {
			uids = append(uids, uid)
		}
	}
	if len(uids) == 0 {
		return nil, nil
	}
	slices.Sort(uids)

	fetched, err := sess.FetchRaw(ctx, uids)
	if err != nil {
		return nil, fmt.Errorf("メッセージの取得に失敗しました: %w", err)
	}
	slices.SortFunc(fetched, func(a, b fetchedMessage) int {
		return cmp.Compare(a.UID, b.UID)
	})

	next := p.lastUID
	messages := make([]model.RawMessage, 0, len(fetched))
	for _, m := range fetched {
		if len(m.Body) == 0 {
			continue
		}
		messages = append(messages, model.RawMessage{
			ID:           strconv.FormatUint(uint64(m.UID), 10),
			UID:          uint32(m.UID),
			Raw:          m.Body,
			InternalDate: m.InternalDate,
		})
		if uint32(m.UID) > next {
			next = uint32(m.UID)
		}
	}

	p.lastUID = next
	p.logger.Info("IMAPメッセージを取得しました",
		slog.Int("count", len(messages)),
		slog.Uint64("last_uid", uint64(next)),
	)
	return messages, nil
}

// clientSession はimapclient.ClientによるimapSessionの実装。
type clientSession struct {
	c *imapclient.Client
}

// dialIMAP はIMAPサーバーへ接続する。
// コンテキストの期限は接続全体のデッドラインとして設定する。
func dialIMAP(ctx context.Context, cfg IMAPConfig) (imapSession, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", cfg.Addr())
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if cfg.Secure {
		tlsConn := tls.Client(conn, &tls.Config{
			MinVersion: tls.VersionTLS12,
			ServerName: cfg.Host,
		})
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("TLSハンドシェイクに失敗しました: %w", err)
		}
		conn = tlsConn
	}

	c := imapclient.New(conn, nil)
	if err := c.WaitGreeting(); err != nil {
		_ = c.Close()
		return nil, err
	}
	return &clientSession{c: c}, nil
}

func (s *clientSession) Login(username, password string) error {
	return s.c.Login(username, password).Wait()
}

func (s *clientSession) SelectReadOnly(folder string) error {
	_, err := s.c.Select(folder, &imap.SelectOptions{ReadOnly: true}).Wait()
	return err
}

func (s *clientSession) SearchUIDs(criteria *imap.SearchCriteria) ([]imap.UID, error) {
	data, err := s.c.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, err
	}
	return data.AllUIDs(), nil
}

func (s *clientSession) FetchRaw(ctx context.Context, uids []imap.UID) ([]fetchedMessage, error) {
	bodyAll := &imap.FetchItemBodySection{
		Specifier: imap.PartSpecifierNone,
		Peek:      true,
	}
	fetchCmd := s.c.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		UID:          true,
		InternalDate: true,
		BodySection:  []*imap.FetchItemBodySection{bodyAll},
	})
	defer func() { _ = fetchCmd.Close() }()

	out := make([]fetchedMessage, 0, len(uids))
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		buf, err := msg.Collect()
		if err != nil {
			return nil, err
		}

		m := fetchedMessage{UID: buf.UID, InternalDate: buf.InternalDate}
		if b := buf.FindBodySection(bodyAll); b != nil {
			m.Body = append([]byte(nil), b...)
		}
		out = append(out, m)
	}

	if err := fetchCmd.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *clientSession) Logout() error {
	err := s.c.Logout().Wait()
	_ = s.c.Close()
	return err
}

var _ Provider = (*IMAPProvider)(nil)
