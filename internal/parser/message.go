package parser

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"

	"github.com/hitoshi/greenleads/internal/model"
)

// maxPartSize は1パートあたりに読み込む最大バイト数。
const maxPartSize = 2 << 20

// ParseMessage はRFC 5322形式の生メールを解析する。
// 最初のtext/plainパートと最初のtext/htmlパートを文字コード変換済みで取り出し、添付ファイルは無視する。
// Dateヘッダがない場合はfallbackを受信日時とする。
// 解析できない場合はmodel.ErrMalformedMessageをラップしたエラーを返す。
func ParseMessage(raw []byte, fallback time.Time) (*model.ParsedMessage, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("メッセージが空です: %w", model.ErrMalformedMessage)
	}

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("メッセージヘッダの解析に失敗しました: %v: %w", err, model.ErrMalformedMessage)
	}
	defer mr.Close()

	parsed := &model.ParsedMessage{ReceivedAt: fallback}

	h := &mr.Header
	if subject, err := h.Subject(); err == nil {
		parsed.Subject = subject
	} else {
		parsed.Subject = h.Get("Subject")
	}
	parsed.Sender = decodedFrom(h)
	if addrs, err := h.AddressList("From"); err == nil && len(addrs) > 0 {
		parsed.FromAddress = addrs[0].Address
	}
	if date, err := h.Date(); err == nil && !date.IsZero() {
		parsed.ReceivedAt = date
	}

	var plainFound, htmlFound bool
	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return nil, fmt.Errorf("メッセージ本文の解析に失敗しました: %v: %w", err, model.ErrMalformedMessage)
		}

		ih, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, _ := ih.ContentType()
		if ct == "" {
			ct = "text/plain"
		}
		if (ct == "text/plain" && plainFound) || (ct == "text/html" && htmlFound) {
			continue
		}
		if ct != "text/plain" && ct != "text/html" {
			continue
		}

		body, err := io.ReadAll(io.LimitReader(p.Body, maxPartSize))
		if err != nil {
			return nil, fmt.Errorf("パートの読み込みに失敗しました: %v: %w", err, model.ErrMalformedMessage)
		}

		if ct == "text/plain" {
			parsed.PlainText = string(body)
			plainFound = true
		} else {
			parsed.HTMLText = string(body)
			htmlFound = true
		}
	}

	return parsed, nil
}

// PeekSender はヘッダ部のみを読み、デコード済みのFromヘッダを返す。
// 本文を解析する前の送信者フィルタに使用する。
func PeekSender(raw []byte) (string, error) {
	th, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(raw)))
	if err != nil {
		return "", fmt.Errorf("ヘッダの読み込みに失敗しました: %v: %w", err, model.ErrMalformedMessage)
	}
	h := &mail.Header{Header: message.Header{Header: th}}
	return decodedFrom(h), nil
}

// MatchesSender はsenderにmarkerが大文字小文字を区別せずに含まれるかを返す。
// markerが空の場合は常にtrueを返す。
func MatchesSender(sender, marker string) bool {
	if marker == "" {
		return true
	}
	return strings.Contains(strings.ToLower(sender), strings.ToLower(marker))
}

func decodedFrom(h *mail.Header) string {
	if v, err := h.Text("From"); err == nil {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(h.Get("From"))
}
