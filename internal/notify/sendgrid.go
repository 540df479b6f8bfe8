package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// defaultSendGridEndpoint はSendGrid v3 APIのベースURL。
const defaultSendGridEndpoint = "https://api.sendgrid.com"

type sendGridAddress struct {
	Email string `json:"email"`
}

type sendGridPersonalization struct {
	To []sendGridAddress `json:"to"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendGridRequest struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             sendGridAddress           `json:"from"`
	Subject          string                    `json:"subject"`
	Content          []sendGridContent         `json:"content"`
}

// SendGridClient はSendGrid Mail Send APIでメールを送信する。
type SendGridClient struct {
	apiKey     string
	from       string
	httpClient *http.Client
	logger     *slog.Logger
	endpoint   string // テスト用にエンドポイントを差し替え可能
}

// NewSendGridClient はSendGridClientを生成する。
func NewSendGridClient(apiKey, from string, httpClient *http.Client, logger *slog.Logger) *SendGridClient {
	return &SendGridClient{
		apiKey:     apiKey,
		from:       from,
		httpClient: httpClient,
		logger:     logger,
		endpoint:   defaultSendGridEndpoint,
	}
}

// SendEmail は全宛先を1通のメールで送信する。
func (c *SendGridClient) SendEmail(ctx context.Context, to []string, subject, body string) error {
	recipients := make([]sendGridAddress, 0, len(to))
	for _, addr := range to {
		recipients = append(recipients, sendGridAddress{Email: addr})
	}

	payload, err := json.Marshal(sendGridRequest{
		Personalizations: []sendGridPersonalization{{To: recipients}},
		From:             sendGridAddress{Email: c.from},
		Subject:          subject,
		Content:          []sendGridContent{{Type: "text/plain", Value: body}},
	})
	if err != nil {
		return fmt.Errorf("リクエストJSONの生成に失敗しました: %w", err)
	}

	reqURL := strings.TrimRight(c.endpoint, "/") + "/v3/mail/send"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("SendGrid APIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		c.logger.Error("SendGrid APIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.String("body", string(respBody)),
		)
		return fmt.Errorf("SendGrid APIがステータス %d を返しました", resp.StatusCode)
	}
	return nil
}
