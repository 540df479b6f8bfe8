// Package notify はリードのSMS・メール通知を送信する。
package notify

import (
	"fmt"
	"strings"

	"github.com/hitoshi/greenleads/internal/model"
)

// Payload は通知に含めるリードの情報。
type Payload struct {
	Label   string // 通知元ラベル（例: Nextdoor）
	Title   string
	Snippet string
	City    string
	PostURL string
}

// NewPayload はLeadCandidateから通知ペイロードを生成する。
func NewPayload(c *model.LeadCandidate, label string) Payload {
	return Payload{
		Label:   label,
		Title:   c.Title,
		Snippet: c.Snippet,
		City:    c.City,
		PostURL: c.PostURL,
	}
}

func (p Payload) cityPart() string {
	if p.City == "" {
		return ""
	}
	return fmt.Sprintf(" (%s)", p.City)
}

// SMSBody はSMS本文を返す。
func (p Payload) SMSBody() string {
	return fmt.Sprintf("New %s lead%s: %s\n%s\n%s", p.Label, p.cityPart(), p.Title, p.Snippet, p.PostURL)
}

// EmailSubject はメールの件名を返す。
func (p Payload) EmailSubject() string {
	return fmt.Sprintf("%s lead%s: %s", p.Label, p.cityPart(), p.Title)
}

// EmailBody はメール本文を返す。
func (p Payload) EmailBody() string {
	var b strings.Builder
	b.WriteString(p.Title)
	b.WriteString("\n")
	b.WriteString(p.Snippet)
	b.WriteString("\n")
	if p.City != "" {
		b.WriteString("City: ")
		b.WriteString(p.City)
		b.WriteString("\n")
	}
	b.WriteString(p.PostURL)
	return b.String()
}
