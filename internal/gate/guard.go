// Package gate はリードとアラートの重複防止、およびアラートのレート制限を提供する。
package gate

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/greenleads/internal/model"
	"github.com/hitoshi/greenleads/internal/repository"
)

// RateWindow はレート制限のローリングウィンドウ幅。
const RateWindow = time.Hour

// Decision はアラート送信可否の判定結果。
type Decision int

const (
	// DecisionSend はアラートを送信してよいことを示す。
	DecisionSend Decision = iota
	// DecisionAlreadyAlerted は同じ投稿URLのアラートが送信済みであることを示す。
	DecisionAlreadyAlerted
	// DecisionRateLimited は直近1時間の上限に達したためアラートを抑止することを示す。
	DecisionRateLimited
)

// String はログ出力用の名前を返す。
func (d Decision) String() string {
	switch d {
	case DecisionSend:
		return "send"
	case DecisionAlreadyAlerted:
		return "already_alerted"
	case DecisionRateLimited:
		return "rate_limited"
	default:
		return "unknown"
	}
}

// Guard は投稿URLをキーとした重複防止とレート制限を行う。
// 2つの重複チェックは独立している。アラートされずに残ったリードが存在しうるため。
type Guard struct {
	leads         repository.LeadRepository
	notifications repository.NotificationRepository
}

// NewGuard はGuardを生成する。
func NewGuard(leads repository.LeadRepository, notifications repository.NotificationRepository) *Guard {
	return &Guard{leads: leads, notifications: notifications}
}

// LeadExists は同じ投稿URLのリードが既に存在するかを返す。
func (g *Guard) LeadExists(ctx context.Context, postURL string) (bool, error) {
	lead, err := g.leads.FindByPostURL(ctx, postURL)
	if err != nil {
		return false, err
	}
	return lead != nil, nil
}

// CheckAlert は新規リードに対してアラートを送信してよいかを判定する。
// 通知ログに同じ投稿URLがあればDecisionAlreadyAlerted、
// (now-1h, now] の通知済み件数がlimitPerHour以上ならDecisionRateLimitedを返す。
// 抑止されたアラートは後で再送しない。
func (g *Guard) CheckAlert(ctx context.Context, postURL string, limitPerHour int, now time.Time) (Decision, error) {
	entry, err := g.notifications.FindByPostURL(ctx, postURL)
	if err != nil {
		return DecisionSend, err
	}
	if entry != nil {
		return DecisionAlreadyAlerted, nil
	}

	if limitPerHour <= 0 {
		return DecisionRateLimited, nil
	}

	count, err := g.notifications.CountAlertsSince(ctx, now.Add(-RateWindow), now)
	if err != nil {
		return DecisionSend, err
	}
	if count >= limitPerHour {
		return DecisionRateLimited, nil
	}
	return DecisionSend, nil
}

// RecordAlert はチャネルごとの通知ログを作成する。
func (g *Guard) RecordAlert(ctx context.Context, lead *model.Lead, channels []model.NotificationChannel, entryID func() string, sentAt time.Time) error {
	entries := make([]*model.NotificationLogEntry, 0, len(channels))
	for _, ch := range channels {
		entries = append(entries, &model.NotificationLogEntry{
			ID:      entryID(),
			Channel: ch,
			LeadID:  lead.ID,
			PostURL: lead.PostURL,
			SentAt:  sentAt,
		})
	}
	if err := g.notifications.CreateEntries(ctx, entries); err != nil {
		return fmt.Errorf("通知ログの記録に失敗しました: %w", err)
	}
	return nil
}
