// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/greenleads/internal/model"
)

// LeadRepository はリードの永続化インターフェース。
type LeadRepository interface {
	// FindByPostURL は投稿URLでリードを検索する。見つからない場合はnilを返す。
	FindByPostURL(ctx context.Context, postURL string) (*model.Lead, error)

	// Create はリードを作成する。
	// post_urlの一意制約に衝突した場合は作成せずにfalseを返す（エラーではない）。
	Create(ctx context.Context, lead *model.Lead) (bool, error)

	// PurgeRawBodies はcutoffより前に作成されたリードのraw_bodyを消去し、件数を返す。
	PurgeRawBodies(ctx context.Context, cutoff time.Time) (int64, error)
}

// NotificationRepository は通知ログの永続化インターフェース。
type NotificationRepository interface {
	// FindByPostURL は投稿URLを参照する通知ログを1件返す。見つからない場合はnilを返す。
	FindByPostURL(ctx context.Context, postURL string) (*model.NotificationLogEntry, error)

	// CountAlertsSince は (since, until] の範囲で通知済みの投稿URLの数を返す。
	// 1回のアラートはチャネルごとに1行を書き込むため、行数ではなく投稿URLの種類数を数える。
	CountAlertsSince(ctx context.Context, since, until time.Time) (int, error)

	// CreateEntries は通知ログを同一トランザクションで作成する。
	// (channel, post_url) が既に存在する行は無視する。
	CreateEntries(ctx context.Context, entries []*model.NotificationLogEntry) error
}

// SettingsRepository は設定の永続化インターフェース。
type SettingsRepository interface {
	// Get は設定を取得する。設定行が存在しない場合は既定値を返す。
	Get(ctx context.Context) (*model.Settings, error)

	// Update はカーソル以外の設定を保存する。
	Update(ctx context.Context, settings *model.Settings) error

	// UpdateCursor はカーソルを保存する。保存済みの値より小さい値では後退しない。
	UpdateCursor(ctx context.Context, cursor model.MailboxCursor) error
}
