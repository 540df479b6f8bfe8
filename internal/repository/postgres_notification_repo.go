package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/greenleads/internal/model"
)

// PostgresNotificationRepo はPostgreSQLを使用した通知ログリポジトリ。
type PostgresNotificationRepo struct {
	db *sql.DB
}

// NewPostgresNotificationRepo はPostgresNotificationRepoを生成する。
func NewPostgresNotificationRepo(db *sql.DB) *PostgresNotificationRepo {
	return &PostgresNotificationRepo{db: db}
}

// FindByPostURL は投稿URLを参照する最初の通知ログを返す。見つからない場合はnilを返す。
func (r *PostgresNotificationRepo) FindByPostURL(ctx context.Context, postURL string) (*model.NotificationLogEntry, error) {
	entry := &model.NotificationLogEntry{}

	err := r.db.QueryRowContext(ctx,
		`SELECT id, channel, lead_id, post_url, sent_at
		 FROM notification_log WHERE post_url = $1
		 ORDER BY sent_at ASC LIMIT 1`,
		postURL,
	).Scan(&entry.ID, &entry.Channel, &entry.LeadID, &entry.PostURL, &entry.SentAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("投稿URLによる通知ログの検索に失敗しました: %w", err)
	}
	return entry, nil
}

// CountAlertsSince は (since, until] に送信された通知の投稿URLの種類数を返す。
func (r *PostgresNotificationRepo) CountAlertsSince(ctx context.Context, since, until time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT post_url) FROM notification_log
		 WHERE sent_at > $1 AND sent_at <= $2`,
		since, until,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("通知件数の集計に失敗しました: %w", err)
	}
	return count, nil
}

// CreateEntries は通知ログを同一トランザクションで作成する。
func (r *PostgresNotificationRepo) CreateEntries(ctx context.Context, entries []*model.NotificationLogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	for _, e := range entries {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO notification_log (id, channel, lead_id, post_url, sent_at)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (channel, post_url) DO NOTHING`,
			e.ID, string(e.Channel), e.LeadID, e.PostURL, e.SentAt,
		)
		if err != nil {
			return fmt.Errorf("通知ログの作成に失敗しました: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

var _ NotificationRepository = (*PostgresNotificationRepo)(nil)
