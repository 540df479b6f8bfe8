package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hitoshi/greenleads/internal/model"
)

// settingsRowID は設定行の固定ID。設定は1行のみ保持する。
const settingsRowID = 1

// ErrSettingsRowMissing は設定行が存在せずカーソルを保存できないことを示す。
// マイグレーションで作成される行が削除された場合に発生する。
var ErrSettingsRowMissing = errors.New("設定行が存在しません")

// PostgresSettingsRepo はPostgreSQLを使用した設定リポジトリ。
type PostgresSettingsRepo struct {
	db *sql.DB
}

// NewPostgresSettingsRepo はPostgresSettingsRepoを生成する。
func NewPostgresSettingsRepo(db *sql.DB) *PostgresSettingsRepo {
	return &PostgresSettingsRepo{db: db}
}

// Get は設定を取得する。設定行が存在しない場合は既定値を返す。
func (r *PostgresSettingsRepo) Get(ctx context.Context) (*model.Settings, error) {
	s := model.DefaultSettings()
	var keywordJSON, cityJSON, smsJSON, emailJSON []byte
	var lastUID, lastAfter int64

	err := r.db.QueryRowContext(ctx,
		`SELECT keyword_config, city_list, threshold, poll_interval_minutes,
		        rate_limit_per_hour, store_raw_email, ingestion_enabled,
		        sms_targets, email_targets, last_imap_uid, last_gmail_query_after
		 FROM settings WHERE id = $1`,
		settingsRowID,
	).Scan(
		&keywordJSON, &cityJSON, &s.Threshold, &s.PollIntervalMinutes,
		&s.RateLimitPerHour, &s.StoreRawEmail, &s.IngestionEnabled,
		&smsJSON, &emailJSON, &lastUID, &lastAfter,
	)

	if err == sql.ErrNoRows {
		return model.DefaultSettings(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("設定の取得に失敗しました: %w", err)
	}

	if err := unmarshalJSONColumn(keywordJSON, &s.KeywordConfig); err != nil {
		return nil, fmt.Errorf("キーワード設定の読み込みに失敗しました: %w", err)
	}
	if err := unmarshalJSONColumn(cityJSON, &s.CityList); err != nil {
		return nil, fmt.Errorf("市区町村リストの読み込みに失敗しました: %w", err)
	}
	if err := unmarshalJSONColumn(smsJSON, &s.SMSTargets); err != nil {
		return nil, fmt.Errorf("SMS送信先の読み込みに失敗しました: %w", err)
	}
	if err := unmarshalJSONColumn(emailJSON, &s.EmailTargets); err != nil {
		return nil, fmt.Errorf("メール送信先の読み込みに失敗しました: %w", err)
	}
	s.LastIMAPUID = uint32(lastUID)
	s.LastGmailQueryAfter = lastAfter

	return s, nil
}

// Update はカーソル以外の設定を保存する。設定行がなければ作成する。
func (r *PostgresSettingsRepo) Update(ctx context.Context, s *model.Settings) error {
	keywordJSON, err := json.Marshal(s.KeywordConfig)
	if err != nil {
		return fmt.Errorf("キーワード設定のエンコードに失敗しました: %w", err)
	}
	cityJSON, err := json.Marshal(nonNil(s.CityList))
	if err != nil {
		return fmt.Errorf("市区町村リストのエンコードに失敗しました: %w", err)
	}
	smsJSON, err := json.Marshal(nonNil(s.SMSTargets))
	if err != nil {
		return fmt.Errorf("SMS送信先のエンコードに失敗しました: %w", err)
	}
	emailJSON, err := json.Marshal(nonNil(s.EmailTargets))
	if err != nil {
		return fmt.Errorf("メール送信先のエンコードに失敗しました: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO settings (id, keyword_config, city_list, threshold, poll_interval_minutes,
		                       rate_limit_per_hour, store_raw_email, ingestion_enabled,
		                       sms_targets, email_targets, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
		 ON CONFLICT (id) DO UPDATE SET
		    keyword_config = EXCLUDED.keyword_config,
		    city_list = EXCLUDED.city_list,
		    threshold = EXCLUDED.threshold,
		    poll_interval_minutes = EXCLUDED.poll_interval_minutes,
		    rate_limit_per_hour = EXCLUDED.rate_limit_per_hour,
		    store_raw_email = EXCLUDED.store_raw_email,
		    ingestion_enabled = EXCLUDED.ingestion_enabled,
		    sms_targets = EXCLUDED.sms_targets,
		    email_targets = EXCLUDED.email_targets,
		    updated_at = now()`,
		settingsRowID, string(keywordJSON), string(cityJSON), s.Threshold, s.PollIntervalMinutes,
		s.RateLimitPerHour, s.StoreRawEmail, s.IngestionEnabled, string(smsJSON), string(emailJSON),
	)
	if err != nil {
		return fmt.Errorf("設定の更新に失敗しました: %w", err)
	}
	return nil
}

// UpdateCursor はプロバイダ種別に対応するカーソル列を更新する。
// GREATESTにより保存済みの値より後退しない。
// 設定行が存在しない場合はErrSettingsRowMissingを返す。
func (r *PostgresSettingsRepo) UpdateCursor(ctx context.Context, cursor model.MailboxCursor) error {
	var query string
	var value int64

	switch cursor.Kind {
	case model.ProviderIMAP:
		query = `UPDATE settings SET last_imap_uid = GREATEST(last_imap_uid, $2), updated_at = now() WHERE id = $1`
		value = int64(cursor.LastSeenUID)
	case model.ProviderGmail:
		query = `UPDATE settings SET last_gmail_query_after = GREATEST(last_gmail_query_after, $2), updated_at = now() WHERE id = $1`
		value = cursor.LastQueryAfter
	default:
		return fmt.Errorf("不明なプロバイダ種別です: %q", cursor.Kind)
	}

	res, err := r.db.ExecContext(ctx, query, settingsRowID, value)
	if err != nil {
		return fmt.Errorf("カーソルの更新に失敗しました: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("カーソル更新件数の取得に失敗しました: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("カーソルの更新に失敗しました (provider=%s): %w", cursor.Kind, ErrSettingsRowMissing)
	}
	return nil
}

func unmarshalJSONColumn(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

var _ SettingsRepository = (*PostgresSettingsRepo)(nil)
