package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/greenleads/internal/model"
)

// PostgresLeadRepo はPostgreSQLを使用したリードリポジトリ。
type PostgresLeadRepo struct {
	db *sql.DB
}

// NewPostgresLeadRepo はPostgresLeadRepoを生成する。
func NewPostgresLeadRepo(db *sql.DB) *PostgresLeadRepo {
	return &PostgresLeadRepo{db: db}
}

// FindByPostURL は投稿URLでリードを検索する。見つからない場合はnilを返す。
func (r *PostgresLeadRepo) FindByPostURL(ctx context.Context, postURL string) (*model.Lead, error) {
	lead := &model.Lead{}
	var rawSender, rawBody sql.NullString

	err := r.db.QueryRowContext(ctx,
		`SELECT id, source, post_url, title, snippet, raw_sender, received_at,
		        city, category, score, raw_body, status, created_at, updated_at
		 FROM leads WHERE post_url = $1`,
		postURL,
	).Scan(
		&lead.ID, &lead.Source, &lead.PostURL, &lead.Title, &lead.Snippet,
		&rawSender, &lead.ReceivedAt, &lead.City, &lead.Category, &lead.Score,
		&rawBody, &lead.Status, &lead.CreatedAt, &lead.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("投稿URLによるリードの検索に失敗しました: %w", err)
	}

	lead.RawSender = nullStringValue(rawSender)
	lead.RawBody = stringPtr(rawBody)

	return lead, nil
}

// Create はリードを作成する。
// 同じpost_urlのリードが並行して作成された場合はON CONFLICTにより挿入されず、falseを返す。
func (r *PostgresLeadRepo) Create(ctx context.Context, lead *model.Lead) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO leads (id, source, post_url, title, snippet, raw_sender, received_at,
		                    city, category, score, raw_body, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (post_url) DO NOTHING`,
		lead.ID, lead.Source, lead.PostURL, lead.Title, lead.Snippet,
		nullString(lead.RawSender), lead.ReceivedAt, lead.City,
		string(lead.Category), lead.Score, nullStringPtr(lead.RawBody),
		string(lead.Status), lead.CreatedAt, lead.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("リードの作成に失敗しました: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("作成件数の取得に失敗しました: %w", err)
	}
	return n == 1, nil
}

// PurgeRawBodies はcutoffより前に作成されたリードのraw_bodyをNULLにする。
// リード自体は削除しない。
func (r *PostgresLeadRepo) PurgeRawBodies(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE leads SET raw_body = NULL, updated_at = now()
		 WHERE raw_body IS NOT NULL AND created_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("メール本文の消去に失敗しました: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("消去件数の取得に失敗しました: %w", err)
	}
	return n, nil
}

var _ LeadRepository = (*PostgresLeadRepo)(nil)
