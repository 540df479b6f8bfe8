// Package mailbox はメールボックスから新着メッセージを取得し、処理済み位置（カーソル）を管理する。
package mailbox

import (
	"context"

	"github.com/hitoshi/greenleads/internal/model"
)

// Provider はメールボックスから新着メッセージを取得するインターフェース。
// プロバイダは1サイクルごとに永続化済みカーソルから生成し直す。
type Provider interface {
	// Kind はプロバイダ種別を返す。
	Kind() model.ProviderKind
	// FetchNewMessages はカーソル以降のメッセージを取得する。
	// 成功した場合のみ内部のウォーターマークを進める。
	FetchNewMessages(ctx context.Context) ([]model.RawMessage, error)
	// Watermark は現在のウォーターマークを返す。
	Watermark() model.MailboxCursor
}
