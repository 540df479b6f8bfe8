package model

// ProviderKind はメールボックスプロバイダの種別を表す。
type ProviderKind string

const (
	ProviderIMAP  ProviderKind = "imap"
	ProviderGmail ProviderKind = "gmail"
)

// MailboxCursor はメールボックスの処理済み位置（ウォーターマーク）。
// IMAPではLastSeenUID、GmailではLastQueryAfter（epoch秒、0は未設定）を使う。
type MailboxCursor struct {
	Kind           ProviderKind
	LastSeenUID    uint32
	LastQueryAfter int64
}

// Advance はotherと比較して大きい方の値を持つカーソルを返す。
// カーソルは後退しない。
func (c MailboxCursor) Advance(other MailboxCursor) MailboxCursor {
	next := c
	if other.LastSeenUID > next.LastSeenUID {
		next.LastSeenUID = other.LastSeenUID
	}
	if other.LastQueryAfter > next.LastQueryAfter {
		next.LastQueryAfter = other.LastQueryAfter
	}
	return next
}
