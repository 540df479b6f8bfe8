package model

import "time"

// RawMessage はメールボックスから取得した未解析のメッセージ。
// 永続化されず、1回のパースで消費される。
type RawMessage struct {
	ID           string // プロバイダが割り当てた識別子（IMAP UIDの10進表記またはGmailメッセージID）
	UID          uint32 // IMAPのみ
	Raw          []byte
	InternalDate time.Time
}

// ParsedMessage はRawMessageから決定的に導出される解析済みメッセージ。
type ParsedMessage struct {
	Subject     string
	PlainText   string
	HTMLText    string
	FromAddress string
	Sender      string // デコード済みのFromヘッダ（"Name <addr>"）
	ReceivedAt  time.Time
}
