// Package model はドメインモデルを定義する。
package model

import "time"

// Category はリードのサービスカテゴリを表す。
type Category string

const (
	// CategoryLandscaping は造園・芝生系の依頼。
	CategoryLandscaping Category = "LANDSCAPING"
	// CategoryInstall は設備設置（エアコン等）系の依頼。
	CategoryInstall Category = "INSTALL"
	// CategoryUnknown はカテゴリを判定できなかった依頼。
	CategoryUnknown Category = "UNKNOWN"
)

// LeadStatus はリードのワークフロー状態を表す。
type LeadStatus string

const (
	LeadStatusNew       LeadStatus = "NEW"
	LeadStatusContacted LeadStatus = "CONTACTED"
	LeadStatusWon       LeadStatus = "WON"
	LeadStatusLost      LeadStatus = "LOST"
	LeadStatusIgnored   LeadStatus = "IGNORED"
)

// ValidLeadStatus は文字列が既知のリード状態かどうかを返す。
func ValidLeadStatus(s string) bool {
	switch LeadStatus(s) {
	case LeadStatusNew, LeadStatusContacted, LeadStatusWon, LeadStatusLost, LeadStatusIgnored:
		return true
	}
	return false
}

// リードの取り込み経路。
const (
	SourceEmail        = "nextdoor_email"
	SourceManualImport = "manual_import"
)

// LeadCandidate は1通のメールから抽出された未永続化のリード候補。
// PostURLは監視対象ドメインのURLで空にならない。Cityも必ず設定される。
type LeadCandidate struct {
	Source     string
	PostURL    string
	Title      string
	Snippet    string
	RawSender  string
	ReceivedAt time.Time
	City       string
	Category   Category
	Score      int
	RawBody    *string // storeRawEmailが無効な場合はnil
}

// Lead は永続化されたリードを表す。post_urlはグローバルに一意。
type Lead struct {
	ID string
	LeadCandidate
	Status    LeadStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NotificationChannel は通知チャネルを表す。
type NotificationChannel string

const (
	ChannelSMS   NotificationChannel = "SMS"
	ChannelEmail NotificationChannel = "EMAIL"
)

// NotificationLogEntry は通知送信の記録。
// アラート重複防止とレート計測の両方に使用する。
type NotificationLogEntry struct {
	ID      string
	Channel NotificationChannel
	LeadID  string
	PostURL string
	SentAt  time.Time
}
