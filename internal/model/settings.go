package model

// CategoryKeywords はカテゴリごとの強/弱キーワード。
type CategoryKeywords struct {
	Strong []string `json:"strong" yaml:"strong"`
	Weak   []string `json:"weak" yaml:"weak"`
}

// KeywordConfig はスコアリング用のキーワード設定。
// JSONキーはsettingsテーブルの保存形式と一致する。
type KeywordConfig struct {
	Landscaping CategoryKeywords `json:"landscaping" yaml:"landscaping"`
	Install     CategoryKeywords `json:"install" yaml:"install"`
	Negative    []string         `json:"negative" yaml:"negative"`
}

// Settings は取り込みサイクルごとに読み込まれる設定のスナップショット。
type Settings struct {
	KeywordConfig       KeywordConfig
	CityList            []string
	Threshold           int
	PollIntervalMinutes int
	RateLimitPerHour    int
	StoreRawEmail       bool
	IngestionEnabled    bool
	SMSTargets          []string
	EmailTargets        []string
	LastIMAPUID         uint32
	LastGmailQueryAfter int64
}

// Cursor は指定プロバイダ種別のカーソルを返す。
func (s *Settings) Cursor(kind ProviderKind) MailboxCursor {
	c := MailboxCursor{Kind: kind}
	switch kind {
	case ProviderIMAP:
		c.LastSeenUID = s.LastIMAPUID
	case ProviderGmail:
		c.LastQueryAfter = s.LastGmailQueryAfter
	}
	return c
}

// DefaultKeywordConfig は初期状態のキーワード設定を返す。
func DefaultKeywordConfig() KeywordConfig {
	return KeywordConfig{
		Landscaping: CategoryKeywords{
			Strong: []string{"landscaping", "landscaper", "yard cleanup", "hardscape", "sod"},
			Weak:   []string{"lawn", "mowing", "garden", "hedge", "mulch", "tree trimming"},
		},
		Install: CategoryKeywords{
			Strong: []string{"mini split", "ac install", "hvac", "heat pump"},
			Weak:   []string{"ac", "air conditioning", "furnace", "thermostat"},
		},
		Negative: []string{"lost pet", "for sale", "free", "giveaway", "yard sale"},
	}
}

// DefaultSettings は設定行が存在しない場合の既定値を返す。
func DefaultSettings() *Settings {
	return &Settings{
		KeywordConfig:       DefaultKeywordConfig(),
		CityList:            []string{},
		Threshold:           3,
		PollIntervalMinutes: 3,
		RateLimitPerHour:    10,
		StoreRawEmail:       false,
		IngestionEnabled:    true,
		SMSTargets:          []string{},
		EmailTargets:        []string{},
	}
}
