// Package lead はメールからのリード候補の抽出と手動インポートを提供する。
package lead

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/greenleads/internal/model"
	"github.com/hitoshi/greenleads/internal/parser"
	"github.com/hitoshi/greenleads/internal/scoring"
)

const (
	maxTitleRunes   = 120
	maxSnippetRunes = 220
	noSubjectTitle  = "(no subject)"
	ellipsis        = "…"
)

// ExtractSettings は抽出に必要な設定のスナップショット。
type ExtractSettings struct {
	CityList      []string
	KeywordConfig model.KeywordConfig
	StoreRawBody  bool
}

// SettingsForExtract はSettingsから抽出用の設定を取り出す。
func SettingsForExtract(s *model.Settings) ExtractSettings {
	return ExtractSettings{
		CityList:      s.CityList,
		KeywordConfig: s.KeywordConfig,
		StoreRawBody:  s.StoreRawEmail,
	}
}

// Extractor は解析済みメッセージからリード候補を構築する。
type Extractor struct {
	domain string
}

// NewExtractor は監視対象ドメインを指定してExtractorを生成する。
func NewExtractor(monitoredDomain string) *Extractor {
	return &Extractor{domain: strings.ToLower(strings.TrimSpace(monitoredDomain))}
}

// Extract はリード候補を構築する。
// 監視対象ドメインのURLまたは市区町村が見つからない場合はfalseを返す。
// 部分的な候補は返さない。
func (e *Extractor) Extract(parsed *model.ParsedMessage, settings ExtractSettings) (*model.LeadCandidate, bool) {
	strippedHTML := parser.StripMarkup(parsed.HTMLText)
	combined := parsed.Subject + "\n" + parsed.PlainText + "\n" + strippedHTML

	postURL := e.findPostURL(combined)
	if postURL == "" {
		return nil, false
	}

	body := parsed.PlainText
	if strings.TrimSpace(body) == "" {
		body = strippedHTML
	}
	title := BestEffortTitle(parsed.Subject, body)
	snippet := Snippet(combined)

	city := DetectCity(combined, settings.CityList)
	if city == "" {
		return nil, false
	}

	result := scoring.Classify(combined, settings.KeywordConfig)

	var rawBody *string
	if settings.StoreRawBody {
		rawBody = &combined
	}

	return &model.LeadCandidate{
		Source:     model.SourceEmail,
		PostURL:    postURL,
		Title:      title,
		Snippet:    snippet,
		RawSender:  parsed.Sender,
		ReceivedAt: parsed.ReceivedAt,
		City:       city,
		Category:   result.Category,
		Score:      result.Score,
		RawBody:    rawBody,
	}, true
}

// findPostURL はテキスト中の最初の監視対象ドメインのURLを返す。
func (e *Extractor) findPostURL(text string) string {
	for _, u := range parser.ExtractURLs(text) {
		if e.matchesDomain(u) {
			return u
		}
	}
	return ""
}

// matchesDomain はURLのホストが監視対象ドメインそのものか、そのサブドメインかを返す。
func (e *Extractor) matchesDomain(rawURL string) bool {
	if e.domain == "" {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return host == e.domain || strings.HasSuffix(host, "."+e.domain)
}

// BestEffortTitle はタイトルを決定する。
// 件名が空でなければ件名、なければ本文の最初の空でない行を120文字で切り詰めたもの、
// どちらもなければ "(no subject)" を返す。
func BestEffortTitle(subject, body string) string {
	if s := strings.TrimSpace(subject); s != "" {
		return s
	}
	for _, line := range strings.Split(body, "\n") {
		if l := strings.TrimSpace(line); l != "" {
			return truncateRunes(l, maxTitleRunes)
		}
	}
	return noSubjectTitle
}

// Snippet は空白をまとめたテキストを220文字以内に収める。
// 切り詰めた場合は末尾の1文字を省略記号にする。
func Snippet(text string) string {
	collapsed := parser.CollapseWhitespace(text)
	if utf8.RuneCountInString(collapsed) <= maxSnippetRunes {
		return collapsed
	}
	return truncateRunes(collapsed, maxSnippetRunes-1) + ellipsis
}

// DetectCity はリスト順で最初にテキスト中に現れる市区町村を設定どおりの表記で返す。
// 大文字小文字は区別しない。見つからない場合は空文字列を返す。
func DetectCity(text string, cities []string) string {
	lower := strings.ToLower(text)
	for _, city := range cities {
		c := strings.TrimSpace(city)
		if c == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(c)) {
			return c
		}
	}
	return ""
}

// NormalizeURL はログ比較用にURLの前後空白を除いて小文字化する。
// 保存する投稿URLには使わない。
func NormalizeURL(u string) string {
	return strings.ToLower(strings.TrimSpace(u))
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
