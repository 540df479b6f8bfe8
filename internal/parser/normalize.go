// Package parser はメールの解析とテキスト正規化を提供する。
// マークアップ除去、URL抽出、RFC 5322メッセージの解析を含む。
package parser

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	styleBlockRe  = regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style\s*>`)
	scriptBlockRe = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`)
	urlRe         = regexp.MustCompile(`(?i)https?://[^\s"'<>]+`)
)

// stripPolicy は全タグを除去するbluemondayポリシー。
// タグの位置には空白を入れ、前後の単語が連結されないようにする。
var stripPolicy = func() *bluemonday.Policy {
	p := bluemonday.StrictPolicy()
	p.AddSpaceWhenStrippingTag(true)
	return p
}()

// StripMarkup はHTMLからプレーンテキストを生成する。
// style/scriptブロックを中身ごと先に除去し、その後に残りのタグを除去する。
// 順序を逆にするとCSS/JSのテキストが出力に混入する。
// 最後に空白の連続を1つにまとめ、前後をトリムする。
func StripMarkup(s string) string {
	if s == "" {
		return ""
	}
	s = styleBlockRe.ReplaceAllString(s, " ")
	s = scriptBlockRe.ReplaceAllString(s, " ")
	s = stripPolicy.Sanitize(s)
	s = html.UnescapeString(s)
	return CollapseWhitespace(s)
}

// CollapseWhitespace は空白文字の連続を単一のスペースにまとめ、前後をトリムする。
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ExtractURLs はテキスト中のhttp(s) URLを出現順・重複なしで返す。
// 文中に埋め込まれたURLを想定し、末尾の ) . , ; は取り除く。
func ExtractURLs(text string) []string {
	matches := urlRe.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(matches))
	urls := make([]string, 0, len(matches))
	for _, m := range matches {
		u := strings.TrimRight(m, ").,;")
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
	}
	return urls
}
