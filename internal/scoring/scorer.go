// Package scoring はキーワードルールによるスコアリングとカテゴリ分類を提供する。
package scoring

import (
	"strings"

	"github.com/hitoshi/greenleads/internal/model"
)

// 重み付け
const (
	strongWeight   = 2
	weakWeight     = 1
	negativeWeight = 2
)

// Matched はマッチしたキーワードの一覧。UIのハイライト表示用。
// カテゴリごとに強キーワードの設定順、続いて弱キーワードの設定順に並ぶ。
type Matched struct {
	Landscaping []string `json:"landscaping"`
	Install     []string `json:"install"`
	Negative    []string `json:"negative"`
}

// All はマッチしたキーワードをLandscaping、Install、Negativeの順に連結して返す。
func (m Matched) All() []string {
	all := make([]string, 0, len(m.Landscaping)+len(m.Install)+len(m.Negative))
	all = append(all, m.Landscaping...)
	all = append(all, m.Install...)
	all = append(all, m.Negative...)
	return all
}

// Result は分類結果。
type Result struct {
	Score    int            `json:"score"`
	Category model.Category `json:"category"`
	Matched  Matched        `json:"matched"`
}

// Classify はテキストをキーワード設定に照らしてスコアリングし、カテゴリを決定する。
//
// マッチは大文字小文字を区別しない部分文字列包含で、設定の各キーワードを独立に判定する。
// テキスト中の出現回数ではなく、設定のエントリごとに1回だけ加点する。
//
// カテゴリはネガティブを除いた2つのカテゴリ小計だけで決める。
// 小計が厳密に大きく、かつ0より大きい方が勝つ。同点または両方0の場合はUNKNOWN。
func Classify(text string, cfg model.KeywordConfig) Result {
	lower := strings.ToLower(text)

	lStrong := matchKeywords(lower, cfg.Landscaping.Strong)
	lWeak := matchKeywords(lower, cfg.Landscaping.Weak)
	iStrong := matchKeywords(lower, cfg.Install.Strong)
	iWeak := matchKeywords(lower, cfg.Install.Weak)
	negative := matchKeywords(lower, cfg.Negative)

	landscapingScore := len(lStrong)*strongWeight + len(lWeak)*weakWeight
	installScore := len(iStrong)*strongWeight + len(iWeak)*weakWeight

	category := model.CategoryUnknown
	switch {
	case landscapingScore > installScore && landscapingScore > 0:
		category = model.CategoryLandscaping
	case installScore > landscapingScore && installScore > 0:
		category = model.CategoryInstall
	}

	return Result{
		Score:    landscapingScore + installScore - len(negative)*negativeWeight,
		Category: category,
		Matched: Matched{
			Landscaping: append(lStrong, lWeak...),
			Install:     append(iStrong, iWeak...),
			Negative:    negative,
		},
	}
}

// matchKeywords はlowerTextに含まれるキーワードを設定順に返す。空のキーワードは無視する。
func matchKeywords(lowerText string, keywords []string) []string {
	matched := []string{}
	for _, kw := range keywords {
		k := strings.ToLower(strings.TrimSpace(kw))
		if k == "" {
			continue
		}
		if strings.Contains(lowerText, k) {
			matched = append(matched, kw)
		}
	}
	return matched
}
