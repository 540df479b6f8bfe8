package model

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedMessage は解析できないメッセージを表す。サイクルではなくメッセージ単位でスキップする。
	ErrMalformedMessage = errors.New("malformed message")
	// ErrConfig は必須の認証情報や設定が欠けていることを表す。起動時に致命的エラーとする。
	ErrConfig = errors.New("configuration error")
)

// IsMalformed はerrがメッセージ不正を表すかどうかを返す。
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedMessage)
}

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, lead, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeEmptyMessage   = "EMPTY_MESSAGE"
	ErrCodeMalformed      = "MALFORMED_MESSAGE"
	ErrCodeNoCandidate    = "NO_CANDIDATE"
	ErrCodeBelowThreshold = "BELOW_THRESHOLD"
	ErrCodeDuplicateLead  = "DUPLICATE_LEAD"
	ErrCodeInvalidRequest = "INVALID_REQUEST"
)

// NewEmptyMessageError は空のメッセージが渡された場合のエラーを生成する。
func NewEmptyMessageError() *APIError {
	return &APIError{
		Code:     ErrCodeEmptyMessage,
		Message:  "メールの本文が空です。",
		Category: "validation",
		Action:   "RFC 5322形式の生メールを貼り付けてください。",
	}
}

// NewMalformedMessageError はメールを解析できない場合のエラーを生成する。
func NewMalformedMessageError() *APIError {
	return &APIError{
		Code:     ErrCodeMalformed,
		Message:  "メールを解析できませんでした。",
		Category: "validation",
		Action:   "ヘッダを含む生メール全体を貼り付けてください。",
	}
}

// NewNoCandidateError は投稿URLまたは市区町村を検出できない場合のエラーを生成する。
func NewNoCandidateError() *APIError {
	return &APIError{
		Code:     ErrCodeNoCandidate,
		Message:  "投稿リンクまたは対象の市区町村を検出できませんでした。",
		Category: "lead",
		Action:   "メールに投稿URLと設定済みの市区町村名が含まれているか確認してください。",
	}
}

// NewBelowThresholdError はスコアがしきい値未満の場合のエラーを生成する。
func NewBelowThresholdError(score, threshold int) *APIError {
	return &APIError{
		Code:     ErrCodeBelowThreshold,
		Message:  fmt.Sprintf("スコア %d がしきい値 %d 未満です。", score, threshold),
		Category: "lead",
		Action:   "キーワード設定またはしきい値を見直してください。",
	}
}

// NewDuplicateLeadError は同じ投稿URLのリードが既に存在する場合のエラーを生成する。
func NewDuplicateLeadError(postURL string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateLead,
		Message:  fmt.Sprintf("この投稿URLのリードは既に存在します: %s", postURL),
		Category: "lead",
		Action:   "リード一覧から該当リードを確認してください。",
	}
}

// NewInvalidRequestError はリクエストボディが不正な場合のエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "リクエスト形式を確認してください。",
	}
}
