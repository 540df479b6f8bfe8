package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/greenleads/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// apiErrorStatus はエラーコードごとのHTTPステータス。
// 未登録のコードは400として扱う。
var apiErrorStatus = map[string]int{
	model.ErrCodeDuplicateLead:  http.StatusConflict,
	model.ErrCodeNoCandidate:    http.StatusUnprocessableEntity,
	model.ErrCodeBelowThreshold: http.StatusUnprocessableEntity,
	model.ErrCodeEmptyMessage:   http.StatusBadRequest,
	model.ErrCodeMalformed:      http.StatusBadRequest,
	model.ErrCodeInvalidRequest: http.StatusBadRequest,
}

// StatusForAPIError はAPIErrorのコードからHTTPステータスコードを決定する。
func StatusForAPIError(apiErr *model.APIError) int {
	if status, ok := apiErrorStatus[apiErr.Code]; ok {
		return status
	}
	return http.StatusBadRequest
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteAPIError はコードに対応するステータスでAPIErrorを書き込む。
func WriteAPIError(w http.ResponseWriter, apiErr *model.APIError) {
	WriteErrorResponse(w, StatusForAPIError(apiErr), apiErr)
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録する。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}
