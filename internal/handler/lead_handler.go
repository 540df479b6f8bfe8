package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/greenleads/internal/middleware"
	"github.com/hitoshi/greenleads/internal/model"
	"github.com/hitoshi/greenleads/internal/scoring"
)

// maxImportBodySize は手動インポートで受け付ける生メールの最大サイズ。
const maxImportBodySize = 2 << 20

// LeadImporterInterface はリードハンドラーが必要とするサービスインターフェース。
type LeadImporterInterface interface {
	// Import は生メールを解析してリードを作成する。
	Import(ctx context.Context, raw []byte) (*model.Lead, error)
	// ScoreText は現在のキーワード設定でテキストを採点する。
	ScoreText(ctx context.Context, text string) (scoring.Result, error)
}

// LeadHandler は手動インポートとスコアプレビューのHTTPハンドラー。
type LeadHandler struct {
	service LeadImporterInterface
	logger  *slog.Logger
}

// NewLeadHandler はLeadHandlerを生成する。
func NewLeadHandler(service LeadImporterInterface, logger *slog.Logger) *LeadHandler {
	return &LeadHandler{service: service, logger: logger}
}

// leadResponse は作成されたリードのAPIレスポンス。
type leadResponse struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	PostURL    string    `json:"post_url"`
	Title      string    `json:"title"`
	Snippet    string    `json:"snippet"`
	City       string    `json:"city"`
	Category   string    `json:"category"`
	Score      int       `json:"score"`
	Status     string    `json:"status"`
	ReceivedAt time.Time `json:"received_at"`
}

// scoreRequest はスコアプレビューのリクエストボディ。
type scoreRequest struct {
	Text string `json:"text"`
}

// Import は生メール（RFC 5322）をリードとして取り込む。
// POST /api/import
func (h *LeadHandler) Import(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteErrorResponse(w, http.StatusRequestEntityTooLarge,
				model.NewInvalidRequestError("メールが大きすぎます"))
			return
		}
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("リクエストボディを読み込めません"))
		return
	}

	ld, err := h.service.Import(r.Context(), raw)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, leadResponse{
		ID:         ld.ID,
		Source:     ld.Source,
		PostURL:    ld.PostURL,
		Title:      ld.Title,
		Snippet:    ld.Snippet,
		City:       ld.City,
		Category:   string(ld.Category),
		Score:      ld.Score,
		Status:     string(ld.Status),
		ReceivedAt: ld.ReceivedAt,
	})
}

// Score はテキストのスコア、カテゴリ、マッチしたキーワードを返す。
// POST /api/score
func (h *LeadHandler) Score(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxImportBodySize)).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("JSONの解析に失敗しました"))
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("textが空です"))
		return
	}

	result, err := h.service.ScoreText(r.Context(), req.Text)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleServiceError はサービス層から返されたエラーをレスポンスに変換する。
func (h *LeadHandler) handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteAPIError(w, apiErr)
		return
	}

	h.logger.Error("内部エラーが発生しました", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
