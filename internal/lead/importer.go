package lead

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/greenleads/internal/model"
	"github.com/hitoshi/greenleads/internal/parser"
	"github.com/hitoshi/greenleads/internal/repository"
	"github.com/hitoshi/greenleads/internal/scoring"
)

// ImportService は生メールを手動でリードとして取り込む。
// 取り込みループと同じ抽出・しきい値・重複判定を行うが、通知は送信しない。
type ImportService struct {
	settingsRepo repository.SettingsRepository
	leadRepo     repository.LeadRepository
	extractor    *Extractor
	logger       *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewImportService はImportServiceの新しいインスタンスを生成する。
func NewImportService(settingsRepo repository.SettingsRepository, leadRepo repository.LeadRepository, extractor *Extractor, logger *slog.Logger) *ImportService {
	return &ImportService{
		settingsRepo: settingsRepo,
		leadRepo:     leadRepo,
		extractor:    extractor,
		logger:       logger,
		now:          time.Now,
		newID:        uuid.NewString,
	}
}

// Import は生メールを解析してリードを作成する。
// 取り込めない場合は*model.APIErrorを返す。それ以外のエラーはシステムエラー。
func (s *ImportService) Import(ctx context.Context, raw []byte) (*model.Lead, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, model.NewEmptyMessageError()
	}

	settings, err := s.settingsRepo.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("設定の取得に失敗しました: %w", err)
	}

	now := s.now()
	parsed, err := parser.ParseMessage(raw, now)
	if err != nil {
		if model.IsMalformed(err) {
			return nil, model.NewMalformedMessageError()
		}
		return nil, err
	}

	candidate, ok := s.extractor.Extract(parsed, SettingsForExtract(settings))
	if !ok {
		return nil, model.NewNoCandidateError()
	}
	if candidate.Score < settings.Threshold {
		return nil, model.NewBelowThresholdError(candidate.Score, settings.Threshold)
	}

	existing, err := s.leadRepo.FindByPostURL(ctx, candidate.PostURL)
	if err != nil {
		return nil, fmt.Errorf("リードの検索に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewDuplicateLeadError(candidate.PostURL)
	}

	candidate.Source = model.SourceManualImport
	ld := &model.Lead{
		ID:            s.newID(),
		LeadCandidate: *candidate,
		Status:        model.LeadStatusNew,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	created, err := s.leadRepo.Create(ctx, ld)
	if err != nil {
		return nil, fmt.Errorf("リードの作成に失敗しました: %w", err)
	}
	if !created {
		return nil, model.NewDuplicateLeadError(candidate.PostURL)
	}

	s.logger.Info("リードを手動で取り込みました",
		slog.String("lead_id", ld.ID),
		slog.String("post_url", ld.PostURL),
		slog.String("city", ld.City),
		slog.Int("score", ld.Score),
	)
	return ld, nil
}

// ScoreText は現在のキーワード設定でテキストを採点する。
func (s *ImportService) ScoreText(ctx context.Context, text string) (scoring.Result, error) {
	settings, err := s.settingsRepo.Get(ctx)
	if err != nil {
		return scoring.Result{}, fmt.Errorf("設定の取得に失敗しました: %w", err)
	}
	return scoring.Classify(text, settings.KeywordConfig), nil
}
