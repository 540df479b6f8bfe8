// Package ingest はメールボックスからリードを取り込むバックグラウンドループを提供する。
// 取得、解析、抽出、スコア判定、重複防止、通知、カーソル保存を1サイクルとして実行する。
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/greenleads/internal/gate"
	"github.com/hitoshi/greenleads/internal/lead"
	"github.com/hitoshi/greenleads/internal/mailbox"
	"github.com/hitoshi/greenleads/internal/metrics"
	"github.com/hitoshi/greenleads/internal/model"
	"github.com/hitoshi/greenleads/internal/notify"
	"github.com/hitoshi/greenleads/internal/parser"
	"github.com/hitoshi/greenleads/internal/repository"
)

// ProviderFactory はカーソルからメールボックスプロバイダを生成する。
type ProviderFactory interface {
	Kind() model.ProviderKind
	New(cursor model.MailboxCursor) mailbox.Provider
}

// Notifier はリード通知の送信インターフェース。
// 未設定のチャネルや宛先が空の場合は何もせずnilを返す。
type Notifier interface {
	SendSMS(ctx context.Context, p notify.Payload, recipients []string) error
	SendEmail(ctx context.Context, p notify.Payload, recipients []string) error
}

// Config はループの起動時設定。
type Config struct {
	IngestionEnabled bool          // falseの場合、全サイクルを何もせずに終える
	MonitoredSender  string        // 送信者に含まれるべき文字列
	AlertSourceLabel string        // 通知文面の取り込み元ラベル
	MailboxTimeout   time.Duration // メールボックス取得の上限時間
}

// CycleReport は1サイクルの処理結果の集計。
type CycleReport struct {
	Disabled       bool
	Fetched        int
	SkippedSender  int
	Malformed      int
	Rejected       int
	BelowThreshold int
	Duplicates     int
	Created        int
	Alerted        int
	AlreadyAlerted int
	RateLimited    int
}

// Loop は取り込みサイクルを定期実行する。
// メッセージは1通ずつ順番に処理し、カーソルはサイクルの最後に1回だけ保存する。
type Loop struct {
	settingsRepo repository.SettingsRepository
	leadRepo     repository.LeadRepository
	guard        *gate.Guard
	extractor    *lead.Extractor
	factory      ProviderFactory
	notifier     Notifier
	metrics      metrics.MetricsCollector
	logger       *slog.Logger
	cfg          Config

	now   func() time.Time
	newID func() string
}

// NewLoop はLoopの新しいインスタンスを生成する。
func NewLoop(
	settingsRepo repository.SettingsRepository,
	leadRepo repository.LeadRepository,
	guard *gate.Guard,
	extractor *lead.Extractor,
	factory ProviderFactory,
	notifier Notifier,
	collector metrics.MetricsCollector,
	cfg Config,
	logger *slog.Logger,
) *Loop {
	return &Loop{
		settingsRepo: settingsRepo,
		leadRepo:     leadRepo,
		guard:        guard,
		extractor:    extractor,
		factory:      factory,
		notifier:     notifier,
		metrics:      collector,
		logger:       logger,
		cfg:          cfg,
		now:          time.Now,
		newID:        uuid.NewString,
	}
}

// Start は起動直後に1回サイクルを実行し、その後は設定のポーリング間隔ごとに実行する。
// 間隔はサイクルごとに設定から読み直す。
// コンテキストがキャンセルされるまで実行を継続し、処理エラーでは停止しない。
func (l *Loop) Start(ctx context.Context) {
	l.logger.Info("取り込みループを開始しました",
		slog.String("provider", string(l.factory.Kind())),
	)

	for {
		if _, err := l.RunOnce(ctx); err != nil {
			l.logger.Error("取り込みサイクルの実行に失敗しました",
				slog.String("provider", string(l.factory.Kind())),
				slog.String("error", err.Error()),
			)
		}

		interval := l.pollInterval(ctx)
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			l.logger.Info("取り込みループを停止しました")
			return
		case <-timer.C:
		}
	}
}

// pollInterval は次のサイクルまでの待機時間を返す。
// 設定が読めない場合は既定値を使う。
func (l *Loop) pollInterval(ctx context.Context) time.Duration {
	minutes := model.DefaultSettings().PollIntervalMinutes
	settings, err := l.settingsRepo.Get(ctx)
	if err != nil {
		if ctx.Err() == nil {
			l.logger.Warn("ポーリング間隔の取得に失敗しました。既定値を使用します",
				slog.String("error", err.Error()),
			)
		}
	} else if settings.PollIntervalMinutes > 0 {
		minutes = settings.PollIntervalMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// RunOnce は1サイクルを実行する。
// 取得・永続化・通知送信のいずれかが失敗した場合はサイクルを中断し、カーソルは保存しない。
func (l *Loop) RunOnce(ctx context.Context) (CycleReport, error) {
	start := l.now()

	settings, err := l.settingsRepo.Get(ctx)
	if err != nil {
		l.metrics.RecordCycleFailure(l.now().Sub(start))
		return CycleReport{}, fmt.Errorf("設定の取得に失敗しました: %w", err)
	}

	report, err := l.runCycle(ctx, settings)
	duration := l.now().Sub(start)
	l.recordReport(report)
	if err != nil {
		l.metrics.RecordCycleFailure(duration)
		return report, err
	}
	l.metrics.RecordCycleSuccess(duration)

	if report.Disabled {
		return report, nil
	}
	l.logger.Info("取り込みサイクルが完了しました",
		slog.String("provider", string(l.factory.Kind())),
		slog.Int("fetched", report.Fetched),
		slog.Int("skipped_sender", report.SkippedSender),
		slog.Int("malformed", report.Malformed),
		slog.Int("rejected", report.Rejected),
		slog.Int("below_threshold", report.BelowThreshold),
		slog.Int("duplicates", report.Duplicates),
		slog.Int("created", report.Created),
		slog.Int("alerted", report.Alerted),
		slog.Int("already_alerted", report.AlreadyAlerted),
		slog.Int("rate_limited", report.RateLimited),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)
	return report, nil
}

// runCycle は設定のスナップショットを使って1サイクルを実行する。
func (l *Loop) runCycle(ctx context.Context, settings *model.Settings) (CycleReport, error) {
	var report CycleReport

	if !l.cfg.IngestionEnabled || !settings.IngestionEnabled {
		report.Disabled = true
		l.logger.Info("取り込みが無効化されているためサイクルをスキップします")
		return report, nil
	}

	kind := l.factory.Kind()
	cursor := settings.Cursor(kind)
	provider := l.factory.New(cursor)

	fetchCtx, cancel := l.mailboxContext(ctx)
	messages, err := provider.FetchNewMessages(fetchCtx)
	cancel()
	if err != nil {
		return report, fmt.Errorf("メッセージの取得に失敗しました (provider=%s): %w", kind, err)
	}
	report.Fetched = len(messages)

	extractSettings := lead.SettingsForExtract(settings)
	for i := range messages {
		msg := &messages[i]
		if err := l.processMessage(ctx, msg, settings, extractSettings, &report); err != nil {
			return report, fmt.Errorf("メッセージ %s の処理に失敗しました (provider=%s): %w", msg.ID, kind, err)
		}
	}

	next := cursor.Advance(provider.Watermark())
	if err := l.settingsRepo.UpdateCursor(ctx, next); err != nil {
		return report, fmt.Errorf("カーソルの保存に失敗しました: %w", err)
	}
	return report, nil
}

func (l *Loop) mailboxContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.cfg.MailboxTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, l.cfg.MailboxTimeout)
}

// processMessage は1通のメッセージを処理する。
// スキップはnilを返し、サイクルを中断すべき失敗のみエラーを返す。
func (l *Loop) processMessage(
	ctx context.Context,
	msg *model.RawMessage,
	settings *model.Settings,
	extractSettings lead.ExtractSettings,
	report *CycleReport,
) error {
	sender, err := parser.PeekSender(msg.Raw)
	if err != nil {
		report.Malformed++
		l.logger.Warn("不正なメッセージをスキップしました",
			slog.String("message_id", msg.ID),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if !parser.MatchesSender(sender, l.cfg.MonitoredSender) {
		report.SkippedSender++
		return nil
	}

	fallback := msg.InternalDate
	if fallback.IsZero() {
		fallback = l.now()
	}
	parsed, err := parser.ParseMessage(msg.Raw, fallback)
	if err != nil {
		if model.IsMalformed(err) {
			report.Malformed++
			l.logger.Warn("不正なメッセージをスキップしました",
				slog.String("message_id", msg.ID),
				slog.String("error", err.Error()),
			)
			return nil
		}
		return err
	}

	candidate, ok := l.extractor.Extract(parsed, extractSettings)
	if !ok {
		report.Rejected++
		return nil
	}
	if candidate.Score < settings.Threshold {
		report.BelowThreshold++
		return nil
	}

	exists, err := l.guard.LeadExists(ctx, candidate.PostURL)
	if err != nil {
		return err
	}
	if exists {
		report.Duplicates++
		l.logger.Debug("既存のリードのためスキップしました",
			slog.String("message_id", msg.ID),
			slog.String("post_url", lead.NormalizeURL(candidate.PostURL)),
		)
		return nil
	}

	now := l.now()
	ld := &model.Lead{
		ID:            l.newID(),
		LeadCandidate: *candidate,
		Status:        model.LeadStatusNew,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	created, err := l.leadRepo.Create(ctx, ld)
	if err != nil {
		return err
	}
	if !created {
		// 別の書き込み元が先に作成した
		report.Duplicates++
		return nil
	}
	report.Created++
	l.metrics.RecordLeadCreated(ld.Source)
	l.logger.Info("リードを作成しました",
		slog.String("lead_id", ld.ID),
		slog.String("post_url", ld.PostURL),
		slog.String("city", ld.City),
		slog.String("category", string(ld.Category)),
		slog.Int("score", ld.Score),
	)

	decision, err := l.guard.CheckAlert(ctx, ld.PostURL, settings.RateLimitPerHour, l.now())
	if err != nil {
		return err
	}
	l.metrics.RecordAlertDecision(decision.String())
	switch decision {
	case gate.DecisionAlreadyAlerted:
		report.AlreadyAlerted++
		return nil
	case gate.DecisionRateLimited:
		report.RateLimited++
		l.logger.Info("レート制限により通知を抑止しました",
			slog.String("lead_id", ld.ID),
			slog.Int("rate_limit_per_hour", settings.RateLimitPerHour),
		)
		return nil
	}

	payload := notify.NewPayload(&ld.LeadCandidate, l.cfg.AlertSourceLabel)
	if err := l.notifier.SendSMS(ctx, payload, settings.SMSTargets); err != nil {
		return err
	}
	if err := l.notifier.SendEmail(ctx, payload, settings.EmailTargets); err != nil {
		return err
	}

	channels := []model.NotificationChannel{model.ChannelSMS, model.ChannelEmail}
	if err := l.guard.RecordAlert(ctx, ld, channels, l.newID, l.now()); err != nil {
		return err
	}
	report.Alerted++
	return nil
}

// recordReport はサイクルの集計をメトリクスに反映する。
func (l *Loop) recordReport(r CycleReport) {
	l.metrics.RecordMessagesFetched(r.Fetched)
	l.metrics.RecordMessageOutcome(metrics.OutcomeSkippedSender, r.SkippedSender)
	l.metrics.RecordMessageOutcome(metrics.OutcomeMalformed, r.Malformed)
	l.metrics.RecordMessageOutcome(metrics.OutcomeRejected, r.Rejected)
	l.metrics.RecordMessageOutcome(metrics.OutcomeBelowThreshold, r.BelowThreshold)
	l.metrics.RecordMessageOutcome(metrics.OutcomeDuplicate, r.Duplicates)
	l.metrics.RecordMessageOutcome(metrics.OutcomeCreated, r.Created)
}
