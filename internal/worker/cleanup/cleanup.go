// Package cleanup は保存済みメール本文の自動消去ジョブを提供する。
// storeRawEmailが有効な間に保存されたraw_bodyのうち、保持期間を超過したものを
// 日次バッチで消去する。リード自体は削除しない。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Purger はraw_bodyの消去を抽象化するインターフェース。
// repository.LeadRepository を受け付けることができる。
type Purger interface {
	PurgeRawBodies(ctx context.Context, cutoff time.Time) (int64, error)
}

// PurgeRecorder は消去件数を記録するメトリクスのインターフェース。
type PurgeRecorder interface {
	RecordRawBodiesPurged(count int64)
}

// CleanupJob は保持期間を超過したメール本文の消去ジョブ。
// 冪等で、消去対象がない場合でもエラーにならない。
type CleanupJob struct {
	purger        Purger
	metrics       PurgeRecorder
	logger        *slog.Logger
	now           func() time.Time
	RetentionDays int // メール本文の保持日数（0以下は無効）
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(purger Purger, metrics PurgeRecorder, retentionDays int, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		purger:        purger,
		metrics:       metrics,
		logger:        logger,
		now:           time.Now,
		RetentionDays: retentionDays,
	}
}

// Enabled は保持日数が設定されているかを返す。
func (j *CleanupJob) Enabled() bool {
	return j.RetentionDays > 0
}

// Run はcreated_atがRetentionDays日前より古いリードのraw_bodyを消去する。
func (j *CleanupJob) Run(ctx context.Context) error {
	if !j.Enabled() {
		return nil
	}
	start := j.now()
	cutoff := start.AddDate(0, 0, -j.RetentionDays)

	purged, err := j.purger.PurgeRawBodies(ctx, cutoff)
	if err != nil {
		j.logger.Error("メール本文クリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("メール本文クリーンアップの実行に失敗: %w", err)
	}
	if j.metrics != nil {
		j.metrics.RecordRawBodiesPurged(purged)
	}

	duration := j.now().Sub(start)
	j.logger.Info("メール本文クリーンアップジョブが完了しました",
		slog.Int64("purged_count", purged),
		slog.Int("retention_days", j.RetentionDays),
		slog.Time("cutoff", cutoff),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)
	return nil
}

// Start は起動直後に1回実行し、その後はintervalごとに実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	if !j.Enabled() {
		j.logger.Info("メール本文クリーンアップは無効です")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		// エラーはRun内でログ出力済み
		_ = j.Run(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
