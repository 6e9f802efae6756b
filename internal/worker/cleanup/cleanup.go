package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/cvbuilder/internal/metrics"
)

// DefaultEventRetention はWebhookイベント記録の保持期間。
// 決済サービスの再送期間（最大3日）より十分長く取る。
const DefaultEventRetention = 30 * 24 * time.Hour

// メトリクスラベル。
const (
	TargetSessions      = "sessions"
	TargetWebhookEvents = "webhook_events"
)

// SessionCleaner は期限切れセッションを削除する。
type SessionCleaner interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// EventCleaner は古いWebhookイベント記録を削除する。
type EventCleaner interface {
	DeleteEventsBefore(ctx context.Context, before time.Time) (int64, error)
}

// CleanupJob は期限切れセッションと古いWebhookイベント記録を定期削除するジョブ。
type CleanupJob struct {
	sessions SessionCleaner
	events   EventCleaner
	logger   *slog.Logger
	metrics  metrics.MetricsCollector
	now      func() time.Time

	// EventRetention はWebhookイベント記録の保持期間。
	EventRetention time.Duration
}

// NewCleanupJob は新しいCleanupJobを生成する。
// collectorがnilの場合はメトリクスを記録しない。
func NewCleanupJob(sessions SessionCleaner, events EventCleaner, logger *slog.Logger, collector metrics.MetricsCollector) *CleanupJob {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &CleanupJob{
		sessions:       sessions,
		events:         events,
		logger:         logger,
		metrics:        collector,
		now:            time.Now,
		EventRetention: DefaultEventRetention,
	}
}

// Run はクリーンアップを1回実行する。
// 片方の削除に失敗してももう片方は実行し、エラーはまとめて返す。
func (j *CleanupJob) Run(ctx context.Context) error {
	var errs []error

	if n, err := j.sessions.DeleteExpired(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to delete expired sessions: %w", err))
	} else {
		j.done(TargetSessions, n)
	}

	before := j.now().Add(-j.EventRetention)
	if n, err := j.events.DeleteEventsBefore(ctx, before); err != nil {
		errs = append(errs, fmt.Errorf("failed to delete webhook events: %w", err))
	} else {
		j.done(TargetWebhookEvents, n)
	}

	return errors.Join(errs...)
}

func (j *CleanupJob) done(target string, deleted int64) {
	j.metrics.RecordCleanup(target, deleted)
	j.logger.Info("cleanup completed",
		slog.String("target", target),
		slog.Int64("deleted_count", deleted),
	)
}

// Start は起動直後に1回実行し、以降interval毎にRunを繰り返す。
// ctxがキャンセルされると戻る。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	j.runOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("cleanup job stopped")
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

func (j *CleanupJob) runOnce(ctx context.Context) {
	if err := j.Run(ctx); err != nil {
		j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
	}
}
