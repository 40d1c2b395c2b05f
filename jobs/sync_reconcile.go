package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/ildocuema64/Kamba-Many-sub001/internal/jobs"
	enginesync "github.com/ildocuema64/Kamba-Many-sub001/internal/sync"
)

// SyncReconcileJob drives one reconciliation cycle per task.
type SyncReconcileJob struct {
	Reconciler *enginesync.Reconciler
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
}

// NewSyncReconcileJob initialises the reconcile handler.
func NewSyncReconcileJob(reconciler *enginesync.Reconciler, logger *slog.Logger, metrics *jobmetrics.Metrics) *SyncReconcileJob {
	return &SyncReconcileJob{Reconciler: reconciler, Logger: logger, Metrics: metrics}
}

// Handle executes one cycle. A failed cycle is retried by the queue; the
// engine itself never waits on it.
func (j *SyncReconcileJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Reconciler == nil {
		return errors.New("sync reconcile: handler not configured")
	}
	tracker := j.Metrics.Track(TaskSyncReconcile)
	start := time.Now()
	if err := j.Reconciler.ReconcileOnce(ctx); err != nil {
		j.logger().Warn("reconcile cycle failed", slog.Any("error", err))
		return tracker.End(err)
	}
	j.logger().Info("reconcile cycle completed", slog.Duration("duration", time.Since(start)))
	return tracker.End(nil)
}

func (j *SyncReconcileJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskSyncReconcile))
	}
	return slog.Default().With(slog.String("job", TaskSyncReconcile))
}
