package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/ildocuema64/Kamba-Many-sub001/internal/jobs"
	"github.com/ildocuema64/Kamba-Many-sub001/internal/licensing"
)

// LicenseSweepJob expires overdue subscriptions and stale requests.
type LicenseSweepJob struct {
	Licensing *licensing.Service
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewLicenseSweepJob initialises the sweep handler.
func NewLicenseSweepJob(svc *licensing.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *LicenseSweepJob {
	return &LicenseSweepJob{Licensing: svc, Logger: logger, Metrics: metrics}
}

// Handle runs one sweep.
func (j *LicenseSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Licensing == nil {
		return errors.New("license sweep: handler not configured")
	}
	tracker := j.Metrics.Track(TaskLicenseSweep)
	start := time.Now()
	subs, reqs, err := j.Licensing.Sweep(ctx)
	if err != nil {
		j.logger().Error("sweep failed", slog.Any("error", err))
		return tracker.End(err)
	}
	j.logger().Info("completed license sweep",
		slog.Int64("subscriptions_expired", subs),
		slog.Int64("requests_expired", reqs),
		slog.Duration("duration", time.Since(start)))
	return tracker.End(nil)
}

func (j *LicenseSweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLicenseSweep))
	}
	return slog.Default().With(slog.String("job", TaskLicenseSweep))
}
