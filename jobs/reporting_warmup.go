package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/unistock-erp/unistock-erp/internal/jobs"
	"github.com/unistock-erp/unistock-erp/internal/reporting"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// ReportingWarmupJob pre-populates the warehouse and room report caches so
// the first dashboard hit of the day does not pay the query cost.
type ReportingWarmupJob struct {
	Reporting *reporting.Service
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewReportingWarmupJob wires dependencies for the warmup handler.
func NewReportingWarmupJob(reportingSvc *reporting.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReportingWarmupJob {
	return &ReportingWarmupJob{Reporting: reportingSvc, Logger: logger, Metrics: metrics}
}

// Handle processes reporting warmup tasks.
func (j *ReportingWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Reporting == nil {
		return errors.New("reporting warmup: handler not configured")
	}
	var payload ReportingWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskReportingWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("reason", payload.Reason))
	start := time.Now()

	warmCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	if err := j.Reporting.Warm(warmCtx); err != nil {
		resultErr = err
		logger.Error("reporting warmup", slog.Any("error", err))
		return resultErr
	}

	logger.Info("completed reporting warmup", slog.Duration("duration", time.Since(start)))
	return resultErr
}

func (j *ReportingWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskReportingWarmup))
	}
	return slog.Default().With(slog.String("job", TaskReportingWarmup))
}

func (j *ReportingWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
