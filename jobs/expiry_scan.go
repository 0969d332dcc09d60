package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/unistock-erp/unistock-erp/internal/jobs"
	"github.com/unistock-erp/unistock-erp/internal/stock"
)

// ExpiringLister reads the batches whose expiry falls inside a window.
type ExpiringLister interface {
	ExpiringBatches(ctx context.Context, within time.Duration) ([]stock.WarehouseLine, error)
}

// ExpiryScanJob sweeps warehouse batches and publishes how many sit inside
// the expiry warning window, per warehouse.
type ExpiryScanJob struct {
	Stocks  ExpiringLister
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewExpiryScanJob wires dependencies for the scan handler.
func NewExpiryScanJob(stocks ExpiringLister, logger *slog.Logger, metrics *jobmetrics.Metrics) *ExpiryScanJob {
	return &ExpiryScanJob{Stocks: stocks, Logger: logger, Metrics: metrics}
}

// Handle processes expiry scan tasks.
func (j *ExpiryScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Stocks == nil {
		return errors.New("expiry scan: handler not configured")
	}
	var payload ExpiryScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.WithinDays <= 0 {
		payload.WithinDays = 30
	}

	tracker := j.metrics().Track(TaskExpiryScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int("within_days", payload.WithinDays))

	lines, err := j.Stocks.ExpiringBatches(ctx, time.Duration(payload.WithinDays)*24*time.Hour)
	if err != nil {
		resultErr = err
		logger.Error("list expiring batches", slog.Any("error", err))
		return resultErr
	}

	perWarehouse := make(map[int64]int)
	for _, line := range lines {
		perWarehouse[line.WarehouseID]++
	}
	for warehouseID, count := range perWarehouse {
		j.metrics().SetExpiringBatches(warehouseID, count)
	}

	logger.Info("completed expiry scan",
		slog.Int("batches", len(lines)),
		slog.Int("warehouses", len(perWarehouse)))
	return resultErr
}

func (j *ExpiryScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskExpiryScan))
	}
	return slog.Default().With(slog.String("job", TaskExpiryScan))
}

func (j *ExpiryScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
