// Package jobs holds the background tasks: sync reconciliation, stock
// projection audit and license expiry sweeps.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSyncReconcile runs one push/pull reconciliation cycle.
	TaskSyncReconcile = "sync:reconcile"
	// TaskStockAudit re-derives stock projections from movement history.
	TaskStockAudit = "stock:audit"
	// TaskLicenseSweep expires overdue subscriptions and stale requests.
	TaskLicenseSweep = "license:sweep"
)

// StockAuditPayload scopes an audit run. A zero OrgID audits every product.
type StockAuditPayload struct {
	OrgID int64 `json:"org_id"`
}

// NewSyncReconcileTask constructs the reconciliation task.
func NewSyncReconcileTask() *asynq.Task {
	return asynq.NewTask(TaskSyncReconcile, nil)
}

// NewStockAuditTask constructs the projection audit task.
func NewStockAuditTask(payload StockAuditPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockAudit, data), nil
}

// NewLicenseSweepTask constructs the sweep task.
func NewLicenseSweepTask() *asynq.Task {
	return asynq.NewTask(TaskLicenseSweep, nil)
}
