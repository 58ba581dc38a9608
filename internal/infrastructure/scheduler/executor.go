package scheduler

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/nexus/backend/internal/application/reconcile"
	appsync "github.com/nexus/backend/internal/application/sync"
)

// Importer is the slice of the sync service the executor needs
type Importer interface {
	FullImport(ctx context.Context, accountID int64) (int, error)
	IncrementalImport(ctx context.Context, accountID int64) (int, error)
	SyncAll(ctx context.Context) (*appsync.Summary, error)
}

// Reconciler is the slice of the reconcile service the executor needs
type Reconciler interface {
	Reconcile(ctx context.Context, accountID int64, window reconcile.Window, maxWorkers int) (*reconcile.Result, error)
}

// SyncExecutor dispatches scheduler jobs to the sync and reconcile services
type SyncExecutor struct {
	importer   Importer
	reconciler Reconciler
	logger     *zap.Logger
}

// NewSyncExecutor creates the executor backing the job scheduler
func NewSyncExecutor(importer Importer, reconciler Reconciler, logger *zap.Logger) *SyncExecutor {
	return &SyncExecutor{
		importer:   importer,
		reconciler: reconciler,
		logger:     logger,
	}
}

// Execute runs one job and records its outcome counters on the job
func (e *SyncExecutor) Execute(ctx context.Context, job *Job) error {
	switch job.Kind {
	case JobKindIncrementalSync:
		if job.AccountID != 0 {
			imported, err := e.importer.IncrementalImport(ctx, job.AccountID)
			if err != nil {
				return err
			}
			job.Imported = imported
			return nil
		}
		summary, err := e.importer.SyncAll(ctx)
		if err != nil {
			return err
		}
		job.Imported = summary.Imported
		if summary.Failed > 0 {
			e.logger.Warn("Some accounts failed during scheduled sync",
				zap.String("job_id", job.ID.String()),
				zap.Int("failed", summary.Failed),
				zap.Int("accounts", summary.Accounts),
			)
		}
		return nil

	case JobKindFullImport:
		imported, err := e.importer.FullImport(ctx, job.AccountID)
		if err != nil {
			return err
		}
		job.Imported = imported
		return nil

	case JobKindReconcile:
		window := reconcile.Window{Since: job.Since, Until: job.Until}
		result, err := e.reconciler.Reconcile(ctx, job.AccountID, window, job.MaxWorkers)
		if err != nil {
			return err
		}
		job.Scanned = result.Scanned
		job.Updated = result.Updated
		job.FetchErrors = result.FetchErrors
		return nil

	default:
		return fmt.Errorf("%w: %s", ErrUnknownJobKind, job.Kind)
	}
}

var _ JobExecutor = (*SyncExecutor)(nil)
