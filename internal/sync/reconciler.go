// internal/sync/reconciler.go
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/arwahdevops/mongosync/internal/config"
	"github.com/arwahdevops/mongosync/internal/metrics"
	"github.com/arwahdevops/mongosync/internal/schema"
)

// Reconciler converges a database's collections and indexes to a desired schema.
// It is not safe to run two passes against the same database concurrently.
type Reconciler struct {
	handle  DatabaseHandle
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Store
}

var _ ReconcilerInterface = (*Reconciler)(nil)

func NewReconciler(handle DatabaseHandle, cfg *config.Config, logger *zap.Logger, metricsStore *metrics.Store) *Reconciler {
	if metricsStore == nil {
		metricsStore = metrics.NewMetricsStore()
	}
	return &Reconciler{
		handle:  handle,
		cfg:     cfg,
		logger:  logger.Named("reconciler").With(zap.String("database", cfg.DBName)),
		metrics: metricsStore,
	}
}

// Reconcile runs one pass: database presence check, create-or-reconcile every
// desired collection, then drop every live collection absent from desired.
// Database failures are logged and collected in Result.Err; they never stop the pass.
func (r *Reconciler) Reconcile(ctx context.Context, desired *schema.Schema) *Result {
	startTime := time.Now()
	res := &Result{Database: r.cfg.DBName, Mode: r.cfg.Mode}

	r.logger.Info("Starting reconciliation pass",
		zap.String("mode", string(r.cfg.Mode)),
		zap.Strings("desired_collections", desired.Names()),
	)
	r.metrics.ReconcileRunning.Set(1)
	defer func() {
		res.Duration = time.Since(startTime)
		r.metrics.ReconcileRunning.Set(0)
		r.metrics.RunDuration.Observe(res.Duration.Seconds())
		r.metrics.LastRunTimestamp.SetToCurrentTime()
	}()

	r.ensureDatabase(ctx, res)

	liveCollections, err := r.listCollections(ctx)
	if err != nil {
		r.logger.Error("Failed to list existing collections; nothing can be reconciled this pass", zap.Error(err))
		r.metrics.ErrorsTotal.WithLabelValues("list_collections", "").Inc()
		res.Err = multierr.Append(res.Err, err)
		return res
	}
	r.logger.Info("Existing collections", zap.Strings("collections", liveCollections))

	live := make(map[string]bool, len(liveCollections))
	for _, name := range liveCollections {
		live[name] = true
	}

	for _, coll := range desired.Collections {
		if r.stopped(ctx, res) {
			return res
		}
		r.reconcileCollection(ctx, coll, live[coll.Name], res)
	}

	// Runs only after every desired collection was handled.
	r.dropUndesiredCollections(ctx, desired, liveCollections, res)

	r.logger.Info("Reconciliation pass finished",
		zap.Duration("duration", time.Since(startTime)),
		zap.Int("operations", len(res.Operations)),
		zap.Int("failed_operations", len(res.Failed())),
	)
	return res
}

// ensureDatabase only logs: MongoDB materializes a database on its first write.
func (r *Reconciler) ensureDatabase(ctx context.Context, res *Result) {
	var names []string
	err := r.withTimeout(ctx, func(opCtx context.Context) error {
		var listErr error
		names, listErr = r.handle.ListDatabaseNames(opCtx)
		return listErr
	})
	if err != nil {
		r.logger.Warn("Could not list databases; skipping database presence check", zap.Error(err))
		r.metrics.ErrorsTotal.WithLabelValues("list_databases", "").Inc()
		return
	}
	for _, n := range names {
		if n == r.cfg.DBName {
			res.DatabaseExisted = true
			break
		}
	}
	if res.DatabaseExisted {
		r.logger.Info("Database already exists.")
	} else {
		r.logger.Info("Database created successfully (materialized on first write).")
	}
}

func (r *Reconciler) listCollections(ctx context.Context) ([]string, error) {
	var names []string
	err := r.withTimeout(ctx, func(opCtx context.Context) error {
		var listErr error
		names, listErr = r.handle.ListCollectionNames(opCtx)
		return listErr
	})
	if err != nil {
		return nil, fmt.Errorf("list collections of %s: %w", r.cfg.DBName, err)
	}
	return names, nil
}

// execute issues one mutating operation, or only records it in plan mode.
// The returned error has already been logged and added to res.Err.
func (r *Reconciler) execute(ctx context.Context, res *Result, op Operation, fn func(context.Context) error) error {
	log := r.logger.With(zap.String("operation", string(op.Kind)), zap.String("collection", op.Collection))
	if op.Index != "" {
		log = log.With(zap.String("index", op.Index))
	}

	if r.cfg.Mode == config.ModePlan {
		op.Outcome = metrics.OutcomePlanned
		res.Operations = append(res.Operations, op)
		r.metrics.OperationsTotal.WithLabelValues(string(op.Kind), op.Outcome).Inc()
		log.Info("Plan mode: operation not executed")
		return nil
	}

	start := time.Now()
	err := r.withTimeout(ctx, fn)
	r.metrics.OperationDuration.WithLabelValues(string(op.Kind)).Observe(time.Since(start).Seconds())

	if err != nil {
		op.Outcome = metrics.OutcomeFailure
		op.Err = fmt.Errorf("%s %s: %w", op.Kind, op.Target(), err)
		res.Err = multierr.Append(res.Err, op.Err)
		r.metrics.ErrorsTotal.WithLabelValues(string(op.Kind), op.Collection).Inc()
		log.Error("Operation failed; continuing with next item", zap.Error(err))
	} else {
		op.Outcome = metrics.OutcomeSuccess
		log.Debug("Operation succeeded", zap.Duration("duration", time.Since(start)))
	}
	res.Operations = append(res.Operations, op)
	r.metrics.OperationsTotal.WithLabelValues(string(op.Kind), op.Outcome).Inc()
	return op.Err
}

func (r *Reconciler) withTimeout(ctx context.Context, fn func(context.Context) error) error {
	if r.cfg.OperationTimeout <= 0 {
		return fn(ctx)
	}
	opCtx, cancel := context.WithTimeout(ctx, r.cfg.OperationTimeout)
	defer cancel()
	return fn(opCtx)
}

// stopped reports (once) that the run context was cancelled.
func (r *Reconciler) stopped(ctx context.Context, res *Result) bool {
	if ctx.Err() == nil {
		return false
	}
	if !res.Cancelled {
		res.Cancelled = true
		res.Err = multierr.Append(res.Err, fmt.Errorf("reconciliation pass interrupted: %w", ctx.Err()))
		level := zap.WarnLevel
		if !errors.Is(ctx.Err(), context.Canceled) {
			level = zap.ErrorLevel
		}
		r.logger.Check(level, "Reconciliation pass interrupted; remaining items skipped").Write(zap.Error(ctx.Err()))
	}
	return true
}
