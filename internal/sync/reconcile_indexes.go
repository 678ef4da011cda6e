// internal/sync/reconcile_indexes.go
package sync

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/arwahdevops/mongosync/internal/config"
	"github.com/arwahdevops/mongosync/internal/schema"
	"github.com/arwahdevops/mongosync/internal/utils"
)

// reconcileIndexes creates desired indexes missing by name and drops live
// indexes that are not desired. _id_ is never dropped. An index whose name
// matches but whose definition differs is reported and left as is.
func (r *Reconciler) reconcileIndexes(ctx context.Context, coll schema.CollectionSpec, existed bool, res *Result) {
	log := r.logger.With(zap.String("collection", coll.Name))

	live, err := r.liveIndexes(ctx, coll.Name, existed)
	if err != nil {
		log.Error("Failed to list existing indexes; skipping index reconciliation for collection", zap.Error(err))
		r.metrics.ErrorsTotal.WithLabelValues("list_indexes", coll.Name).Inc()
		res.Err = multierr.Append(res.Err, err)
		return
	}

	liveByName := make(map[string]IndexInfo, len(live))
	liveNames := make([]string, 0, len(live))
	for _, idx := range live {
		liveByName[idx.Name] = idx
		liveNames = append(liveNames, idx.Name)
	}
	desiredNames := coll.IndexNames()
	log.Info("Comparing indexes", zap.Strings("existing_indexes", liveNames), zap.Strings("desired_indexes", desiredNames))

	for _, idx := range coll.Indexes {
		if r.stopped(ctx, res) {
			return
		}
		name := idx.CanonicalName()
		ilog := log.With(zap.String("index", name))

		if current, ok := liveByName[name]; ok {
			ilog.Info("Index already exists on collection")
			res.UnchangedIndexes++
			r.metrics.UnchangedTotal.WithLabelValues("index").Inc()
			if len(current.Key) > 0 && !utils.SameKeyPattern(current.Key, utils.StoredKeyPattern(idx.Key)) {
				// Not corrected: renames-only semantics, no update in place.
				ilog.Warn("Existing index key pattern differs from desired; leaving it unchanged",
					zap.String("existing_key", utils.FormatKeyPattern(current.Key)),
					zap.String("desired_key", utils.FormatKeyPattern(idx.Key)))
			}
			continue
		}

		opts := idx.Options
		opts.Name = name
		ilog.Info("Creating index", zap.String("key", utils.FormatKeyPattern(idx.Key)))
		_ = r.execute(ctx, res, Operation{Kind: OpCreateIndex, Collection: coll.Name, Index: name}, func(opCtx context.Context) error {
			return r.handle.CreateIndex(opCtx, coll.Name, idx.Key, opts)
		})
	}

	wanted := make(map[string]bool, len(desiredNames))
	for _, n := range desiredNames {
		wanted[n] = true
	}
	for _, idx := range live {
		if idx.Name == schema.PrimaryIndexName || wanted[idx.Name] {
			continue
		}
		if r.stopped(ctx, res) {
			return
		}
		name := idx.Name
		log.Info("Dropping index", zap.String("index", name))
		_ = r.execute(ctx, res, Operation{Kind: OpDropIndex, Collection: coll.Name, Index: name}, func(opCtx context.Context) error {
			return r.handle.DropIndex(opCtx, coll.Name, name)
		})
	}
}

// liveIndexes reads the collection's current indexes. In plan mode a
// collection that does not exist yet is treated as having only _id_.
func (r *Reconciler) liveIndexes(ctx context.Context, collection string, existed bool) ([]IndexInfo, error) {
	if !existed && r.cfg.Mode == config.ModePlan {
		return nil, nil
	}
	var live []IndexInfo
	err := r.withTimeout(ctx, func(opCtx context.Context) error {
		var listErr error
		live, listErr = r.handle.ListIndexes(opCtx, collection)
		return listErr
	})
	if err != nil {
		return nil, fmt.Errorf("list indexes of %s: %w", collection, err)
	}
	return live, nil
}
