package sync

import (
	"context"

	"go.uber.org/zap"

	"github.com/arwahdevops/mongosync/internal/schema"
)

// reconcileCollection creates coll when missing, then reconciles its indexes.
func (r *Reconciler) reconcileCollection(ctx context.Context, coll schema.CollectionSpec, exists bool, res *Result) {
	log := r.logger.With(zap.String("collection", coll.Name))

	if !exists {
		log.Info("Creating collection")
		// A failed create is not fatal: index calls below will fail the same
		// way and the next pass retries.
		_ = r.execute(ctx, res, Operation{Kind: OpCreateCollection, Collection: coll.Name}, func(opCtx context.Context) error {
			return r.handle.CreateCollection(opCtx, coll.Name)
		})
	} else {
		log.Info("Collection already exists")
		res.UnchangedCollections++
		r.metrics.UnchangedTotal.WithLabelValues("collection").Inc()
	}

	if !coll.ManageIndexes {
		log.Debug("No indexes declared for collection; existing indexes left untouched")
		return
	}
	r.reconcileIndexes(ctx, coll, exists, res)
}

// dropUndesiredCollections drops every live collection that the desired schema
// does not name. These collections never get an index pass.
func (r *Reconciler) dropUndesiredCollections(ctx context.Context, desired *schema.Schema, live []string, res *Result) {
	for _, name := range live {
		if desired.Has(name) {
			continue
		}
		if r.stopped(ctx, res) {
			return
		}
		r.logger.Info("Deleting collection", zap.String("collection", name))
		_ = r.execute(ctx, res, Operation{Kind: OpDropCollection, Collection: name}, func(opCtx context.Context) error {
			return r.handle.DropCollection(opCtx, name)
		})
	}
}
