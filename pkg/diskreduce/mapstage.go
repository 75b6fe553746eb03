package diskreduce

import (
	"context"
	"iter"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"pkg.jsn.cam/diskreduce/internal/records"
	"pkg.jsn.cam/diskreduce/pkg/storage"
)

type emission[V any] struct {
	documentID string
	value      V
}

type mapGroup[V any] struct {
	documentID string
	key        string
	values     []V
}

type mapStats struct {
	documents   int
	results     int
	invalidated int
}

// groupEmissions groups values by (document, key) in first-seen order.
func groupEmissions[V any](emitted []emission[V], keyOf func(V) string) []*mapGroup[V] {
	type groupID struct{ documentID, key string }

	index := make(map[groupID]*mapGroup[V])
	var groups []*mapGroup[V]
	for _, em := range emitted {
		id := groupID{em.documentID, keyOf(em.value)}
		g, ok := index[id]
		if !ok {
			g = &mapGroup[V]{documentID: id.documentID, key: id.key}
			index[id] = g
			groups = append(groups, g)
		}
		g.values = append(g.values, em.value)
	}
	return groups
}

// runMap maps inputs chunk by chunk. Each chunk is committed in its own write
// transaction that first drops the previous results of its documents.
func (e *Executor[I, V]) runMap(ctx context.Context, log logrus.FieldLogger, inputs iter.Seq[I]) (mapStats, error) {
	var stats mapStats
	chunkNo := 0

	for chunk := range Partition(inputs, e.cfg.BatchSize) {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		chunkNo++

		var emitted []emission[V]
		err := e.task.Map(ctx, chunk, func(documentID string, value V) {
			emitted = append(emitted, emission[V]{documentID: documentID, value: value})
		})
		if err != nil {
			return stats, errors.Wrapf(err, "map chunk %d", chunkNo)
		}
		groups := groupEmissions(emitted, e.task.ReduceKey)

		err = e.backend.Update(func(tx storage.Transaction) error {
			sched := newScheduler(e.tracker)

			for _, input := range chunk {
				n, err := e.invalidateDocument(tx, sched, e.task.DocumentID(input))
				if err != nil {
					return err
				}
				stats.invalidated += n
			}

			for _, g := range groups {
				r := &records.Result[V]{
					Key:        g.key,
					ID:         g.documentID,
					DocumentID: g.documentID,
					Bucket:     BucketOf(g.documentID, e.cfg.BatchSize),
					Level:      records.LevelMap,
					Values:     g.values,
				}
				if err := records.ValidateDocumentID(r.DocumentID); err != nil {
					return err
				}
				// A record is never written before its index entry.
				if err := e.store.IndexDocument(tx, r); err != nil {
					return err
				}
				if err := e.store.Put(tx, records.Pending, r); err != nil {
					return err
				}
				if err := sched.schedule(tx, r.Key, r.Bucket); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return stats, errors.Wrapf(err, "persist chunk %d", chunkNo)
		}

		stats.documents += len(chunk)
		stats.results += len(groups)
		log.WithFields(logrus.Fields{
			"chunk":     chunkNo,
			"documents": len(chunk),
			"results":   len(groups),
		}).Debug("Mapped chunk")
	}

	if stats.invalidated > 0 {
		log.WithField("results", stats.invalidated).Info("Replaced results of reprocessed documents")
	}
	return stats, nil
}
