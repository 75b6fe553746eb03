package diskreduce

import (
	"github.com/sirupsen/logrus"
	"pkg.jsn.cam/diskreduce/internal/records"
	"pkg.jsn.cam/diskreduce/internal/schedule"
	"pkg.jsn.cam/diskreduce/pkg/storage"
)

type bucketRef struct {
	key    string
	bucket int
}

// scheduler deduplicates level-0 scheduling within one write transaction.
type scheduler[V any] struct {
	tracker *schedule.Tracker[V]
	done    map[bucketRef]struct{}
}

func newScheduler[V any](tracker *schedule.Tracker[V]) *scheduler[V] {
	return &scheduler[V]{tracker: tracker, done: make(map[bucketRef]struct{})}
}

func (s *scheduler[V]) schedule(tx storage.Transaction, key string, bucket int) error {
	ref := bucketRef{key: key, bucket: bucket}
	if _, ok := s.done[ref]; ok {
		return nil
	}
	if err := s.tracker.ScheduleReduction(tx, key, bucket, records.LevelMap); err != nil {
		return err
	}
	s.done[ref] = struct{}{}
	return nil
}

// invalidateDocument removes every level-0 result of a document and
// schedules the affected buckets, so that reductions built on the old values
// are recomputed. Unknown documents are a no-op.
func (e *Executor[I, V]) invalidateDocument(tx storage.Transaction, sched *scheduler[V], documentID string) (int, error) {
	stale, err := e.store.TakeDocument(tx, documentID)
	if err != nil {
		return 0, err
	}

	for _, r := range stale {
		if err := e.store.Delete(tx, r.Location); err != nil {
			return 0, err
		}
		if err := sched.schedule(tx, r.Key, r.Bucket); err != nil {
			return 0, err
		}
	}
	if len(stale) > 0 {
		e.log.WithFields(logrus.Fields{
			"action":      "invalidate",
			"document_id": documentID,
			"results":     len(stale),
		}).Debug("Invalidated document")
	}
	return len(stale), nil
}
