package schedule

import (
	"context"
	"fmt"
	"sort"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"pkg.jsn.cam/diskreduce/internal/records"
	"pkg.jsn.cam/diskreduce/pkg/storage"
)

// Page is one lease of pending results. Buckets are never split across pages.
type Page[V any] struct {
	Units   []*records.Result[V]
	HasMore bool
}

// Buckets returns the distinct buckets of the page's units in order.
func (p Page[V]) Buckets() []int {
	var out []int
	for _, u := range p.Units {
		if len(out) == 0 || out[len(out)-1] != u.Bucket {
			out = append(out, u.Bucket)
		}
	}
	return out
}

// Tracker records which (key, bucket, level) triples have unprocessed
// contributions and hands them out to the reduce stage.
type Tracker[V any] struct {
	backend   storage.Backend
	store     *records.Store[V]
	batchSize int
	log       logrus.FieldLogger
}

// New returns a tracker over backend. batchSize is the fan-in of one level of
// the reduce tree and must match the one the buckets were assigned with.
func New[V any](backend storage.Backend, store *records.Store[V], batchSize int, log logrus.FieldLogger) *Tracker[V] {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Tracker[V]{
		backend:   backend,
		store:     store,
		batchSize: batchSize,
		log:       log.WithField("component", "schedule"),
	}
}

func markerBucket(level records.Level) []byte {
	return fmt.Appendf(nil, "schedule_%d", int(level))
}

// Init creates the marker buckets.
func (t *Tracker[V]) Init(tx storage.Transaction) error {
	for _, level := range records.Levels {
		if err := tx.CreateBucket(markerBucket(level)); err != nil {
			return errors.Wrapf(err, "create bucket %s", markerBucket(level))
		}
	}
	return nil
}

func (t *Tracker[V]) markers(tx storage.Transaction, level records.Level) (storage.Bucket, error) {
	if err := level.Validate(); err != nil {
		return nil, err
	}
	return storage.MustBucket(tx, markerBucket(level))
}

// Mark writes the marker for (key, bucket, level) without touching ancestors.
func (t *Tracker[V]) Mark(tx storage.Transaction, key string, bucket int, level records.Level) error {
	if err := records.ValidateKey(key); err != nil {
		return err
	}
	m, err := t.markers(tx, level)
	if err != nil {
		return err
	}
	return m.Put(records.BucketKey(key, bucket), []byte{})
}

// ScheduleReduction marks (key, bucket) at level and invalidates every
// ancestor: at each level up to the last, processed siblings sharing the
// parent are reopened, the parent's previous output is removed, and at the
// last level the final result is dropped. Calling it twice before the work is
// consumed leaves the same state as calling it once.
func (t *Tracker[V]) ScheduleReduction(tx storage.Transaction, key string, bucket int, level records.Level) error {
	if err := level.Validate(); err != nil {
		return err
	}
	if err := records.ValidateKey(key); err != nil {
		return err
	}

	b := bucket
	for l := level; l <= records.FinalLevel; l++ {
		if err := t.Mark(tx, key, b, l); err != nil {
			return err
		}

		parent := b / t.batchSize
		siblings, err := t.store.ListRange(tx, records.Processed, l, key, parent*t.batchSize, (parent+1)*t.batchSize)
		if err != nil {
			return errors.Wrapf(err, "list siblings of %s/%d at %s", key, b, l)
		}
		for _, s := range siblings {
			if _, err := t.store.Move(tx, s.Location, records.Pending); err != nil {
				return err
			}
			if err := t.Mark(tx, key, s.Bucket, l); err != nil {
				return err
			}
		}

		if l == records.FinalLevel {
			if _, err := t.store.DeleteFinal(tx, key); err != nil {
				return errors.Wrapf(err, "drop final result of %s", key)
			}
			break
		}

		if _, err := t.store.DeleteBucket(tx, l+1, key, parent); err != nil {
			return errors.Wrapf(err, "drop output of %s/%d at %s", key, parent, l+1)
		}
		b = parent
	}
	return nil
}

// KeysWithPendingWork returns, sorted, every key holding a marker at any
// level. Keys with only level 1 or 2 markers are work left behind by an
// interrupted pass.
func (t *Tracker[V]) KeysWithPendingWork(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	err := t.backend.View(func(tx storage.Transaction) error {
		for _, level := range records.Levels {
			m, err := t.markers(tx, level)
			if err != nil {
				return err
			}
			err = m.ForEach(func(k, _ []byte) error {
				key, _, err := records.ParseBucketKey(k)
				if err != nil {
					return err
				}
				seen[key] = struct{}{}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "list scheduled keys")
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// errPageFull stops the marker walk of Lease.
var errPageFull = errors.New("page full")

// Lease returns pending results of key at level whose bucket is marked, in
// bucket order. A page stops before a bucket that would push it past
// pageSize, unless the page is still empty. Only the buckets placed on the
// page are decoded.
func (t *Tracker[V]) Lease(ctx context.Context, key string, level records.Level, pageSize int) (Page[V], error) {
	var page Page[V]
	if err := level.Validate(); err != nil {
		return page, err
	}
	if err := ctx.Err(); err != nil {
		return page, err
	}

	err := t.backend.View(func(tx storage.Transaction) error {
		m, err := t.markers(tx, level)
		if err != nil {
			return err
		}

		err = m.ForEachPrefix(records.KeyPrefix(key), func(k, _ []byte) error {
			_, bucket, err := records.ParseBucketKey(k)
			if err != nil {
				return err
			}
			n, err := t.store.CountBucket(tx, records.Pending, level, key, bucket)
			if err != nil {
				return err
			}
			if n == 0 {
				return nil
			}
			if len(page.Units) > 0 && len(page.Units)+n > pageSize {
				page.HasMore = true
				return errPageFull
			}

			units, err := t.store.ListRange(tx, records.Pending, level, key, bucket, bucket+1)
			if err != nil {
				return err
			}
			page.Units = append(page.Units, units...)
			return nil
		})
		if errors.Is(err, errPageFull) {
			return nil
		}
		return err
	})
	if err != nil {
		return Page[V]{}, errors.Wrapf(err, "lease %s at %s", key, level)
	}
	return page, nil
}

// MarkConsumed moves units to the processed area and removes the markers of
// their buckets. It is the commit point of a reduce step, so the step's
// output must be persisted in the same or an earlier transaction.
func (t *Tracker[V]) MarkConsumed(tx storage.Transaction, key string, level records.Level, units []*records.Result[V]) error {
	m, err := t.markers(tx, level)
	if err != nil {
		return err
	}

	for _, u := range units {
		if u.Key != key || u.Level != level {
			return errors.Errorf("unit %s does not belong to %s at %s", u.Location, key, level)
		}
		if _, err := t.store.Move(tx, u.Location, records.Processed); err != nil {
			return err
		}
		if err := m.Delete(records.BucketKey(key, u.Bucket)); err != nil {
			return errors.Wrapf(err, "unmark %s/%d at %s", key, u.Bucket, level)
		}
	}
	return nil
}

// ClearMarkers drops every marker of key at level. Used once a level is
// drained and only markers without results are left.
func (t *Tracker[V]) ClearMarkers(tx storage.Transaction, key string, level records.Level) (int, error) {
	m, err := t.markers(tx, level)
	if err != nil {
		return 0, err
	}

	var stale [][]byte
	err = m.ForEachPrefix(records.KeyPrefix(key), func(k, _ []byte) error {
		stale = append(stale, append([]byte(nil), k...))
		return nil
	})
	if err != nil {
		return 0, err
	}
	for _, k := range stale {
		if err := m.Delete(k); err != nil {
			return 0, err
		}
	}
	if len(stale) > 0 {
		t.log.WithFields(logrus.Fields{"key": key, "level": level.String(), "markers": len(stale)}).Debug("Cleared markers without results")
	}
	return len(stale), nil
}

// DeleteKey removes every marker of key.
func (t *Tracker[V]) DeleteKey(tx storage.Transaction, key string) error {
	for _, level := range records.Levels {
		if _, err := t.ClearMarkers(tx, key, level); err != nil {
			return err
		}
	}
	return nil
}

// Counts returns the number of markers per level.
func (t *Tracker[V]) Counts(tx storage.Transaction) (map[records.Level]int, error) {
	counts := make(map[records.Level]int, len(records.Levels))
	for _, level := range records.Levels {
		m, err := t.markers(tx, level)
		if err != nil {
			return nil, err
		}
		n := 0
		if err := m.ForEach(func(_, _ []byte) error {
			n++
			return nil
		}); err != nil {
			return nil, err
		}
		counts[level] = n
	}
	return counts, nil
}
