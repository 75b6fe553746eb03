package diskreduce

import (
	"context"
	"iter"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"pkg.jsn.cam/diskreduce/internal/records"
	"pkg.jsn.cam/diskreduce/internal/schedule"
	"pkg.jsn.cam/diskreduce/pkg/storage"
)

// Executor runs a Task incrementally against a storage backend. Results
// survive restarts, and re-running Execute with a document that was seen
// before replaces that document's earlier contribution.
type Executor[I, V any] struct {
	backend storage.Backend
	task    Task[I, V]
	cfg     Config
	store   *records.Store[V]
	tracker *schedule.Tracker[V]
	log     logrus.FieldLogger

	// afterPersist runs inside a reduce step after its output is written and
	// before the inputs are marked consumed.
	afterPersist func(key string, level records.Level) error
}

// New prepares backend for task and returns an executor.
func New[I, V any](backend storage.Backend, task Task[I, V], cfg Config) (*Executor[I, V], error) {
	if backend == nil {
		return nil, ErrNilBackend
	}
	if task == nil {
		return nil, ErrNilTask
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store := records.NewStore[V](cfg.Codec)
	e := &Executor[I, V]{
		backend: backend,
		task:    task,
		cfg:     cfg,
		store:   store,
		tracker: schedule.New(backend, store, cfg.BatchSize, cfg.Logger),
		log:     cfg.Logger,
	}

	err := backend.Update(func(tx storage.Transaction) error {
		if err := store.Init(tx); err != nil {
			return err
		}
		return e.tracker.Init(tx)
	})
	if err != nil {
		return nil, errors.Wrap(err, "initialize storage")
	}
	return e, nil
}

// Config returns the effective configuration.
func (e *Executor[I, V]) Config() Config {
	return e.cfg
}

// Execute maps inputs and reduces every grouping key with pending work,
// including work left behind by an interrupted earlier call. inputs may be
// nil to only resume.
func (e *Executor[I, V]) Execute(ctx context.Context, inputs iter.Seq[I]) error {
	passID := uuid.NewString()
	log := e.log.WithFields(logrus.Fields{"action": "execute", "pass_id": passID})
	start := time.Now()

	mapped, err := e.runMap(ctx, log, inputs)
	if err != nil {
		return errors.Wrap(err, "map stage")
	}

	keys, err := e.tracker.KeysWithPendingWork(ctx)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"documents": mapped.documents,
		"results":   mapped.results,
		"keys":      len(keys),
	}).Info("Map stage complete")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for _, key := range keys {
		g.Go(func() error {
			return e.reduceKey(gctx, log, key)
		})
	}
	if err := g.Wait(); err != nil {
		return errors.Wrap(err, "reduce stage")
	}

	log.WithFields(logrus.Fields{
		"keys":     len(keys),
		"duration": time.Since(start).String(),
	}).Info("Pass complete")
	return nil
}

// Query returns the final values of key. Unknown keys yield no values.
func (e *Executor[I, V]) Query(ctx context.Context, key string) ([]V, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var values []V
	err := e.backend.View(func(tx storage.Transaction) error {
		f, err := e.store.GetFinal(tx, key)
		if err != nil || f == nil {
			return err
		}
		values = f.Values
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "query %q", key)
	}
	return values, nil
}

// Keys lists the grouping keys that have a final result.
func (e *Executor[I, V]) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var keys []string
	err := e.backend.View(func(tx storage.Transaction) error {
		var err error
		keys, err = e.store.FinalKeys(tx)
		return err
	})
	return keys, err
}

// Delete forgets everything stored for key. Documents that contributed to it
// are kept for their other keys.
func (e *Executor[I, V]) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var removed int
	err := e.backend.Update(func(tx storage.Transaction) error {
		n, err := e.store.DeleteKey(tx, key)
		if err != nil {
			return err
		}
		removed = n
		return e.tracker.DeleteKey(tx, key)
	})
	if err != nil {
		return errors.Wrapf(err, "delete %q", key)
	}

	e.log.WithFields(logrus.Fields{"action": "delete", "key": key, "results": removed}).Info("Deleted key")
	return nil
}

// Stats describes what the backend currently holds.
type Stats struct {
	Records   map[string]int `json:"records"`
	Markers   map[int]int    `json:"markers"`
	Finals    int            `json:"finals"`
	Documents int            `json:"documents"`
	SizeBytes int64          `json:"size_bytes,omitempty"`
	Codec     string         `json:"codec"`
}

// Stats collects record and marker counts, and the on-disk size when the
// backend can report it.
func (e *Executor[I, V]) Stats(ctx context.Context) (Stats, error) {
	st := Stats{Codec: e.cfg.Codec.Name()}
	if err := ctx.Err(); err != nil {
		return st, err
	}

	err := e.backend.View(func(tx storage.Transaction) error {
		counts, err := e.store.Counts(tx)
		if err != nil {
			return err
		}
		st.Finals = counts["final"]
		st.Documents = counts["documents"]
		delete(counts, "final")
		delete(counts, "documents")
		st.Records = counts

		markers, err := e.tracker.Counts(tx)
		if err != nil {
			return err
		}
		st.Markers = make(map[int]int, len(markers))
		for level, n := range markers {
			st.Markers[int(level)] = n
		}
		return nil
	})
	if err != nil {
		return st, errors.Wrap(err, "collect stats")
	}

	if sizer, ok := e.backend.(storage.Sizer); ok {
		size, err := sizer.Size()
		if err != nil {
			return st, errors.Wrap(err, "backend size")
		}
		st.SizeBytes = size
	}
	return st, nil
}
