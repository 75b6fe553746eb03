package diskreduce

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"pkg.jsn.cam/diskreduce/pkg/storage"
)

type person struct {
	ID    string
	State string
}

type statePopulation struct {
	State string `json:"state"`
	Count int    `json:"count"`
}

// populationTask counts people per state.
type populationTask struct {
	reduceCalls atomic.Int64
}

func (p *populationTask) Map(_ context.Context, batch []person, emit Emitter[statePopulation]) error {
	for _, in := range batch {
		emit(in.ID, statePopulation{State: in.State, Count: 1})
	}
	return nil
}

func (p *populationTask) Reduce(_ context.Context, values []statePopulation) ([]statePopulation, error) {
	p.reduceCalls.Add(1)

	totals := make(map[string]int)
	var order []string
	for _, v := range values {
		if _, ok := totals[v.State]; !ok {
			order = append(order, v.State)
		}
		totals[v.State] += v.Count
	}

	out := make([]statePopulation, 0, len(order))
	for _, state := range order {
		out = append(out, statePopulation{State: state, Count: totals[state]})
	}
	return out, nil
}

func (p *populationTask) ReduceKey(v statePopulation) string { return v.State }

func (p *populationTask) DocumentID(in person) string { return in.ID }

func people(prefix, state string, n int) []person {
	out := make([]person, n)
	for i := range out {
		out[i] = person{ID: fmt.Sprintf("%s-%d", prefix, i), State: state}
	}
	return out
}

func seq(groups ...[]person) iter.Seq[person] {
	return slices.Values(slices.Concat(groups...))
}

func quietLogger() logrus.FieldLogger {
	logger, _ := test.NewNullLogger()
	return logger
}

func newTestExecutor(t *testing.T, backend storage.Backend, cfg Config) (*Executor[person, statePopulation], *populationTask) {
	t.Helper()

	if cfg.Logger == nil {
		cfg.Logger = quietLogger()
	}
	task := &populationTask{}
	e, err := New[person, statePopulation](backend, task, cfg)
	require.NoError(t, err)
	return e, task
}

func population(t *testing.T, e *Executor[person, statePopulation], state string) int {
	t.Helper()

	values, err := e.Query(context.Background(), state)
	require.NoError(t, err)
	if len(values) == 0 {
		return 0
	}
	require.Len(t, values, 1)
	require.Equal(t, state, values[0].State)
	return values[0].Count
}

var errInjected = errors.New("injected write failure")

// failingBackend fails the first Put into one storage bucket once armed. The
// writes made before it in the same Update stay, as after a crash on a
// backend without atomic transactions.
type failingBackend struct {
	storage.Backend
	bucket string
	armed  atomic.Bool
}

func (b *failingBackend) Update(fn func(tx storage.Transaction) error) error {
	return b.Backend.Update(func(tx storage.Transaction) error {
		return fn(&failingTx{Transaction: tx, backend: b})
	})
}

type failingTx struct {
	storage.Transaction
	backend *failingBackend
}

func (t *failingTx) Bucket(name []byte) storage.Bucket {
	bkt := t.Transaction.Bucket(name)
	if bkt == nil || string(name) != t.backend.bucket {
		return bkt
	}
	return &failingBucket{Bucket: bkt, backend: t.backend}
}

type failingBucket struct {
	storage.Bucket
	backend *failingBackend
}

func (b *failingBucket) Put(key, value []byte) error {
	if b.backend.armed.CompareAndSwap(true, false) {
		return errInjected
	}
	return b.Bucket.Put(key, value)
}
