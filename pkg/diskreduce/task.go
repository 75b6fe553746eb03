package diskreduce

import "context"

// Emitter receives one value produced by Map for the given document.
type Emitter[V any] func(documentID string, value V)

// Task is the user plug-in run by an Executor.
//
// Map turns a batch of inputs into values and must attribute every value to
// the document it came from. Reduce combines values of one grouping key and
// must be associative: it is applied to partial results at three levels.
type Task[I, V any] interface {
	Map(ctx context.Context, batch []I, emit Emitter[V]) error
	Reduce(ctx context.Context, values []V) ([]V, error)
	// ReduceKey returns the grouping key of a value.
	ReduceKey(value V) string
	// DocumentID returns the stable identity of an input. Inputs with the
	// same id supersede each other across executions.
	DocumentID(input I) string
}

// Describer is an optional interface for tasks that can describe themselves.
type Describer interface {
	Description() string
}
