package statecount

import (
	"context"
	"strings"

	"pkg.jsn.cam/diskreduce/pkg/executors/lines"
)

// Executor counts people per state.
// Input format: "person_id,state" per line. The person id is the document
// identity, so a person who moves is counted once, in their latest state.
type Executor struct{}

func (Executor) Map(_ context.Context, batch []lines.Line, emit lines.Emitter) error {
	for _, line := range batch {
		id, state, ok := parse(line)
		if !ok {
			continue
		}
		emit(id, lines.KeyValue{Key: state, Value: "1"})
	}
	return nil
}

func (Executor) Reduce(_ context.Context, values []lines.KeyValue) ([]lines.KeyValue, error) {
	return lines.SumCounts(values), nil
}

func (Executor) ReduceKey(kv lines.KeyValue) string { return kv.Key }

// DocumentID is the person id, or the line id for malformed lines.
func (Executor) DocumentID(l lines.Line) string {
	if id, _, ok := parse(l); ok {
		return id
	}
	return l.ID()
}

func (Executor) Description() string {
	return "Counts people per state (format: person_id,state); later lines for a person replace earlier ones"
}

func parse(l lines.Line) (id, state string, ok bool) {
	id, state, found := strings.Cut(l.Text, ",")
	id, state = strings.TrimSpace(id), strings.ToUpper(strings.TrimSpace(state))
	if !found || id == "" || state == "" {
		return "", "", false
	}
	return id, state, true
}
