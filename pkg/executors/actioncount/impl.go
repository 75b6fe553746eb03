package actioncount

import (
	"context"
	"strings"

	"pkg.jsn.cam/diskreduce/pkg/executors/lines"
)

// Executor counts user actions in lines of the form "{user} did {action}".
type Executor struct {
	lines.Base
}

// Map extracts the action (everything after "did") from each line and emits (action, "1")
func (Executor) Map(ctx context.Context, batch []lines.Line, emit lines.Emitter) error {
	for _, line := range batch {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		words := strings.Fields(line.Text)
		for i := range words {
			if words[i] == "did" && i+1 < len(words) {
				emit(line.ID(), lines.KeyValue{Key: strings.Join(words[i+1:], " "), Value: "1"})
				break
			}
		}
	}

	return nil
}

// Reduce aggregates the counts for each action
func (Executor) Reduce(ctx context.Context, values []lines.KeyValue) ([]lines.KeyValue, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	return lines.SumCounts(values), nil
}

func (Executor) Description() string {
	return "Counts how many times each user action (after 'did') occurs, ignoring users"
}
