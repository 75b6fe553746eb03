package wordcount

import (
	"context"
	"strings"

	"pkg.jsn.cam/diskreduce/pkg/executors/lines"
)

// Executor counts occurrences of each word.
type Executor struct {
	lines.Base
}

// Map splits each line into words and emits (word, "1") pairs.
func (Executor) Map(ctx context.Context, batch []lines.Line, emit lines.Emitter) error {
	for _, line := range batch {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, word := range strings.Fields(line.Text) {
			emit(line.ID(), lines.KeyValue{Key: word, Value: "1"})
		}
	}
	return nil
}

// Reduce adds up the partial counts of a word.
func (Executor) Reduce(_ context.Context, values []lines.KeyValue) ([]lines.KeyValue, error) {
	return lines.SumCounts(values), nil
}

func (Executor) Description() string {
	return "A simple word count executor that counts occurrences of each word"
}
