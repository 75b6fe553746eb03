package maxvalue

import (
	"context"
	"strconv"
	"strings"

	"pkg.jsn.cam/diskreduce/pkg/executors/lines"
)

// Executor finds the maximum numeric value for each key.
// Input format: "key:value" per line (e.g., "temperature:72.5")
type Executor struct {
	lines.Base
}

// Map extracts key-value pairs and emits them
func (Executor) Map(_ context.Context, batch []lines.Line, emit lines.Emitter) error {
	for _, line := range batch {
		parts := strings.SplitN(line.Text, ":", 2)
		if len(parts) == 2 {
			emit(line.ID(), lines.KeyValue{Key: strings.TrimSpace(parts[0]), Value: strings.TrimSpace(parts[1])})
		}
	}
	return nil
}

// Reduce keeps the largest value per key. Finding a maximum is associative,
// so partial maxima can be reduced again.
func (Executor) Reduce(_ context.Context, values []lines.KeyValue) ([]lines.KeyValue, error) {
	maxima := make(map[string]float64)
	var order []string
	for _, kv := range values {
		val := parseFloat(kv.Value)
		cur, ok := maxima[kv.Key]
		if !ok {
			order = append(order, kv.Key)
		}
		if !ok || val > cur {
			maxima[kv.Key] = val
		}
	}

	out := make([]lines.KeyValue, 0, len(order))
	for _, key := range order {
		out = append(out, lines.KeyValue{Key: key, Value: strconv.FormatFloat(maxima[key], 'f', -1, 64)})
	}
	return out, nil
}

func (Executor) Description() string {
	return "Finds the maximum numeric value for each key (format: key:value)"
}

func parseFloat(s string) float64 {
	val, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return val
}
