package average

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"pkg.jsn.cam/diskreduce/pkg/executors/lines"
)

// Executor calculates the average numeric value per key.
// Input format: "key:value" per line (e.g., "temperature:72.5")
// Values are stored as "sum:count" so that partial results can be reduced
// again; Format turns them into averages.
type Executor struct {
	lines.Base
}

// Map extracts key-value pairs and emits (key, "value:1")
func (Executor) Map(_ context.Context, batch []lines.Line, emit lines.Emitter) error {
	for _, line := range batch {
		parts := strings.SplitN(line.Text, ":", 2)
		if len(parts) != 2 {
			continue
		}
		val, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			continue
		}
		emit(line.ID(), lines.KeyValue{Key: strings.TrimSpace(parts[0]), Value: encode(val, 1)})
	}
	return nil
}

// Reduce adds up sums and counts per key.
func (Executor) Reduce(_ context.Context, values []lines.KeyValue) ([]lines.KeyValue, error) {
	type acc struct {
		sum   float64
		count int
	}
	totals := make(map[string]*acc)
	var order []string

	for _, kv := range values {
		sum, count, ok := decode(kv.Value)
		if !ok {
			continue
		}
		a, exists := totals[kv.Key]
		if !exists {
			a = &acc{}
			totals[kv.Key] = a
			order = append(order, kv.Key)
		}
		a.sum += sum
		a.count += count
	}

	out := make([]lines.KeyValue, 0, len(order))
	for _, key := range order {
		out = append(out, lines.KeyValue{Key: key, Value: encode(totals[key].sum, totals[key].count)})
	}
	return out, nil
}

// Format computes the final average from the aggregated sum:count pairs
func (Executor) Format(values []lines.KeyValue) []string {
	out := make([]string, 0, len(values))
	for _, kv := range values {
		sum, count, ok := decode(kv.Value)
		if !ok || count == 0 {
			continue
		}
		out = append(out, fmt.Sprintf("%s: %s", kv.Key, strconv.FormatFloat(sum/float64(count), 'f', 2, 64)))
	}
	return out
}

func (Executor) Description() string {
	return "Calculates average numeric value per key (format: key:value)"
}

func encode(sum float64, count int) string {
	return strconv.FormatFloat(sum, 'f', -1, 64) + ":" + strconv.Itoa(count)
}

func decode(v string) (float64, int, bool) {
	parts := strings.SplitN(v, ":", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	sum, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, 0, false
	}
	count, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, false
	}
	return sum, count, true
}
