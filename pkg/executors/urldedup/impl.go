package urldedup

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"pkg.jsn.cam/diskreduce/pkg/executors/lines"
)

// Executor deduplicates URLs per domain.
// Input: URLs, one per line
// Output: the unique URLs of each domain
type Executor struct {
	lines.Base
}

// Map extracts domain from each URL and emits (domain, url)
func (Executor) Map(_ context.Context, batch []lines.Line, emit lines.Emitter) error {
	for _, line := range batch {
		text := strings.TrimSpace(line.Text)
		if text == "" {
			continue
		}

		// Parse URL to extract domain
		u, err := url.Parse(text)
		if err != nil {
			continue // Skip invalid URLs
		}

		domain := u.Host
		if domain == "" {
			continue
		}

		emit(line.ID(), lines.KeyValue{Key: domain, Value: text})
	}
	return nil
}

// Reduce drops duplicate URLs. Keeping the set itself rather than a count
// lets partial results from different buckets be merged without double
// counting a URL seen in both.
func (Executor) Reduce(_ context.Context, values []lines.KeyValue) ([]lines.KeyValue, error) {
	seen := make(map[lines.KeyValue]struct{}, len(values))
	out := make([]lines.KeyValue, 0, len(values))
	for _, kv := range values {
		if _, dup := seen[kv]; dup {
			continue
		}
		seen[kv] = struct{}{}
		out = append(out, kv)
	}
	return out, nil
}

// Format reports the number of unique URLs per domain.
func (Executor) Format(values []lines.KeyValue) []string {
	counts := make(map[string]int)
	var order []string
	for _, kv := range values {
		if _, ok := counts[kv.Key]; !ok {
			order = append(order, kv.Key)
		}
		counts[kv.Key]++
	}

	out := make([]string, 0, len(order))
	for _, domain := range order {
		out = append(out, domain+": "+strconv.Itoa(counts[domain]))
	}
	return out
}

func (Executor) Description() string {
	return "Deduplicates URLs per domain and counts unique URLs"
}
