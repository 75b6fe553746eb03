package generator

import (
	"fmt"
	"io"
	"math/rand/v2"
)

// MetricGenerator writes "key:value" lines for the maxvalue and average executors.
type MetricGenerator struct {
	KeyCount int
	rand     *rand.Rand
}

var metricKeys = []string{
	"temperature",
	"humidity",
	"pressure",
	"cpu_usage",
	"memory_usage",
	"disk_io",
	"network_latency",
	"response_time",
	"error_rate",
	"request_count",
}

func (g *MetricGenerator) Init(r *rand.Rand) {
	g.rand = r
}

func (g *MetricGenerator) WriteLine(w io.Writer) error {
	key := pick(g.rand, metricKeys, g.KeyCount)
	_, err := fmt.Fprintf(w, "%s:%.2f\n", key, g.rand.Float64()*100)
	return err
}

func (g *MetricGenerator) Description() string {
	return "Metric data: key:value (for max/average operations)"
}

func (g *MetricGenerator) DefaultCount() int64 {
	return 1e5
}
