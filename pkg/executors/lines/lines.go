// Package lines holds the types shared by the line oriented executors.
package lines

import (
	"bufio"
	"io"
	"iter"
	"strconv"
	"strings"

	"pkg.jsn.cam/diskreduce/pkg/diskreduce"
)

// Line is one line of an input file. Its identity is the file and the line
// number, so reprocessing a file replaces what it contributed before.
type Line struct {
	Source string `json:"source"`
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// ID returns "source:number".
func (l Line) ID() string {
	return l.Source + ":" + strconv.Itoa(l.Number)
}

// KeyValue is the value type of every line executor.
type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Emitter is the emit callback of a line executor's Map.
type Emitter = diskreduce.Emitter[KeyValue]

// Executor is a task over lines that can describe itself.
type Executor interface {
	diskreduce.Task[Line, KeyValue]
	diskreduce.Describer
}

// Formatter is implemented by executors whose stored values need converting
// before they are shown, such as running sums.
type Formatter interface {
	Format(values []KeyValue) []string
}

// Base provides the ReduceKey and DocumentID most executors share.
type Base struct{}

func (Base) ReduceKey(kv KeyValue) string { return kv.Key }

func (Base) DocumentID(l Line) string { return l.ID() }

// Reader turns an io.Reader into a sequence of lines. Like bufio.Scanner, it
// reports the first read error through Err once the sequence is exhausted.
type Reader struct {
	source string
	r      io.Reader
	err    error
}

func NewReader(source string, r io.Reader) *Reader {
	return &Reader{source: source, r: r}
}

// All yields every non-blank line, numbered from 1.
func (r *Reader) All() iter.Seq[Line] {
	return func(yield func(Line) bool) {
		scanner := bufio.NewScanner(r.r)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		n := 0
		for scanner.Scan() {
			n++
			text := scanner.Text()
			if strings.TrimSpace(text) == "" {
				continue
			}
			if !yield(Line{Source: r.source, Number: n, Text: text}) {
				return
			}
		}
		r.err = scanner.Err()
	}
}

func (r *Reader) Err() error {
	return r.err
}

// SumCounts adds up integer values per key, keeping first-seen key order.
// Values that do not parse count as zero.
func SumCounts(values []KeyValue) []KeyValue {
	totals := make(map[string]int64)
	var order []string
	for _, kv := range values {
		if _, ok := totals[kv.Key]; !ok {
			order = append(order, kv.Key)
		}
		n, _ := strconv.ParseInt(kv.Value, 10, 64)
		totals[kv.Key] += n
	}

	out := make([]KeyValue, 0, len(order))
	for _, key := range order {
		out = append(out, KeyValue{Key: key, Value: strconv.FormatInt(totals[key], 10)})
	}
	return out
}
