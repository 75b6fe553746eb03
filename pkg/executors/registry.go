// Package executors is the registry of the line oriented executors the
// command line tool can run.
package executors

import (
	"slices"

	"github.com/pkg/errors"
	"pkg.jsn.cam/diskreduce/pkg/executors/actioncount"
	"pkg.jsn.cam/diskreduce/pkg/executors/average"
	"pkg.jsn.cam/diskreduce/pkg/executors/lines"
	"pkg.jsn.cam/diskreduce/pkg/executors/maxvalue"
	"pkg.jsn.cam/diskreduce/pkg/executors/statecount"
	"pkg.jsn.cam/diskreduce/pkg/executors/urldedup"
	"pkg.jsn.cam/diskreduce/pkg/executors/wordcount"
)

// ErrUnknownExecutor is returned for names missing from the registry.
var ErrUnknownExecutor = errors.New("unknown executor")

var Executors = map[string]lines.Executor{
	"wordcount":   wordcount.Executor{},
	"actioncount": actioncount.Executor{},
	"maxvalue":    maxvalue.Executor{},
	"urldedup":    urldedup.Executor{},
	"average":     average.Executor{},
	"statecount":  statecount.Executor{},
}

func IsValidExecutor(name string) bool {
	_, exists := Executors[name]
	return exists
}

func GetExecutor(name string) (lines.Executor, error) {
	if executor, exists := Executors[name]; exists {
		return executor, nil
	}
	return nil, errors.Wrapf(ErrUnknownExecutor, "%q", name)
}

// ListExecutors returns the registered names, sorted.
func ListExecutors() []string {
	names := make([]string, 0, len(Executors))
	for name := range Executors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func GetDescription(name string) (string, error) {
	executor, err := GetExecutor(name)
	if err != nil {
		return "", err
	}
	return executor.Description(), nil
}

// Format renders final values for display, using the executor's Formatter
// when it has one.
func Format(executor lines.Executor, values []lines.KeyValue) []string {
	if f, ok := executor.(lines.Formatter); ok {
		return f.Format(values)
	}
	out := make([]string, 0, len(values))
	for _, kv := range values {
		out = append(out, kv.Key+": "+kv.Value)
	}
	return out
}
