package generator

import (
	"io"
	"math/rand/v2"
)

// Generator produces input files for the executors.
type Generator interface {
	// Init seeds the generator. Each generator owns its random source.
	Init(r *rand.Rand)

	// WriteLine writes a single line of test data to the writer
	WriteLine(w io.Writer) error

	// Description returns a human-readable description of the data format
	Description() string

	// DefaultCount returns the suggested default number of lines to generate
	DefaultCount() int64
}

// Options parameterises the generators. Zero fields use each generator's default.
type Options struct {
	// Users is the number of distinct users or people.
	Users int
	// Keys is the number of distinct metric keys or domains.
	Keys int
}

func pick[T any](r *rand.Rand, items []T, limit int) T {
	if limit <= 0 || limit > len(items) {
		limit = len(items)
	}
	return items[r.IntN(limit)]
}
