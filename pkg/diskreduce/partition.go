package diskreduce

import (
	"fmt"
	"iter"
	"slices"
)

// Partition lazily splits seq into chunks of at most size elements, keeping
// input order. Only the last chunk may be shorter.
func Partition[T any](seq iter.Seq[T], size int) iter.Seq[[]T] {
	if size < 1 {
		panic(fmt.Sprintf("diskreduce: partition size must be positive, got %d", size))
	}

	return func(yield func([]T) bool) {
		if seq == nil {
			return
		}
		chunk := make([]T, 0, size)
		for v := range seq {
			chunk = append(chunk, v)
			if len(chunk) < size {
				continue
			}
			if !yield(chunk) {
				return
			}
			chunk = make([]T, 0, size)
		}
		if len(chunk) > 0 {
			yield(chunk)
		}
	}
}

// PartitionSlice is Partition for an in-memory slice.
func PartitionSlice[T any](items []T, size int) [][]T {
	return slices.Collect(Partition(slices.Values(items), size))
}
