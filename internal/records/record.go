package records

import (
	"fmt"

	"github.com/pkg/errors"
)

// Level is a stage of the reduce tree. Level 0 holds map output, levels 1 and
// 2 hold intermediate reductions, and the reduction of level 2 is the final
// result.
type Level int

const (
	LevelMap   Level = 0
	FinalLevel Level = 2
)

// Levels lists every valid level in processing order.
var Levels = []Level{0, 1, 2}

// Validate fails for levels outside {0, 1, 2}.
func (l Level) Validate() error {
	if l < LevelMap || l > FinalLevel {
		return errors.Wrapf(ErrInvalidLevel, "%d", int(l))
	}
	return nil
}

func (l Level) String() string {
	return fmt.Sprintf("L%d", int(l))
}

// Area separates results that still have to be reduced from the ones already
// folded into their parent.
type Area string

const (
	Pending   Area = "pending"
	Processed Area = "processed"
)

// Result is a persisted group of values under a grouping key and bucket.
type Result[V any] struct {
	Key        string `json:"key"`
	ID         string `json:"id"`
	DocumentID string `json:"document_id,omitempty"`
	Bucket     int    `json:"bucket"`
	Level      Level  `json:"level"`
	Values     []V    `json:"values"`

	Location Location `json:"-"`
}

// Final is the terminal aggregate of a grouping key. Parts holds the content
// ids of the level-2 groups folded into Values.
type Final[V any] struct {
	Key    string   `json:"key"`
	Values []V      `json:"values"`
	Parts  []string `json:"parts,omitempty"`
}

// HasPart reports whether the group with the given content id is already
// folded into the final result.
func (f *Final[V]) HasPart(id string) bool {
	for _, p := range f.Parts {
		if p == id {
			return true
		}
	}
	return false
}

// Location is where a result is stored. It is only meaningful to the Store.
type Location struct {
	area       Area
	level      Level
	storageKey []byte
}

// Area returns the area the result is stored in.
func (l Location) Area() Area { return l.area }

// IsZero reports whether the location was never assigned.
func (l Location) IsZero() bool { return l.storageKey == nil }

func (l Location) String() string {
	return fmt.Sprintf("%s_%d/%q", l.area, int(l.level), l.storageKey)
}
