package records

import "github.com/pkg/errors"

var (
	// ErrInvalidLevel is a programming error: levels are 0, 1 and 2.
	ErrInvalidLevel = errors.New("invalid level")

	// ErrInvalidKey rejects grouping keys that cannot be stored.
	ErrInvalidKey = errors.New("invalid grouping key")

	// ErrInvalidDocumentID rejects document ids that cannot be stored.
	ErrInvalidDocumentID = errors.New("invalid document id")

	// ErrCorruptKey is returned for storage keys that do not follow the layout.
	ErrCorruptKey = errors.New("corrupt storage key")
)
