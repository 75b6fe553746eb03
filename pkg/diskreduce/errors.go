package diskreduce

import (
	"github.com/pkg/errors"
	"pkg.jsn.cam/diskreduce/internal/records"
)

// Sentinel errors for common error conditions
var (
	// Configuration errors
	ErrInvalidBatchSize = errors.New("invalid batch size")
	ErrInvalidPageSize  = errors.New("invalid page size")
	ErrInvalidWorkers   = errors.New("invalid worker count")
	ErrNilTask          = errors.New("task is nil")
	ErrNilBackend       = errors.New("backend is nil")

	// Record errors
	ErrInvalidLevel      = records.ErrInvalidLevel
	ErrInvalidKey        = records.ErrInvalidKey
	ErrInvalidDocumentID = records.ErrInvalidDocumentID
)
