package diskreduce

import (
	"os"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"pkg.jsn.cam/diskreduce/pkg/storage"
)

const (
	DefaultBatchSize = 1024
	DefaultWorkers   = 4
)

// Config tunes an Executor. Zero values are replaced by WithDefaults.
type Config struct {
	// BatchSize is the number of inputs per map chunk and the fan-in of one
	// level of the reduce tree. It must not change once data is stored.
	BatchSize int
	// PageSize bounds the number of results leased per reduce step.
	PageSize int
	// Workers is the number of grouping keys reduced in parallel.
	Workers int
	// Codec encodes persisted records. Defaults to msgpack.
	Codec storage.Codec
	// Logger defaults to an info level logger on stderr.
	Logger logrus.FieldLogger
}

// WithDefaults returns a copy of c with unset fields filled in.
func (c Config) WithDefaults() Config {
	if c.BatchSize == 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.PageSize == 0 {
		c.PageSize = c.BatchSize
	}
	if c.Workers == 0 {
		c.Workers = DefaultWorkers
	}
	if c.Codec == nil {
		c.Codec = storage.MsgpackCodec{}
	}
	if c.Logger == nil {
		logger := logrus.New()
		logger.SetOutput(os.Stderr)
		logger.SetLevel(logrus.InfoLevel)
		c.Logger = logger
	}
	return c
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var result *multierror.Error
	if c.BatchSize < 1 || c.BatchSize > MaxBatchSize {
		result = multierror.Append(result, errors.Wrapf(ErrInvalidBatchSize, "%d not in [1, %d]", c.BatchSize, MaxBatchSize))
	}
	if c.PageSize < 1 {
		result = multierror.Append(result, errors.Wrapf(ErrInvalidPageSize, "%d", c.PageSize))
	}
	if c.Workers < 1 {
		result = multierror.Append(result, errors.Wrapf(ErrInvalidWorkers, "%d", c.Workers))
	}
	return result.ErrorOrNil()
}
