package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
	"pkg.jsn.cam/diskreduce/pkg/diskreduce"
	"pkg.jsn.cam/diskreduce/pkg/storage"
)

var (
	ErrUnknownBackend   = errors.New("unknown backend")
	ErrUnknownCodec     = errors.New("unknown codec")
	ErrUnknownLogLevel  = errors.New("unknown log level")
	ErrUnknownLogFormat = errors.New("unknown log format")
	ErrMissingDataDir   = errors.New("data_dir is required")
)

const (
	BackendBbolt  = "bbolt"
	BackendDir    = "dir"
	BackendMemory = "memory"

	CodecMsgpack = "msgpack"
	CodecJSON    = "json"

	bboltFileName = "diskreduce.db"
)

// Config is the on-disk configuration of the command line tool.
type Config struct {
	DataDir   string `yaml:"data_dir"`
	Backend   string `yaml:"backend"`
	Codec     string `yaml:"codec"`
	BatchSize int    `yaml:"batch_size"`
	PageSize  int    `yaml:"page_size"`
	Workers   int    `yaml:"workers"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Defaults returns the configuration used when no file is given.
func Defaults() Config {
	return Config{
		DataDir:   "var/diskreduce",
		Backend:   BackendBbolt,
		Codec:     CodecMsgpack,
		BatchSize: diskreduce.DefaultBatchSize,
		Workers:   diskreduce.DefaultWorkers,
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Load reads a YAML file on top of the defaults. Keys missing from the file
// keep their default value.
func Load(path string) (Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "read config %s", path)
	}
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}

// Validate reports every problem of the configuration at once.
func (c Config) Validate() error {
	var result *multierror.Error

	switch c.Backend {
	case BackendBbolt, BackendDir:
		if c.DataDir == "" {
			result = multierror.Append(result, ErrMissingDataDir)
		}
	case BackendMemory:
	default:
		result = multierror.Append(result, errors.Wrapf(ErrUnknownBackend, "%q", c.Backend))
	}

	if _, err := c.codec(); err != nil {
		result = multierror.Append(result, err)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		result = multierror.Append(result, errors.Wrapf(ErrUnknownLogLevel, "%q", c.LogLevel))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		result = multierror.Append(result, errors.Wrapf(ErrUnknownLogFormat, "%q", c.LogFormat))
	}

	if err := c.engineConfig().Validate(); err != nil {
		result = multierror.Append(result, err)
	}

	return result.ErrorOrNil()
}

func (c Config) codec() (storage.Codec, error) {
	switch c.Codec {
	case CodecMsgpack:
		return storage.MsgpackCodec{}, nil
	case CodecJSON:
		return storage.JSONCodec{}, nil
	default:
		return nil, errors.Wrapf(ErrUnknownCodec, "%q", c.Codec)
	}
}

func (c Config) engineConfig() diskreduce.Config {
	return diskreduce.Config{
		BatchSize: c.BatchSize,
		PageSize:  c.PageSize,
		Workers:   c.Workers,
	}.WithDefaults()
}

// RecordCodec returns the codec named by the configuration.
func (c Config) RecordCodec() (storage.Codec, error) {
	return c.codec()
}

// Engine returns the executor configuration, logging through logger.
func (c Config) Engine(logger logrus.FieldLogger) (diskreduce.Config, error) {
	codec, err := c.codec()
	if err != nil {
		return diskreduce.Config{}, err
	}
	return diskreduce.Config{
		BatchSize: c.BatchSize,
		PageSize:  c.PageSize,
		Workers:   c.Workers,
		Codec:     codec,
		Logger:    logger,
	}.WithDefaults(), nil
}

// Logger builds the logger described by log_level and log_format.
func (c Config) Logger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, errors.Wrapf(ErrUnknownLogLevel, "%q", c.LogLevel)
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(level)
	switch strings.ToLower(c.LogFormat) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, errors.Wrapf(ErrUnknownLogFormat, "%q", c.LogFormat)
	}
	return logger, nil
}

// OpenBackend opens the storage backend named by the configuration.
func (c Config) OpenBackend() (storage.Backend, error) {
	switch c.Backend {
	case BackendBbolt:
		b, err := storage.NewBboltBackend(filepath.Join(c.DataDir, bboltFileName))
		if err != nil {
			return nil, err
		}
		return b, nil
	case BackendDir:
		b, err := storage.NewDirBackend(c.DataDir)
		if err != nil {
			return nil, err
		}
		return b, nil
	case BackendMemory:
		return storage.NewMemoryBackend(), nil
	default:
		return nil, errors.Wrapf(ErrUnknownBackend, "%q", c.Backend)
	}
}
