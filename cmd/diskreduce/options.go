package main

import (
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"pkg.jsn.cam/diskreduce/internal/config"
	"pkg.jsn.cam/diskreduce/pkg/diskreduce"
	"pkg.jsn.cam/diskreduce/pkg/executors"
	"pkg.jsn.cam/diskreduce/pkg/executors/lines"
	"pkg.jsn.cam/diskreduce/pkg/storage"
)

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "YAML configuration file",
			EnvVars: []string{"DISKREDUCE_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "data-dir",
			Usage:   "directory holding the stores, one per executor",
			EnvVars: []string{"DISKREDUCE_DATA_DIR"},
		},
		&cli.StringFlag{
			Name:  "backend",
			Usage: "storage backend: bbolt, dir or memory",
		},
		&cli.StringFlag{
			Name:  "codec",
			Usage: "record codec: msgpack or json",
		},
		&cli.IntFlag{
			Name:  "batch-size",
			Usage: "inputs per map chunk and fan-in of the reduce tree; fixed once a store has data",
		},
		&cli.IntFlag{
			Name:  "page-size",
			Usage: "results leased per reduce step (defaults to the batch size)",
		},
		&cli.IntFlag{
			Name:  "workers",
			Usage: "grouping keys reduced in parallel",
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "panic, fatal, error, warn, info, debug or trace",
			EnvVars: []string{"DISKREDUCE_LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:  "log-format",
			Usage: "text or json",
		},
	}
}

func executorFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "executor",
		Aliases:  []string{"e"},
		Usage:    "executor to use (see 'diskreduce executors')",
		Required: true,
	}
}

// loadConfig reads the configuration file, if any, and applies flag overrides.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Defaults()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return cfg, err
		}
	}

	if c.IsSet("data-dir") {
		cfg.DataDir = c.String("data-dir")
	}
	if c.IsSet("backend") {
		cfg.Backend = c.String("backend")
	}
	if c.IsSet("codec") {
		cfg.Codec = c.String("codec")
	}
	if c.IsSet("batch-size") {
		cfg.BatchSize = c.Int("batch-size")
	}
	if c.IsSet("page-size") {
		cfg.PageSize = c.Int("page-size")
	}
	if c.IsSet("workers") {
		cfg.Workers = c.Int("workers")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("log-format") {
		cfg.LogFormat = c.String("log-format")
	}

	return cfg, cfg.Validate()
}

// session is an opened store for one executor.
type session struct {
	cfg      config.Config
	log      *logrus.Logger
	name     string
	executor lines.Executor
	backend  storage.Backend
	engine   *diskreduce.Executor[lines.Line, lines.KeyValue]
}

func (s *session) Close() error {
	return s.backend.Close()
}

func openSession(c *cli.Context) (*session, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	logger, err := cfg.Logger()
	if err != nil {
		return nil, err
	}

	name := c.String("executor")
	executor, err := executors.GetExecutor(name)
	if err != nil {
		return nil, err
	}

	// Every executor gets its own store.
	cfg.DataDir = filepath.Join(cfg.DataDir, name)
	backend, err := cfg.OpenBackend()
	if err != nil {
		return nil, errors.Wrapf(err, "open %s backend in %s", cfg.Backend, cfg.DataDir)
	}

	engineCfg, err := cfg.Engine(logger.WithField("executor", name))
	if err != nil {
		backend.Close()
		return nil, err
	}
	engine, err := diskreduce.New[lines.Line, lines.KeyValue](backend, executor, engineCfg)
	if err != nil {
		backend.Close()
		return nil, err
	}

	return &session{
		cfg:      cfg,
		log:      logger,
		name:     name,
		executor: executor,
		backend:  backend,
		engine:   engine,
	}, nil
}
