package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v2"
	"pkg.jsn.cam/diskreduce/pkg/executors"
	"pkg.jsn.cam/diskreduce/pkg/executors/lines"
	"pkg.jsn.cam/diskreduce/pkg/storage"
)

func runCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "map and reduce input files; lines seen before replace their earlier contribution",
		ArgsUsage: "FILE...",
		Flags: []cli.Flag{
			executorFlag(),
			&cli.BoolFlag{Name: "no-progress", Usage: "do not draw a progress bar"},
		},
		Action: func(c *cli.Context) error {
			s, err := openSession(c)
			if err != nil {
				return err
			}
			defer s.Close()

			if c.NArg() == 0 {
				// Nothing new: finish whatever an interrupted run left behind.
				return s.engine.Execute(c.Context, nil)
			}

			for _, path := range c.Args().Slice() {
				if err := runFile(c, s, path); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func runFile(c *cli.Context, s *session, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open input %s", path)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return errors.Wrapf(err, "stat input %s", path)
	}

	start := time.Now()
	var reader *lines.Reader
	if c.Bool("no-progress") {
		reader = lines.NewReader(path, f)
	} else {
		bar := progressbar.DefaultBytes(info.Size(), "mapping "+path)
		progress := progressbar.NewReader(f, bar)
		reader = lines.NewReader(path, &progress)
		defer bar.Finish()
	}

	if err := s.engine.Execute(c.Context, reader.All()); err != nil {
		return errors.Wrapf(err, "execute %s", path)
	}
	if err := reader.Err(); err != nil {
		return errors.Wrapf(err, "read input %s", path)
	}

	fmt.Printf("\nProcessed %s (%s) in %v\n", path, humanize.Bytes(uint64(info.Size())), time.Since(start).Round(time.Millisecond))
	return nil
}

func queryCommand() *cli.Command {
	return &cli.Command{
		Name:      "query",
		Usage:     "print the final result of grouping keys",
		ArgsUsage: "KEY...",
		Flags:     []cli.Flag{executorFlag()},
		Action: func(c *cli.Context) error {
			s, err := openSession(c)
			if err != nil {
				return err
			}
			defer s.Close()

			for _, key := range c.Args().Slice() {
				values, err := s.engine.Query(c.Context, key)
				if err != nil {
					return err
				}
				if len(values) == 0 {
					fmt.Printf("%-30s (no result)\n", key)
					continue
				}
				for _, line := range executors.Format(s.executor, values) {
					fmt.Println(line)
				}
			}
			return nil
		},
	}
}

func keysCommand() *cli.Command {
	return &cli.Command{
		Name:  "keys",
		Usage: "list grouping keys with a final result",
		Flags: []cli.Flag{
			executorFlag(),
			&cli.BoolFlag{Name: "values", Usage: "print each key's result too"},
		},
		Action: func(c *cli.Context) error {
			s, err := openSession(c)
			if err != nil {
				return err
			}
			defer s.Close()

			keys, err := s.engine.Keys(c.Context)
			if err != nil {
				return err
			}
			if len(keys) == 0 {
				fmt.Println("No results yet")
				return nil
			}

			for _, key := range keys {
				if !c.Bool("values") {
					fmt.Println(key)
					continue
				}
				values, err := s.engine.Query(c.Context, key)
				if err != nil {
					return err
				}
				fmt.Printf("%-30s %s\n", key, strings.Join(executors.Format(s.executor, values), ", "))
			}
			return nil
		},
	}
}

func deleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "forget everything stored for grouping keys",
		ArgsUsage: "KEY...",
		Flags:     []cli.Flag{executorFlag()},
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return cli.Exit("at least one key is required", 1)
			}
			s, err := openSession(c)
			if err != nil {
				return err
			}
			defer s.Close()

			for _, key := range c.Args().Slice() {
				if err := s.engine.Delete(c.Context, key); err != nil {
					return err
				}
				fmt.Printf("Deleted %s\n", key)
			}
			return nil
		},
	}
}

func statsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "show what the store holds",
		Flags: []cli.Flag{executorFlag()},
		Action: func(c *cli.Context) error {
			s, err := openSession(c)
			if err != nil {
				return err
			}
			defer s.Close()

			st, err := s.engine.Stats(c.Context)
			if err != nil {
				return err
			}

			fmt.Printf("Store:\n")
			fmt.Printf("  Executor:   %s\n", s.name)
			fmt.Printf("  Backend:    %s\n", s.cfg.Backend)
			fmt.Printf("  Location:   %s\n", s.cfg.DataDir)
			fmt.Printf("  Codec:      %s\n", st.Codec)
			if st.SizeBytes > 0 {
				fmt.Printf("  Size:       %s\n", humanize.Bytes(uint64(st.SizeBytes)))
			}
			fmt.Printf("  Final keys: %s\n", humanize.Comma(int64(st.Finals)))
			fmt.Printf("  Documents:  %s\n", humanize.Comma(int64(st.Documents)))

			fmt.Printf("\nRecords:\n")
			areas := make([]string, 0, len(st.Records))
			for area := range st.Records {
				areas = append(areas, area)
			}
			sort.Strings(areas)
			for _, area := range areas {
				fmt.Printf("  %-12s %s\n", area, humanize.Comma(int64(st.Records[area])))
			}

			fmt.Printf("\nScheduled buckets:\n")
			for level := 0; level < len(st.Markers); level++ {
				fmt.Printf("  level %d      %s\n", level, humanize.Comma(int64(st.Markers[level])))
			}
			return nil
		},
	}
}

func compactCommand() *cli.Command {
	return &cli.Command{
		Name:  "compact",
		Usage: "reclaim free space in the store",
		Flags: []cli.Flag{executorFlag()},
		Action: func(c *cli.Context) error {
			s, err := openSession(c)
			if err != nil {
				return err
			}
			defer s.Close()

			compacter, ok := s.backend.(storage.Compacter)
			if !ok {
				return cli.Exit(fmt.Sprintf("the %s backend cannot be compacted", s.cfg.Backend), 1)
			}

			before := size(s.backend)
			start := time.Now()
			if err := compacter.Compact(); err != nil {
				return errors.Wrap(err, "compact")
			}
			after := size(s.backend)

			s.log.WithField("action", "compact").Info("Compaction complete")
			fmt.Printf("Compacted %s: %s -> %s in %v\n", s.cfg.DataDir,
				humanize.Bytes(uint64(before)), humanize.Bytes(uint64(after)), time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
}

func size(b storage.Backend) int64 {
	if sizer, ok := b.(storage.Sizer); ok {
		if n, err := sizer.Size(); err == nil {
			return n
		}
	}
	return 0
}

func executorsCommand() *cli.Command {
	return &cli.Command{
		Name:  "executors",
		Usage: "list available executors",
		Action: func(c *cli.Context) error {
			fmt.Printf("%-15s %s\n", "NAME", "DESCRIPTION")
			for _, name := range executors.ListExecutors() {
				desc, err := executors.GetDescription(name)
				if err != nil {
					return err
				}
				fmt.Printf("%-15s %s\n", name, desc)
			}
			return nil
		},
	}
}
