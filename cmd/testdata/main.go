// Command testdata writes input files for the diskreduce executors.
package main

import (
	"bufio"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v2"
	"pkg.jsn.cam/diskreduce/cmd/testdata/generator"
)

func main() {
	app := &cli.App{
		Name:  "testdata",
		Usage: "generate input files for an executor (" + strings.Join(generator.List(), ", ") + ")",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "executor", Aliases: []string{"e"}, Value: "actioncount", Usage: "executor whose input format to generate"},
			&cli.Int64Flag{Name: "count", Aliases: []string{"n"}, Usage: "number of lines (default: the generator's own)"},
			&cli.IntFlag{Name: "users", Usage: "number of distinct users or people"},
			&cli.IntFlag{Name: "keys", Usage: "number of distinct metric keys or domains"},
			&cli.Uint64Flag{Name: "seed", Usage: "random seed (default: time based)"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Value: "var/testdata.log", Usage: "output file path"},
			&cli.BoolFlag{Name: "describe", Usage: "print the data format and exit"},
		},
		Action: generate,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func generate(c *cli.Context) error {
	gen, err := generator.Get(c.String("executor"), generator.Options{
		Users: c.Int("users"),
		Keys:  c.Int("keys"),
	})
	if err != nil {
		return err
	}
	if c.Bool("describe") {
		fmt.Println(gen.Description())
		return nil
	}

	seed := c.Uint64("seed")
	if !c.IsSet("seed") {
		seed = uint64(time.Now().UnixNano())
	}
	gen.Init(rand.New(rand.NewPCG(seed, seed>>1)))

	count := c.Int64("count")
	if count <= 0 {
		count = gen.DefaultCount()
	}

	path := c.String("output")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "create output directory")
	}
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	bar := progressbar.Default(count, "generating")
	for i := int64(0); i < count; i++ {
		if err := gen.WriteLine(w); err != nil {
			return errors.Wrapf(err, "write line %d", i+1)
		}
		if i%1024 == 0 {
			_ = bar.Set64(i)
		}
	}
	_ = bar.Finish()
	if err := w.Flush(); err != nil {
		return errors.Wrapf(err, "flush %s", path)
	}

	info, err := file.Stat()
	if err != nil {
		return errors.Wrapf(err, "stat %s", path)
	}
	fmt.Printf("Wrote %s lines (%s) to %s\n", humanize.Comma(count), humanize.Bytes(uint64(info.Size())), path)
	return nil
}
