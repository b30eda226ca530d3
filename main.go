// Command txsort sorts large transaction logs by amount, largest first,
// using an external merge sort.
//
//	txsort sort [flags] [input] [output]
//	txsort generate [flags] [output]
//	txsort verify <file>
//	txsort publish [flags] [file]
//	txsort capture [flags] [file]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"txsort/config"
	"txsort/sort"
	"txsort/source"
	"txsort/stream"
)

const (
	defaultInput  = "input_transactions.txt"
	defaultOutput = "sorted_transactions.txt"
)

var errUsage = errors.New("usage: txsort <sort|generate|verify|publish|capture> [flags] [args]")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "txsort: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := cfg.Logger()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck
	defer zap.ReplaceGlobals(logger)()

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "sort":
		return runSort(ctx, cfg, rest)
	case "generate":
		return runGenerate(ctx, rest)
	case "verify":
		return runVerify(rest)
	case "publish":
		return runPublish(ctx, cfg, rest)
	case "capture":
		return runCapture(ctx, cfg, rest)
	default:
		return fmt.Errorf("unknown command %q\n%w", cmd, errUsage)
	}
}

// arg returns the i-th positional argument or def.
func arg(fs *flag.FlagSet, i int, def string) string {
	if fs.NArg() > i {
		return fs.Arg(i)
	}
	return def
}

func runSort(ctx context.Context, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("sort", flag.ContinueOnError)
	cfg.RegisterFlags(fs)
	verify := fs.Bool("verify", false, "check the output order after sorting")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	input, output := arg(fs, 0, defaultInput), arg(fs, 1, defaultOutput)

	start := time.Now()
	st, err := sort.Sort(ctx, input, output, cfg.SortOptions())
	if err != nil {
		return err
	}
	zap.L().Info("sorted",
		zap.Int64("records", st.Records),
		zap.String("input", humanize.IBytes(uint64(st.InputBytes))),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("chunks", st.Chunks),
		zap.Int("merge_passes", st.MergePasses),
		zap.String("output", output))

	if *verify {
		return verifyFile(output)
	}
	return nil
}

func runGenerate(ctx context.Context, args []string) error {
	gc := source.DefaultGeneratorConfig()
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	fs.Int64Var(&gc.TotalRecords, "total", gc.TotalRecords, "total records to generate")
	fs.IntVar(&gc.Workers, "workers", gc.Workers, "number of generator workers")
	fs.IntVar(&gc.BatchSize, "batch", gc.BatchSize, "records per write batch")
	fs.Int64Var(&gc.Seed, "seed", gc.Seed, "random seed")
	fs.Float64Var(&gc.MaxAmount, "max-amount", gc.MaxAmount, "largest generated amount")
	if err := fs.Parse(args); err != nil {
		return err
	}
	gc.Path = arg(fs, 0, defaultInput)

	_, err := source.Generate(ctx, gc)
	return err
}

func runVerify(args []string) error {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	return verifyFile(arg(fs, 0, defaultOutput))
}

func verifyFile(path string) error {
	res, err := sort.VerifyFile(path)
	if err != nil {
		return err
	}
	if !res.Sorted {
		return fmt.Errorf("%s is not sorted: line %d has a larger amount than the line before it", path, res.FirstViolation)
	}
	zap.L().Info("verified", zap.String("path", path), zap.Int64("records", res.Records))
	return nil
}

func runPublish(ctx context.Context, cfg config.Config, args []string) error {
	pc := stream.DefaultPublishConfig()
	fs := flag.NewFlagSet("publish", flag.ContinueOnError)
	cfg.RegisterKafkaFlags(fs)
	fs.IntVar(&pc.BatchSize, "batch", pc.BatchSize, "messages per batch")
	fs.IntVar(&pc.Retry.MaxAttempts, "retries", pc.Retry.MaxAttempts, "attempts per batch")
	create := fs.Bool("create-topic", true, "create the topic with one partition if missing")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *create {
		if err := stream.CreateTopic(cfg.Brokers, cfg.Topic, 1); err != nil {
			return err
		}
	}

	w := stream.NewWriter(cfg.Brokers, cfg.Topic, pc.BatchSize)
	_, err := stream.Publish(ctx, arg(fs, 0, defaultOutput), w, pc)
	return errors.Join(err, w.Close())
}

func runCapture(ctx context.Context, cfg config.Config, args []string) error {
	cc := stream.DefaultCaptureConfig()
	fs := flag.NewFlagSet("capture", flag.ContinueOnError)
	cfg.RegisterKafkaFlags(fs)
	fs.DurationVar(&cc.IdleTimeout, "idle", cc.IdleTimeout, "stop after this long without messages")
	fs.Int64Var(&cc.Limit, "limit", cc.Limit, "stop after this many records (0 = no limit)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	r := stream.NewReader(cfg.Brokers, cfg.Topic)
	_, err := stream.Capture(ctx, r, arg(fs, 0, defaultInput), cc)
	return errors.Join(err, r.Close())
}
