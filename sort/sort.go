// Package sort implements an external sort of transaction logs by amount,
// largest first. Input is cut into chunks that are sorted concurrently and
// spilled to disk as runs; the runs are then merged into the output with a
// bounded k-way merge.
package sort

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"txsort/scratch"
)

// Options controls one Sort call.
type Options struct {
	// ChunkSizeBytes is the target amount of raw input per chunk.
	ChunkSizeBytes int64
	// MaxWorkers is the hard limit on chunks being sorted at the same time.
	MaxWorkers int
	// MaxOpenRuns caps the run files a single merge pass holds open.
	MaxOpenRuns int
	// TempDir is the scratch directory. It is created if missing and removed,
	// with everything in it, when Sort returns.
	TempDir string
	// CompressRuns stores intermediate runs zstd-compressed.
	CompressRuns bool
}

const (
	DefaultChunkSizeBytes = 50 << 20
	DefaultMaxOpenRuns    = 256
	DefaultTempDir        = "temp_chunks"
)

// DefaultOptions returns the defaults: 50 MiB chunks, one worker per CPU.
func DefaultOptions() Options {
	return Options{
		ChunkSizeBytes: DefaultChunkSizeBytes,
		MaxWorkers:     runtime.NumCPU(),
		MaxOpenRuns:    DefaultMaxOpenRuns,
		TempDir:        DefaultTempDir,
	}
}

func (o Options) validate() error {
	switch {
	case o.ChunkSizeBytes <= 0:
		return fmt.Errorf("chunk size must be > 0, got %d", o.ChunkSizeBytes)
	case o.MaxWorkers <= 0:
		return fmt.Errorf("max workers must be > 0, got %d", o.MaxWorkers)
	case o.MaxOpenRuns < 2:
		return fmt.Errorf("max open runs must be >= 2, got %d", o.MaxOpenRuns)
	case o.TempDir == "":
		return errors.New("temp dir must be set")
	}
	return nil
}

// Stats describes a finished sort.
type Stats struct {
	Records     int64
	InputBytes  int64
	Chunks      int
	// Runs is the number of sorted runs phase 1 left for the merge.
	Runs        int
	MergePasses int
}

// Sort sorts the records of inputPath into outputPath by amount, largest
// first. Records with equal amounts keep their input order.
//
// If the merge phase fails the output file is removed; after any error the
// output must not be trusted. The scratch directory is removed on every path.
func Sort(ctx context.Context, inputPath, outputPath string, opts Options) (st Stats, err error) {
	if err := opts.validate(); err != nil {
		return st, err
	}

	in, err := os.Open(inputPath)
	if err != nil {
		return st, ioErr("open", inputPath, err)
	}
	defer in.Close()

	logger := zap.L().Named("sort")
	outputTouched := false
	defer func() {
		if err != nil && outputTouched {
			if rerr := os.Remove(outputPath); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
				logger.Warn("could not remove partial output", zap.String("path", outputPath), zap.Error(rerr))
			}
		}
	}()

	logger.Info("start",
		zap.String("input", inputPath),
		zap.String("output", outputPath),
		zap.String("chunk", humanize.IBytes(uint64(opts.ChunkSizeBytes))),
		zap.Int("workers", opts.MaxWorkers),
		zap.Int("max_open_runs", opts.MaxOpenRuns))

	err = scratch.With(opts.TempDir, func(dir *scratch.Dir) error {
		// =====================================================================
		// PHASE 1: Chunk & Sort
		// =====================================================================
		phase1Start := time.Now()
		chunks, err := sortChunks(ctx, in, inputPath, dir, opts, &st)
		if err != nil {
			return err
		}
		st.Chunks = chunks
		logger.Info("phase 1 (chunk & sort)",
			zap.Int64("records", st.Records),
			zap.Int("chunks", st.Chunks),
			zap.String("input", humanize.IBytes(uint64(st.InputBytes))),
			zap.Duration("elapsed", time.Since(phase1Start)))

		// =====================================================================
		// PHASE 2: Merge
		// =====================================================================
		phase2Start := time.Now()
		runs := dir.Runs()
		st.Runs = len(runs)
		outputTouched = true
		passes, n, err := mergeRuns(ctx, dir, runs, outputPath, opts.MaxOpenRuns, opts.CompressRuns)
		st.MergePasses = passes
		if err != nil {
			return err
		}
		if n != st.Records {
			return fmt.Errorf("merge wrote %d records, expected %d", n, st.Records)
		}
		logger.Info("phase 2 (merge)", zap.Int("passes", passes), zap.Duration("elapsed", time.Since(phase2Start)))
		return nil
	})
	return st, err
}

// sortChunks feeds chunks from r to at most opts.MaxWorkers concurrent
// sorters. The producer keeps reading while workers sort; it blocks when the
// pool is full. The first failure cancels everything still running.
func sortChunks(ctx context.Context, r io.Reader, path string, dir *scratch.Dir, opts Options, st *Stats) (int, error) {
	prod, err := NewChunkProducer(r, path, opts.ChunkSizeBytes)
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.MaxWorkers)

	chunks := 0
	var prodErr error
	for gctx.Err() == nil {
		c, err := prod.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			prodErr = err
			cancel()
			break
		}
		chunks++
		g.Go(func() error {
			err := sortChunkFn(gctx, c, dir, opts.CompressRuns)
			c.Records = nil
			return err
		})
	}

	werr := g.Wait()
	st.Records = int64(prod.Records())
	st.InputBytes = prod.BytesRead()
	switch {
	case prodErr != nil:
		return chunks, prodErr
	case werr != nil:
		return chunks, werr
	}
	return chunks, ctx.Err()
}
