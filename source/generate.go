// Package source generates synthetic transaction logs for exercising the sorter.
package source

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var hexChars = []byte("0123456789abcdef")

// GeneratorConfig controls Generate.
type GeneratorConfig struct {
	Path         string
	TotalRecords int64
	Workers      int
	BatchSize    int
	Seed         int64
	// MaxAmount is the upper bound of generated amounts; the lower bound is 1.
	MaxAmount float64
	// StartTime anchors timestamps, which fall within 100000s after it.
	StartTime time.Time
}

func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		Path:         "input_transactions.txt",
		TotalRecords: 1_000_000,
		Workers:      4,
		BatchSize:    2000,
		Seed:         time.Now().UnixNano(),
		MaxAmount:    1000,
		StartTime:    time.Now().UTC(),
	}
}

func (c GeneratorConfig) validate() error {
	switch {
	case c.Path == "":
		return errors.New("output path must be set")
	case c.TotalRecords < 0:
		return fmt.Errorf("total records must be >= 0, got %d", c.TotalRecords)
	case c.Workers <= 0:
		return fmt.Errorf("workers must be > 0, got %d", c.Workers)
	case c.BatchSize <= 0:
		return fmt.Errorf("batch size must be > 0, got %d", c.BatchSize)
	case c.MaxAmount < 1:
		return fmt.Errorf("max amount must be >= 1, got %v", c.MaxAmount)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Statistics
// ---------------------------------------------------------------------------

type GeneratorStats struct {
	written int64
	bytes   int64
	batches int64
}

func (s *GeneratorStats) recordBatch(records, bytes int64) {
	atomic.AddInt64(&s.written, records)
	atomic.AddInt64(&s.bytes, bytes)
	atomic.AddInt64(&s.batches, 1)
}

func (s *GeneratorStats) snapshot() (written, bytes, batches int64) {
	return atomic.LoadInt64(&s.written), atomic.LoadInt64(&s.bytes), atomic.LoadInt64(&s.batches)
}

// Records is the number of records written so far.
func (s *GeneratorStats) Records() int64 {
	written, _, _ := s.snapshot()
	return written
}

// Bytes is the number of bytes written so far.
func (s *GeneratorStats) Bytes() int64 {
	_, bytes, _ := s.snapshot()
	return bytes
}

// ---------------------------------------------------------------------------
// Generation
// ---------------------------------------------------------------------------

func randFromSet(r *rand.Rand, set []byte, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = set[r.Intn(len(set))]
	}
	return b
}

// appendTransaction appends one line in the sorter's input format.
func appendTransaction(dst []byte, r *rand.Rand, start time.Time, maxAmount float64) []byte {
	ts := start.Add(time.Duration(r.Intn(100_001)) * time.Second).UTC()
	dst = ts.AppendFormat(dst, time.RFC3339)
	dst = append(dst, ",txn"...)
	dst = append(dst, randFromSet(r, hexChars, 8)...)
	dst = append(dst, ",user"...)
	dst = strconv.AppendInt(dst, int64(1000+r.Intn(9000)), 10)
	dst = append(dst, ',')
	dst = strconv.AppendFloat(dst, 1+r.Float64()*(maxAmount-1), 'f', 2, 64)
	return append(dst, '\n')
}

// splitWork spreads total over workers, giving the remainder to the first ones.
func splitWork(total int64, workers int) []int64 {
	out := make([]int64, workers)
	per := total / int64(workers)
	rem := total % int64(workers)
	for i := range out {
		out[i] = per
		if int64(i) < rem {
			out[i]++
		}
	}
	return out
}

// Generate writes cfg.TotalRecords synthetic transactions to cfg.Path. Workers
// build batches in parallel; one writer appends them to the file. With a
// single worker the output depends only on Seed and StartTime.
func Generate(ctx context.Context, cfg GeneratorConfig) (*GeneratorStats, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	f, err := os.Create(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", cfg.Path, err)
	}
	w := bufio.NewWriterSize(f, 1<<20)

	logger := zap.L().Named("generate")
	stats := &GeneratorStats{}
	start := time.Now()
	batches := make(chan []byte, cfg.Workers)

	producers, pctx := errgroup.WithContext(ctx)
	for worker, n := range splitWork(cfg.TotalRecords, cfg.Workers) {
		worker, n := worker, n
		producers.Go(func() error {
			r := rand.New(rand.NewSource(cfg.Seed + int64(worker)))
			buf := make([]byte, 0, cfg.BatchSize*64)
			inBatch := 0
			for i := int64(0); i < n; i++ {
				buf = appendTransaction(buf, r, cfg.StartTime, cfg.MaxAmount)
				inBatch++
				if inBatch == cfg.BatchSize || i == n-1 {
					select {
					case batches <- buf:
					case <-pctx.Done():
						return pctx.Err()
					}
					buf = make([]byte, 0, cfg.BatchSize*64)
					inBatch = 0
				}
			}
			return nil
		})
	}

	writeErr := make(chan error, 1)
	go func() {
		var err error
		for b := range batches {
			if err != nil {
				continue
			}
			if _, err = w.Write(b); err != nil {
				err = fmt.Errorf("write %s: %w", cfg.Path, err)
				continue
			}
			recs := int64(countLines(b))
			stats.recordBatch(recs, int64(len(b)))
			if written, _, _ := stats.snapshot(); written%1_000_000 < recs {
				logger.Info("progress", zap.Int64("records", written), zap.Float64("rate", float64(written)/time.Since(start).Seconds()))
			}
		}
		writeErr <- err
	}()

	perr := producers.Wait()
	close(batches)
	werr := <-writeErr

	err = errors.Join(perr, werr, w.Flush(), f.Close())
	if err != nil {
		return stats, err
	}

	written, bytes, _ := stats.snapshot()
	logger.Info("done",
		zap.Int64("records", written),
		zap.String("size", humanize.IBytes(uint64(bytes))),
		zap.Duration("elapsed", time.Since(start).Round(time.Millisecond)),
		zap.String("path", cfg.Path))
	return stats, nil
}

func countLines(b []byte) int {
	n := 0
	for _, c := range b {
		if c == '\n' {
			n++
		}
	}
	return n
}
