package sort

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"txsort/record"
	"txsort/scratch"
)

// ---------------------------------------------------------------------------
// K-way merge
// ---------------------------------------------------------------------------

// MergeItem is the head record of one run. Run is the run's position in the
// merge input, which breaks ties between equal amounts.
type MergeItem struct {
	Record record.Record
	Run    int
}

func mergeLess(a, b MergeItem) bool {
	if c := record.Compare(a.Record, b.Record); c != 0 {
		return c > 0
	}
	return a.Run < b.Run
}

// mergeFiles merges the sorted files in inputs into dst. Input order matters:
// among equal amounts, records from earlier inputs are written first.
func mergeFiles(ctx context.Context, inputs []string, dst string, compressedIn, compressOut bool, limit int) (n int64, err error) {
	readers := make([]*recordReader, 0, len(inputs))
	defer func() {
		for _, r := range readers {
			err = errors.Join(err, r.Close())
		}
	}()
	for _, path := range inputs {
		r, err := openRecordFile(path, compressedIn, limit)
		if err != nil {
			return 0, err
		}
		readers = append(readers, r)
	}

	out, err := createRecordFile(dst, compressOut)
	if err != nil {
		return 0, err
	}
	defer func() {
		err = errors.Join(err, out.Close())
	}()

	pq := NewPriorityQueue(len(readers), mergeLess)
	for i, r := range readers {
		rec, ok, err := r.Next()
		if err != nil {
			return 0, err
		}
		if !ok {
			continue
		}
		if err := pq.Push(MergeItem{Record: rec, Run: i}); err != nil {
			return 0, err
		}
	}

	for pq.Len() > 0 {
		if n%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return n, err
			}
		}

		item, _ := pq.Pop()
		if err := out.Write(item.Record); err != nil {
			return n, err
		}
		n++

		rec, ok, err := readers[item.Run].Next()
		if err != nil {
			return n, err
		}
		if ok {
			if err := pq.Push(MergeItem{Record: rec, Run: item.Run}); err != nil {
				return n, err
			}
		}
	}
	return n, nil
}

// mergeRuns merges runs into output. When there are more runs than maxOpen,
// consecutive groups are merged into intermediate runs first, so no pass holds
// more than maxOpen run files open. It returns the number of merge passes.
func mergeRuns(ctx context.Context, dir *scratch.Dir, runs []scratch.Run, output string, maxOpen int, compress bool) (int, int64, error) {
	if maxOpen < 2 {
		return 0, 0, fmt.Errorf("max open runs must be >= 2, got %d", maxOpen)
	}

	paths := make([]string, len(runs))
	for i, r := range runs {
		paths[i] = r.Path
	}

	logger := zap.L().Named("merge")
	passes := 0
	for len(paths) > maxOpen {
		passes++
		start := time.Now()
		next := make([]string, 0, (len(paths)+maxOpen-1)/maxOpen)
		for i := 0; i < len(paths); i += maxOpen {
			group := paths[i:min(i+maxOpen, len(paths))]
			dst := dir.NewRunPath(fmt.Sprintf("merge%d", passes), len(next))
			if _, err := mergeFiles(ctx, group, dst, compress, compress, maxOpen); err != nil {
				return passes, 0, errors.Join(err, dir.Remove(dst))
			}
			for _, p := range group {
				if err := dir.Remove(p); err != nil {
					return passes, 0, ioErr("remove", p, err)
				}
			}
			next = append(next, dst)
		}
		logger.Info("pass done", zap.Int("pass", passes), zap.Int("in", len(paths)), zap.Int("out", len(next)), zap.Duration("elapsed", time.Since(start).Round(time.Millisecond)))
		paths = next
	}

	passes++
	start := time.Now()
	logger.Info("final pass", zap.Int("runs", len(paths)), zap.String("output", output))
	n, err := mergeFiles(ctx, paths, output, compress, false, maxOpen)
	if err != nil {
		return passes, n, err
	}
	elapsed := time.Since(start)
	logger.Info("done", zap.Int64("records", n), zap.Duration("elapsed", elapsed), zap.Float64("rate", float64(n)/max(elapsed.Seconds(), 1e-9)))
	return passes, n, nil
}
