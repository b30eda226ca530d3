package sort

import (
	"cmp"
	"context"
	"errors"
	"slices"

	"go.uber.org/zap"

	"txsort/record"
	"txsort/scratch"
)

// ctxCheckEvery is how many records are written between context checks.
const ctxCheckEvery = 4096

// byAmountDesc orders records by amount, largest first, then by input position.
func byAmountDesc(a, b record.Record) int {
	if c := record.Compare(b, a); c != 0 {
		return c
	}
	return cmp.Compare(a.Seq, b.Seq)
}

// sortChunkFn is the worker body run by sortChunks; tests wrap it.
var sortChunkFn = sortChunk

// sortChunk sorts c in memory and writes it as one run in dir. The run is
// registered only once it is completely on disk.
func sortChunk(ctx context.Context, c *Chunk, dir *scratch.Dir, compress bool) error {
	slices.SortFunc(c.Records, byAmountDesc)

	path := dir.NewRunPath("chunk", c.Index)
	if err := writeRun(ctx, path, c.Records, compress); err != nil {
		return errors.Join(err, dir.Remove(path))
	}
	dir.Register(c.Index, path)

	zap.L().Named("chunk").Debug("sorted", zap.Int("chunk", c.Index), zap.Int("records", len(c.Records)), zap.String("run", path))
	return nil
}

func writeRun(ctx context.Context, path string, recs []record.Record, compress bool) error {
	w, err := createRecordFile(path, compress)
	if err != nil {
		return err
	}
	for i, r := range recs {
		if i%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return errors.Join(err, w.Close())
			}
		}
		if err := w.Write(r); err != nil {
			return errors.Join(err, w.Close())
		}
	}
	return w.Close()
}
