package sort

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"

	"txsort/record"
)

const writeBufSize = 1 << 20

// ---------------------------------------------------------------------------
// Line-oriented record files: sorted runs and the final output. Runs may be
// zstd-compressed; the output never is.
// ---------------------------------------------------------------------------

type recordWriter struct {
	path string
	f    *os.File
	zw   *zstd.Encoder
	w    *bufio.Writer
	n    int64
}

func createRecordFile(path string, compress bool) (*recordWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, ioErr("create", path, err)
	}
	rw := &recordWriter{path: path, f: f}

	var dst io.Writer = f
	if compress {
		zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest), zstd.WithEncoderConcurrency(1))
		if err != nil {
			f.Close()
			return nil, ioErr("create", path, err)
		}
		rw.zw = zw
		dst = zw
	}
	rw.w = bufio.NewWriterSize(dst, writeBufSize)
	return rw, nil
}

func (rw *recordWriter) Write(r record.Record) error {
	if _, err := rw.w.WriteString(r.String()); err != nil {
		return ioErr("write", rw.path, err)
	}
	if err := rw.w.WriteByte('\n'); err != nil {
		return ioErr("write", rw.path, err)
	}
	rw.n++
	return nil
}

// Close flushes and closes the file. It must be called exactly once.
func (rw *recordWriter) Close() error {
	err := rw.w.Flush()
	if rw.zw != nil {
		err = errors.Join(err, rw.zw.Close())
	}
	err = errors.Join(err, rw.f.Close())
	return ioErr("close", rw.path, err)
}

type recordReader struct {
	path string
	f    *os.File
	zr   *zstd.Decoder
	sc   *bufio.Scanner
	line int
}

func openRecordFile(path string, compressed bool, limit int) (*recordReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, openErr(path, limit, err)
	}
	rr := &recordReader{path: path, f: f}

	var src io.Reader = f
	if compressed {
		zr, err := zstd.NewReader(f, zstd.WithDecoderConcurrency(1))
		if err != nil {
			f.Close()
			return nil, ioErr("open", path, err)
		}
		rr.zr = zr
		src = zr
	}
	rr.sc = bufio.NewScanner(src)
	rr.sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return rr, nil
}

// Next returns the next record; ok is false at end of file.
func (rr *recordReader) Next() (r record.Record, ok bool, err error) {
	for rr.sc.Scan() {
		rr.line++
		text := rr.sc.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		r, err = record.Parse(text)
		if err != nil {
			var mre *record.MalformedRecordError
			if errors.As(err, &mre) {
				return r, false, mre.At(rr.path, rr.line)
			}
			return r, false, err
		}
		return r, true, nil
	}
	if err := rr.sc.Err(); err != nil {
		return r, false, ioErr("read", rr.path, err)
	}
	return r, false, nil
}

func (rr *recordReader) Close() error {
	if rr.zr != nil {
		rr.zr.Close()
	}
	return ioErr("close", rr.path, rr.f.Close())
}
