package sort

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"txsort/record"
)

const (
	scanBufSize = 256 * 1024
	maxLineSize = 1 << 20
)

// Chunk is a batch of input records waiting to be sorted. Index is the
// chunk's position in the input and becomes the ordinal of its run.
type Chunk struct {
	Index   int
	Records []record.Record
	Bytes   int64
}

// ChunkProducer cuts an input stream into chunks of roughly target bytes.
// A chunk is closed once it reaches target, so the last line may overshoot;
// lines are never split and every chunk holds at least one record.
type ChunkProducer struct {
	sc     *bufio.Scanner
	path   string
	target int64

	line    int
	seq     uint64
	index   int
	bytes   int64
	advance int
	done    bool
}

// NewChunkProducer reads r. path is only used in error messages.
func NewChunkProducer(r io.Reader, path string, target int64) (*ChunkProducer, error) {
	if target <= 0 {
		return nil, fmt.Errorf("chunk size must be > 0, got %d", target)
	}
	p := &ChunkProducer{sc: bufio.NewScanner(r), path: path, target: target}
	p.sc.Buffer(make([]byte, 0, scanBufSize), maxLineSize)
	p.sc.Split(p.scanLines)
	return p, nil
}

// scanLines is bufio.ScanLines, remembering how many raw bytes the last
// line took including its terminator.
func (p *ChunkProducer) scanLines(data []byte, atEOF bool) (int, []byte, error) {
	advance, token, err := bufio.ScanLines(data, atEOF)
	if token != nil {
		p.advance = advance
	}
	return advance, token, err
}

// Next returns the next chunk, or io.EOF once the input is exhausted.
func (p *ChunkProducer) Next() (*Chunk, error) {
	if p.done {
		return nil, io.EOF
	}

	c := &Chunk{Index: p.index}
	for len(c.Records) == 0 || c.Bytes < p.target {
		if !p.sc.Scan() {
			p.done = true
			if err := p.sc.Err(); err != nil {
				if errors.Is(err, bufio.ErrTooLong) {
					return nil, (&record.MalformedRecordError{Reason: "line longer than 1 MiB", Err: err}).At(p.path, p.line+1)
				}
				return nil, ioErr("read", p.path, err)
			}
			break
		}
		p.line++
		text := p.sc.Text()
		n := int64(p.advance)
		c.Bytes += n
		p.bytes += n

		if strings.TrimSpace(text) == "" {
			continue
		}
		r, err := record.Parse(text)
		if err != nil {
			var mre *record.MalformedRecordError
			if errors.As(err, &mre) {
				return nil, mre.At(p.path, p.line)
			}
			return nil, err
		}
		r.Seq = p.seq
		p.seq++
		c.Records = append(c.Records, r)
	}

	if len(c.Records) == 0 {
		return nil, io.EOF
	}
	p.index++
	return c, nil
}

// Records is the number of records produced so far.
func (p *ChunkProducer) Records() uint64 { return p.seq }

// BytesRead is the number of input bytes consumed so far.
func (p *ChunkProducer) BytesRead() int64 { return p.bytes }
