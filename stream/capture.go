package stream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"txsort/record"
)

// MessageReader is the part of *kafka.Reader Capture needs.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type CaptureConfig struct {
	// IdleTimeout ends the capture when no message arrives for that long.
	IdleTimeout time.Duration
	// Limit stops after that many records; 0 means no limit.
	Limit int64
}

func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{IdleTimeout: 10 * time.Second}
}

// NewReader reads topic from the first offset with a fresh consumer group.
func NewReader(brokers []string, topic string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     fmt.Sprintf("txsort-capture-%d", time.Now().UnixNano()),
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     time.Second,
	})
}

// CaptureStats reports what Capture did.
type CaptureStats struct {
	Records int64
}

// Capture drains r into a new transaction file at path. A message that is not
// a valid record stops the capture with a *record.MalformedRecordError naming
// its offset; the records before it stay in the file. r is not closed.
func Capture(ctx context.Context, r MessageReader, path string, cfg CaptureConfig) (st CaptureStats, err error) {
	if cfg.IdleTimeout <= 0 {
		return st, fmt.Errorf("idle timeout must be > 0, got %v", cfg.IdleTimeout)
	}

	f, err := os.Create(path)
	if err != nil {
		return st, fmt.Errorf("create %s: %w", path, err)
	}
	w := bufio.NewWriterSize(f, 1<<20)
	defer func() {
		err = errors.Join(err, w.Flush(), f.Close())
	}()

	logger := zap.L().Named("capture")
	start := time.Now()
	for cfg.Limit == 0 || st.Records < cfg.Limit {
		rctx, cancel := context.WithTimeout(ctx, cfg.IdleTimeout)
		msg, rerr := r.ReadMessage(rctx)
		cancel()

		if rerr != nil {
			if ctx.Err() != nil {
				return st, ctx.Err()
			}
			if errors.Is(rerr, context.DeadlineExceeded) {
				logger.Info("idle, stopping", zap.Duration("idle", cfg.IdleTimeout))
				break
			}
			return st, fmt.Errorf("read message: %w", rerr)
		}

		rec, perr := record.Parse(string(msg.Value))
		if perr != nil {
			return st, fmt.Errorf("message at offset %d: %w", msg.Offset, perr)
		}
		if _, err := w.WriteString(rec.String()); err != nil {
			return st, fmt.Errorf("write %s: %w", path, err)
		}
		if err := w.WriteByte('\n'); err != nil {
			return st, fmt.Errorf("write %s: %w", path, err)
		}
		st.Records++
	}

	logger.Info("done",
		zap.Int64("records", st.Records),
		zap.Duration("elapsed", time.Since(start).Round(time.Millisecond)),
		zap.String("path", path))
	return st, nil
}
