package stream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"txsort/record"
)

// MessageWriter is the part of *kafka.Writer Publish needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type PublishConfig struct {
	BatchSize int
	Retry     RetryConfig
}

func DefaultPublishConfig() PublishConfig {
	return PublishConfig{
		BatchSize: 2000,
		Retry:     DefaultRetryConfig(),
	}
}

// NewWriter returns a synchronous writer for topic. Only a single-partition
// topic keeps the file order.
func NewWriter(brokers []string, topic string, batchSize int) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		BatchSize:    batchSize,
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Snappy,
		Balancer:     &kafka.LeastBytes{},
	}
}

// Publish streams the records of path to w in file order, one message per
// record keyed by transaction id. Every line is validated before anything
// of its batch is sent. When a write fails for only some messages of a batch,
// as reported by kafka.WriteErrors, only those are retried, so they land after
// the rest of their batch. w is not closed.
func Publish(ctx context.Context, path string, w MessageWriter, cfg PublishConfig) (int64, error) {
	if cfg.BatchSize <= 0 {
		return 0, fmt.Errorf("batch size must be > 0, got %d", cfg.BatchSize)
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 256*1024), 1<<20)

	logger := zap.L().Named("publish")
	start := time.Now()
	var sent int64
	msgs := make([]kafka.Message, 0, cfg.BatchSize)

	flush := func() error {
		if len(msgs) == 0 {
			return nil
		}
		pending := msgs
		err := retryWithBackoff(ctx, cfg.Retry, "publish batch", func() error {
			err := w.WriteMessages(ctx, pending...)
			var we kafka.WriteErrors
			if errors.As(err, &we) && len(we) == len(pending) {
				failed := make([]kafka.Message, 0, len(we))
				for i, e := range we {
					if e != nil {
						failed = append(failed, pending[i])
					}
				}
				sent += int64(len(pending) - len(failed))
				pending = failed
			}
			return err
		})
		if err != nil {
			return err
		}
		sent += int64(len(pending))
		msgs = msgs[:0]
		return nil
	}

	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		rec, err := record.Parse(text)
		if err != nil {
			var mre *record.MalformedRecordError
			if errors.As(err, &mre) {
				return sent, mre.At(path, line)
			}
			return sent, err
		}

		msgs = append(msgs, kafka.Message{
			Key:   []byte(rec.TransactionID),
			Value: []byte(rec.String()),
		})
		if len(msgs) == cfg.BatchSize {
			if err := flush(); err != nil {
				return sent, err
			}
			if sent%1_000_000 < int64(cfg.BatchSize) {
				logger.Info("progress", zap.Int64("sent", sent), zap.Float64("rate", float64(sent)/time.Since(start).Seconds()))
			}
		}
	}
	if err := sc.Err(); err != nil {
		return sent, fmt.Errorf("read %s: %w", path, err)
	}
	if err := flush(); err != nil {
		return sent, err
	}

	logger.Info("done", zap.Int64("sent", sent), zap.Duration("elapsed", time.Since(start).Round(time.Millisecond)))
	return sent, nil
}
