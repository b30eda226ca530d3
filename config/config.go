package config

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"txsort/sort"
)

// Config holds every externally settable option. Load fills it from the
// environment; RegisterFlags lets command-line flags override that.
type Config struct {
	ChunkSize    ByteSize
	Workers      int
	MaxOpenRuns  int
	TempDir      string
	CompressRuns bool

	Brokers []string
	Topic   string

	LogLevel zapcore.Level
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		ChunkSize:   ByteSize(sort.DefaultChunkSizeBytes),
		Workers:     runtime.NumCPU(),
		MaxOpenRuns: sort.DefaultMaxOpenRuns,
		TempDir:     sort.DefaultTempDir,
		Brokers:     []string{"localhost:9092"},
		Topic:       "sorted-transactions",
		LogLevel:    zapcore.InfoLevel,
	}
}

// Load reads the TXSORT_* and KAFKA_* environment variables on top of Defaults.
func Load() (Config, error) {
	return load(os.LookupEnv)
}

func load(lookup func(string) (string, bool)) (Config, error) {
	cfg := Defaults()

	if v, ok := lookup("TXSORT_CHUNK_SIZE"); ok {
		if err := cfg.ChunkSize.Set(v); err != nil {
			return cfg, fmt.Errorf("TXSORT_CHUNK_SIZE: %w", err)
		}
	}
	if v, ok := lookup("TXSORT_WORKERS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("TXSORT_WORKERS is invalid: %w", err)
		}
		cfg.Workers = n
	}
	if v, ok := lookup("TXSORT_MAX_OPEN_RUNS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("TXSORT_MAX_OPEN_RUNS is invalid: %w", err)
		}
		cfg.MaxOpenRuns = n
	}
	if v, ok := lookup("TXSORT_TEMP_DIR"); ok {
		cfg.TempDir = v
	}
	if v, ok := lookup("TXSORT_COMPRESS_RUNS"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("TXSORT_COMPRESS_RUNS is invalid: %w", err)
		}
		cfg.CompressRuns = b
	}
	if v, ok := lookup("KAFKA_BROKERS"); ok {
		cfg.Brokers = splitList(v)
	}
	if v, ok := lookup("KAFKA_TOPIC"); ok {
		cfg.Topic = v
	}
	if v, ok := lookup("TXSORT_LOG_LEVEL"); ok {
		lvl, err := zapcore.ParseLevel(v)
		if err != nil {
			return cfg, fmt.Errorf("TXSORT_LOG_LEVEL is invalid: %w", err)
		}
		cfg.LogLevel = lvl
	}

	return cfg, cfg.Validate()
}

// RegisterFlags binds the sort options to fs, using the current values as
// defaults.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.Var(&c.ChunkSize, "chunk-size", "target chunk size, e.g. 50MiB, 512KB or plain bytes")
	fs.IntVar(&c.Workers, "workers", c.Workers, "max chunks sorted concurrently")
	fs.IntVar(&c.MaxOpenRuns, "max-open-runs", c.MaxOpenRuns, "max run files open during one merge pass")
	fs.StringVar(&c.TempDir, "temp-dir", c.TempDir, "scratch directory for sorted runs (removed afterwards)")
	fs.BoolVar(&c.CompressRuns, "compress-runs", c.CompressRuns, "zstd-compress intermediate runs")
}

// RegisterKafkaFlags binds the broker options to fs.
func (c *Config) RegisterKafkaFlags(fs *flag.FlagSet) {
	fs.Func("brokers", "comma separated Kafka brokers (default "+strings.Join(c.Brokers, ",")+")", func(v string) error {
		c.Brokers = splitList(v)
		if len(c.Brokers) == 0 {
			return fmt.Errorf("no brokers in %q", v)
		}
		return nil
	})
	fs.StringVar(&c.Topic, "topic", c.Topic, "Kafka topic")
}

// Logger builds the console logger used by the command line tool.
func (c Config) Logger() (*zap.Logger, error) {
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(c.LogLevel)
	zc.DisableStacktrace = true
	return zc.Build()
}

// Validate checks the sort options.
func (c Config) Validate() error {
	switch {
	case c.ChunkSize <= 0:
		return fmt.Errorf("chunk size must be > 0")
	case c.Workers <= 0:
		return fmt.Errorf("workers must be > 0, got %d", c.Workers)
	case c.MaxOpenRuns < 2:
		return fmt.Errorf("max open runs must be >= 2, got %d", c.MaxOpenRuns)
	case c.TempDir == "":
		return fmt.Errorf("temp dir must be set")
	}
	return nil
}

// SortOptions converts the configuration into options for sort.Sort.
func (c Config) SortOptions() sort.Options {
	return sort.Options{
		ChunkSizeBytes: int64(c.ChunkSize),
		MaxWorkers:     c.Workers,
		MaxOpenRuns:    c.MaxOpenRuns,
		TempDir:        c.TempDir,
		CompressRuns:   c.CompressRuns,
	}
}

// ByteSize is a byte count that parses human-readable sizes.
type ByteSize int64

func (b *ByteSize) String() string { return humanize.IBytes(uint64(*b)) }

func (b *ByteSize) Set(v string) error {
	n, err := humanize.ParseBytes(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("invalid size %q: %w", v, err)
	}
	if n == 0 || n > 1<<62 {
		return fmt.Errorf("size %q out of range", v)
	}
	*b = ByteSize(n)
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
