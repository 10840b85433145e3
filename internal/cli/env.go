package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lvillar/bulkdoc/batch"
	"github.com/lvillar/bulkdoc/pipeline"
	"github.com/lvillar/bulkdoc/raster"
)

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key))); err == nil {
		return n
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key))); err == nil {
		return d
	}
	return def
}

// runFlags are shared by every command that runs the pipeline.
type runFlags struct {
	workers   *int
	timeout   *time.Duration
	scale     *float64
	logLevel  *string
	logFormat *string
}

func addRunFlags(fs *flag.FlagSet) *runFlags {
	return &runFlags{
		workers:   fs.Int("workers", envInt("BULKDOC_WORKERS", 1), "records processed concurrently"),
		timeout:   fs.Duration("timeout", envDuration("BULKDOC_TIMEOUT", batch.DefaultTimeout), "time limit per record (0 = none)"),
		scale:     fs.Float64("scale", raster.DefaultScale, "raster scale factor"),
		logLevel:  fs.String("log-level", envString("BULKDOC_LOG_LEVEL", "info"), "debug|info|warn|error"),
		logFormat: fs.String("log-format", envString("BULKDOC_LOG_FORMAT", "text"), "text|json"),
	}
}

func (f *runFlags) logger(w io.Writer) (*slog.Logger, error) {
	return newLogger(w, *f.logLevel, *f.logFormat)
}

func (f *runFlags) runnerOptions(logger *slog.Logger) []pipeline.Option {
	return []pipeline.Option{
		pipeline.WithWorkers(*f.workers),
		pipeline.WithTimeout(*f.timeout),
		pipeline.WithScale(*f.scale),
		pipeline.WithLogger(logger),
	}
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("log format %q: want text or json", format)
}
