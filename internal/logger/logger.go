package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

type Options struct {
	Level string
	// Dir enables a per-run log file next to stderr output
	Dir string
	Out io.Writer
}

// New returns a configured logrus logger and a closer for the run log file.
func New(opts Options) (*logrus.Logger, func() error, error) {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	level := logrus.InfoLevel
	if opts.Level != "" {
		lv, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = lv
	}
	log.SetLevel(level)

	out := opts.Out
	if out == nil {
		out = os.Stderr
	}

	closer := func() error { return nil }
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0755); err != nil {
			return nil, nil, err
		}

		name := fmt.Sprintf("vulnerability_scan_%s.log", time.Now().Format("20060102_150405"))
		f, err := os.OpenFile(filepath.Join(opts.Dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, err
		}
		out = io.MultiWriter(out, f)
		closer = f.Close
	}
	log.SetOutput(out)

	return log, closer, nil
}

// Discard is used by tests and library callers that do not care about logs.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
