package chat

import (
	"log/slog"
	"time"
)

const (
	DefaultMaxSteps   = 50
	DefaultCheckpoint = 5
	DefaultTopK       = 5
	DefaultQueueSize  = 16

	eventBufferSize = 64
)

type config struct {
	maxSteps    int
	checkpoint  int
	topK        int
	callTimeout time.Duration
	queueSize   int
	recorder    Recorder
	logger      *slog.Logger
	now         func() time.Time
}

func defaultConfig() config {
	return config{
		maxSteps:   DefaultMaxSteps,
		checkpoint: DefaultCheckpoint,
		topK:       DefaultTopK,
		queueSize:  DefaultQueueSize,
		now:        time.Now,
	}
}

// Option configures a Session
type Option func(*config)

// WithMaxSteps bounds the planning steps of one request cycle
func WithMaxSteps(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxSteps = n
		}
	}
}

// WithCheckpoint sets how many search tool calls a request cycle makes
// before asking the user whether to continue
func WithCheckpoint(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.checkpoint = n
		}
	}
}

// WithTopK sets how many memories are retrieved for each step
func WithTopK(k int) Option {
	return func(c *config) {
		if k > 0 {
			c.topK = k
		}
	}
}

// WithCallTimeout bounds each external call (perception, retrieval,
// planning, tool execution). Zero disables the deadline.
func WithCallTimeout(d time.Duration) Option {
	return func(c *config) {
		c.callTimeout = d
	}
}

// WithQueueSize sets the capacity of the input queue
func WithQueueSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.queueSize = n
		}
	}
}

// WithRecorder saves the transcript when the session is closed
func WithRecorder(r Recorder) Option {
	return func(c *config) {
		c.recorder = r
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithClock replaces the time source
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		c.now = now
	}
}
