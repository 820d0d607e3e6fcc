package host

import (
	"context"
	"io"
	"sync"

	"go.uber.org/zap"
)

// Sink surfaces a value delivered to an instance whose vector is zero.
// A sink must not call back into the Host.
type Sink interface {
	Receive(ctx context.Context, inst *Instance, port, value uint8)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, inst *Instance, port, value uint8)

func (f SinkFunc) Receive(ctx context.Context, inst *Instance, port, value uint8) {
	f(ctx, inst, port, value)
}

// WriterSink writes each delivered byte to w.
type WriterSink struct {
	w   io.Writer
	err error
	mu  sync.Mutex
}

// NewWriterSink creates a sink writing raw bytes to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) Receive(_ context.Context, _ *Instance, _ uint8, value uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return
	}
	if _, err := s.w.Write([]byte{value}); err != nil {
		s.err = err
	}
}

// Err returns the first write error.
func (s *WriterSink) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// LogSink logs each delivered byte.
type LogSink struct {
	log *zap.Logger
}

// NewLogSink creates a sink logging to log at info level.
func NewLogSink(log *zap.Logger) *LogSink {
	return &LogSink{log: log.Named("sink")}
}

func (s *LogSink) Receive(_ context.Context, inst *Instance, port, value uint8) {
	s.log.Info("receive",
		zap.Int("instance", int(inst.ID())),
		zap.String("name", inst.Name()),
		zap.Uint8("port", port),
		zap.Uint8("value", value),
	)
}
