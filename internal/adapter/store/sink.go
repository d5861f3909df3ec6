package store

import "os"

// Sink is the OS-level append target for one open segment file. A sink
// whose internal buffer is full returns domain.ErrSinkBusy from Write;
// the writer then suspends until Drained fires. This is the writer's sole
// backpressure mechanism.
type Sink interface {
	Write(p []byte) (int, error)
	Sync() error
	Close() error

	// Drained unblocks once a sink that reported ErrSinkBusy can accept
	// writes again. Sinks that never report busy return a closed channel.
	Drained() <-chan struct{}
}

// SinkFactory opens the sink for a segment path. Tests substitute sinks
// that simulate backpressure and I/O failures.
type SinkFactory func(path string) (Sink, error)

type fileSink struct {
	f       *os.File
	drained chan struct{}
}

func newFileSink(path string) (Sink, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerm)
	if err != nil {
		return nil, err
	}
	drained := make(chan struct{})
	close(drained)
	return &fileSink{f: f, drained: drained}, nil
}

func (s *fileSink) Write(p []byte) (int, error) { return s.f.Write(p) }
func (s *fileSink) Sync() error                 { return s.f.Sync() }
func (s *fileSink) Close() error                { return s.f.Close() }
func (s *fileSink) Drained() <-chan struct{}    { return s.drained }
