package store

import "sync"

// ack implements the two-tier domain.Ack. The written channel resolves
// when the record's chunk reaches the sink; durable closes at the next
// fsync covering it.
type ack struct {
	written     chan error
	durable     chan struct{}
	writtenOnce sync.Once
	durableOnce sync.Once
}

func newAck() *ack {
	return &ack{
		written: make(chan error, 1),
		durable: make(chan struct{}),
	}
}

func (a *ack) Written() <-chan error    { return a.written }
func (a *ack) Durable() <-chan struct{} { return a.durable }

func (a *ack) resolveWritten(err error) {
	a.writtenOnce.Do(func() {
		a.written <- err
		close(a.written)
	})
}

func (a *ack) resolveDurable() {
	a.durableOnce.Do(func() {
		close(a.durable)
	})
}
