// Package bus broadcasts pipeline output from one input channel to several
// consumers (ledger refresh, Redis fan-out, WebSocket hub, notification).
package bus

import (
	"context"
	"log/slog"
	"sync"
)

// FanOut broadcasts values from a single input channel to N output channels.
// If an output channel is full, the value is dropped for that consumer so a
// slow consumer never blocks the pipeline.
type FanOut[T any] struct {
	mu      sync.RWMutex
	outputs []chan T
	names   []string
	bufSize int

	// OnDrop is called when a value is dropped for a subscriber.
	OnDrop func(subscriber string)
}

// New creates a FanOut with the given buffer size for output channels.
func New[T any](outputBufferSize int) *FanOut[T] {
	return &FanOut[T]{bufSize: outputBufferSize}
}

// Subscribe creates and returns a new named output channel. Subscribe before
// Run; outputs are closed when Run returns.
func (f *FanOut[T]) Subscribe(name string) <-chan T {
	ch := make(chan T, f.bufSize)
	f.mu.Lock()
	f.outputs = append(f.outputs, ch)
	f.names = append(f.names, name)
	f.mu.Unlock()
	return ch
}

// Run reads from input and fans out to all subscribers.
// Blocks until ctx is cancelled or input is closed.
func (f *FanOut[T]) Run(ctx context.Context, input <-chan T) {
	defer func() {
		f.mu.RLock()
		for _, ch := range f.outputs {
			close(ch)
		}
		f.mu.RUnlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-input:
			if !ok {
				return
			}
			f.mu.RLock()
			for i, ch := range f.outputs {
				select {
				case ch <- v:
				default:
					if f.OnDrop != nil {
						f.OnDrop(f.names[i])
					} else {
						slog.Warn("subscriber channel full, dropping", "component", "bus", "subscriber", f.names[i])
					}
				}
			}
			f.mu.RUnlock()
		}
	}
}

// ChannelStat is the (length, capacity) of one subscriber channel.
type ChannelStat struct {
	Name string
	Len  int
	Cap  int
}

// ChannelStats reports saturation per subscriber.
func (f *FanOut[T]) ChannelStats() []ChannelStat {
	f.mu.RLock()
	defer f.mu.RUnlock()
	stats := make([]ChannelStat, len(f.outputs))
	for i, ch := range f.outputs {
		stats[i] = ChannelStat{Name: f.names[i], Len: len(ch), Cap: cap(ch)}
	}
	return stats
}
