package export

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Publisher delivers envelopes to a transport.
type Publisher interface {
	// Publish sends one envelope. It returns an error only for transport
	// or encoding failures.
	Publish(ctx context.Context, e Envelope) error

	// Flush waits for buffered envelopes to reach the transport.
	Flush(ctx context.Context) error

	// Close releases resources. It flushes first.
	Close() error
}

// NoopPublisher discards envelopes. Used when no transport is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Envelope) error { return nil }
func (NoopPublisher) Flush(context.Context) error             { return nil }
func (NoopPublisher) Close() error                            { return nil }

// LoggingPublisher logs envelopes at debug level.
type LoggingPublisher struct {
	prefix string
	logger *slog.Logger
}

// NewLoggingPublisher creates a publisher that logs envelopes.
func NewLoggingPublisher(prefix string, logger *slog.Logger) *LoggingPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingPublisher{prefix: prefix, logger: logger}
}

func (p *LoggingPublisher) Publish(_ context.Context, e Envelope) error {
	p.logger.Debug("[Export] Event published",
		"subject", e.Subject(p.prefix),
		"id", e.ID,
		"time", e.Time,
	)
	return nil
}

func (p *LoggingPublisher) Flush(context.Context) error { return nil }
func (p *LoggingPublisher) Close() error                { return nil }

// ChannelPublisher publishes to an in-memory channel for local consumers.
// Envelopes are dropped when the buffer is full.
type ChannelPublisher struct {
	mu      sync.RWMutex
	ch      chan Envelope
	closed  bool
	dropped atomic.Int64
}

// NewChannelPublisher creates a publisher backed by a buffered channel.
func NewChannelPublisher(bufferSize int) *ChannelPublisher {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &ChannelPublisher{ch: make(chan Envelope, bufferSize)}
}

func (p *ChannelPublisher) Publish(ctx context.Context, e Envelope) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil
	}

	select {
	case p.ch <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		p.dropped.Add(1)
		return nil
	}
}

func (p *ChannelPublisher) Flush(context.Context) error { return nil }

func (p *ChannelPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.ch)
	}
	return nil
}

// Envelopes returns the channel to consume from.
func (p *ChannelPublisher) Envelopes() <-chan Envelope {
	return p.ch
}

// Dropped returns how many envelopes were discarded on a full buffer.
func (p *ChannelPublisher) Dropped() int64 {
	return p.dropped.Load()
}

// MultiPublisher fans envelopes out to several publishers. A failing
// publisher does not stop delivery to the others.
type MultiPublisher struct {
	publishers []Publisher
}

// NewMultiPublisher creates a publisher that sends to all of publishers.
func NewMultiPublisher(publishers ...Publisher) *MultiPublisher {
	return &MultiPublisher{publishers: publishers}
}

func (p *MultiPublisher) Publish(ctx context.Context, e Envelope) error {
	var errs []error
	for _, pub := range p.publishers {
		if err := pub.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *MultiPublisher) Flush(ctx context.Context) error {
	var errs []error
	for _, pub := range p.publishers {
		if err := pub.Flush(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *MultiPublisher) Close() error {
	var errs []error
	for _, pub := range p.publishers {
		if err := pub.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
