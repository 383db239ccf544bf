package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"veriprint/pkg/requestcontext"
)

// Sink receives finished audit events. Implementations must not block for
// long; the publisher's worker is the only goroutine calling Append.
type Sink interface {
	Append(ctx context.Context, event Event) error
}

// Publisher stamps, buffers, and fans events out to a sink. Emit never
// blocks domain logic on sink latency: events queue on a channel consumed by
// a background worker, and a full queue drops the event with a log line
// rather than stalling a verification.
type Publisher struct {
	sink   Sink
	logger *slog.Logger
	inbox  chan Event

	wg     sync.WaitGroup
	closed chan struct{}
	once   sync.Once
}

// NewPublisher starts the worker goroutine.
func NewPublisher(sink Sink, logger *slog.Logger, buffer int) *Publisher {
	if buffer < 1 {
		buffer = 256
	}
	p := &Publisher{
		sink:   sink,
		logger: logger,
		inbox:  make(chan Event, buffer),
		closed: make(chan struct{}),
	}
	p.wg.Add(1)
	go p.run()
	return p
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for {
		select {
		case event := <-p.inbox:
			p.append(event)
		case <-p.closed:
			// Drain whatever is already queued, then stop.
			for {
				select {
				case event := <-p.inbox:
					p.append(event)
				default:
					return
				}
			}
		}
	}
}

func (p *Publisher) append(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.sink.Append(ctx, event); err != nil && p.logger != nil {
		p.logger.Error("audit append failed", "kind", event.Kind, "error", err)
	}
}

// Emit stamps the event with an id, a timestamp, and the caller metadata
// carried in the request context, then queues it. Drops (with a warning)
// when the queue is full, and is a no-op after Close.
func (p *Publisher) Emit(ctx context.Context, event Event) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.ClientID == "" {
		event.ClientID = requestcontext.ClientID(ctx)
	}
	if event.ClientIP == "" {
		event.ClientIP = requestcontext.ClientIP(ctx)
	}
	if event.DeviceInfo == "" {
		event.DeviceInfo = requestcontext.DeviceInfo(ctx)
	}

	select {
	case <-p.closed:
		return
	default:
	}

	select {
	case p.inbox <- event:
	default:
		if p.logger != nil {
			p.logger.WarnContext(ctx, "audit queue full, dropping event", "kind", event.Kind)
		}
	}
}

// Close drains the queue and stops the worker. Safe to call more than once.
func (p *Publisher) Close() {
	p.once.Do(func() {
		close(p.closed)
	})
	p.wg.Wait()
}

// MemorySink collects events in memory for tests and single-process runs.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

func NewMemorySink() *MemorySink { return &MemorySink{} }

func (s *MemorySink) Append(ctx context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// Events returns a copy of everything appended so far.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

// ByKind returns appended events of one kind.
func (s *MemorySink) ByKind(kind EventKind) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, e := range s.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}
