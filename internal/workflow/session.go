package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/ajitpratap0/stockfunk/internal/metrics"
)

// Session is the in-memory state of one workflow run: an append-only event
// history fed by a single producer (the workflow loop) through a bounded
// channel, plus the waiters of attached streams.
//
// The dispatcher goroutine is the only writer of history. It also injects
// heartbeat events when the loop has been quiet, so attached clients can
// tell a long backtest from a dead connection.
type Session struct {
	ID        string
	CreatedAt time.Time

	events chan Event         // loop -> dispatcher
	done   chan struct{}      // closed after terminal event + grace
	cancel context.CancelFunc // cancels the workflow loop

	mu      sync.Mutex
	history []Event
	waiters []chan struct{}
	closed  bool // terminal event appended
	started bool
}

func newSession(id string, buffer int) *Session {
	return &Session{
		ID:        id,
		CreatedAt: time.Now(),
		events:    make(chan Event, buffer),
		done:      make(chan struct{}),
	}
}

// emit queues an event for the dispatcher. Called only from the workflow
// loop goroutine; events arrive in history in emit order.
func (s *Session) emit(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	s.events <- ev
}

// dispatch drains the event channel into history, inserting heartbeats when
// idle. After a terminal event it grants attached streams a short grace
// window to flush, then closes done and exits.
func (s *Session) dispatch(heartbeat, grace time.Duration) {
	idle := time.NewTimer(heartbeat)
	defer idle.Stop()

	for {
		select {
		case ev, ok := <-s.events:
			if !ok {
				return
			}
			s.append(ev)
			if ev.Terminal() {
				time.Sleep(grace)
				close(s.done)
				return
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(heartbeat)
		case <-idle.C:
			s.append(Event{Type: EventHeartbeat, Timestamp: time.Now()})
			idle.Reset(heartbeat)
		}
	}
}

// append adds the event to history and wakes every waiter.
func (s *Session) append(ev Event) {
	s.mu.Lock()
	s.history = append(s.history, ev)
	if ev.Terminal() {
		s.closed = true
	}
	waiters := s.waiters
	s.waiters = nil
	s.mu.Unlock()

	for _, w := range waiters {
		close(w)
	}
	metrics.RecordEvent(ev.Type)
}

// snapshot returns a copy of history from cursor and the current total
// length. Used by the polling path.
func (s *Session) snapshot(from int) ([]Event, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if from < 0 {
		from = 0
	}
	total := len(s.history)
	if from >= total {
		return nil, total
	}
	out := make([]Event, total-from)
	copy(out, s.history[from:])
	return out, total
}

// eventsSince returns a copy of history from cursor together with a channel
// closed on the next append. ended reports that the stream is complete and
// no further events will arrive.
func (s *Session) eventsSince(from int) (events []Event, wait <-chan struct{}, ended bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if from < 0 {
		from = 0
	}
	if from < len(s.history) {
		events = make([]Event, len(s.history)-from)
		copy(events, s.history[from:])
	}
	if s.closed {
		return events, nil, true
	}
	w := make(chan struct{})
	s.waiters = append(s.waiters, w)
	return events, w, false
}

// tryStart marks the session started. Returns false if already started.
func (s *Session) tryStart() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return false
	}
	s.started = true
	return true
}

func (s *Session) isStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Done is closed once the session's stream has fully ended.
func (s *Session) Done() <-chan struct{} {
	return s.done
}
