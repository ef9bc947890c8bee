package bus

import (
	"sync"
	"time"
)

// defaultBuffer is the per-subscriber channel capacity.
const defaultBuffer = 64

// Observer receives every published event regardless of topic. Observers run
// synchronously on the publishing goroutine and must not block; see
// LogObserver and OTelObserver.
type Observer interface {
	Observe(ev Event)
}

type subscriber struct {
	ch     chan Event
	closed bool
}

type topic struct {
	subs     map[int]*subscriber
	finished bool
}

// Bus is an in-memory, topic-per-task event bus.
//
// Publish is non-blocking: when a subscriber's buffer is full its oldest
// event is dropped to make room. A terminal event is delivered to all
// subscribers and then closes the topic; subscribing to a finished topic
// returns an already-closed channel.
type Bus struct {
	mu        sync.Mutex
	topics    map[string]*topic
	observers []Observer
	nextSubID int
	buffer    int
}

// New creates a Bus with the default per-subscriber buffer.
func New() *Bus {
	return NewBuffered(defaultBuffer)
}

// NewBuffered creates a Bus with a custom per-subscriber buffer capacity.
func NewBuffered(buffer int) *Bus {
	if buffer < 1 {
		buffer = 1
	}
	return &Bus{topics: make(map[string]*topic), buffer: buffer}
}

// AddObserver registers an observer for all subsequent events.
func (b *Bus) AddObserver(o Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observers = append(b.observers, o)
}

// Publish delivers an event to the task's subscribers and all observers.
// Terminal events close the topic. Publish never blocks and never fails.
func (b *Bus) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	b.mu.Lock()
	for _, o := range b.observers {
		o.Observe(ev)
	}

	tp := b.topics[ev.TaskID]
	if tp == nil {
		// Record the terminal marker so late subscribers see a closed
		// channel instead of a topic that never finishes.
		if IsTerminal(ev.Type) {
			b.topics[ev.TaskID] = &topic{finished: true, subs: make(map[int]*subscriber)}
		}
		b.mu.Unlock()
		return
	}
	if tp.finished {
		b.mu.Unlock()
		return
	}
	for _, sub := range tp.subs {
		if sub.closed {
			continue
		}
		for {
			select {
			case sub.ch <- ev:
			default:
				// Buffer full: drop the oldest event and retry.
				select {
				case <-sub.ch:
				default:
				}
				continue
			}
			break
		}
	}
	if IsTerminal(ev.Type) {
		tp.finished = true
		for _, sub := range tp.subs {
			if !sub.closed {
				sub.closed = true
				close(sub.ch)
			}
		}
		tp.subs = make(map[int]*subscriber)
	}
	b.mu.Unlock()
}

// Subscribe returns a channel of the task's future events and a cancel
// function. The channel closes when a terminal event is delivered or cancel
// is called. Subscribing to a task whose topic already finished returns a
// closed channel.
func (b *Bus) Subscribe(taskID string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tp := b.topics[taskID]
	if tp == nil {
		tp = &topic{subs: make(map[int]*subscriber)}
		b.topics[taskID] = tp
	}
	if tp.finished {
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}

	sub := &subscriber{ch: make(chan Event, b.buffer)}
	id := b.nextSubID
	b.nextSubID++
	tp.subs[id] = sub

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if s, ok := tp.subs[id]; ok {
			delete(tp.subs, id)
			if !s.closed {
				s.closed = true
				close(s.ch)
			}
		}
	}
	return sub.ch, cancel
}

// SubscribeWithTimeout subscribes and bounds the wait: if no terminal event
// arrives within d, a synthetic workflow_timeout event is delivered and the
// channel closes. The workflow itself keeps running.
func (b *Bus) SubscribeWithTimeout(taskID string, d time.Duration) <-chan Event {
	inner, cancel := b.Subscribe(taskID)
	out := make(chan Event, b.buffer)

	go func() {
		defer close(out)
		timer := time.NewTimer(d)
		defer timer.Stop()
		for {
			select {
			case ev, ok := <-inner:
				if !ok {
					return
				}
				select {
				case out <- ev:
				default:
					// Drop oldest to keep the forwarder non-blocking.
					select {
					case <-out:
					default:
					}
					select {
					case out <- ev:
					default:
					}
				}
				if IsTerminal(ev.Type) {
					return
				}
			case <-timer.C:
				cancel()
				ev := Event{
					TaskID:    taskID,
					Type:      EventWorkflowTimeout,
					Message:   "subscription timed out waiting for a terminal event",
					Timestamp: time.Now().UTC(),
				}
				// Same drop-oldest discipline as the forward path: an
				// abandoned full channel must not park this goroutine.
				select {
				case out <- ev:
				default:
					select {
					case <-out:
					default:
					}
					select {
					case out <- ev:
					default:
					}
				}
				return
			}
		}
	}()
	return out
}
