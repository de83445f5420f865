package mqtt

import (
	"sync"
	"time"

	"github.com/sweeney/light-controller/internal/device"
	"github.com/sweeney/light-controller/internal/schedule"
)

// DefaultQueueSize is how many notifications may wait for the publisher.
const DefaultQueueSize = 64

// notification is one queued event. Exactly one of light, firing or flushed
// is set.
type notification struct {
	light   *device.Device
	at      time.Time
	firing  *schedule.Firing
	flushed chan struct{}
}

// Notifier forwards registry and scheduler events to a Publisher. It
// satisfies device.Notifier and schedule.Notifier.
//
// Events are queued and published in order by a single worker goroutine, so
// a slow broker never delays the light write or timer pass that produced
// them. When the queue is full the event is dropped and logged. Publish
// failures are logged and never reach the caller.
type Notifier struct {
	pub    Publisher
	now    func() time.Time
	logger Logger

	mu     sync.Mutex
	closed bool
	queue  chan notification
	done   chan struct{}
}

// NewNotifier creates a Notifier publishing through pub and starts its
// worker. Call Close to stop it.
func NewNotifier(pub Publisher, now func() time.Time) *Notifier {
	if now == nil {
		now = time.Now
	}
	n := &Notifier{
		pub:    pub,
		now:    now,
		logger: noopLogger{},
		queue:  make(chan notification, DefaultQueueSize),
		done:   make(chan struct{}),
	}
	go n.run()
	return n
}

// SetLogger sets the logger used for publish failures. Call it before the
// Notifier is attached to the registry or scheduler.
func (n *Notifier) SetLogger(logger Logger) {
	n.logger = logger
}

// DeviceChanged queues the new state of a light, stamped with the current
// time.
func (n *Notifier) DeviceChanged(d device.Device) {
	n.enqueue(notification{light: &d, at: n.now()})
}

// TimerFired queues the outcome of a timer.
func (n *Notifier) TimerFired(f schedule.Firing) {
	n.enqueue(notification{firing: &f})
}

// Flush blocks until every event queued before the call has been handed to
// the publisher.
func (n *Notifier) Flush() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	flushed := make(chan struct{})
	n.queue <- notification{flushed: flushed}
	n.mu.Unlock()
	<-flushed
}

// Close publishes whatever is still queued and stops the worker. Events
// arriving after Close are dropped.
func (n *Notifier) Close() {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.queue)
	}
	n.mu.Unlock()
	<-n.done
}

func (n *Notifier) enqueue(msg notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		n.logger.Debug("notifier closed, dropping event")
		return
	}
	select {
	case n.queue <- msg:
	default:
		if msg.light != nil {
			n.logger.Warn("notification queue full, dropping light state", "id", msg.light.ID)
		} else {
			n.logger.Warn("notification queue full, dropping timer firing", "timer_id", msg.firing.Timer.ID)
		}
	}
}

func (n *Notifier) run() {
	defer close(n.done)
	for msg := range n.queue {
		switch {
		case msg.flushed != nil:
			close(msg.flushed)
		case msg.light != nil:
			if err := n.pub.PublishLight(*msg.light, msg.at); err != nil {
				n.logger.Warn("publish light state failed", "id", msg.light.ID, "error", err)
			}
		case msg.firing != nil:
			if err := n.pub.PublishTimer(*msg.firing); err != nil {
				n.logger.Warn("publish timer firing failed", "timer_id", msg.firing.Timer.ID, "error", err)
			}
		}
	}
}
