package session

import (
	"sync"

	"github.com/xzegga/ait-saas-sso/pkg/observability"
)

// dispatcher runs queued jobs one at a time on its own goroutine. The queue
// is unbounded so enqueue never blocks the caller.
type dispatcher struct {
	logger *observability.Logger

	mu     sync.Mutex
	queue  []func()
	closed bool

	wake chan struct{}
	done chan struct{}
}

func newDispatcher(logger *observability.Logger) *dispatcher {
	d := &dispatcher{
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

// enqueue schedules job. Jobs enqueued after close are dropped.
func (d *dispatcher) enqueue(job func()) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, job)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *dispatcher) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		if len(d.queue) == 0 {
			closed := d.closed
			d.mu.Unlock()
			if closed {
				return
			}
			<-d.wake
			continue
		}
		job := d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]
		d.mu.Unlock()

		d.exec(job)
	}
}

func (d *dispatcher) exec(job func()) {
	defer observability.RecoverPanic(d.logger, "session subscriber")
	job()
}

// close delivers what is already queued, then stops the goroutine.
func (d *dispatcher) close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	<-d.done
}
