package dispatch

import (
	"fmt"

	"github.com/go-logr/logr"

	"github.com/ironsheep/image-fetch/internal/fetch"
	"github.com/ironsheep/image-fetch/internal/fingerprint"
	"github.com/ironsheep/image-fetch/internal/imaging"
)

// Listener is told about terminal fetch failures, once per failed task.
type Listener interface {
	OnFetchFailed(source fetch.Source, err error)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(source fetch.Source, err error)

func (f ListenerFunc) OnFetchFailed(source fetch.Source, err error) {
	f(source, err)
}

// batch is a finished outcome together with every request owed it, in join order.
type batch struct {
	key        fingerprint.Key
	source     fetch.Source
	requests   []*Request
	bitmap     *imaging.Bitmap
	loadedFrom fetch.LoadedFrom
	err        error
	// notify is set for terminal task failures that the Listener should see.
	notify bool
}

// deliveryLoop invokes sinks off the sequencer, one batch at a time.
type deliveryLoop struct {
	queue     *queue[batch]
	listener  Listener
	onRelease func(*Request)
	logger    logr.Logger
	done      chan struct{}
}

func newDeliveryLoop(listener Listener, onRelease func(*Request), logger logr.Logger) *deliveryLoop {
	return &deliveryLoop{
		queue:     newQueue[batch](),
		listener:  listener,
		onRelease: onRelease,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

func (l *deliveryLoop) enqueue(b batch) {
	if !l.queue.push(b) {
		l.logger.Error(ErrStopped, "dropping delivery after shutdown", "key", b.key.Short(), "requests", len(b.requests))
	}
}

func (l *deliveryLoop) run() {
	defer close(l.done)
	for {
		b, ok := l.queue.pop()
		if !ok {
			return
		}
		l.deliver(b)
	}
}

// stop waits for every queued batch to be delivered.
func (l *deliveryLoop) stop() {
	l.queue.close()
	<-l.done
}

func (l *deliveryLoop) deliver(b batch) {
	for _, r := range b.requests {
		if r.Cancelled() {
			cancelledSkippedTotal.Inc()
			l.release(r)
			continue
		}
		if !r.markDelivered() {
			l.logger.V(1).Info("request already delivered", "request", r.ID, "key", b.key.Short())
			continue
		}
		l.release(r)
		l.invoke(r, b)
	}

	if b.notify && l.listener != nil {
		l.safely("listener", func() { l.listener.OnFetchFailed(b.source, b.err) })
	}
}

func (l *deliveryLoop) release(r *Request) {
	if l.onRelease != nil {
		l.onRelease(r)
	}
}

func (l *deliveryLoop) invoke(r *Request, b batch) {
	if b.err != nil {
		l.safely("sink", func() { r.Sink.OnError(b.err) })
		return
	}
	l.safely("sink", func() { r.Sink.OnComplete(b.bitmap, b.loadedFrom) })
}

// safely runs fn, logging instead of propagating a panic so one faulty
// consumer cannot stop deliveries to the others.
func (l *deliveryLoop) safely(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error(fmt.Errorf("panic: %v", r), "recovered panic in "+what)
		}
	}()
	fn()
}
