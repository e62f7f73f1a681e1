package dispatch

import (
	"fmt"
	"reflect"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/ironsheep/image-fetch/internal/fetch"
	"github.com/ironsheep/image-fetch/internal/fingerprint"
	"github.com/ironsheep/image-fetch/internal/imaging"
	"github.com/ironsheep/image-fetch/internal/transform"
)

// Sink receives the outcome of one Request. Exactly one method is called, at
// most once, from the delivery goroutine.
type Sink interface {
	OnComplete(b *imaging.Bitmap, from fetch.LoadedFrom)
	OnError(err error)
}

// SinkFuncs adapts a pair of functions to Sink. Nil functions are skipped.
type SinkFuncs struct {
	Complete func(b *imaging.Bitmap, from fetch.LoadedFrom)
	Error    func(err error)
}

func (s SinkFuncs) OnComplete(b *imaging.Bitmap, from fetch.LoadedFrom) {
	if s.Complete != nil {
		s.Complete(b, from)
	}
}

func (s SinkFuncs) OnError(err error) {
	if s.Error != nil {
		s.Error(err)
	}
}

// Request is one consumer's ask for a bitmap.
//
// The fields are set by the issuing layer before Submit and must not change
// afterwards. A Request may be submitted once.
type Request struct {
	ID         uuid.UUID
	Key        fingerprint.Key
	Source     fetch.Source
	Kind       fetch.Kind
	Fetcher    fetch.Fetcher
	Transforms []transform.Transformation
	Geometry   imaging.Geometry
	SkipCache  bool

	// Consumer identifies who is waiting. It is opaque to the dispatcher.
	Consumer any
	Sink     Sink

	cancelled atomic.Bool
	delivered atomic.Bool
}

// Cancel marks r so that its outcome is dropped at delivery. The underlying
// task keeps running for any other joined requests.
func (r *Request) Cancel() {
	r.cancelled.Store(true)
}

// Cancelled reports whether Cancel was called.
func (r *Request) Cancelled() bool {
	return r.cancelled.Load()
}

// Delivered reports whether r's sink has been invoked.
func (r *Request) Delivered() bool {
	return r.delivered.Load()
}

// markDelivered claims r's single delivery. It reports false if r was
// already delivered.
func (r *Request) markDelivered() bool {
	return r.delivered.CompareAndSwap(false, true)
}

func (r *Request) validate() error {
	switch {
	case r == nil:
		return fmt.Errorf("%w: nil request", ErrInvalidRequest)
	case isNil(r.Consumer):
		return fmt.Errorf("%w: no consumer", ErrInvalidRequest)
	case r.Sink == nil:
		return fmt.Errorf("%w: no sink", ErrInvalidRequest)
	case r.Key == "":
		return fmt.Errorf("%w: no key", ErrInvalidRequest)
	case r.Fetcher == nil:
		return fmt.Errorf("%w: no fetcher for %s", ErrInvalidRequest, r.Source)
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// isNil reports whether v is nil or a typed nil.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.Func, reflect.Interface, reflect.Slice:
		return rv.IsNil()
	}
	return false
}
