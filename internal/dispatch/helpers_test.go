package dispatch

import (
	"context"
	"image"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ironsheep/image-fetch/internal/fetch"
	"github.com/ironsheep/image-fetch/internal/fingerprint"
	"github.com/ironsheep/image-fetch/internal/imaging"
)

const waitTimeout = 5 * time.Second

// startDispatcher runs d until the test ends.
func startDispatcher(t *testing.T, opts Options) *Dispatcher {
	t.Helper()
	d := New(opts)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(waitTimeout):
			t.Error("dispatcher did not stop")
		}
	})
	return d
}

// fakeFetcher counts calls and returns what fn returns. When gate is set,
// every call waits for it to be closed first.
type fakeFetcher struct {
	calls atomic.Int32
	gate  chan struct{}
	fn    func(call int) (*fetch.Result, error)
}

func (f *fakeFetcher) Fetch(ctx context.Context, src fetch.Source, g imaging.Geometry) (*fetch.Result, error) {
	n := int(f.calls.Add(1))
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, fetch.Unrecoverable(src.ID(), ctx.Err())
		}
	}
	return f.fn(n)
}

func newBitmap() *imaging.Bitmap {
	return imaging.NewBitmap(image.NewNRGBA(image.Rect(0, 0, 4, 4)))
}

// succeeding returns a fetcher that hands out a fresh bitmap per call.
func succeeding() *fakeFetcher {
	return &fakeFetcher{fn: func(int) (*fetch.Result, error) {
		return &fetch.Result{Bitmap: newBitmap(), LoadedFrom: fetch.LoadedFromNetwork}, nil
	}}
}

// event is one sink invocation.
type event struct {
	consumer string
	bitmap   *imaging.Bitmap
	from     fetch.LoadedFrom
	err      error
}

type recorder struct {
	events chan event
}

func newRecorder() *recorder {
	return &recorder{events: make(chan event, 64)}
}

func (r *recorder) sink(consumer string) Sink {
	return SinkFuncs{
		Complete: func(b *imaging.Bitmap, from fetch.LoadedFrom) {
			r.events <- event{consumer: consumer, bitmap: b, from: from}
		},
		Error: func(err error) {
			r.events <- event{consumer: consumer, err: err}
		},
	}
}

// next waits for n events.
func (r *recorder) next(t *testing.T, n int) []event {
	t.Helper()
	out := make([]event, 0, n)
	for len(out) < n {
		select {
		case e := <-r.events:
			out = append(out, e)
		case <-time.After(waitTimeout):
			t.Fatalf("timed out waiting for event %d of %d", len(out)+1, n)
		}
	}
	return out
}

// none asserts no further events arrive within a short window.
func (r *recorder) none(t *testing.T) {
	t.Helper()
	select {
	case e := <-r.events:
		t.Fatalf("unexpected event for %s", e.consumer)
	case <-time.After(50 * time.Millisecond):
	}
}

func testKey(t *testing.T, source string) fingerprint.Key {
	t.Helper()
	k, err := fingerprint.New(source, nil, imaging.Geometry{})
	require.NoError(t, err)
	return k
}

func newRequest(t *testing.T, source string, f fetch.Fetcher, rec *recorder, consumer string) *Request {
	t.Helper()
	return &Request{
		Key:      testKey(t, source),
		Source:   fetch.Source{URI: source},
		Kind:     fetch.KindNetwork,
		Fetcher:  f,
		Consumer: consumer,
		Sink:     rec.sink(consumer),
	}
}
