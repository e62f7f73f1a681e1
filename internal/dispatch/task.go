package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"k8s.io/utils/clock"

	"github.com/ironsheep/image-fetch/internal/fetch"
	"github.com/ironsheep/image-fetch/internal/fingerprint"
	"github.com/ironsheep/image-fetch/internal/imaging"
	"github.com/ironsheep/image-fetch/internal/transform"
)

// Task is the single in-flight unit of work for one fingerprint. All fields
// except the outcome slots are owned by the sequencer.
type Task struct {
	Key        fingerprint.Key
	Source     fetch.Source
	Kind       fetch.Kind
	Transforms []transform.Transformation
	Geometry   imaging.Geometry
	SkipCache  bool

	fetcher    fetch.Fetcher
	joined     []*Request
	retryCount int
	attempts   int
	retryTimer clock.Timer
}

func newTask(r *Request, retryBudget int) *Task {
	return &Task{
		Key:        r.Key,
		Source:     r.Source,
		Kind:       r.Kind,
		Transforms: r.Transforms,
		Geometry:   r.Geometry,
		SkipCache:  r.SkipCache,
		fetcher:    r.Fetcher,
		joined:     []*Request{r},
		retryCount: retryBudget,
	}
}

func (t *Task) join(r *Request) {
	t.joined = append(t.joined, r)
}

// outcome is the result of one attempt, produced on a worker.
type outcome struct {
	task       *Task
	bitmap     *imaging.Bitmap
	loadedFrom fetch.LoadedFrom
	err        error
}

// hunt fetches, decodes and transforms t's source. It always returns an
// outcome; panics become unrecoverable errors.
func (t *Task) hunt(ctx context.Context) (out outcome) {
	out.task = t
	defer func() {
		if r := recover(); r != nil {
			out.bitmap = nil
			out.err = fetch.Unrecoverable(t.Source.ID(), fmt.Errorf("panic: %v\n%s", r, debug.Stack()))
		}
	}()

	res, err := t.fetcher.Fetch(ctx, t.Source, t.Geometry)
	if err != nil {
		out.err = err
		return out
	}
	if res == nil || res.Bitmap == nil {
		out.err = fetch.Unrecoverable(t.Source.ID(), errors.New("fetcher returned no bitmap"))
		return out
	}

	b, err := transform.Apply(ctx, res.Bitmap, t.Geometry, t.Transforms)
	if err != nil {
		out.err = fetch.Unrecoverable(t.Source.ID(), err)
		return out
	}

	out.bitmap = b
	out.loadedFrom = res.LoadedFrom
	return out
}
