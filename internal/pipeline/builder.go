package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ironsheep/image-fetch/internal/dispatch"
	"github.com/ironsheep/image-fetch/internal/fetch"
	"github.com/ironsheep/image-fetch/internal/fingerprint"
	"github.com/ironsheep/image-fetch/internal/imaging"
	"github.com/ironsheep/image-fetch/internal/transform"
)

// RequestBuilder describes one image request. Methods record the first
// error, which is returned by Key, Into, Fetch and Get.
type RequestBuilder struct {
	p          *Pipeline
	source     fetch.Source
	geometry   imaging.Geometry
	transforms []transform.Transformation
	skipCache  bool
	err        error
}

func (b *RequestBuilder) fail(err error) *RequestBuilder {
	if b.err == nil {
		b.err = err
	}
	return b
}

// Resize sets the target size in pixels. Zero keeps that dimension.
func (b *RequestBuilder) Resize(width, height int) *RequestBuilder {
	if width < 0 || height < 0 {
		return b.fail(fmt.Errorf("%w: %dx%d", imaging.ErrInvalidSize, width, height))
	}
	if width == 0 && height == 0 {
		return b.fail(fmt.Errorf("%w: at least one dimension must be positive", imaging.ErrInvalidSize))
	}
	b.geometry.TargetWidth = width
	b.geometry.TargetHeight = height
	return b
}

// CenterCrop fills the target size, cropping the overflowing axis.
func (b *RequestBuilder) CenterCrop() *RequestBuilder {
	if b.geometry.CenterInside {
		return b.fail(imaging.ErrCropAndInside)
	}
	b.geometry.CenterCrop = true
	return b
}

// CenterInside fits the image within the target size.
func (b *RequestBuilder) CenterInside() *RequestBuilder {
	if b.geometry.CenterCrop {
		return b.fail(imaging.ErrCropAndInside)
	}
	b.geometry.CenterInside = true
	return b
}

// Rotate rotates clockwise by degrees about the image center.
func (b *RequestBuilder) Rotate(degrees float64) *RequestBuilder {
	b.geometry.Rotation = degrees
	b.geometry.HasPivot = false
	b.geometry.PivotX, b.geometry.PivotY = 0, 0
	return b
}

// RotateAbout rotates clockwise by degrees about a pivot point.
func (b *RequestBuilder) RotateAbout(degrees, pivotX, pivotY float64) *RequestBuilder {
	b.geometry.Rotation = degrees
	b.geometry.HasPivot = true
	b.geometry.PivotX, b.geometry.PivotY = pivotX, pivotY
	return b
}

// Scale applies explicit scale factors in place of size-derived scaling.
func (b *RequestBuilder) Scale(sx, sy float64) *RequestBuilder {
	if sx <= 0 || sy <= 0 {
		return b.fail(fmt.Errorf("%w: scale %gx%g", imaging.ErrInvalidSize, sx, sy))
	}
	b.geometry.ScaleX, b.geometry.ScaleY = sx, sy
	return b
}

// Transform appends transformations, applied in order after geometry.
func (b *RequestBuilder) Transform(ts ...transform.Transformation) *RequestBuilder {
	for _, t := range ts {
		if t == nil {
			return b.fail(errors.New("transformation must not be nil"))
		}
		b.transforms = append(b.transforms, t)
	}
	return b
}

// TransformNamed parses and appends named transformations such as "blur:2".
func (b *RequestBuilder) TransformNamed(specs ...string) *RequestBuilder {
	ts, err := transform.ParseAll(specs)
	if err != nil {
		return b.fail(err)
	}
	return b.Transform(ts...)
}

// SkipCache bypasses the memory cache for reads and writes.
func (b *RequestBuilder) SkipCache() *RequestBuilder {
	b.skipCache = true
	return b
}

// Key returns the fingerprint of the request.
func (b *RequestBuilder) Key() (fingerprint.Key, error) {
	if b.err != nil {
		return "", b.err
	}
	if err := b.geometry.Validate(); err != nil {
		return "", err
	}
	return fingerprint.New(b.source.ID(), transform.Keys(b.transforms), b.geometry)
}

// request validates the builder and resolves its fetcher.
func (b *RequestBuilder) request(consumer any, sink dispatch.Sink) (*dispatch.Request, error) {
	key, err := b.Key()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", dispatch.ErrInvalidRequest, err)
	}
	kind, fetcher, err := b.p.registry.For(b.source)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", dispatch.ErrInvalidRequest, err)
	}
	return &dispatch.Request{
		ID:         uuid.New(),
		Key:        key,
		Source:     b.source,
		Kind:       kind,
		Fetcher:    fetcher,
		Transforms: b.transforms,
		Geometry:   b.geometry,
		SkipCache:  b.skipCache,
		Consumer:   consumer,
		Sink:       sink,
	}, nil
}

// Into submits the request on behalf of consumer. Any earlier request of the
// same consumer is cancelled. consumer must be a non-nil comparable value.
func (b *RequestBuilder) Into(consumer any, sink dispatch.Sink) (*dispatch.Request, error) {
	if !isComparable(consumer) {
		return nil, fmt.Errorf("%w: consumer must be a non-nil comparable value", dispatch.ErrInvalidRequest)
	}
	r, err := b.request(consumer, sink)
	if err != nil {
		return nil, err
	}

	b.p.track(r)
	if err := b.p.dispatcher.Submit(r); err != nil {
		b.p.release(r)
		return nil, err
	}
	return r, nil
}

// Fetch submits the request and waits for its outcome. If ctx ends first the
// request is cancelled and ctx.Err is returned; the shared task keeps running
// for other consumers.
func (b *RequestBuilder) Fetch(ctx context.Context) (*imaging.Bitmap, fetch.LoadedFrom, error) {
	type result struct {
		bitmap *imaging.Bitmap
		from   fetch.LoadedFrom
		err    error
	}
	done := make(chan result, 1)
	sink := dispatch.SinkFuncs{
		Complete: func(bmp *imaging.Bitmap, from fetch.LoadedFrom) { done <- result{bitmap: bmp, from: from} },
		Error:    func(err error) { done <- result{err: err} },
	}

	consumer := new(byte)
	r, err := b.Into(consumer, sink)
	if err != nil {
		return nil, 0, err
	}

	select {
	case res := <-done:
		return res.bitmap, res.from, res.err
	case <-ctx.Done():
		r.Cancel()
		b.p.CancelRequest(consumer)
		return nil, 0, ctx.Err()
	}
}

// Get runs the request on the calling goroutine, without coalescing or
// retries. The memory cache is read unless SkipCache was set, and is never
// written.
func (b *RequestBuilder) Get(ctx context.Context) (*imaging.Bitmap, error) {
	r, err := b.request(struct{}{}, dispatch.SinkFuncs{})
	if err != nil {
		return nil, err
	}
	if !r.SkipCache {
		if bmp, ok := b.p.cache.Get(r.Key); ok {
			return bmp, nil
		}
	}

	res, err := r.Fetcher.Fetch(ctx, r.Source, r.Geometry)
	if err != nil {
		return nil, err
	}
	if res == nil || res.Bitmap == nil {
		return nil, fetch.Unrecoverable(r.Source.ID(), errors.New("fetcher returned no bitmap"))
	}
	return transform.Apply(ctx, res.Bitmap, r.Geometry, r.Transforms)
}
