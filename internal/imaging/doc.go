// Package imaging holds the decoded image artifact and the pixel-level helpers
// used by the fetch pipeline.
//
// This package implements the parts of the pipeline that touch pixels directly:
// the Bitmap artifact and its release contract, the two-pass decoder, the
// target geometry step (resize, center crop, center inside, rotation), colour
// parsing and the grid overlay drawing used by the named transforms. Everything
// works on standard Go image.Image values and uses a coordinate system where
// (0,0) is at the top-left corner.
//
// # Bitmap Ownership
//
// A Bitmap is shared by every consumer that joined the same fetch, and by the
// memory cache. Release marks a Bitmap as no longer usable by the code that
// produced it; it is how transform steps signal that they replaced their input.
// Consumers never release delivered bitmaps.
//
// # Decoding
//
// Decode accepts any format registered with the image package. PNG, JPEG and
// GIF come from the standard library, BMP and TIFF from disintegration/imaging
// and WebP from golang.org/x/image. When a target size is known, Decode first
// reads only the image bounds and computes a power-agnostic sample size (see
// SampleSize) so oversized sources are reduced right after decoding.
//
// # Thread Safety
//
// Bitmap is safe for concurrent reads. ApplyGeometry serialises the memory
// heavy resample step through a process-wide single-slot lock; everything else
// in this package is stateless and can be called concurrently.
//
// # Error Handling
//
// Decode wraps every failure to interpret bytes as an image in ErrMalformed so
// callers can tell corrupt input apart from I/O failures while reading.
package imaging
