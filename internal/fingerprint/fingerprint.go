// Package fingerprint derives the stable identity of a fetch request.
//
// Two requests with equal Keys produce interchangeable results, so the
// dispatcher coalesces them onto one task and the memory cache stores one
// entry for both.
package fingerprint

import (
	_ "crypto/sha256"
	"errors"
	"strconv"
	"strings"

	"github.com/opencontainers/go-digest"

	"github.com/ironsheep/image-fetch/internal/imaging"
)

// ErrEmptySource is returned when a fingerprint is requested for an empty source id.
var ErrEmptySource = errors.New("fingerprint: empty source id")

// Key identifies the output of a request: source, geometry and ordered transforms.
// Keys are comparable and safe to use as map keys.
type Key string

// String returns the full digest form of k.
func (k Key) String() string {
	return string(k)
}

// Short returns an abbreviated form of k for logs.
func (k Key) Short() string {
	d := digest.Digest(k)
	if d.Validate() != nil {
		return string(k)
	}
	enc := d.Encoded()
	if len(enc) > 12 {
		enc = enc[:12]
	}
	return enc
}

// ResourceSource returns the source id used for bundled resource id.
func ResourceSource(id int) string {
	return "resource:" + strconv.Itoa(id)
}

// New computes the Key for source, the ordered transform keys and geometry g.
//
// New is pure: equal inputs give equal Keys on every call. Transform order is
// significant.
func New(source string, transformKeys []string, g imaging.Geometry) (Key, error) {
	if source == "" {
		return "", ErrEmptySource
	}
	return Key(digest.FromString(Canonical(source, transformKeys, g))), nil
}

// Canonical returns the text a Key is hashed from, one field per line.
// The source and transform keys are quoted so that no caller-supplied text
// can stand in for another field.
func Canonical(source string, transformKeys []string, g imaging.Geometry) string {
	var sb strings.Builder
	sb.WriteString(strconv.Quote(source))
	sb.WriteByte('\n')

	if g.HasSize() {
		sb.WriteString("resize:")
		sb.WriteString(strconv.Itoa(g.TargetWidth))
		sb.WriteByte('x')
		sb.WriteString(strconv.Itoa(g.TargetHeight))
		sb.WriteByte('\n')
	}
	if g.CenterCrop {
		sb.WriteString("centerCrop\n")
	}
	if g.CenterInside {
		sb.WriteString("centerInside\n")
	}
	if g.Rotation != 0 {
		sb.WriteString("rotation:")
		sb.WriteString(formatFloat(g.Rotation))
		if g.HasPivot {
			sb.WriteString(" @ ")
			sb.WriteString(formatFloat(g.PivotX))
			sb.WriteByte('x')
			sb.WriteString(formatFloat(g.PivotY))
		}
		sb.WriteByte('\n')
	}
	if g.ScaleX != 0 || g.ScaleY != 0 {
		sb.WriteString("scale:")
		sb.WriteString(formatFloat(g.ScaleX))
		sb.WriteByte('x')
		sb.WriteString(formatFloat(g.ScaleY))
		sb.WriteByte('\n')
	}

	for _, k := range transformKeys {
		sb.WriteString("transform:")
		sb.WriteString(strconv.Quote(k))
		sb.WriteByte('\n')
	}
	return sb.String()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
