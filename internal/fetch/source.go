package fetch

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"slices"
	"strings"

	"github.com/ironsheep/image-fetch/internal/fingerprint"
)

// Kind is the class of fetcher that serves a Source.
type Kind int

const (
	KindUnknown Kind = iota
	KindNetwork
	KindFile
	KindContent
	KindContactsPhoto
	KindResource
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindFile:
		return "file"
	case KindContent:
		return "content"
	case KindContactsPhoto:
		return "contacts_photo"
	case KindResource:
		return "resource"
	default:
		return "unknown"
	}
}

// URI schemes and authorities recognised by Classify.
const (
	SchemeHTTP            = "http"
	SchemeHTTPS           = "https"
	SchemeFile            = "file"
	SchemeContent         = "content"
	SchemeResource        = "resource"
	SchemeAndroidResource = "android.resource"

	// ContactsAuthority is the content authority of contact records.
	ContactsAuthority = "com.android.contacts"
	// PhotoDirectory is the path segment addressing a contact's photo directly.
	PhotoDirectory = "photo"
)

// ErrUnsupportedSource is returned by Classify for sources no fetcher handles.
var ErrUnsupportedSource = errors.New("unsupported image source")

// Source identifies an image. Exactly one of URI and ResourceID is normally set;
// a non-zero ResourceID wins.
type Source struct {
	URI        string `json:"uri,omitempty"`
	ResourceID int    `json:"resource_id,omitempty"`
}

// ID returns the stable source id used in fingerprints and failure reports.
func (s Source) ID() string {
	if s.ResourceID != 0 {
		return fingerprint.ResourceSource(s.ResourceID)
	}
	return s.URI
}

func (s Source) String() string {
	return s.ID()
}

// Classify determines which Kind of fetcher serves s. It is pure.
func Classify(s Source) (Kind, error) {
	if s.ResourceID != 0 {
		return KindResource, nil
	}
	if s.URI == "" {
		return KindUnknown, fmt.Errorf("%w: empty uri", ErrUnsupportedSource)
	}
	if strings.HasPrefix(s.URI, "/") {
		return KindFile, nil
	}

	u, err := url.Parse(s.URI)
	if err != nil {
		return KindUnknown, fmt.Errorf("%w: %v", ErrUnsupportedSource, err)
	}

	switch strings.ToLower(u.Scheme) {
	case SchemeHTTP, SchemeHTTPS:
		return KindNetwork, nil
	case SchemeFile:
		return KindFile, nil
	case SchemeResource, SchemeAndroidResource:
		return KindResource, nil
	case SchemeContent:
		if u.Host == ContactsAuthority && !slices.Contains(pathSegments(u), PhotoDirectory) {
			return KindContactsPhoto, nil
		}
		return KindContent, nil
	default:
		return KindUnknown, fmt.Errorf("%w: %q", ErrUnsupportedSource, s.URI)
	}
}

func pathSegments(u *url.URL) []string {
	var segs []string
	for _, s := range strings.Split(path.Clean("/"+u.Path), "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}
