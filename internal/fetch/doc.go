// Package fetch loads and decodes images from their sources.
//
// A Source names an image by URI or bundled resource id. Classify maps a
// Source to a Kind by scheme and authority, and a Registry maps each Kind to
// the Fetcher that handles it:
//
//   - KindNetwork: http and https URLs, through a Downloader
//   - KindFile: file URLs and absolute paths, with EXIF auto-orientation
//   - KindContent: content URIs, through a ContentResolver
//   - KindContactsPhoto: contact records, resolved to the contact's photo
//   - KindResource: images bundled in an fs.FS
//
// Every Fetcher failure is classified: *RecoverableError for transient
// conditions worth retrying, *UnrecoverableError for everything else.
package fetch
