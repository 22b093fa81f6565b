// Package zarr models the files uploaded into a Zarr archive container and
// implements the batch upload procedure against the archive API.
package zarr

import (
	"crypto/md5"
	"encoding/base64"
)

// Entry - one file to upload: a logical path, raw content and the content's
// Base64-encoded MD5 digest. The digest doubles as the upload integrity
// check and the expected-state marker when listings are compared.
type Entry struct {
	Path      string
	Blob      []byte
	Base64MD5 string
}

// NewEntry builds an immutable Entry, computing the digest from the blob.
func NewEntry(path string, blob []byte) Entry {
	sum := md5.Sum(blob)
	return Entry{
		Path:      path,
		Blob:      blob,
		Base64MD5: base64.StdEncoding.EncodeToString(sum[:]),
	}
}

// Paths returns the logical paths of entries, preserving order.
func Paths(entries []Entry) []string {
	paths := make([]string, len(entries))
	for i, e := range entries {
		paths[i] = e.Path
	}
	return paths
}
