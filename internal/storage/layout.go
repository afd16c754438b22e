package storage

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Key prefixes and suffixes of the store layout.
const (
	IndexPrefix      = "indices/"
	ObjectPrefix     = "objects/"
	ScreenshotPrefix = "screenshots/"

	resultSuffix = ".txt"
	markerSuffix = ".request.txt"
	metadataName = "metadata.json"
	imagePrefix  = "image-"
)

// ResultKey names the result blob for a partition key.
func ResultKey(partitionKey string) string {
	return IndexPrefix + partitionKey + resultSuffix
}

// MarkerKey names the dispatch marker for a partition key.
func MarkerKey(partitionKey string) string {
	return IndexPrefix + partitionKey + markerSuffix
}

// IsResultKey reports whether key names a partition result rather than a
// marker or an unrelated blob.
func IsResultKey(key string) bool {
	return strings.HasPrefix(key, IndexPrefix) &&
		strings.HasSuffix(key, resultSuffix) &&
		!strings.HasSuffix(key, markerSuffix)
}

// ObjectDir is the key prefix holding everything stored for one object.
// Identifiers contain spaces, slashes and dots, so they are escaped.
func ObjectDir(objectID string) string {
	return ObjectPrefix + strings.ReplaceAll(url.PathEscape(objectID), ".", "%2E") + "/"
}

// MetadataKey names the metadata blob of an object.
func MetadataKey(objectID string) string {
	return ObjectDir(objectID) + metadataName
}

// ImageKey names the i-th image of an object with the given extension.
func ImageKey(objectID string, index int, ext string) string {
	return fmt.Sprintf("%s%s%d.%s", ObjectDir(objectID), imagePrefix, index, ext)
}

// IsImageKey reports whether key names an image blob of objectID.
func IsImageKey(objectID, key string) bool {
	return strings.HasPrefix(key, ObjectDir(objectID)+imagePrefix)
}

// ScreenshotKey names a diagnostic capture taken at t.
func ScreenshotKey(t time.Time) string {
	return fmt.Sprintf("%serr-%d.png", ScreenshotPrefix, t.UnixMilli())
}
