package objectstore

import (
	"fmt"
	"strings"
)

const uriScheme = "s3://"

// IsURI reports whether the reference points at object storage rather than
// a local path.
func IsURI(ref string) bool {
	return strings.HasPrefix(ref, uriScheme)
}

// ParseURI splits an s3://bucket/key reference into bucket and key.
func ParseURI(uri string) (bucket, key string, err error) {
	if !IsURI(uri) {
		return "", "", fmt.Errorf("not an object storage uri: %q", uri)
	}
	rest := strings.TrimPrefix(uri, uriScheme)
	bucket, key, found := strings.Cut(rest, "/")
	if strings.TrimSpace(bucket) == "" {
		return "", "", fmt.Errorf("object storage uri missing bucket: %q", uri)
	}
	if !found || strings.TrimSpace(key) == "" {
		return "", "", fmt.Errorf("object storage uri missing key: %q", uri)
	}
	return bucket, key, nil
}

// URI joins a bucket and key path segments into an s3:// reference.
func URI(bucket string, parts ...string) string {
	segments := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.Trim(part, "/")
		if part == "" {
			continue
		}
		segments = append(segments, part)
	}
	if len(segments) == 0 {
		return uriScheme + bucket
	}
	return uriScheme + bucket + "/" + strings.Join(segments, "/")
}
