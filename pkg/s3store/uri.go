// Package s3store reads input archives from S3 and streams split outputs to S3.
package s3store

import (
	"fmt"
	"strings"
)

const scheme = "s3://"

// IsURI reports whether s is an s3:// URI.
func IsURI(s string) bool {
	return strings.HasPrefix(s, scheme)
}

// ParseURI splits "s3://bucket/key" into bucket and key. allowEmptyKey
// accepts "s3://bucket" and "s3://bucket/".
func ParseURI(s string, allowEmptyKey bool) (bucket, key string, err error) {
	if !IsURI(s) {
		return "", "", fmt.Errorf("not an s3 URI: %q", s)
	}
	rest := strings.TrimPrefix(s, scheme)
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("missing bucket in %q", s)
	}
	if key == "" && !allowEmptyKey {
		return "", "", fmt.Errorf("missing key in %q", s)
	}
	return bucket, key, nil
}
