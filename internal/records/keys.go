package records

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Storage keys are "key \x00 bucket \x00 id" with the bucket as eight hex
// digits, so a prefix scan over "key \x00" yields results in bucket order.

const sep = "\x00"

// ValidateKey rejects empty grouping keys and keys containing the separator.
func ValidateKey(key string) error {
	if key == "" || strings.Contains(key, sep) {
		return errors.Wrapf(ErrInvalidKey, "%q", key)
	}
	return nil
}

// ValidateDocumentID rejects empty document ids and ids containing the separator.
func ValidateDocumentID(id string) error {
	if id == "" || strings.Contains(id, sep) {
		return errors.Wrapf(ErrInvalidDocumentID, "%q", id)
	}
	return nil
}

// KeyPrefix is the prefix shared by every storage key of a grouping key.
func KeyPrefix(key string) []byte {
	return []byte(key + sep)
}

// BucketKey encodes (key, bucket), the storage key of a schedule marker.
func BucketKey(key string, bucket int) []byte {
	return fmt.Appendf(nil, "%s%s%08x", key, sep, bucket)
}

func resultKey(key string, bucket int, id string) []byte {
	return fmt.Appendf(nil, "%s%s%08x%s%s", key, sep, bucket, sep, id)
}

// ParseBucketKey splits a marker key back into grouping key and bucket.
func ParseBucketKey(k []byte) (string, int, error) {
	i := bytes.Index(k, []byte(sep))
	if i < 0 {
		return "", 0, errors.Wrapf(ErrCorruptKey, "%q", k)
	}
	bucket, err := strconv.ParseUint(string(k[i+1:]), 16, 32)
	if err != nil {
		return "", 0, errors.Wrapf(ErrCorruptKey, "%q", k)
	}
	return string(k[:i]), int(bucket), nil
}

func parseResultKey(k []byte) (key string, bucket int, id string, err error) {
	parts := bytes.SplitN(k, []byte(sep), 3)
	if len(parts) != 3 {
		return "", 0, "", errors.Wrapf(ErrCorruptKey, "%q", k)
	}
	b, err := strconv.ParseUint(string(parts[1]), 16, 32)
	if err != nil {
		return "", 0, "", errors.Wrapf(ErrCorruptKey, "%q", k)
	}
	return string(parts[0]), int(b), string(parts[2]), nil
}

func documentKey(documentID, key string) []byte {
	return []byte(documentID + sep + key)
}

func documentPrefix(documentID string) []byte {
	return []byte(documentID + sep)
}

func areaBucket(area Area, level Level) []byte {
	return fmt.Appendf(nil, "%s_%d", area, int(level))
}
