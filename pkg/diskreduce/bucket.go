package diskreduce

import "unicode"

// HashPrime is the multiplier of the bucket hash. Buckets are persisted, so
// changing it invalidates every existing store.
const HashPrime = 397

// MaxBatchSize is the largest batch size whose buckets fit the storage layout.
const MaxBatchSize = 65535

// BucketOf assigns a document to a level-0 bucket in [0, batchSize²). The
// hash ignores case, so "ab" and "AB" share a bucket.
func BucketOf(documentID string, batchSize int) int {
	var hash int32
	for _, r := range documentID {
		hash = (hash * HashPrime) ^ int32(unicode.ToUpper(r))
	}

	h := int64(hash)
	if h < 0 {
		h = -h
	}
	return int(h % (int64(batchSize) * int64(batchSize)))
}

// ParentBucket is the bucket a result moves to one level up.
func ParentBucket(bucket, batchSize int) int {
	return bucket / batchSize
}
