package storage

import (
	"bytes"
	"errors"
	"slices"
	"testing"
)

var testBucket = []byte("test")

// collect returns the keys visited by an iteration, in visiting order.
func collect(t *testing.T, b Backend, iterate func(Bucket, func(k, v []byte) error) error) []string {
	t.Helper()
	var keys []string
	err := b.View(func(tx Transaction) error {
		bkt, err := MustBucket(tx, testBucket)
		if err != nil {
			return err
		}
		return iterate(bkt, func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	if err != nil {
		t.Fatalf("iteration failed: %v", err)
	}
	return keys
}

func putAll(t *testing.T, b Backend, keys ...string) {
	t.Helper()
	for _, k := range keys {
		if err := Put(b, testBucket, []byte(k), []byte("v-"+k)); err != nil {
			t.Fatalf("Put(%q) failed: %v", k, err)
		}
	}
}

// backendTestSuite runs the shared contract against a Backend implementation.
func backendTestSuite(t *testing.T, newBackend func(t *testing.T) Backend) {
	open := func(t *testing.T) Backend {
		t.Helper()
		b := newBackend(t)
		t.Cleanup(func() { b.Close() })
		if err := CreateBuckets(b, testBucket); err != nil {
			t.Fatalf("CreateBuckets failed: %v", err)
		}
		return b
	}

	t.Run("BucketLifecycle", func(t *testing.T) {
		b := open(t)

		// Idempotent
		if err := CreateBuckets(b, testBucket, []byte("other")); err != nil {
			t.Fatalf("CreateBuckets again failed: %v", err)
		}

		var names []string
		err := b.View(func(tx Transaction) error {
			return tx.ForEachBucket(func(name []byte) error {
				names = append(names, string(name))
				return nil
			})
		})
		if err != nil {
			t.Fatalf("ForEachBucket failed: %v", err)
		}
		if !slices.Equal(names, []string{"other", "test"}) {
			t.Errorf("ForEachBucket = %v, want [other test]", names)
		}

		for i := 0; i < 2; i++ {
			if err := b.Update(func(tx Transaction) error { return tx.DeleteBucket([]byte("other")) }); err != nil {
				t.Fatalf("DeleteBucket #%d failed: %v", i+1, err)
			}
		}
		err = b.View(func(tx Transaction) error {
			if tx.Bucket([]byte("other")) != nil {
				t.Error("bucket still present after DeleteBucket")
			}
			return nil
		})
		if err != nil {
			t.Fatalf("View failed: %v", err)
		}
	})

	t.Run("PutGetDelete", func(t *testing.T) {
		b := open(t)
		putAll(t, b, "key1")

		got, err := Get(b, testBucket, []byte("key1"))
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !bytes.Equal(got, []byte("v-key1")) {
			t.Errorf("Get = %q, want v-key1", got)
		}

		if got, _ := Get(b, testBucket, []byte("missing")); got != nil {
			t.Errorf("Get of a missing key = %q, want nil", got)
		}

		err = b.Update(func(tx Transaction) error {
			return tx.Bucket(testBucket).Delete([]byte("key1"))
		})
		if err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if got, _ := Get(b, testBucket, []byte("key1")); got != nil {
			t.Errorf("key survived Delete: %q", got)
		}
	})

	t.Run("ForEachOrder", func(t *testing.T) {
		b := open(t)
		putAll(t, b, "b\x00002", "a\x00001", "b\x00001", "ab\x00001", "c")

		got := collect(t, b, Bucket.ForEach)
		want := []string{"a\x00001", "ab\x00001", "b\x00001", "b\x00002", "c"}
		if !slices.Equal(got, want) {
			t.Errorf("ForEach = %q, want %q", got, want)
		}
	})

	t.Run("ForEachPrefix", func(t *testing.T) {
		b := open(t)
		putAll(t, b, "b\x00002", "a\x00001", "b\x00001", "bb\x00001")

		got := collect(t, b, func(bkt Bucket, fn func(k, v []byte) error) error {
			return bkt.ForEachPrefix([]byte("b\x00"), fn)
		})
		if !slices.Equal(got, []string{"b\x00001", "b\x00002"}) {
			t.Errorf("ForEachPrefix = %q", got)
		}
	})

	t.Run("ForEachRange", func(t *testing.T) {
		b := open(t)
		putAll(t, b, "a1", "a2", "a3", "b1")

		got := collect(t, b, func(bkt Bucket, fn func(k, v []byte) error) error {
			return bkt.ForEachRange([]byte("a2"), []byte("b1"), fn)
		})
		if !slices.Equal(got, []string{"a2", "a3"}) {
			t.Errorf("ForEachRange = %q, want [a2 a3]", got)
		}
	})

	t.Run("MissingBucket", func(t *testing.T) {
		b := open(t)

		if err := Put(b, []byte("missing"), []byte("k"), []byte("v")); !errors.Is(err, ErrBucketNotFound) {
			t.Errorf("Put on missing bucket = %v, want ErrBucketNotFound", err)
		}
		if _, err := Get(b, []byte("missing"), []byte("k")); !errors.Is(err, ErrBucketNotFound) {
			t.Errorf("Get on missing bucket = %v, want ErrBucketNotFound", err)
		}
	})

	t.Run("MoveInOneUpdate", func(t *testing.T) {
		b := open(t)
		if err := CreateBuckets(b, []byte("to")); err != nil {
			t.Fatal(err)
		}
		putAll(t, b, "k1", "k2", "k3")

		err := b.Update(func(tx Transaction) error {
			from, to := tx.Bucket(testBucket), tx.Bucket([]byte("to"))
			var keys, values [][]byte
			if err := from.ForEach(func(k, v []byte) error {
				keys = append(keys, bytes.Clone(k))
				values = append(values, bytes.Clone(v))
				return nil
			}); err != nil {
				return err
			}
			for i, k := range keys {
				if err := to.Put(k, values[i]); err != nil {
					return err
				}
				if err := from.Delete(k); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Update failed: %v", err)
		}

		if got, _ := Get(b, []byte("to"), []byte("k2")); string(got) != "v-k2" {
			t.Errorf("moved value = %q, want v-k2", got)
		}
		if keys := collect(t, b, Bucket.ForEach); len(keys) != 0 {
			t.Errorf("source still holds %q", keys)
		}
	})
}
