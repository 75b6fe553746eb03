package storage

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func TestDirBackend(t *testing.T) {
	backendTestSuite(t, func(t *testing.T) Backend {
		backend, err := NewDirBackend(t.TempDir())
		if err != nil {
			t.Fatalf("NewDirBackend failed: %v", err)
		}
		return backend
	})
}

func TestDirBackend_InvalidBucketName(t *testing.T) {
	t.Parallel()

	backend, err := NewDirBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewDirBackend failed: %v", err)
	}
	defer backend.Close()

	if err := CreateBuckets(backend, []byte("../escape")); !errors.Is(err, ErrInvalidBucketName) {
		t.Errorf("CreateBuckets(../escape) = %v, want ErrInvalidBucketName", err)
	}

	size, err := backend.Size()
	if err != nil {
		t.Fatalf("Size failed: %v", err)
	}
	if size != 0 {
		t.Errorf("Size = %d, want 0 for an empty tree", size)
	}
}

func TestDirBackend_LongKeys(t *testing.T) {
	t.Parallel()

	backend, err := NewDirBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewDirBackend failed: %v", err)
	}
	defer backend.Close()
	if err := CreateBuckets(backend, testBucket); err != nil {
		t.Fatal(err)
	}

	shared := strings.Repeat("p", MaxDirNameKeyLen)
	keys := []string{shared + "/zz", "a", shared + "/b", shared, "q", shared + strings.Repeat("x", 400)}
	putAll(t, backend, keys...)

	got := collect(t, backend, Bucket.ForEach)
	want := slices.Clone(keys)
	slices.Sort(want)
	if !slices.Equal(got, want) {
		t.Errorf("ForEach order = %q, want %q", got, want)
	}

	got = collect(t, backend, func(b Bucket, fn func(k, v []byte) error) error {
		return b.ForEachPrefix([]byte(shared+"/"), fn)
	})
	if !slices.Equal(got, []string{shared + "/b", shared + "/zz"}) {
		t.Errorf("ForEachPrefix = %q", got)
	}

	for _, k := range keys {
		v, err := Get(backend, testBucket, []byte(k))
		if err != nil {
			t.Fatalf("Get(%d bytes) failed: %v", len(k), err)
		}
		if string(v) != "v-"+k {
			t.Errorf("Get(%d bytes) returned a value of %d bytes", len(k), len(v))
		}
	}

	err = backend.Update(func(tx Transaction) error {
		return tx.Bucket(testBucket).Delete([]byte(shared + "/zz"))
	})
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if v, _ := Get(backend, testBucket, []byte(shared+"/zz")); v != nil {
		t.Error("long key survived Delete")
	}
}

func TestDirBackend_ReadErrorsSurface(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	backend, err := NewDirBackend(root)
	if err != nil {
		t.Fatalf("NewDirBackend failed: %v", err)
	}
	defer backend.Close()
	if err := CreateBuckets(backend, testBucket); err != nil {
		t.Fatal(err)
	}
	putAll(t, backend, "good")

	// An entry that exists but cannot be read as a file.
	if err := os.Mkdir(filepath.Join(root, string(testBucket), fileName([]byte("broken"))), 0o755); err != nil {
		t.Fatal(err)
	}

	if v, err := Get(backend, testBucket, []byte("broken")); err == nil {
		t.Errorf("Get of an unreadable entry = %q, nil; want an error", v)
	}
	err = backend.View(func(tx Transaction) error {
		return tx.Bucket(testBucket).ForEach(func(_, _ []byte) error { return nil })
	})
	if !errors.Is(err, ErrCorruptEntry) {
		t.Errorf("ForEach over an unreadable entry = %v, want ErrCorruptEntry", err)
	}
}

func TestDirBackend_Reopen(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	backend, err := NewDirBackend(root)
	if err != nil {
		t.Fatalf("NewDirBackend failed: %v", err)
	}
	if err := CreateBuckets(backend, testBucket); err != nil {
		t.Fatal(err)
	}
	if err := Put(backend, testBucket, []byte("key"), []byte("value")); err != nil {
		t.Fatal(err)
	}
	backend.Close()

	reopened, err := NewDirBackend(root)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	got, err := Get(reopened, testBucket, []byte("key"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != "value" {
		t.Errorf("Get after reopen = %q, want value", got)
	}
}
