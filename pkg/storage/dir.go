package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spaolacci/murmur3"
)

// ErrInvalidBucketName is returned by DirBackend for names that cannot be used
// as a directory name.
var ErrInvalidBucketName = errors.New("invalid bucket name")

// ErrCorruptEntry is returned by DirBackend for files it cannot read back as an entry.
var ErrCorruptEntry = errors.New("corrupt entry")

// MaxDirNameKeyLen is the longest key stored under its plain hex name. Longer
// keys are stored under the hex of their first MaxDirNameKeyLen bytes plus a
// hash, with the full key at the head of the file.
const MaxDirNameKeyLen = 100

var bucketNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

const (
	dirTempName = ".tmp"
	// hashedSep never occurs in hex, so it marks hashed names.
	hashedSep = "."
)

// DirBackend implements Backend directly on a directory tree: one directory
// per bucket and one file per key. File names are the hex encoding of the key,
// which keeps the directory listing in key order. Values are written to a
// temporary file and renamed into place, so a single Put is atomic; a
// transaction as a whole is not.
type DirBackend struct {
	root string
	mu   sync.RWMutex
}

// NewDirBackend creates a directory-backed storage rooted at root.
func NewDirBackend(root string) (*DirBackend, error) {
	if err := os.MkdirAll(filepath.Join(root, dirTempName), 0o755); err != nil {
		return nil, errors.Wrapf(err, "create storage root %q", root)
	}
	return &DirBackend{root: root}, nil
}

func fileName(key []byte) string {
	if len(key) <= MaxDirNameKeyLen {
		return hex.EncodeToString(key)
	}
	h1, h2 := murmur3.Sum128(key)
	var sum [16]byte
	binary.BigEndian.PutUint64(sum[:8], h1)
	binary.BigEndian.PutUint64(sum[8:], h2)
	return hex.EncodeToString(key[:MaxDirNameKeyLen]) + hashedSep + hex.EncodeToString(sum[:])
}

func isHashed(name string) bool {
	return strings.Contains(name, hashedSep)
}

// encodeHashed prefixes value with the full key: uvarint length, key, value.
func encodeHashed(key, value []byte) []byte {
	out := binary.AppendUvarint(nil, uint64(len(key)))
	out = append(out, key...)
	return append(out, value...)
}

func decodeHashed(name string, data []byte) (key, value []byte, err error) {
	n, size := binary.Uvarint(data)
	if size <= 0 || uint64(len(data)-size) < n {
		return nil, nil, errors.Wrapf(ErrCorruptEntry, "%s", name)
	}
	return data[size : size+int(n)], data[size+int(n):], nil
}

func (d *DirBackend) bucketPath(name []byte) (string, error) {
	if !bucketNamePattern.Match(name) {
		return "", errors.Wrapf(ErrInvalidBucketName, "%q", name)
	}
	return filepath.Join(d.root, string(name)), nil
}

func (d *DirBackend) createBucket(name []byte) error {
	p, err := d.bucketPath(name)
	if err != nil {
		return err
	}
	return os.MkdirAll(p, 0o755)
}

func (d *DirBackend) deleteBucket(name []byte) error {
	p, err := d.bucketPath(name)
	if err != nil {
		return err
	}
	return os.RemoveAll(p)
}

func (d *DirBackend) bucketExists(name []byte) (bool, error) {
	p, err := d.bucketPath(name)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(p)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

func (d *DirBackend) put(dir string, key, value []byte) error {
	name := fileName(key)
	if isHashed(name) {
		value = encodeHashed(key, value)
	}

	tmp := filepath.Join(d.root, dirTempName, uuid.NewString())
	if err := os.WriteFile(tmp, value, 0o644); err != nil {
		return errors.Wrap(err, "write temp file")
	}
	if err := os.Rename(tmp, filepath.Join(dir, name)); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "move temp file into place")
	}
	return nil
}

func (d *DirBackend) get(dir string, key []byte) ([]byte, error) {
	name := fileName(key)
	data, err := os.ReadFile(filepath.Join(dir, name))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", name)
	}
	if !isHashed(name) {
		return data, nil
	}

	stored, value, err := decodeHashed(name, data)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(stored, key) {
		return nil, errors.Wrapf(ErrCorruptEntry, "%s holds another key", name)
	}
	return value, nil
}

func (d *DirBackend) delete(dir string, key []byte) error {
	err := os.Remove(filepath.Join(dir, fileName(key)))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// readEntry loads the file name and reports whether match accepts its key.
// Plain names are hex, which preserves byte order, so they are filtered before
// the file is read. Hashed names are read to recover the key.
func readEntry(dir string, f os.DirEntry, match func(k []byte) bool) (key, value []byte, ok bool, err error) {
	name := f.Name()
	if f.IsDir() {
		return nil, nil, false, errors.Wrapf(ErrCorruptEntry, "%s is a directory", name)
	}

	if !isHashed(name) {
		if key, err = hex.DecodeString(name); err != nil {
			return nil, nil, false, nil // not ours
		}
		if match != nil && !match(key) {
			return nil, nil, false, nil
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, name))
	if os.IsNotExist(err) {
		return nil, nil, false, nil // removed since the listing
	}
	if err != nil {
		return nil, nil, false, errors.Wrapf(err, "read %s", name)
	}
	if key != nil {
		return key, data, true, nil
	}

	if key, value, err = decodeHashed(name, data); err != nil {
		return nil, nil, false, err
	}
	return key, value, match == nil || match(key), nil
}

type dirEntry struct {
	key, value []byte
}

// forEachMatch visits, in key order, the entries whose key match accepts.
// Listings holding only plain names are streamed; hashed names sort by hash,
// so a listing with any of them is collected and sorted by key first.
func (d *DirBackend) forEachMatch(dir string, match func(k []byte) bool, fn func(k, v []byte) error) error {
	files, err := os.ReadDir(dir)
	if err != nil {
		return errors.Wrapf(err, "list %s", dir)
	}

	ordered := !slices.ContainsFunc(files, func(f os.DirEntry) bool { return isHashed(f.Name()) })

	var entries []dirEntry
	for _, f := range files {
		key, value, ok, err := readEntry(dir, f, match)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if ordered {
			if err := fn(key, value); err != nil {
				return err
			}
			continue
		}
		entries = append(entries, dirEntry{key: key, value: value})
	}

	slices.SortFunc(entries, func(a, b dirEntry) int { return bytes.Compare(a.key, b.key) })
	for _, e := range entries {
		if err := fn(e.key, e.value); err != nil {
			return err
		}
	}
	return nil
}

// Update runs fn with exclusive access to the directory tree.
func (d *DirBackend) Update(fn func(tx Transaction) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return fn(&dirTransaction{backend: d})
}

// View runs fn with shared access to the directory tree.
func (d *DirBackend) View(fn func(tx Transaction) error) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return fn(&dirTransaction{backend: d})
}

// Size sums the size of all stored files.
func (d *DirBackend) Size() (int64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var total int64
	err := filepath.WalkDir(d.root, func(_ string, e os.DirEntry, err error) error {
		if err != nil || e.IsDir() {
			return err
		}
		info, err := e.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}

// Close removes leftover temporary files.
func (d *DirBackend) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	tmp := filepath.Join(d.root, dirTempName)
	if err := os.RemoveAll(tmp); err != nil {
		return err
	}
	return os.MkdirAll(tmp, 0o755)
}

// dirTransaction runs under the backend lock taken by Update or View.
type dirTransaction struct {
	backend *DirBackend
}

func (t *dirTransaction) CreateBucket(name []byte) error {
	return t.backend.createBucket(name)
}

func (t *dirTransaction) DeleteBucket(name []byte) error {
	return t.backend.deleteBucket(name)
}

func (t *dirTransaction) Bucket(name []byte) Bucket {
	exists, err := t.backend.bucketExists(name)
	if err != nil || !exists {
		return nil
	}
	p, _ := t.backend.bucketPath(name)
	return &dirBucket{backend: t.backend, dir: p}
}

func (t *dirTransaction) ForEachBucket(fn func(name []byte) error) error {
	entries, err := os.ReadDir(t.backend.root)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if err := fn([]byte(e.Name())); err != nil {
			return err
		}
	}
	return nil
}

type dirBucket struct {
	backend *DirBackend
	dir     string
}

func (b *dirBucket) Put(key, value []byte) error {
	return b.backend.put(b.dir, key, value)
}

func (b *dirBucket) Get(key []byte) ([]byte, error) {
	return b.backend.get(b.dir, key)
}

func (b *dirBucket) Delete(key []byte) error {
	return b.backend.delete(b.dir, key)
}

func (b *dirBucket) ForEach(fn func(k, v []byte) error) error {
	return b.backend.forEachMatch(b.dir, nil, fn)
}

func (b *dirBucket) ForEachPrefix(prefix []byte, fn func(k, v []byte) error) error {
	return b.backend.forEachMatch(b.dir, func(k []byte) bool {
		return bytes.HasPrefix(k, prefix)
	}, fn)
}

func (b *dirBucket) ForEachRange(start, end []byte, fn func(k, v []byte) error) error {
	return b.backend.forEachMatch(b.dir, func(k []byte) bool {
		return bytes.Compare(k, start) >= 0 && bytes.Compare(k, end) < 0
	}, fn)
}
