// Package storage keeps buckets as directories and objects as files under a
// single root.
package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	ErrBucketExists   = errors.New("bucket already exists")
	ErrBucketNotFound = errors.New("bucket does not exist")
	ErrObjectNotFound = errors.New("object does not exist")
	ErrInvalidName    = errors.New("invalid name")
)

// uploadPrefix marks in-flight temp files inside a bucket directory.
const uploadPrefix = ".upload-"

var bucketNameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

type Bucket struct {
	Name         string
	CreationDate time.Time
}

type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Store is safe for concurrent use. Bucket-level mutations are serialized.
type Store struct {
	root string
	mu   sync.Mutex
}

// New creates root if needed.
func New(root string) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("storage root must not be empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &Store{root: root}, nil
}

func (s *Store) Root() string {
	return s.root
}

// ValidateBucketName enforces S3-style names: 3 to 63 lowercase letters,
// digits, dots and hyphens, starting and ending alphanumeric.
func ValidateBucketName(name string) error {
	if !bucketNameRe.MatchString(name) || strings.Contains(name, "..") {
		return fmt.Errorf("%w: bucket %q", ErrInvalidName, name)
	}
	return nil
}

// ValidateObjectKey rejects keys that could escape the bucket directory or
// collide with in-flight uploads.
func ValidateObjectKey(key string) error {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) || strings.ContainsRune(key, 0) ||
		strings.HasPrefix(key, uploadPrefix) {
		return fmt.Errorf("%w: object %q", ErrInvalidName, key)
	}
	return nil
}

func (s *Store) bucketPath(name string) string {
	return filepath.Join(s.root, name)
}

func (s *Store) ListBuckets() ([]Bucket, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read storage root: %w", err)
	}

	buckets := make([]Bucket, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		buckets = append(buckets, Bucket{Name: e.Name(), CreationDate: info.ModTime().UTC()})
	}
	return buckets, nil
}

func (s *Store) CreateBucket(name string) error {
	if err := ValidateBucketName(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Mkdir(s.bucketPath(name), 0o755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %s", ErrBucketExists, name)
		}
		return fmt.Errorf("create bucket %s: %w", name, err)
	}
	return nil
}

// HeadBucket reports whether the bucket exists.
func (s *Store) HeadBucket(name string) error {
	if err := ValidateBucketName(name); err != nil {
		return err
	}
	info, err := os.Stat(s.bucketPath(name))
	if errors.Is(err, fs.ErrNotExist) || (err == nil && !info.IsDir()) {
		return fmt.Errorf("%w: %s", ErrBucketNotFound, name)
	}
	if err != nil {
		return fmt.Errorf("stat bucket %s: %w", name, err)
	}
	return nil
}

// DeleteBucket removes the bucket and everything in it.
func (s *Store) DeleteBucket(name string) error {
	if err := s.HeadBucket(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.RemoveAll(s.bucketPath(name)); err != nil {
		return fmt.Errorf("delete bucket %s: %w", name, err)
	}
	return nil
}

func (s *Store) RenameBucket(oldName, newName string) error {
	if err := s.HeadBucket(oldName); err != nil {
		return err
	}
	if err := ValidateBucketName(newName); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.bucketPath(newName)); err == nil {
		return fmt.Errorf("%w: %s", ErrBucketExists, newName)
	}
	if err := os.Rename(s.bucketPath(oldName), s.bucketPath(newName)); err != nil {
		return fmt.Errorf("rename bucket %s to %s: %w", oldName, newName, err)
	}
	return nil
}

// PutObject writes r to bucket/key through a temp file, so readers never see
// a partial object.
func (s *Store) PutObject(bucket, key string, r io.Reader) (int64, error) {
	if err := s.HeadBucket(bucket); err != nil {
		return 0, err
	}
	if err := ValidateObjectKey(key); err != nil {
		return 0, err
	}

	dir := s.bucketPath(bucket)
	tmp, err := os.CreateTemp(dir, uploadPrefix+"*")
	if err != nil {
		return 0, fmt.Errorf("create temp object: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, r)
	if err != nil {
		_ = tmp.Close()
		return 0, fmt.Errorf("write object %s/%s: %w", bucket, key, err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close object %s/%s: %w", bucket, key, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, key)); err != nil {
		return 0, fmt.Errorf("commit object %s/%s: %w", bucket, key, err)
	}
	return n, nil
}

// GetObject opens bucket/key. The caller closes the returned file.
func (s *Store) GetObject(bucket, key string) (*os.File, Object, error) {
	if err := s.HeadBucket(bucket); err != nil {
		return nil, Object{}, err
	}
	if err := ValidateObjectKey(key); err != nil {
		return nil, Object{}, err
	}

	f, err := os.Open(filepath.Join(s.bucketPath(bucket), key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, Object{}, fmt.Errorf("%w: %s/%s", ErrObjectNotFound, bucket, key)
	}
	if err != nil {
		return nil, Object{}, fmt.Errorf("open object %s/%s: %w", bucket, key, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, Object{}, fmt.Errorf("stat object %s/%s: %w", bucket, key, err)
	}
	return f, Object{Key: key, Size: info.Size(), LastModified: info.ModTime().UTC()}, nil
}

// StatObject returns the metadata of bucket/key without opening it.
func (s *Store) StatObject(bucket, key string) (Object, error) {
	if err := s.HeadBucket(bucket); err != nil {
		return Object{}, err
	}
	if err := ValidateObjectKey(key); err != nil {
		return Object{}, err
	}

	info, err := os.Stat(filepath.Join(s.bucketPath(bucket), key))
	if errors.Is(err, fs.ErrNotExist) || (err == nil && info.IsDir()) {
		return Object{}, fmt.Errorf("%w: %s/%s", ErrObjectNotFound, bucket, key)
	}
	if err != nil {
		return Object{}, fmt.Errorf("stat object %s/%s: %w", bucket, key, err)
	}
	return Object{Key: key, Size: info.Size(), LastModified: info.ModTime().UTC()}, nil
}

func (s *Store) ListObjects(bucket string) ([]Object, error) {
	if err := s.HeadBucket(bucket); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.bucketPath(bucket))
	if err != nil {
		return nil, fmt.Errorf("read bucket %s: %w", bucket, err)
	}

	objects := make([]Object, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), uploadPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		objects = append(objects, Object{Key: e.Name(), Size: info.Size(), LastModified: info.ModTime().UTC()})
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

func (s *Store) DeleteObject(bucket, key string) error {
	if err := s.HeadBucket(bucket); err != nil {
		return err
	}
	if err := ValidateObjectKey(key); err != nil {
		return err
	}

	err := os.Remove(filepath.Join(s.bucketPath(bucket), key))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s/%s", ErrObjectNotFound, bucket, key)
	}
	if err != nil {
		return fmt.Errorf("delete object %s/%s: %w", bucket, key, err)
	}
	return nil
}
