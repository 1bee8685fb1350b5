// Package modelstore persists serialized models as named blobs.
package modelstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	gcsstorage "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/castlemilk/pfinance/analytics/internal/finance"
)

// BlobStore reads and writes named blobs. Writers and readers handed to the
// callbacks are only valid for the duration of the call and are always
// released, whether or not the callback fails. A failed Put leaves any
// previous blob of that name in place.
type BlobStore interface {
	Put(ctx context.Context, name string, write func(w io.Writer) error) error
	Get(ctx context.Context, name string, read func(r io.Reader) error) error
	Delete(ctx context.Context, name string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

// ModelName is the blob name of a user's model of the given kind.
func ModelName(userID, kind string) string {
	return fmt.Sprintf("models/%s/%s.pfm", userID, kind)
}

func validName(name string) error {
	if name == "" || strings.HasPrefix(name, "/") || strings.Contains(name, "..") {
		return finance.InvalidParameter("blob name", name, "must be a relative path without '..'")
	}
	return nil
}

// FileStore keeps blobs under a local directory.
type FileStore struct {
	root string
}

var _ BlobStore = (*FileStore)(nil)

// NewFileStore creates root if needed.
func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, finance.Storage("create model directory", err)
	}
	return &FileStore{root: root}, nil
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.root, filepath.FromSlash(name))
}

// Put writes to a temporary file and renames it into place.
func (s *FileStore) Put(ctx context.Context, name string, write func(w io.Writer) error) error {
	if err := validName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	dst := s.path(name)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return finance.Storage("create blob directory", err)
	}
	f, err := os.CreateTemp(filepath.Dir(dst), ".tmp-*")
	if err != nil {
		return finance.Storage("create blob", err)
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return finance.Storage("close blob", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		return finance.Storage("commit blob", err)
	}
	return nil
}

func (s *FileStore) Get(ctx context.Context, name string, read func(r io.Reader) error) error {
	if err := validName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := os.Open(s.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return finance.NotFound("blob", name)
	}
	if err != nil {
		return finance.Storage("open blob", err)
	}
	defer f.Close()
	return read(f)
}

func (s *FileStore) Delete(ctx context.Context, name string) error {
	if err := validName(name); err != nil {
		return err
	}
	err := os.Remove(s.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return finance.NotFound("blob", name)
	}
	if err != nil {
		return finance.Storage("delete blob", err)
	}
	return nil
}

// List returns blob names under prefix in lexical order.
func (s *FileStore) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	err := filepath.WalkDir(s.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
		return nil
	})
	if err != nil {
		return nil, finance.Storage("list blobs", err)
	}
	sort.Strings(names)
	return names, nil
}

// GCSStore keeps blobs in a Cloud Storage bucket.
type GCSStore struct {
	bucket *gcsstorage.BucketHandle
}

var _ BlobStore = (*GCSStore)(nil)

// NewGCSStore wraps an existing bucket handle.
func NewGCSStore(bucket *gcsstorage.BucketHandle) *GCSStore {
	return &GCSStore{bucket: bucket}
}

// Put streams to a new object generation. Cancelling the write context
// discards a partial upload, so the previous generation stays current.
func (s *GCSStore) Put(ctx context.Context, name string, write func(w io.Writer) error) error {
	if err := validName(name); err != nil {
		return err
	}
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := s.bucket.Object(name).NewWriter(wctx)
	w.ContentType = "application/octet-stream"
	if err := write(w); err != nil {
		cancel()
		_ = w.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return finance.Storage("upload blob", err)
	}
	return nil
}

func (s *GCSStore) Get(ctx context.Context, name string, read func(r io.Reader) error) error {
	if err := validName(name); err != nil {
		return err
	}
	r, err := s.bucket.Object(name).NewReader(ctx)
	if errors.Is(err, gcsstorage.ErrObjectNotExist) {
		return finance.NotFound("blob", name)
	}
	if err != nil {
		return finance.Storage("open blob", err)
	}
	defer r.Close()
	return read(r)
}

func (s *GCSStore) Delete(ctx context.Context, name string) error {
	if err := validName(name); err != nil {
		return err
	}
	err := s.bucket.Object(name).Delete(ctx)
	if errors.Is(err, gcsstorage.ErrObjectNotExist) {
		return finance.NotFound("blob", name)
	}
	if err != nil {
		return finance.Storage("delete blob", err)
	}
	return nil
}

func (s *GCSStore) List(ctx context.Context, prefix string) ([]string, error) {
	it := s.bucket.Objects(ctx, &gcsstorage.Query{Prefix: prefix})
	var names []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, finance.Storage("list blobs", err)
		}
		names = append(names, attrs.Name)
	}
	return names, nil
}
