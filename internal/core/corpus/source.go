package corpus

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/markdave123-py/crawlvec/internal/core"
)

// Source lists and opens the crawl files of one collection.
type Source interface {
	// List returns file names sorted lexically, filtered by prefix and .txt.
	List(ctx context.Context) ([]string, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	// Location is a human-readable origin for logs.
	Location() string
}

const fileExt = ".txt"

func matches(name, prefix string) bool {
	return strings.HasPrefix(name, prefix) && strings.HasSuffix(name, fileExt)
}

// DirSource reads crawl files from a local directory.
type DirSource struct {
	dir    string
	prefix string
}

func NewDirSource(dir, prefix string) *DirSource {
	return &DirSource{dir: dir, prefix: prefix}
}

func (s *DirSource) Location() string { return s.dir }

func (s *DirSource) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.dir, err)
	}
	var out []string
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() || !matches(e.Name(), s.prefix) {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out, nil
}

func (s *DirSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if name != filepath.Base(name) {
		return nil, fmt.Errorf("open %q: not a plain file name", name)
	}
	return os.Open(filepath.Join(s.dir, name))
}

// S3Source reads crawl files from a bucket prefix.
type S3Source struct {
	obj    core.ObjectClient
	bucket string
	dir    string // key prefix of the collection, with trailing slash when non-empty
	prefix string
}

func NewS3Source(obj core.ObjectClient, bucket, dir, prefix string) *S3Source {
	dir = strings.TrimPrefix(dir, "/")
	if dir != "" && !strings.HasSuffix(dir, "/") {
		dir += "/"
	}
	return &S3Source{obj: obj, bucket: bucket, dir: dir, prefix: prefix}
}

func (s *S3Source) Location() string { return "s3://" + s.bucket + "/" + s.dir }

func (s *S3Source) List(ctx context.Context) ([]string, error) {
	keys, err := s.obj.ListKeys(ctx, s.bucket, s.dir+s.prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.Location(), err)
	}
	var out []string
	for _, k := range keys {
		name := strings.TrimPrefix(k, s.dir)
		if strings.Contains(name, "/") || !matches(name, s.prefix) {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (s *S3Source) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	return s.obj.GetObjectReader(ctx, s.bucket, s.dir+name)
}

// Open picks the source for location: s3://bucket/prefix or a directory.
// obj may be nil when no collection is remote.
func Open(location, prefix string, obj core.ObjectClient) (Source, error) {
	if !strings.HasPrefix(location, "s3://") {
		return NewDirSource(location, prefix), nil
	}
	if obj == nil {
		return nil, fmt.Errorf("collection %s needs AWS credentials", location)
	}
	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("parse location %q: %w", location, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("location %q has no bucket", location)
	}
	return NewS3Source(obj, u.Host, u.Path, prefix), nil
}
