// internal/storage/localfs.go
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/newthinker/s3backup/internal/core"
)

// LocalFS implements Service on the local filesystem. Each bucket is a
// directory under basePath and object modification times come from the files.
type LocalFS struct {
	basePath string
}

// NewLocalFS creates a new LocalFS storage
func NewLocalFS(basePath string) (*LocalFS, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating base path: %w", err)
	}
	return &LocalFS{basePath: basePath}, nil
}

func (l *LocalFS) FindBucket(ctx context.Context, name string) (Bucket, bool, error) {
	info, err := os.Stat(filepath.Join(l.basePath, name))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if !info.IsDir() {
		return nil, false, fmt.Errorf("%s is not a directory", name)
	}
	return &localBucket{name: name, dir: filepath.Join(l.basePath, name)}, true, nil
}

func (l *LocalFS) CreateBucket(ctx context.Context, name string) (Bucket, error) {
	dir := filepath.Join(l.basePath, name)
	if err := os.Mkdir(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating bucket directory: %w", err)
	}
	return &localBucket{name: name, dir: dir}, nil
}

type localBucket struct {
	name string
	dir  string
}

func (b *localBucket) Name() string { return b.name }

func (b *localBucket) fullPath(key string) string {
	return filepath.Join(b.dir, filepath.FromSlash(key))
}

func (b *localBucket) Put(ctx context.Context, key string, content io.Reader) error {
	fullPath := b.fullPath(key)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("creating directories: %w", err)
	}

	f, err := os.Create(fullPath)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, content); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (b *localBucket) List(ctx context.Context) ([]core.Object, error) {
	var objects []core.Object

	err := filepath.Walk(b.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			relPath, _ := filepath.Rel(b.dir, path)
			objects = append(objects, core.Object{
				Key:          filepath.ToSlash(relPath),
				Size:         info.Size(),
				LastModified: info.ModTime(),
			})
		}
		return nil
	})
	if os.IsNotExist(err) {
		return []core.Object{}, nil
	}
	if err != nil {
		return nil, err
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

func (b *localBucket) Delete(ctx context.Context, key string) error {
	return os.Remove(b.fullPath(key))
}
