package storage

import (
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalProvider simulates buckets as directories under RootPath. Useful
// for development and as a second on-disk copy on another mount.
type LocalProvider struct {
	RootPath string
}

func NewLocalProvider(root string) *LocalProvider {
	_ = os.MkdirAll(root, 0755)
	return &LocalProvider{RootPath: root}
}

func (l *LocalProvider) List(bucket, prefix string) ([]string, error) {
	var keys []string
	bucketPath := filepath.Join(l.RootPath, bucket)

	err := filepath.Walk(bucketPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		// Convert OS path back to S3-style key (forward slashes)
		rel, _ := filepath.Rel(bucketPath, path)
		key := filepath.ToSlash(rel)

		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})

	return keys, err
}

func (l *LocalProvider) Put(bucket, key string, body io.ReadSeeker, contentType string) error {
	path := filepath.Join(l.RootPath, bucket, key)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(f, body)
	return err
}

func (l *LocalProvider) Delete(bucket, key string) error {
	return os.Remove(filepath.Join(l.RootPath, bucket, key))
}
