package storage

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

// DiskStorage keeps bytes on a local drive. Upload and read URLs point
// back at this server instead of at an object store, which keeps
// single-node deployments working without any S3 credentials
type DiskStorage struct {
	Bucket Bucket
}

func NewDiskStorage(bucket *Bucket) StorageAPI {
	return &DiskStorage{Bucket: *bucket}
}

func (d *DiskStorage) GetBucket() *Bucket {
	return &d.Bucket
}

func (d *DiskStorage) getFullPath(key string) string {
	return filepath.Join(d.Bucket.Path, filepath.FromSlash(key))
}

func (d *DiskStorage) CreateUploadURL(key, mimeType string) (string, error) {
	return "/api/upload/direct?key=" + key, nil
}

func (d *DiskStorage) CreateDownloadURL(key string, validFor time.Duration) (string, int64) {
	return "/api/files/" + key, 0
}

func (d *DiskStorage) Save(key string, reader io.Reader) (int64, error) {
	fileName := d.getFullPath(key)
	if err := os.MkdirAll(filepath.Dir(fileName), 0777); err != nil {
		return 0, err
	}
	file, err := os.Create(fileName)
	if err != nil {
		return 0, err
	}
	result, err := io.Copy(file, reader)
	file.Close()
	return result, err
}

func (d *DiskStorage) Serve(key string, request *http.Request, writer http.ResponseWriter) {
	http.ServeFile(writer, request, d.getFullPath(key))
}

func (d *DiskStorage) Delete(key string) error {
	return os.Remove(d.getFullPath(key))
}

func (d *DiskStorage) GetFreeSpace() uint64 {
	var stat unix.Statfs_t
	if err := unix.Statfs(d.Bucket.Path, &stat); err != nil {
		return 0
	}
	return stat.Bavail * uint64(stat.Bsize)
}
