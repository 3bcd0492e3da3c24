package storage

import (
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"gallery/config"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

type S3Storage struct {
	Bucket   Bucket
	s3Client *s3.S3
}

func NewS3Storage(bucket *Bucket) StorageAPI {
	return &S3Storage{
		Bucket:   *bucket,
		s3Client: bucket.CreateSVC(),
	}
}

func (s *S3Storage) GetBucket() *Bucket {
	return &s.Bucket
}

// CreateUploadURL presigns a PUT for direct client upload
func (s *S3Storage) CreateUploadURL(key, mimeType string) (string, error) {
	req, _ := s.s3Client.PutObjectRequest(&s3.PutObjectInput{
		Bucket:      &s.Bucket.Name,
		Key:         aws.String(s.Bucket.GetRemotePath(key)),
		ContentType: &mimeType,
	})
	return req.Presign(PresignUploadFor)
}

func (s *S3Storage) CreateDownloadURL(key string, validFor time.Duration) (string, int64) {
	req, _ := s.s3Client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: &s.Bucket.Name,
		Key:    aws.String(s.Bucket.GetRemotePath(key)),
	})
	url, err := req.Presign(validFor)
	if err != nil {
		log.Printf("presign error for %s: %v", key, err)
		return "", 0
	}
	return url, time.Now().Add(validFor).Unix()
}

func (s *S3Storage) Save(key string, reader io.Reader) (int64, error) {
	// Spool to a temp file so we can report the size back
	tmp, err := os.CreateTemp(config.TMP_DIR, "upload-*")
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()
	size, err := io.Copy(tmp, reader)
	if err != nil {
		return 0, err
	}
	if _, err = tmp.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	uploader := s3manager.NewUploaderWithClient(s.s3Client)
	mimeType := mimeTypeFromKey(key)
	_, err = uploader.Upload(&s3manager.UploadInput{
		Bucket:      &s.Bucket.Name,
		Key:         aws.String(s.Bucket.GetRemotePath(key)),
		ContentType: &mimeType,
		Body:        tmp,
	})
	return size, err
}

func (s *S3Storage) Serve(key string, request *http.Request, writer http.ResponseWriter) {
	url, _ := s.CreateDownloadURL(key, PresignUploadFor)
	if url == "" {
		writer.WriteHeader(http.StatusBadGateway)
		return
	}
	http.Redirect(writer, request, url, http.StatusFound)
}

func (s *S3Storage) Delete(key string) error {
	_, err := s.s3Client.DeleteObject(&s3.DeleteObjectInput{
		Bucket: &s.Bucket.Name,
		Key:    aws.String(s.Bucket.GetRemotePath(key)),
	})
	return err
}

// GetFreeSpace is meaningless for object storage
func (s *S3Storage) GetFreeSpace() uint64 {
	return ^uint64(0)
}

func mimeTypeFromKey(key string) string {
	switch {
	case strings.HasSuffix(key, ".png"):
		return "image/png"
	case strings.HasSuffix(key, ".gif"):
		return "image/gif"
	case strings.HasSuffix(key, ".webp"):
		return "image/webp"
	case strings.HasSuffix(key, ".heic"):
		return "image/heic"
	}
	return "image/jpeg"
}
