package storage

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"gallery/config"
	"gallery/db"
)

// Presigned upload URLs are valid for one hour. A client that waited
// longer must request a new batch of URLs
const PresignUploadFor = time.Hour

type StorageAPI interface {
	GetBucket() *Bucket
	// CreateUploadURL returns a URL the client PUTs the file bytes to,
	// bypassing this server (presigned S3 URL, or a local upload path
	// for disk buckets)
	CreateUploadURL(key, mimeType string) (string, error)
	// CreateDownloadURL returns a read URL and its expiry unix time
	// (0 for no expiry)
	CreateDownloadURL(key string, validFor time.Duration) (string, int64)
	// Save writes bytes through the server. Only the multipart
	// guest-create path uses this
	Save(key string, reader io.Reader) (int64, error)
	Serve(key string, request *http.Request, writer http.ResponseWriter)
	Delete(key string) error
	GetFreeSpace() uint64
}

var cachedStorage []StorageAPI

func Init() {
	if err := db.Instance.AutoMigrate(&Bucket{}); err != nil {
		panic(err)
	}
	var buckets []Bucket
	if err := db.Instance.Find(&buckets).Error; err != nil {
		panic(err)
	}
	if len(buckets) == 0 {
		bucket := defaultBucketFromEnv()
		if bucket == nil {
			panic("no storage bucket configured: set S3_BUCKET or DEFAULT_BUCKET_DIR")
		}
		if err := bucket.Create(); err != nil {
			panic(err)
		}
		buckets = append(buckets, *bucket)
	}
	log.Printf("Storage buckets found: %d\n", len(buckets))
	cachedStorage = []StorageAPI{}
	for _, bucket := range buckets {
		var storage StorageAPI
		if bucket.StorageType == StorageTypeFile {
			storage = NewDiskStorage(&bucket)
		} else if bucket.StorageType == StorageTypeS3 {
			storage = NewS3Storage(&bucket)
		} else {
			panic(fmt.Sprintf("Storage type unavailable for Bucket %d", bucket.ID))
		}
		cachedStorage = append(cachedStorage, storage)
	}
}

func defaultBucketFromEnv() *Bucket {
	if config.S3_BUCKET != "" {
		return &Bucket{
			Name:        config.S3_BUCKET,
			StorageType: StorageTypeS3,
			Region:      config.S3_REGION,
			Endpoint:    config.S3_ENDPOINT,
			AuthDetails: config.S3_KEY + ":" + config.S3_SECRET,
		}
	}
	if config.DEFAULT_BUCKET_DIR != "" {
		return &Bucket{
			Name:        "disk",
			StorageType: StorageTypeFile,
			Path:        config.DEFAULT_BUCKET_DIR,
		}
	}
	return nil
}

func StorageFrom(bucket *Bucket) StorageAPI {
	for _, s := range cachedStorage {
		if s.GetBucket().ID == bucket.ID {
			return s
		}
	}
	return nil
}

func GetDefaultStorage() StorageAPI {
	if len(cachedStorage) == 0 {
		panic("no storage available")
	}
	return cachedStorage[0]
}
