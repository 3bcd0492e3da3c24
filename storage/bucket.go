package storage

import (
	"os"
	"strings"

	"gallery/db"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

type StorageType uint8

const (
	StorageTypeFile StorageType = 0
	StorageTypeS3   StorageType = 1
)

type Bucket struct {
	ID          uint64 `gorm:"primaryKey"`
	CreatedAt   int
	UpdatedAt   int
	Name        string `gorm:"type:varchar(200)"`
	StorageType StorageType
	Path        string // Directory on a drive or a key prefix in a S3 bucket
	Region      string `gorm:"type:varchar(50)"`
	Endpoint    string `gorm:"type:varchar(300)"` // Set for S3-compatible stores
	AuthDetails string // In case of S3 bucket - "key:secret"
}

func (b *Bucket) Create() error {
	err := db.Instance.Create(b).Error
	if err != nil {
		return err
	}
	if b.StorageType == StorageTypeFile {
		if err = os.MkdirAll(b.Path, 0777); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bucket) IsS3() bool {
	return b.StorageType == StorageTypeS3
}

// GetRemotePath prepends the bucket's configured key prefix
func (b *Bucket) GetRemotePath(path string) string {
	if b.StorageType != StorageTypeS3 || b.Path == "" {
		return path
	}
	return strings.TrimSuffix(b.Path, "/") + "/" + path
}

func (b *Bucket) CreateSVC() *s3.S3 {
	creds := strings.SplitN(b.AuthDetails, ":", 2)
	if len(creds) != 2 {
		return nil
	}
	cfg := aws.Config{
		Region:      aws.String(b.Region),
		Credentials: credentials.NewStaticCredentials(creds[0], creds[1], ""),
	}
	if b.Endpoint != "" {
		cfg.Endpoint = aws.String(b.Endpoint)
		cfg.S3ForcePathStyle = aws.Bool(true)
	}
	sess := session.Must(session.NewSession(&cfg))
	return s3.New(sess)
}
