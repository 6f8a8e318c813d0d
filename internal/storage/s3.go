package storage

import (
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// S3Provider archives to any S3-compatible endpoint (AWS, B2, MinIO).
type S3Provider struct {
	api *s3.S3
}

func NewS3Provider(sess *session.Session) *S3Provider {
	return &S3Provider{api: s3.New(sess)}
}

func (s *S3Provider) List(bucket, prefix string) ([]string, error) {
	var keys []string
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	}
	err := s.api.ListObjectsV2Pages(input, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, item := range page.Contents {
			keys = append(keys, *item.Key)
		}
		return true
	})
	return keys, err
}

func (s *S3Provider) Put(bucket, key string, body io.ReadSeeker, contentType string) error {
	_, err := s.api.PutObject(&s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	return err
}

func (s *S3Provider) Delete(bucket, key string) error {
	_, err := s.api.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	return err
}
