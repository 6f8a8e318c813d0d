package storage

import "io"

// Provider is the behavior any archive backend must offer.
type Provider interface {
	List(bucket, prefix string) ([]string, error)
	Put(bucket, key string, body io.ReadSeeker, contentType string) error
	Delete(bucket, key string) error
}
