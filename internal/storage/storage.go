package storage

import (
	"log"
	"os"
	"path"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"

	"github.com/badlogic/nazi-radio/internal/config"
	"github.com/badlogic/nazi-radio/internal/models"
)

// Client mirrors finalized broadcasts to off-box storage. The local disk
// stays the source of truth; the mirror only protects against losing the
// box. Optional: a nil Client means mirroring is disabled.
type Client struct {
	backend Provider
	bucket  string
}

// New builds the archive client from config, or returns nil when no
// provider is configured.
func New(cfg *config.Config) *Client {
	switch cfg.Storage.Provider {
	case "":
		return nil
	case "local":
		return &Client{
			backend: NewLocalProvider(cfg.Storage.LocalStorage),
			bucket:  cfg.Storage.BucketArchive,
		}
	default:
		// S3/B2-compatible endpoint
		s3Config := &aws.Config{
			Credentials:      credentials.NewStaticCredentials(cfg.Storage.KeyID, cfg.Storage.AppKey, ""),
			Endpoint:         aws.String(cfg.Storage.Endpoint),
			Region:           aws.String(cfg.Storage.Region),
			S3ForcePathStyle: aws.Bool(true),
		}
		sess := session.Must(session.NewSession(s3Config))
		return &Client{
			backend: NewS3Provider(sess),
			bucket:  cfg.Storage.BucketArchive,
		}
	}
}

// MirrorBroadcast uploads a broadcast's audio and record. Failures are
// logged, not fatal: the mirror is best-effort by design.
func (c *Client) MirrorBroadcast(b models.Broadcast, audioPath, recordPath string) {
	c.upload(path.Join("broadcasts", b.ID, b.AudioFile), audioPath, "audio/mpeg")
	c.upload(path.Join("broadcasts", b.ID, "broadcast.json"), recordPath, "application/json")
}

// MirrorManifest uploads the regenerated index.
func (c *Client) MirrorManifest(manifestPath string) {
	c.upload("broadcasts/index.json", manifestPath, "application/json")
}

// DeleteBroadcast removes a mirrored broadcast after an admin delete.
func (c *Client) DeleteBroadcast(id string) {
	prefix := path.Join("broadcasts", id) + "/"
	keys, err := c.backend.List(c.bucket, prefix)
	if err != nil {
		log.Printf("⚠️ Archive list failed for %s: %v", id, err)
		return
	}
	for _, key := range keys {
		if err := c.backend.Delete(c.bucket, key); err != nil {
			log.Printf("⚠️ Archive delete failed for %s: %v", key, err)
		}
	}
}

func (c *Client) upload(key, localPath, contentType string) {
	f, err := os.Open(localPath)
	if err != nil {
		log.Printf("⚠️ Archive upload skipped, cannot open %s: %v", localPath, err)
		return
	}
	defer f.Close()

	if err := c.backend.Put(c.bucket, key, f, contentType); err != nil {
		log.Printf("⚠️ Archive upload failed for %s: %v", key, err)
		return
	}
	log.Printf("☁️  Archived %s", key)
}
