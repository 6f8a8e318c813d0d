package database

import (
	"fmt"
	"log"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/badlogic/nazi-radio/internal/config"
	"github.com/badlogic/nazi-radio/internal/index"
	"github.com/badlogic/nazi-radio/internal/models"
)

type Client struct {
	DB *gorm.DB
}

// New opens the catalog database. sqlite is the default for the
// single-process monitor; postgres is available for shared deployments,
// selected by config like the storage provider.
func New(cfg *config.Config) *Client {
	var dialector gorm.Dialector

	if cfg.Database.Driver == "postgres" {
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
			cfg.Database.Host,
			cfg.Database.User,
			cfg.Database.Password,
			cfg.Database.Name,
			cfg.Database.Port,
		)
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(cfg.Database.Path)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}

	log.Println("✅ Database Connected")
	return &Client{DB: db}
}

// AutoMigrate creates/updates tables based on struct definitions
func (c *Client) AutoMigrate() {
	if err := c.DB.AutoMigrate(&models.CatalogEntry{}); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
}

// SyncCatalog replaces the catalog with the given broadcasts. The catalog
// is derived state, so a full swap inside one transaction is simpler and
// safer than diffing.
func (c *Client) SyncCatalog(broadcasts []models.Broadcast) error {
	return c.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).
			Unscoped().Delete(&models.CatalogEntry{}).Error; err != nil {
			return err
		}
		for _, b := range broadcasts {
			entry := models.CatalogEntry{
				BroadcastID: b.ID,
				Title:       b.Title,
				Timestamp:   b.Timestamp,
				DurationMs:  b.DurationMs,
				AudioFile:   b.AudioFile,
				Words:       index.WordCount(b.Transcript),
			}
			if err := tx.Create(&entry).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
