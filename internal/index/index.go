package index

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/badlogic/nazi-radio/internal/models"
)

const manifestFilename = "index.json"

// Builder regenerates the manifest from the broadcast directories. The
// manifest is a derived view and can be rebuilt from scratch at any time.
type Builder struct {
	BroadcastsDir string
}

func NewBuilder(broadcastsDir string) *Builder {
	return &Builder{BroadcastsDir: broadcastsDir}
}

// Rebuild scans every broadcast directory, parses the records it can,
// sorts them newest-first and writes the manifest. A corrupt record is
// skipped with a warning; one bad broadcast must not take down the whole
// index.
func (b *Builder) Rebuild() ([]models.Broadcast, error) {
	entries, err := os.ReadDir(b.BroadcastsDir)
	if err != nil {
		return nil, err
	}

	broadcasts := make([]models.Broadcast, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		recordPath := filepath.Join(b.BroadcastsDir, entry.Name(), "broadcast.json")
		data, err := os.ReadFile(recordPath)
		if err != nil {
			log.Printf("⚠️ Skipping %s: %v", entry.Name(), err)
			continue
		}

		var record models.Broadcast
		if err := json.Unmarshal(data, &record); err != nil {
			log.Printf("⚠️ Skipping corrupt record %s: %v", entry.Name(), err)
			continue
		}
		broadcasts = append(broadcasts, record)
	}

	sort.Slice(broadcasts, func(i, j int) bool {
		return broadcasts[i].Timestamp.After(broadcasts[j].Timestamp)
	})

	if err := b.writeManifest(broadcasts); err != nil {
		return nil, err
	}

	log.Printf("📝 Index rebuilt: %d broadcasts", len(broadcasts))
	return broadcasts, nil
}

// writeManifest writes the full ordered list atomically (tmp + rename) so
// a reader never sees a half-written manifest.
func (b *Builder) writeManifest(broadcasts []models.Broadcast) error {
	data, err := json.MarshalIndent(broadcasts, "", "  ")
	if err != nil {
		return err
	}

	target := filepath.Join(b.BroadcastsDir, manifestFilename)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, target)
}

// ManifestPath returns where the manifest lives, for the API to serve.
func (b *Builder) ManifestPath() string {
	return filepath.Join(b.BroadcastsDir, manifestFilename)
}

// WordCount is a small helper for the catalog: number of words across a
// transcript.
func WordCount(transcript []models.Segment) int {
	n := 0
	for _, seg := range transcript {
		n += len(strings.Fields(seg.Text))
	}
	return n
}
