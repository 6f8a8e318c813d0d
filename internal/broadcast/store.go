package broadcast

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/badlogic/nazi-radio/internal/models"
)

const (
	audioFilename  = "audio.mp3"
	recordFilename = "broadcast.json"
)

// Store owns the on-disk layout: one directory per broadcast under
// <data>/broadcasts, holding audio.mp3 and broadcast.json, plus a
// dead-letter area under <data>/failed for batches whose merge blew up.
type Store struct {
	DataDir string
}

func NewStore(dataDir string) (*Store, error) {
	s := &Store{DataDir: dataDir}
	for _, dir := range []string{s.BroadcastsDir(), s.FailedDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) BroadcastsDir() string {
	return filepath.Join(s.DataDir, "broadcasts")
}

func (s *Store) FailedDir() string {
	return filepath.Join(s.DataDir, "failed")
}

func (s *Store) broadcastDir(id string) string {
	return filepath.Join(s.BroadcastsDir(), id)
}

// AudioPath returns the location of a persisted broadcast's audio file.
func (s *Store) AudioPath(b models.Broadcast) string {
	return filepath.Join(s.broadcastDir(b.ID), b.AudioFile)
}

// RecordPath returns the location of a persisted broadcast's JSON record.
func (s *Store) RecordPath(id string) string {
	return filepath.Join(s.broadcastDir(id), recordFilename)
}

// Save persists a broadcast: moves the merged audio into the broadcast
// directory and writes the JSON record. The record is written last so a
// directory without broadcast.json is recognizably incomplete.
func (s *Store) Save(b models.Broadcast, mergedAudio string) error {
	dir := s.broadcastDir(b.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	if err := moveFile(mergedAudio, filepath.Join(dir, b.AudioFile)); err != nil {
		return fmt.Errorf("moving audio: %w", err)
	}

	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, recordFilename), data, 0644); err != nil {
		return fmt.Errorf("writing record: %w", err)
	}
	return nil
}

// Load reads one broadcast record by id.
func (s *Store) Load(id string) (models.Broadcast, error) {
	var b models.Broadcast
	data, err := os.ReadFile(filepath.Join(s.broadcastDir(id), recordFilename))
	if err != nil {
		return b, err
	}
	if err := json.Unmarshal(data, &b); err != nil {
		return b, err
	}
	return b, nil
}

// Delete removes a broadcast directory entirely. Used by the admin API;
// the monitor itself never deletes finished broadcasts.
func (s *Store) Delete(id string) error {
	if id == "" || id == "." || id == ".." {
		return fmt.Errorf("refusing to delete '%s'", id)
	}
	return os.RemoveAll(s.broadcastDir(id))
}

// DeadLetter moves the source chunk files of a failed merge into
// failed/<id>/ so the audio survives the failure and can be reprocessed by
// hand.
func (s *Store) DeadLetter(id string, chunkPaths []string) error {
	dir := filepath.Join(s.FailedDir(), id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	var firstErr error
	for _, path := range chunkPaths {
		if err := moveFile(path, filepath.Join(dir, filepath.Base(path))); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// moveFile renames, falling back to copy+remove when source and target sit
// on different filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
