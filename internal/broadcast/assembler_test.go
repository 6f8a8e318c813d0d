package broadcast

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/badlogic/nazi-radio/internal/models"
	"github.com/badlogic/nazi-radio/internal/recorder"
	"github.com/badlogic/nazi-radio/internal/transcribe"
)

// fakeDetector answers per chunk start instant.
type fakeDetector struct {
	speechAt map[int64]bool
}

func (d *fakeDetector) IsSpeech(from, to time.Time) bool {
	return d.speechAt[from.Unix()]
}

func (d *fakeDetector) SpeechRatio(from, to time.Time) float64 {
	if d.speechAt[from.Unix()] {
		return 1.0
	}
	return 0.0
}

// fakeTranscriber counts calls and can block to hold a merge open.
type fakeTranscriber struct {
	mu          sync.Mutex
	result      *transcribe.Result
	err         error
	calls       int
	inflight    int
	maxInflight int
	block       chan struct{} // closed by the test to release a held call
}

func (f *fakeTranscriber) Transcribe(path string) (*transcribe.Result, error) {
	f.mu.Lock()
	f.calls++
	f.inflight++
	if f.inflight > f.maxInflight {
		f.maxInflight = f.inflight
	}
	block := f.block
	f.mu.Unlock()

	if block != nil {
		<-block
	}

	f.mu.Lock()
	f.inflight--
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeTranscriber) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func defaultResult() *transcribe.Result {
	return &transcribe.Result{
		Duration: 5,
		Segments: []transcribe.Segment{
			{Start: 0, End: 2.5, Text: "guten morgen liebe hörer"},
			{Start: 2.5, End: 5, Text: "heute mit den nachrichten"},
		},
	}
}

var chunkStart = time.Date(2024, 1, 1, 12, 0, 0, 0, time.Local)

// newTestAssembler wires an assembler with a concat stub so no ffmpeg is
// needed: "concatenation" is just byte append.
func newTestAssembler(t *testing.T, tr *fakeTranscriber, det *fakeDetector) (*Assembler, *Store, chan models.Broadcast) {
	t.Helper()

	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	asm := NewAssembler(det, tr, store)
	asm.concat = func(inputs []string, output string) error {
		var merged []byte
		for _, in := range inputs {
			data, err := os.ReadFile(in)
			if err != nil {
				return err
			}
			merged = append(merged, data...)
		}
		return os.WriteFile(output, merged, 0644)
	}

	finalized := make(chan models.Broadcast, 4)
	asm.OnFinalized = func(b models.Broadcast) { finalized <- b }

	return asm, store, finalized
}

// makeChunk writes a fake chunk file and returns its descriptor. The
// detector is taught the chunk's label at the same time.
func makeChunk(t *testing.T, dir string, det *fakeDetector, start time.Time, content string, speech bool) recorder.Chunk {
	t.Helper()
	name := "chunk_" + start.Format("20060102_150405") + ".mp3"
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	det.speechAt[start.Unix()] = speech
	return recorder.Chunk{Path: path, Start: start, Duration: 2 * time.Minute}
}

func waitFinalized(t *testing.T, ch chan models.Broadcast) models.Broadcast {
	t.Helper()
	select {
	case b := <-ch:
		return b
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a finalized broadcast")
		return models.Broadcast{}
	}
}

func waitMergeDone(t *testing.T, asm *Assembler) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for asm.Merging() {
		if time.Now().After(deadline) {
			t.Fatal("merge never finished")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestMusicBoundaryTriggersSingleMerge(t *testing.T) {
	det := &fakeDetector{speechAt: map[int64]bool{}}
	tr := &fakeTranscriber{result: defaultResult()}
	asm, store, finalized := newTestAssembler(t, tr, det)

	chunkDir := t.TempDir()
	s1 := makeChunk(t, chunkDir, det, chunkStart, "AAAA", true)
	s2 := makeChunk(t, chunkDir, det, chunkStart.Add(2*time.Minute), "BBBB", true)
	m := makeChunk(t, chunkDir, det, chunkStart.Add(4*time.Minute), "MMMM", false)

	asm.HandleChunk(s1)
	asm.HandleChunk(s2)
	if asm.PendingCount() != 2 {
		t.Fatalf("expected 2 pending chunks, got %d", asm.PendingCount())
	}

	asm.HandleChunk(m)
	b := waitFinalized(t, finalized)
	waitMergeDone(t, asm)

	if tr.callCount() != 1 {
		t.Errorf("expected exactly one transcription, got %d", tr.callCount())
	}

	// The merged audio is the two speech chunks, in arrival order, and the
	// music chunk is not part of it.
	audio, err := os.ReadFile(store.AudioPath(b))
	if err != nil {
		t.Fatal(err)
	}
	if string(audio) != "AAAABBBB" {
		t.Errorf("merged audio = %q, want %q", audio, "AAAABBBB")
	}

	if b.ID != chunkStart.Format("2006-01-02T15-04-05") {
		t.Errorf("broadcast id = %q", b.ID)
	}
	if !b.Timestamp.Equal(chunkStart) {
		t.Errorf("broadcast timestamp = %v, want %v", b.Timestamp, chunkStart)
	}
	if b.DurationMs != (4 * time.Minute).Milliseconds() {
		t.Errorf("duration = %dms, want sum of nominal chunk durations", b.DurationMs)
	}
	if b.Title != "guten morgen liebe hörer heute mit den nachrichten" {
		t.Errorf("title = %q", b.Title)
	}

	// Transcript in milliseconds, ordered, end >= start.
	if len(b.Transcript) != 2 {
		t.Fatalf("expected 2 transcript segments, got %d", len(b.Transcript))
	}
	prev := int64(0)
	for _, seg := range b.Transcript {
		if seg.Start < prev {
			t.Errorf("segment starts not non-decreasing: %d < %d", seg.Start, prev)
		}
		if seg.End < seg.Start {
			t.Errorf("segment end %d before start %d", seg.End, seg.Start)
		}
		prev = seg.Start
	}
	if b.Transcript[1].Start != 2500 || b.Transcript[1].End != 5000 {
		t.Errorf("timestamps not converted to ms: %+v", b.Transcript[1])
	}

	// Source chunks and the music chunk are gone.
	for _, path := range []string{s1.Path, s2.Path, m.Path} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("chunk file %s still exists", path)
		}
	}

	// Record loads back identically.
	loaded, err := store.Load(b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Title != b.Title || loaded.DurationMs != b.DurationMs {
		t.Error("persisted record does not match the finalized broadcast")
	}
}

func TestMusicWithEmptyQueueJustDeletes(t *testing.T) {
	det := &fakeDetector{speechAt: map[int64]bool{}}
	tr := &fakeTranscriber{result: defaultResult()}
	asm, _, _ := newTestAssembler(t, tr, det)

	m := makeChunk(t, t.TempDir(), det, chunkStart, "MMMM", false)
	asm.HandleChunk(m)
	waitMergeDone(t, asm)

	if tr.callCount() != 0 {
		t.Error("music with no pending speech must not trigger a merge")
	}
	if _, err := os.Stat(m.Path); !os.IsNotExist(err) {
		t.Error("music chunk should be deleted")
	}
}

func TestIdleFlushMatchesMusicTrigger(t *testing.T) {
	det := &fakeDetector{speechAt: map[int64]bool{}}
	tr := &fakeTranscriber{result: defaultResult()}
	asm, store, finalized := newTestAssembler(t, tr, det)

	chunkDir := t.TempDir()
	s1 := makeChunk(t, chunkDir, det, chunkStart, "AAAA", true)
	s2 := makeChunk(t, chunkDir, det, chunkStart.Add(2*time.Minute), "BBBB", true)
	asm.HandleChunk(s1)
	asm.HandleChunk(s2)

	// Not stale yet: last chunk's nominal end + 4 min.
	asm.checkIdle(s2.End().Add(4 * time.Minute))
	if tr.callCount() != 0 {
		t.Fatal("idle flush fired before the threshold")
	}

	// Past the threshold: exactly one merge with both chunks.
	asm.checkIdle(s2.End().Add(6 * time.Minute))
	b := waitFinalized(t, finalized)
	waitMergeDone(t, asm)

	if tr.callCount() != 1 {
		t.Errorf("expected one merge, got %d", tr.callCount())
	}
	audio, err := os.ReadFile(store.AudioPath(b))
	if err != nil {
		t.Fatal(err)
	}
	if string(audio) != "AAAABBBB" {
		t.Errorf("idle-flush merge differs from music-triggered merge: %q", audio)
	}
	if asm.PendingCount() != 0 {
		t.Error("queue should be empty after the flush")
	}
}

func TestNoConcurrentMerges(t *testing.T) {
	det := &fakeDetector{speechAt: map[int64]bool{}}
	tr := &fakeTranscriber{result: defaultResult(), block: make(chan struct{})}
	asm, _, finalized := newTestAssembler(t, tr, det)

	chunkDir := t.TempDir()
	s1 := makeChunk(t, chunkDir, det, chunkStart, "AAAA", true)
	m1 := makeChunk(t, chunkDir, det, chunkStart.Add(2*time.Minute), "M1M1", false)
	s2 := makeChunk(t, chunkDir, det, chunkStart.Add(4*time.Minute), "BBBB", true)
	m2 := makeChunk(t, chunkDir, det, chunkStart.Add(6*time.Minute), "M2M2", false)

	asm.HandleChunk(s1)
	asm.HandleChunk(m1) // merge #1 starts and blocks in the transcriber

	deadline := time.Now().Add(time.Second)
	for tr.callCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first merge never reached the transcriber")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// New chunks keep flowing while the merge is in flight; the music
	// boundary must not start a second merge.
	asm.HandleChunk(s2)
	asm.HandleChunk(m2)
	if tr.callCount() != 1 {
		t.Fatalf("second merge started while first was in flight")
	}
	if asm.PendingCount() != 1 {
		t.Fatalf("expected the new speech chunk to wait in a fresh queue, %d pending", asm.PendingCount())
	}

	// Release the held merge, then the idle path picks up the leftovers.
	close(tr.block)
	tr.mu.Lock()
	tr.block = nil
	tr.mu.Unlock()
	waitFinalized(t, finalized)
	waitMergeDone(t, asm)

	asm.checkIdle(s2.End().Add(10 * time.Minute))
	waitFinalized(t, finalized)
	waitMergeDone(t, asm)

	if tr.callCount() != 2 {
		t.Errorf("expected two sequential merges, got %d", tr.callCount())
	}
	if tr.maxInflight > 1 {
		t.Errorf("merges overlapped: max inflight %d", tr.maxInflight)
	}
}

func TestFailedMergeDeadLettersChunks(t *testing.T) {
	det := &fakeDetector{speechAt: map[int64]bool{}}
	tr := &fakeTranscriber{err: errors.New("API down")}
	asm, store, _ := newTestAssembler(t, tr, det)

	chunkDir := t.TempDir()
	s1 := makeChunk(t, chunkDir, det, chunkStart, "AAAA", true)
	s2 := makeChunk(t, chunkDir, det, chunkStart.Add(2*time.Minute), "BBBB", true)
	m := makeChunk(t, chunkDir, det, chunkStart.Add(4*time.Minute), "MMMM", false)

	asm.HandleChunk(s1)
	asm.HandleChunk(s2)
	asm.HandleChunk(m)
	waitMergeDone(t, asm)

	// No broadcast was produced...
	id := chunkStart.Format("2006-01-02T15-04-05")
	if _, err := store.Load(id); err == nil {
		t.Error("failed merge must not persist a broadcast")
	}

	// ...but the source audio survived in the dead-letter area.
	for _, chunk := range []recorder.Chunk{s1, s2} {
		moved := filepath.Join(store.FailedDir(), id, filepath.Base(chunk.Path))
		if _, err := os.Stat(moved); err != nil {
			t.Errorf("chunk %s not dead-lettered: %v", filepath.Base(chunk.Path), err)
		}
		if _, err := os.Stat(chunk.Path); !os.IsNotExist(err) {
			t.Errorf("chunk %s still in the chunk dir", chunk.Path)
		}
	}

	// The failure cleared the merge slot; later merges still work.
	tr.mu.Lock()
	tr.err = nil
	tr.result = defaultResult()
	tr.mu.Unlock()

	finalized := make(chan models.Broadcast, 1)
	asm.OnFinalized = func(b models.Broadcast) { finalized <- b }

	s3 := makeChunk(t, chunkDir, det, chunkStart.Add(10*time.Minute), "CCCC", true)
	m2 := makeChunk(t, chunkDir, det, chunkStart.Add(12*time.Minute), "MMMM", false)
	asm.HandleChunk(s3)
	asm.HandleChunk(m2)
	waitFinalized(t, finalized)
}

func TestDryRunTouchesNothing(t *testing.T) {
	det := &fakeDetector{speechAt: map[int64]bool{}}
	tr := &fakeTranscriber{result: defaultResult()}
	asm, _, _ := newTestAssembler(t, tr, det)
	asm.DryRun = true

	chunkDir := t.TempDir()
	s1 := makeChunk(t, chunkDir, det, chunkStart, "AAAA", true)
	m := makeChunk(t, chunkDir, det, chunkStart.Add(2*time.Minute), "MMMM", false)

	asm.HandleChunk(s1)
	asm.HandleChunk(m)
	asm.checkIdle(s1.End().Add(time.Hour))

	if tr.callCount() != 0 {
		t.Error("dry run must not merge")
	}
	if _, err := os.Stat(m.Path); err != nil {
		t.Error("dry run must not delete chunk files")
	}
}
