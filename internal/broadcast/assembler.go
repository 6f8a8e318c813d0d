package broadcast

import (
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/badlogic/nazi-radio/internal/audio"
	"github.com/badlogic/nazi-radio/internal/models"
	"github.com/badlogic/nazi-radio/internal/recorder"
	"github.com/badlogic/nazi-radio/internal/transcribe"
)

// Metrics
var (
	chunksClassified = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "radio_chunks_classified_total", Help: "Chunks classified"},
		[]string{"label"},
	)
	mergesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "radio_merges_total", Help: "Merge operations"},
		[]string{"status"},
	)
	mergeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "radio_merge_duration_seconds",
			Help:    "Time to merge, transcribe and persist one broadcast",
			Buckets: []float64{1, 5, 15, 60, 180, 600},
		},
	)
	idleFlushes = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "radio_idle_flushes_total", Help: "Merges forced by idle timeout"},
	)
)

func RegisterMetrics() {
	prometheus.MustRegister(chunksClassified, mergesTotal, mergeDuration, idleFlushes)
}

// idTimeLayout turns the first chunk's start into a filesystem-safe,
// collision-free broadcast id (ISO-8601 with ':' swapped for '-').
const idTimeLayout = "2006-01-02T15-04-05"

// Assembler buffers speech chunks until a music boundary or an idle
// timeout, then merges the buffered run into one broadcast. At most one
// merge is ever in flight; chunks classified during a merge collect in a
// fresh queue for the next trigger.
type Assembler struct {
	detector    SpeechDetector
	transcriber transcribe.Transcriber
	store       *Store

	IdleFlush     time.Duration
	TitleMaxWords int
	DryRun        bool

	// OnFinalized fires after a broadcast is durably persisted. The monitor
	// hooks index rebuild, catalog refresh and the archive mirror here.
	OnFinalized func(models.Broadcast)

	// concat is swappable so the state machine can be tested without
	// ffmpeg on the box.
	concat func(inputs []string, output string) error

	mu      sync.Mutex
	pending []recorder.Chunk
	merging bool

	stop chan struct{}
	done chan struct{}
}

func NewAssembler(detector SpeechDetector, transcriber transcribe.Transcriber, store *Store) *Assembler {
	return &Assembler{
		detector:      detector,
		transcriber:   transcriber,
		store:         store,
		IdleFlush:     5 * time.Minute,
		TitleMaxWords: 10,
		concat:        audio.Concat,
	}
}

// Start launches the idle-flush ticker. HandleChunk can be called before
// Start; only the timeout path needs the goroutine.
func (a *Assembler) Start() {
	a.stop = make(chan struct{})
	a.done = make(chan struct{})

	go func() {
		defer close(a.done)
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				a.checkIdle(time.Now())
			case <-a.stop:
				return
			}
		}
	}()
}

func (a *Assembler) Stop() {
	if a.stop == nil {
		return
	}
	close(a.stop)
	<-a.done
	a.stop = nil
}

// HandleChunk classifies one finished chunk and advances the state
// machine. Speech extends the pending run; music finalizes it.
func (a *Assembler) HandleChunk(chunk recorder.Chunk) {
	speech, ratio := Classify(a.detector, chunk)

	if speech {
		chunksClassified.WithLabelValues("speech").Inc()
		a.mu.Lock()
		a.pending = append(a.pending, chunk)
		n := len(a.pending)
		a.mu.Unlock()
		log.Printf("🗣️  Speech chunk %s (ratio %.2f), %d pending", filepath.Base(chunk.Path), ratio, n)
		return
	}

	chunksClassified.WithLabelValues("music").Inc()
	log.Printf("🎵 Music chunk %s (ratio %.2f)", filepath.Base(chunk.Path), ratio)

	if a.DryRun {
		return
	}

	// Music is never part of a broadcast, drop the file right away.
	if err := os.Remove(chunk.Path); err != nil {
		log.Printf("⚠️ Could not delete music chunk %s: %v", chunk.Path, err)
	}

	if batch := a.drain(); batch != nil {
		go a.merge(batch, "music boundary")
	}
}

// checkIdle forces a merge when the pending run has gone stale: a long
// talk show with no music after it must still be finalized.
func (a *Assembler) checkIdle(now time.Time) {
	if a.DryRun {
		return
	}

	a.mu.Lock()
	stale := len(a.pending) > 0 && !a.merging &&
		now.Sub(a.pending[len(a.pending)-1].End()) > a.IdleFlush
	a.mu.Unlock()

	if !stale {
		return
	}
	if batch := a.drain(); batch != nil {
		idleFlushes.Inc()
		go a.merge(batch, "idle timeout")
	}
}

// drain atomically swaps the pending queue for an empty one and claims the
// merge slot. Returns nil when there is nothing to merge or a merge is
// already running.
func (a *Assembler) drain() []recorder.Chunk {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.pending) == 0 || a.merging {
		return nil
	}
	batch := a.pending
	a.pending = nil
	a.merging = true
	return batch
}

// merge concatenates a drained batch, transcribes it and persists the
// broadcast. Runs in its own goroutine; the merging flag keeps it
// exclusive.
func (a *Assembler) merge(batch []recorder.Chunk, trigger string) {
	defer func() {
		a.mu.Lock()
		a.merging = false
		a.mu.Unlock()
	}()

	timer := prometheus.NewTimer(mergeDuration)
	defer timer.ObserveDuration()

	id := batch[0].Start.Format(idTimeLayout)
	log.Printf("📦 Merging %d chunks into broadcast %s (%s)", len(batch), id, trigger)

	b, err := a.buildBroadcast(id, batch)
	if err != nil {
		mergesTotal.WithLabelValues("failure").Inc()
		log.Printf("❌ Merge %s failed: %v", id, err)
		// Keep the source audio around instead of losing the recording.
		if dlErr := a.store.DeadLetter(id, chunkPaths(batch)); dlErr != nil {
			log.Printf("⚠️ Dead-lettering %s failed too: %v", id, dlErr)
		} else {
			log.Printf("📮 Chunks moved to %s", filepath.Join(a.store.FailedDir(), id))
		}
		return
	}

	// 5. Source chunks are merged into the broadcast now; stale files must
	// never block progress, so deletion is best-effort.
	for _, chunk := range batch {
		if err := os.Remove(chunk.Path); err != nil {
			log.Printf("⚠️ Could not delete chunk %s: %v", chunk.Path, err)
		}
	}

	mergesTotal.WithLabelValues("success").Inc()
	log.Printf("✅ Broadcast %s: \"%s\" (%d segments, %s)",
		b.ID, b.Title, len(b.Transcript), time.Duration(b.DurationMs)*time.Millisecond)

	if a.OnFinalized != nil {
		a.OnFinalized(b)
	}
}

func (a *Assembler) buildBroadcast(id string, batch []recorder.Chunk) (models.Broadcast, error) {
	var b models.Broadcast

	// 1. Concatenate losslessly, in arrival order.
	merged := filepath.Join(os.TempDir(), "radio-merge-"+id+".mp3")
	defer os.Remove(merged)
	if err := a.concat(chunkPaths(batch), merged); err != nil {
		return b, fmt.Errorf("concat: %w", err)
	}

	// 2. Transcribe the merged file.
	result, err := a.transcriber.Transcribe(merged)
	if err != nil {
		return b, fmt.Errorf("transcription: %w", err)
	}

	// 3. Title from the leading transcript words.
	var text strings.Builder
	transcript := make([]models.Segment, 0, len(result.Segments))
	for _, seg := range result.Segments {
		transcript = append(transcript, models.Segment{
			Start: int64(math.Round(seg.Start * 1000)),
			End:   int64(math.Round(seg.End * 1000)),
			Text:  strings.TrimSpace(seg.Text),
		})
		text.WriteString(seg.Text)
		text.WriteString(" ")
	}

	var duration time.Duration
	for _, chunk := range batch {
		duration += chunk.Duration
	}

	b = models.Broadcast{
		ID:         id,
		Title:      MakeTitle(text.String(), a.TitleMaxWords),
		Timestamp:  batch[0].Start,
		DurationMs: duration.Milliseconds(),
		AudioFile:  audioFilename,
		Transcript: transcript,
	}

	// 4. Persist, then stamp tags on the final file.
	if err := a.store.Save(b, merged); err != nil {
		return b, fmt.Errorf("persist: %w", err)
	}
	if err := audio.StampMP3(a.store.AudioPath(b), b.Title, "Radio Monitor", b.Timestamp.Format("2006")); err != nil {
		log.Printf("⚠️ Tagging %s failed: %v", b.ID, err)
	}

	return b, nil
}

func chunkPaths(batch []recorder.Chunk) []string {
	paths := make([]string, len(batch))
	for i, chunk := range batch {
		paths[i] = chunk.Path
	}
	return paths
}

// PendingCount is exposed for the stats endpoint and tests.
func (a *Assembler) PendingCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// Merging reports whether a merge is currently in flight.
func (a *Assembler) Merging() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.merging
}
