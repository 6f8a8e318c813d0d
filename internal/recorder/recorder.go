package recorder

import (
	"bufio"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics
var (
	chunksObserved = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "radio_recorder_chunks_total", Help: "Completed chunks observed"},
	)
	restartsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "radio_recorder_restarts_total", Help: "Capture process restarts"},
	)
	watchdogKills = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "radio_recorder_watchdog_kills_total", Help: "Stalled capture processes killed"},
	)
)

func RegisterMetrics() {
	prometheus.MustRegister(chunksObserved, restartsTotal, watchdogKills)
}

const (
	chunkPrefix = "chunk_"
	chunkExt    = ".mp3"
	// strftime pattern baked into the ffmpeg segment filename; fixed-width
	// and zero-padded, so lexicographic order is chronological order.
	chunkTimeLayout = "20060102_150405"
)

// Chunk is one finished fixed-duration segment file cut by the capture
// process. Start is the nominal wall-clock start parsed from the filename.
type Chunk struct {
	Path     string
	Start    time.Time
	Duration time.Duration
}

func (c Chunk) End() time.Time {
	return c.Start.Add(c.Duration)
}

// Recorder owns the ffmpeg capture subprocess. ffmpeg gives no "segment
// closed" event, so a segment counts as complete only when a newer
// segment's "Opening ... for writing" line appears on stderr, or when the
// process exits. That inference is the whole point of this package.
type Recorder struct {
	StreamURL    string
	ChunkDir     string
	SegmentTime  time.Duration
	RestartDelay time.Duration
	StallAfter   time.Duration
	OnChunk      func(Chunk)

	mu        sync.Mutex
	completed map[string]bool
	lastSeen  time.Time
	cmd       *exec.Cmd

	stop chan struct{}
	done chan struct{}
}

func New(streamURL, chunkDir string, segmentTime, restartDelay, stallAfter time.Duration, onChunk func(Chunk)) *Recorder {
	return &Recorder{
		StreamURL:    streamURL,
		ChunkDir:     chunkDir,
		SegmentTime:  segmentTime,
		RestartDelay: restartDelay,
		StallAfter:   stallAfter,
		OnChunk:      onChunk,
		completed:    make(map[string]bool),
		lastSeen:     time.Now(),
	}
}

// Start launches the capture loop and the stall watchdog.
func (r *Recorder) Start() {
	r.stop = make(chan struct{})
	r.done = make(chan struct{})

	if err := os.MkdirAll(r.ChunkDir, 0755); err != nil {
		log.Fatalf("Failed to create chunk dir '%s': %v", r.ChunkDir, err)
	}

	go r.watchdog()

	go func() {
		defer close(r.done)
		for {
			select {
			case <-r.stop:
				return
			default:
			}

			if err := r.runOnce(); err != nil {
				log.Printf("❌ Capture process ended: %v", err)
			} else {
				log.Println("Capture process exited")
			}

			// Whatever is on disk is final now, the writer is gone.
			r.flushPending("")

			restartsTotal.Inc()
			log.Printf("🔄 Restarting capture in %s...", r.RestartDelay)
			select {
			case <-time.After(r.RestartDelay):
			case <-r.stop:
				return
			}
		}
	}()
}

// Stop kills the subprocess and waits for the loop to finish.
func (r *Recorder) Stop() {
	if r.stop == nil {
		return
	}
	close(r.stop)
	r.kill()
	<-r.done
	r.stop = nil
}

func (r *Recorder) runOnce() error {
	pattern := filepath.Join(r.ChunkDir, chunkPrefix+"%Y%m%d_%H%M%S"+chunkExt)

	args := []string{
		"-loglevel", "info",
		"-reconnect", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", "10",
		"-i", r.StreamURL,

		"-vn", "-map", "0:a:0",
		"-c:a", "copy",

		"-f", "segment",
		"-segment_time", strconv.Itoa(int(r.SegmentTime.Seconds())),
		"-strftime", "1",
		pattern,
	}

	cmd := exec.Command("ffmpeg", args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}

	if err := cmd.Start(); err != nil {
		return err
	}

	r.mu.Lock()
	r.cmd = cmd
	r.lastSeen = time.Now()
	r.mu.Unlock()

	log.Printf("🎙️  Capture started: %s -> %s (%ds segments)", r.StreamURL, r.ChunkDir, int(r.SegmentTime.Seconds()))

	// ffmpeg announces every new segment on stderr:
	//   [segment @ ...] Opening './chunks/chunk_20240101_120000.mp3' for writing
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if name, ok := parseSegmentEvent(scanner.Text()); ok {
			r.handleNewSegment(name)
		}
	}

	err = cmd.Wait()
	r.mu.Lock()
	r.cmd = nil
	r.mu.Unlock()
	return err
}

// parseSegmentEvent extracts the chunk filename from an ffmpeg "Opening
// '...' for writing" line, if the line is one.
func parseSegmentEvent(line string) (string, bool) {
	if !strings.Contains(line, "for writing") {
		return "", false
	}
	start := strings.Index(line, "Opening '")
	if start == -1 {
		return "", false
	}
	rest := line[start+len("Opening '"):]
	end := strings.Index(rest, "'")
	if end == -1 {
		return "", false
	}
	name := filepath.Base(rest[:end])
	if !strings.HasPrefix(name, chunkPrefix) || !strings.HasSuffix(name, chunkExt) {
		return "", false
	}
	return name, true
}

// handleNewSegment marks every older, not-yet-acknowledged chunk file as
// complete. The newly opened file itself is still being written.
func (r *Recorder) handleNewSegment(current string) {
	r.mu.Lock()
	r.lastSeen = time.Now()
	r.mu.Unlock()

	r.flushPending(current)
}

// flushPending scans the chunk dir and emits every unacknowledged chunk,
// skipping the one ffmpeg is currently writing (empty means none, i.e. the
// process exited). Events can be missed or batched, so the scan always
// covers the whole directory; the completed set keeps emission idempotent.
func (r *Recorder) flushPending(current string) {
	entries, err := os.ReadDir(r.ChunkDir)
	if err != nil {
		log.Printf("⚠️ Chunk dir scan failed: %v", err)
		return
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, chunkPrefix) && strings.HasSuffix(name, chunkExt) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		if name == current {
			continue
		}

		r.mu.Lock()
		seen := r.completed[name]
		if !seen {
			r.completed[name] = true
		}
		r.mu.Unlock()
		if seen {
			continue
		}

		start, err := ParseChunkStart(name)
		if err != nil {
			log.Printf("⚠️ Ignoring chunk with unparsable name '%s': %v", name, err)
			continue
		}

		chunksObserved.Inc()
		if r.OnChunk != nil {
			r.OnChunk(Chunk{
				Path:     filepath.Join(r.ChunkDir, name),
				Start:    start,
				Duration: r.SegmentTime,
			})
		}
	}
}

// ParseChunkStart recovers the nominal start instant from a chunk
// filename. Local wall clock, second precision.
func ParseChunkStart(name string) (time.Time, error) {
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, chunkPrefix), chunkExt)
	return time.ParseInLocation(chunkTimeLayout, stamp, time.Local)
}

// watchdog kills the capture process when it is alive but has produced no
// new segment for too long. Silent stream stalls neither exit nor log, so
// killing is the only way to reach the restart path.
func (r *Recorder) watchdog() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.mu.Lock()
			stalled := r.cmd != nil && time.Since(r.lastSeen) > r.StallAfter
			r.mu.Unlock()

			if stalled {
				log.Printf("🚨 No chunk for over %s, killing stalled capture process", r.StallAfter)
				watchdogKills.Inc()
				r.kill()
			}
		case <-r.stop:
			return
		}
	}
}

func (r *Recorder) kill() {
	r.mu.Lock()
	cmd := r.cmd
	r.mu.Unlock()
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}
