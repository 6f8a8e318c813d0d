package metadata

import (
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics
var (
	samplesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "radio_metadata_samples_total", Help: "Now-playing samples recorded"},
		[]string{"kind"},
	)
	fetchFailures = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "radio_metadata_fetch_failures_total", Help: "Failed now-playing fetches"},
	)
)

func RegisterMetrics() {
	prometheus.MustRegister(samplesTotal, fetchFailures)
}

// Sample is one observation of the now-playing signal. Immutable.
type Sample struct {
	Time   time.Time
	Artist string
	Title  string
}

// IsSpeech reports whether this instant looked like talk rather than music.
// No artist means no song is playing.
func (s Sample) IsSpeech() bool {
	return s.Artist == ""
}

// Sampler polls the now-playing endpoint on a fixed interval and keeps a
// bounded, time-ordered buffer of samples. A failed fetch is still recorded
// (as an empty sample): over-detecting speech is safer than losing content.
type Sampler struct {
	fetcher   Fetcher
	interval  time.Duration
	retention time.Duration

	mu      sync.RWMutex
	samples []Sample

	stop chan struct{}
	done chan struct{}
}

func NewSampler(fetcher Fetcher, interval, retention time.Duration) *Sampler {
	return &Sampler{
		fetcher:   fetcher,
		interval:  interval,
		retention: retention,
	}
}

// Start launches the polling loop. Call Stop to shut it down.
func (s *Sampler) Start() {
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		log.Printf("📡 Metadata sampler started (every %s, keeping %s)", s.interval, s.retention)
		s.poll()
		for {
			select {
			case <-ticker.C:
				s.poll()
			case <-s.stop:
				return
			}
		}
	}()
}

func (s *Sampler) Stop() {
	if s.stop == nil {
		return
	}
	close(s.stop)
	<-s.done
	s.stop = nil
}

func (s *Sampler) poll() {
	np, err := s.fetcher.FetchNowPlaying()
	if err != nil {
		// Degrades to a speech sample for this instant, sampling never stops.
		fetchFailures.Inc()
		np = NowPlaying{}
	}
	s.Record(Sample{Time: time.Now(), Artist: np.Artist, Title: np.Title})
}

// Record appends a sample and prunes everything older than the retention
// window. Eviction is lazy: it happens on insert, not on a timer.
func (s *Sampler) Record(sample Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.samples = append(s.samples, sample)

	cutoff := sample.Time.Add(-s.retention)
	firstValid := 0
	for firstValid < len(s.samples) && s.samples[firstValid].Time.Before(cutoff) {
		firstValid++
	}
	if firstValid > 0 {
		s.samples = append(s.samples[:0:0], s.samples[firstValid:]...)
	}

	if sample.IsSpeech() {
		samplesTotal.WithLabelValues("speech").Inc()
	} else {
		samplesTotal.WithLabelValues("music").Inc()
	}
}

// IsSpeech reports whether any sample inside [from, to] had no artist.
// A range with no samples at all (e.g. entirely outside the retention
// window) reports false — callers must treat that as indeterminate, not as
// confirmed music.
func (s *Sampler) IsSpeech(from, to time.Time) bool {
	return s.SpeechRatio(from, to) > 0
}

// SpeechRatio returns the fraction of samples inside [from, to] that had no
// artist, or 0 when the range holds no samples.
func (s *Sampler) SpeechRatio(from, to time.Time) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	speech := 0
	for _, sample := range s.samples {
		if sample.Time.Before(from) || sample.Time.After(to) {
			continue
		}
		total++
		if sample.IsSpeech() {
			speech++
		}
	}

	if total == 0 {
		return 0
	}
	return float64(speech) / float64(total)
}

// Len reports the number of buffered samples. Used by tests and the stats
// endpoint.
func (s *Sampler) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.samples)
}
