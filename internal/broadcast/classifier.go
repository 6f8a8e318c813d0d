package broadcast

import (
	"time"

	"github.com/badlogic/nazi-radio/internal/recorder"
)

// SpeechDetector answers "was anyone talking in this time range". The
// metadata sampler implements it; tests use a canned one.
type SpeechDetector interface {
	IsSpeech(from, to time.Time) bool
	SpeechRatio(from, to time.Time) float64
}

// Classify labels a chunk using the now-playing samples overlapping its
// nominal time range. Pure function of the chunk and the detector's
// current buffer; no state of its own.
func Classify(det SpeechDetector, chunk recorder.Chunk) (speech bool, ratio float64) {
	return det.IsSpeech(chunk.Start, chunk.End()), det.SpeechRatio(chunk.Start, chunk.End())
}
