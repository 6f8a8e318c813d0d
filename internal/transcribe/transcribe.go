package transcribe

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/badlogic/nazi-radio/internal/audio"
)

// Segment is one transcribed span, in seconds relative to the start of the
// submitted file.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Result is a full transcription: ordered, contiguous, non-overlapping
// segments spanning the whole file.
type Result struct {
	Duration float64   `json:"duration"`
	Segments []Segment `json:"segments"`
}

// Transcriber turns one audio file into time-stamped text. The broadcast
// pipeline only sees this interface; tests plug in a fake.
type Transcriber interface {
	Transcribe(path string) (*Result, error)
}

// Client talks to an OpenAI-compatible audio/transcriptions endpoint.
// Oversized files are split transparently and the per-part timestamps are
// re-offset, so callers can treat any file as a single atomic request.
type Client struct {
	URL          string
	APIKey       string
	Model        string
	Language     string
	MaxFileBytes int64

	client *http.Client

	// split and probe are swappable so the oversized-file path can be
	// tested without ffmpeg on the box.
	split func(input, outDir string, segmentSeconds int) ([]string, error)
	probe func(path string) (float64, error)
}

// splitSeconds bounds each sub-segment when a file exceeds MaxFileBytes.
// 10 minutes of 128kbps mp3 is ~10MB, comfortably under the API limit.
const splitSeconds = 600

func NewClient(url, apiKey, model, language string, maxFileBytes int64) *Client {
	return &Client{
		URL:          url,
		APIKey:       apiKey,
		Model:        model,
		Language:     language,
		MaxFileBytes: maxFileBytes,
		// Transcription runs to completion or failure; the timeout is only
		// a safety net against a wedged connection.
		client: &http.Client{Timeout: 30 * time.Minute},
		split:  audio.Split,
		probe:  audio.Duration,
	}
}

func (c *Client) Transcribe(path string) (*Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if c.MaxFileBytes <= 0 || info.Size() <= c.MaxFileBytes {
		return c.transcribeFile(path)
	}

	log.Printf("   ✂️  File too large (%d bytes), splitting for transcription", info.Size())
	return c.transcribeSplit(path)
}

// transcribeSplit cuts the file into time-bounded parts, transcribes each,
// and shifts every part's timestamps by the summed *reported* durations of
// the parts before it. Using the nominal split length instead would drift,
// since stream copy cuts on frame boundaries.
func (c *Client) transcribeSplit(path string) (*Result, error) {
	partsDir, err := os.MkdirTemp("", "radio-transcribe-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(partsDir)

	parts, err := c.split(path, partsDir, splitSeconds)
	if err != nil {
		return nil, fmt.Errorf("split failed: %w", err)
	}

	combined := &Result{}
	offset := 0.0
	for i, part := range parts {
		res, err := c.transcribeFile(part)
		if err != nil {
			return nil, fmt.Errorf("part %d/%d: %w", i+1, len(parts), err)
		}

		for _, seg := range res.Segments {
			combined.Segments = append(combined.Segments, Segment{
				Start: seg.Start + offset,
				End:   seg.End + offset,
				Text:  seg.Text,
			})
		}

		duration := res.Duration
		if duration == 0 {
			// API omitted it; fall back to probing the part itself.
			probed, err := c.probe(part)
			if err != nil {
				log.Printf("⚠️ No usable duration for part %d/%d, later timestamps may drift: %v", i+1, len(parts), err)
			} else {
				duration = probed
			}
		}
		offset += duration
	}
	combined.Duration = offset

	return combined, nil
}

func (c *Client) transcribeFile(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if err := mw.WriteField("model", c.Model); err != nil {
		return nil, err
	}
	if err := mw.WriteField("response_format", "verbose_json"); err != nil {
		return nil, err
	}
	if c.Language != "" {
		if err := mw.WriteField("language", c.Language); err != nil {
			return nil, err
		}
	}

	fw, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(fw, f); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequest("POST", c.URL, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("transcription API status %d: %s", resp.StatusCode, string(b))
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}
