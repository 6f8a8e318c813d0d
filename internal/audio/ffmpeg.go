package audio

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Concat joins the given audio files losslessly (stream copy, no
// re-encode) into output, in the order given. Uses the ffmpeg concat
// demuxer with a temporary list file.
func Concat(inputs []string, output string) error {
	if len(inputs) == 0 {
		return fmt.Errorf("nothing to concatenate")
	}

	listFile, err := os.CreateTemp("", "radio-concat-*.txt")
	if err != nil {
		return err
	}
	defer os.Remove(listFile.Name())

	for _, in := range inputs {
		abs, err := filepath.Abs(in)
		if err != nil {
			return err
		}
		// Single quotes in paths must be escaped for the concat demuxer.
		abs = strings.ReplaceAll(abs, "'", `'\''`)
		fmt.Fprintf(listFile, "file '%s'\n", abs)
	}
	if err := listFile.Close(); err != nil {
		return err
	}

	cmd := exec.Command("ffmpeg", "-y",
		"-f", "concat", "-safe", "0",
		"-i", listFile.Name(),
		"-c", "copy",
		output)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg concat failed: %v (%s)", err, tail(out))
	}
	return nil
}

// Split cuts input into parts of at most segmentSeconds each (stream copy)
// and returns their paths in order. Used when a file is too large to send
// to the transcription API in one piece.
func Split(input, outDir string, segmentSeconds int) ([]string, error) {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, err
	}

	ext := filepath.Ext(input)
	pattern := filepath.Join(outDir, "part_%03d"+ext)

	cmd := exec.Command("ffmpeg", "-y",
		"-i", input,
		"-f", "segment",
		"-segment_time", strconv.Itoa(segmentSeconds),
		"-c", "copy",
		pattern)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg split failed: %v (%s)", err, tail(out))
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		return nil, err
	}

	var parts []string
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), "part_") && strings.HasSuffix(entry.Name(), ext) {
			parts = append(parts, filepath.Join(outDir, entry.Name()))
		}
	}
	// %03d is zero-padded, lexicographic order is playback order
	sort.Strings(parts)

	if len(parts) == 0 {
		return nil, fmt.Errorf("split produced no parts for %s", input)
	}
	return parts, nil
}

// Duration reads the container duration in seconds via ffprobe.
func Duration(path string) (float64, error) {
	cmd := exec.Command("ffprobe", "-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed for %s: %w", path, err)
	}

	secs, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("unparsable duration %q: %w", strings.TrimSpace(string(out)), err)
	}
	return secs, nil
}

// tail keeps error output readable; ffmpeg is chatty.
func tail(out []byte) string {
	s := strings.TrimSpace(string(out))
	if len(s) > 400 {
		s = "..." + s[len(s)-400:]
	}
	return s
}
