package broadcast

import "strings"

// TruncationMarker is appended when a title had to be cut short.
const TruncationMarker = "..."

// MakeTitle builds a human-readable title from the first maxWords words of
// the transcript text.
func MakeTitle(text string, maxWords int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return "Unbenannte Sendung"
	}
	if len(words) <= maxWords {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:maxWords], " ") + TruncationMarker
}
