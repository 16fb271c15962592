package loader

import "strings"

// PreviewLength is the number of characters shown when previewing a file.
const PreviewLength = 500

// Preview joins the text of segments and cuts it to maxRunes characters,
// appending "..." when something was cut.
func Preview(segments []Segment, maxRunes int) string {
	texts := make([]string, len(segments))
	for i, s := range segments {
		texts[i] = s.Text
	}
	text := strings.Join(texts, "\n\n")

	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}
	return string(runes[:maxRunes]) + "..."
}
