package worker

import (
	"strings"
	"unicode/utf8"
)

// ChunkText splits text on whitespace into chunks of at most maxChars
// characters. Words are never split, so a single word longer than maxChars
// becomes a chunk of its own.
func ChunkText(text string, maxChars int) []string {
	var (
		chunks []string
		cur    strings.Builder
		n      int
	)
	for _, word := range strings.Fields(text) {
		wn := utf8.RuneCountInString(word)
		if n > 0 && n+1+wn > maxChars {
			chunks = append(chunks, cur.String())
			cur.Reset()
			n = 0
		}
		if n > 0 {
			cur.WriteByte(' ')
			n++
		}
		cur.WriteString(word)
		n += wn
	}
	if n > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}
