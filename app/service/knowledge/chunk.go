package knowledge

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ChunkText splits text on newlines into chunks of at most maxChars
// characters. Paragraphs are never split, so a paragraph longer than the
// limit becomes a chunk of its own. Text within the limit is returned as is.
func ChunkText(text string, maxChars int) []string {
	if utf8.RuneCountInString(text) <= maxChars {
		return []string{text}
	}

	var (
		chunks     []string
		current    strings.Builder
		currentLen int
	)

	for _, paragraph := range strings.Split(text, "\n") {
		paragraphLen := utf8.RuneCountInString(paragraph)

		if currentLen+paragraphLen+1 > maxChars && currentLen > 0 {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
			current.WriteString(paragraph)
			currentLen = paragraphLen
			continue
		}

		if currentLen > 0 {
			current.WriteByte('\n')
			currentLen++
		}
		current.WriteString(paragraph)
		currentLen += paragraphLen
	}

	if rest := strings.TrimSpace(current.String()); rest != "" {
		chunks = append(chunks, rest)
	}

	return chunks
}

// MakeID derives the stable document id for one chunk of a thread. Changing
// the scheme breaks idempotent re-seeding of existing stores.
func MakeID(threadID, docType string, chunkIndex int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%d", threadID, docType, chunkIndex)))
	return hex.EncodeToString(sum[:])[:16]
}
