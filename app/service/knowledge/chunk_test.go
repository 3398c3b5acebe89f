package knowledge

import (
	"fmt"
	"strconv"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkTextShort(t *testing.T) {
	assert.Equal(t, []string{"Hello world"}, ChunkText("Hello world", 6000))
	assert.Equal(t, []string{""}, ChunkText("", 6000))
	assert.Len(t, ChunkText(strings.Repeat("a", 6000), 6000), 1)
}

func TestChunkTextSplitsOnParagraphs(t *testing.T) {
	paragraphs := make([]string, 0, 20)
	for i := range 20 {
		paragraphs = append(paragraphs, fmt.Sprintf("Paragraph %d: %s", i, strings.Repeat("x", 500)))
	}
	text := strings.Join(paragraphs, "\n")

	chunks := ChunkText(text, 2000)
	require.Greater(t, len(chunks), 1)

	for _, chunk := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(chunk), 2000)
	}
	assert.Equal(t, text, strings.Join(chunks, "\n"))
}

func TestChunkTextKeepsOversizedParagraph(t *testing.T) {
	long := strings.Repeat("x", 8000)
	assert.Equal(t, []string{long}, ChunkText(long, 6000))

	chunks := ChunkText("short\n"+long+"\ntail", 6000)
	assert.Equal(t, []string{"short", long, "tail"}, chunks)
}

func TestChunkTextCountsCharacters(t *testing.T) {
	// 4 runes, 12 bytes
	text := "язык"
	assert.Equal(t, []string{text}, ChunkText(text, 4))
}

// assertChunking checks that chunks carry the text up to per-chunk trimming
// and that only a lone paragraph may exceed the limit.
func assertChunking(t *testing.T, text string, maxChars int, chunks []string) {
	t.Helper()

	assert.Equal(t, strings.Fields(text), strings.Fields(strings.Join(chunks, "\n")))

	for _, chunk := range chunks {
		if utf8.RuneCountInString(chunk) > maxChars {
			assert.NotContains(t, chunk, "\n", "oversized chunk must be a single paragraph")
		}
	}
}

func TestChunkTextInvariant(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		maxChars int
	}{
		{"empty", "", 10},
		{"empty paragraphs", "alpha\n\n\nbeta\n\ngamma delta", 8},
		{"leading and trailing blank lines", "\n\n  first line  \nsecond line\n\n", 12},
		{"only newlines", strings.Repeat("\n", 30), 5},
		{"mixed sizes", "a\n" + strings.Repeat("b", 25) + "\nccc ccc\n" + strings.Repeat("d", 9) + "\ne", 10},
		{"oversized in the middle", "head\n" + strings.Repeat("z", 40) + "\ntail", 10},
		{"multi-byte runes", "привет мир\nこんにちは世界\n" + strings.Repeat("ё", 12) + "\n🙂🙂🙂", 11},
		{"exact fit", "12345\n1234", 10},
		{"one over", "12345\n12345", 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := ChunkText(tt.text, tt.maxChars)
			if strings.TrimSpace(tt.text) != "" {
				require.NotEmpty(t, chunks)
			}
			assertChunking(t, tt.text, tt.maxChars, chunks)
		})
	}
}

func TestChunkTextBoundaries(t *testing.T) {
	assert.Equal(t, []string{"12345\n1234"}, ChunkText("12345\n1234", 10))
	assert.Equal(t, []string{"12345", "12345"}, ChunkText("12345\n12345", 10))
	assert.Equal(t, []string{"ёёёёё", "ёёёёё"}, ChunkText("ёёёёё\nёёёёё", 10))
}

func FuzzChunkText(f *testing.F) {
	f.Add("alpha\n\nbeta\ngamma", 5)
	f.Add("\n\n  x  \n\n", 1)
	f.Add("язык\nこんにちは\n🙂", 3)
	f.Add(strings.Repeat("word ", 50), 16)

	f.Fuzz(func(t *testing.T, text string, maxChars int) {
		if maxChars < 1 || maxChars > 1000 || !utf8.ValidString(text) {
			t.Skip()
		}

		assertChunking(t, text, maxChars, ChunkText(text, maxChars))
	})
}

func TestMakeID(t *testing.T) {
	id := MakeID("thread1", DocTypeSummary, 0)

	assert.Equal(t, id, MakeID("thread1", DocTypeSummary, 0))
	assert.NotEqual(t, id, MakeID("thread2", DocTypeSummary, 0))
	assert.NotEqual(t, id, MakeID("thread1", DocTypeContent, 0))
	assert.NotEqual(t, id, MakeID("thread1", DocTypeSummary, 1))

	require.Len(t, id, 16)
	_, err := strconv.ParseUint(id, 16, 64)
	assert.NoError(t, err)
}
