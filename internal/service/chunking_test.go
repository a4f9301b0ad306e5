package service

import (
	"strings"
	"testing"

	"github.com/cloo-solutions/pdfqa/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func words(n int) string {
	return strings.Repeat("lorem ", n/6+1)[:n]
}

func assertCoversWithOverlap(t *testing.T, text string, chunks []domain.Chunk, cfg ChunkConfig) {
	t.Helper()
	runes := []rune(text)
	require.NotEmpty(t, chunks)

	assert.Equal(t, 0, chunks[0].Start, "first chunk must start at the page start")
	assert.Equal(t, len(runes), chunks[len(chunks)-1].End, "last chunk must end at the page end")

	for i, c := range chunks {
		assert.LessOrEqual(t, c.Len(), cfg.Size)
		assert.Equal(t, string(runes[c.Start:c.End]), c.Content)
		if i == 0 {
			continue
		}
		prev := chunks[i-1]
		assert.Equal(t, cfg.Overlap, prev.End-c.Start, "chunk %d overlap", i)
		assert.Greater(t, c.End, prev.End, "chunk %d must add new text", i)
		assert.Greater(t, prev.Len(), (cfg.Size+cfg.Overlap)/2, "chunk %d is too short", i-1)
	}
}

func TestChunker_EmptyInput(t *testing.T) {
	chunker := NewChunker(DefaultChunkConfig())

	assert.Empty(t, chunker.Split(nil))
	assert.Empty(t, chunker.Split([]domain.Page{}))
	assert.Empty(t, chunker.Split([]domain.Page{{Number: 1, Text: ""}, {Number: 2, Text: " \n\n "}}))
}

func TestChunker_ShortPageIsSingleChunk(t *testing.T) {
	chunker := NewChunker(DefaultChunkConfig())

	chunks := chunker.Split([]domain.Page{{Number: 4, Text: "A short page."}})

	require.Len(t, chunks, 1)
	assert.Equal(t, domain.Chunk{Index: 0, Page: 4, Start: 0, End: 13, Content: "A short page."}, chunks[0])
}

func TestChunker_CoverageAndOverlap(t *testing.T) {
	paragraphs := strings.Join([]string{words(420), words(380), words(910), words(150), words(2300)}, "\n\n")
	lines := strings.Join([]string{words(90), words(60), words(130), words(75)}, "\n")
	noSeparators := strings.Repeat("abcdefghij", 73)

	tests := []struct {
		name string
		text string
		cfg  ChunkConfig
	}{
		{"defaults on paragraphs", paragraphs, DefaultChunkConfig()},
		{"small chunks on paragraphs", paragraphs, ChunkConfig{Size: 120, Overlap: 30}},
		{"no overlap", paragraphs, ChunkConfig{Size: 200, Overlap: 0}},
		{"line breaks", lines, ChunkConfig{Size: 100, Overlap: 25}},
		{"raw characters", noSeparators, ChunkConfig{Size: 64, Overlap: 16}},
		{"unicode", strings.Repeat("héllo wörld ", 200), ChunkConfig{Size: 100, Overlap: 40}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunker := NewChunker(tt.cfg)
			chunks := chunker.Split([]domain.Page{{Number: 1, Text: tt.text}})
			assertCoversWithOverlap(t, tt.text, chunks, chunker.Config())
		})
	}
}

func TestChunker_EarlyBreakIsNotAnEnd(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"heading paragraph", "Title\n\n" + strings.Repeat("x", 1500)},
		{"heading line", "Heading line\n" + strings.Repeat("word ", 400)},
		{"break right after overlap", words(240) + "\n\n" + words(2000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunker := NewChunker(DefaultChunkConfig())
			var chunks []domain.Chunk
			require.NotPanics(t, func() {
				chunks = chunker.Split([]domain.Page{{Number: 1, Text: tt.text}})
			})
			assertCoversWithOverlap(t, tt.text, chunks, chunker.Config())
		})
	}
}

func TestChunker_NoNearDuplicateChunks(t *testing.T) {
	// the second paragraph break sits just past the first chunk's end
	text := words(990) + "\n\n" + words(60) + "\n\n" + words(2000)
	chunker := NewChunker(DefaultChunkConfig())

	chunks := chunker.Split([]domain.Page{{Number: 1, Text: text}})

	require.Greater(t, len(chunks), 2)
	assert.Equal(t, 992, chunks[0].End)
	assert.Greater(t, chunks[1].Len(), 625)
	assertCoversWithOverlap(t, text, chunks, chunker.Config())
}

func TestChunker_PrefersParagraphBoundaries(t *testing.T) {
	text := words(400) + "\n\n" + words(400) + "\n\n" + words(400)
	chunker := NewChunker(DefaultChunkConfig())

	chunks := chunker.Split([]domain.Page{{Number: 1, Text: text}})

	require.Len(t, chunks, 2)
	assert.Equal(t, 804, chunks[0].End)
	assert.True(t, strings.HasSuffix(chunks[0].Content, "\n\n"))
	assert.Equal(t, 554, chunks[1].Start)
}

func TestChunker_FallsBackToSpacesBeforeCharacters(t *testing.T) {
	// one long paragraph without line breaks
	text := words(3000)
	chunker := NewChunker(ChunkConfig{Size: 1000, Overlap: 250})

	chunks := chunker.Split([]domain.Page{{Number: 1, Text: text}})

	require.Greater(t, len(chunks), 1)
	for _, c := range chunks[:len(chunks)-1] {
		assert.True(t, strings.HasSuffix(c.Content, " "), "chunk %d should end after a space", c.Index)
	}
}

func TestChunker_RawCharacterSplit(t *testing.T) {
	text := strings.Repeat("abcdefghij", 30)
	chunker := NewChunker(ChunkConfig{Size: 100, Overlap: 25})

	chunks := chunker.Split([]domain.Page{{Number: 1, Text: text}})

	require.Len(t, chunks, 4)
	lengths := make([]int, len(chunks))
	for i, c := range chunks {
		lengths[i] = c.Len()
	}
	assert.Equal(t, []int{100, 100, 100, 75}, lengths)
}

func TestChunker_PageProvenanceAndIndexes(t *testing.T) {
	chunker := NewChunker(ChunkConfig{Size: 50, Overlap: 10})
	pages := []domain.Page{
		{Number: 1, Text: words(120)},
		{Number: 2, Text: ""},
		{Number: 3, Text: words(80)},
	}

	chunks := chunker.Split(pages)

	require.NotEmpty(t, chunks)
	seenPages := map[int]bool{}
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		seenPages[c.Page] = true
	}
	assert.Equal(t, map[int]bool{1: true, 3: true}, seenPages)

	var page3 []domain.Chunk
	for _, c := range chunks {
		if c.Page == 3 {
			page3 = append(page3, c)
		}
	}
	assertCoversWithOverlap(t, pages[2].Text, page3, chunker.Config())
}

func TestChunker_InvalidConfigFallsBackToDefaults(t *testing.T) {
	tests := []ChunkConfig{
		{Size: 0, Overlap: 0},
		{Size: 100, Overlap: 100},
		{Size: 100, Overlap: -1},
	}

	for _, cfg := range tests {
		assert.Error(t, cfg.Validate())
		chunker := NewChunker(cfg)
		assert.Equal(t, 1000, chunker.Config().Size)
		assert.Equal(t, 250, chunker.Config().Overlap)
		assert.Equal(t, []string{"\n\n", "\n", " ", ""}, chunker.Config().Separators)
	}
}

func TestChunker_IsDeterministic(t *testing.T) {
	pages := []domain.Page{{Number: 1, Text: words(5000)}}
	chunker := NewChunker(DefaultChunkConfig())

	assert.Equal(t, chunker.Split(pages), chunker.Split(pages))
}
