package service

import (
	"sort"
	"strings"

	"github.com/cloo-solutions/pdfqa/internal/domain"
)

// ChunkConfig controls how page text is split before embedding.
// Size and Overlap are measured in runes.
type ChunkConfig struct {
	Size       int
	Overlap    int
	Separators []string
}

// DefaultChunkConfig provides sane defaults for chunking.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		Size:       1000,
		Overlap:    250,
		Separators: []string{"\n\n", "\n", " ", ""},
	}
}

// Validate checks that the configuration can make progress.
func (c ChunkConfig) Validate() error {
	if c.Size <= 0 || c.Overlap < 0 || c.Overlap >= c.Size {
		return domain.ErrInvalidChunkConfig
	}
	return nil
}

// Chunker splits document pages into overlapping chunks, preferring
// paragraph breaks, then line breaks, then spaces, then raw characters.
type Chunker struct {
	cfg ChunkConfig
}

// NewChunker returns a Chunker. An invalid size/overlap pair falls back to the defaults.
func NewChunker(cfg ChunkConfig) *Chunker {
	if err := cfg.Validate(); err != nil {
		defaults := DefaultChunkConfig()
		cfg.Size = defaults.Size
		cfg.Overlap = defaults.Overlap
	}
	if len(cfg.Separators) == 0 {
		cfg.Separators = DefaultChunkConfig().Separators
	}
	return &Chunker{cfg: cfg}
}

// Config returns the effective configuration.
func (c *Chunker) Config() ChunkConfig {
	return c.cfg
}

// Split chunks every page independently, so each chunk carries exactly one
// source page. Chunk indexes run across the whole document.
func (c *Chunker) Split(pages []domain.Page) []domain.Chunk {
	var chunks []domain.Chunk
	for _, page := range pages {
		if strings.TrimSpace(page.Text) == "" {
			continue
		}
		runes := []rune(page.Text)
		for _, s := range splitSpans(runes, c.cfg) {
			chunks = append(chunks, domain.Chunk{
				Index:   len(chunks),
				Page:    page.Number,
				Start:   s.start,
				End:     s.end,
				Content: string(runes[s.start:s.end]),
			})
		}
	}
	return chunks
}

type span struct {
	start, end int
}

// splitSpans walks the text once. Each chunk ends on the furthest boundary of
// the gentlest separator that keeps the chunk within Size and past its
// minimum length. The next chunk starts Overlap runes before that end.
//
// The minimum length is (Size+Overlap)/2, which lies past the previous
// chunk's end, so every chunk adds at least (Size-Overlap)/2 new runes and
// the next start never falls behind the current one.
func splitSpans(text []rune, cfg ChunkConfig) []span {
	n := len(text)
	if n == 0 {
		return nil
	}
	if n <= cfg.Size {
		return []span{{0, n}}
	}

	levels := separatorBoundaries(text, cfg.Separators)

	var spans []span
	minLen := (cfg.Size + cfg.Overlap) / 2
	start := 0
	for {
		limit := start + cfg.Size
		if limit >= n {
			spans = append(spans, span{start, n})
			return spans
		}

		end := chooseEnd(levels, start+minLen, limit)
		spans = append(spans, span{start, end})
		start = end - cfg.Overlap
	}
}

// boundaryLevel holds the sorted cut positions produced by one separator.
// A nil positions slice with anyPosition set means every rune offset is a cut.
type boundaryLevel struct {
	positions   []int
	anyPosition bool
}

func separatorBoundaries(text []rune, separators []string) []boundaryLevel {
	levels := make([]boundaryLevel, 0, len(separators)+1)
	for _, sep := range separators {
		if sep == "" {
			levels = append(levels, boundaryLevel{anyPosition: true})
			continue
		}
		levels = append(levels, boundaryLevel{positions: indexAfterAll(text, []rune(sep))})
	}
	// raw characters are always the last resort
	if len(levels) == 0 || !levels[len(levels)-1].anyPosition {
		levels = append(levels, boundaryLevel{anyPosition: true})
	}
	return levels
}

// indexAfterAll returns the offset directly after every non-overlapping match of sep.
func indexAfterAll(text, sep []rune) []int {
	var out []int
	for i := 0; i+len(sep) <= len(text); {
		if runesEqual(text[i:i+len(sep)], sep) {
			i += len(sep)
			out = append(out, i)
			continue
		}
		i++
	}
	return out
}

func runesEqual(a, b []rune) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// chooseEnd picks the largest boundary b with lo < b <= hi from the first level that has one.
func chooseEnd(levels []boundaryLevel, lo, hi int) int {
	for _, level := range levels {
		if level.anyPosition {
			return hi
		}
		i := sort.SearchInts(level.positions, hi+1) - 1
		if i >= 0 && level.positions[i] > lo {
			return level.positions[i]
		}
	}
	return hi
}
