package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Page is one block of extracted text tagged with its 1-based source page.
type Page struct {
	Number int
	Text   string
}

// Document is the extracted text of one uploaded PDF.
type Document struct {
	ID         string
	Filename   string
	Pages      []Page
	UploadedAt time.Time
}

// NewDocument creates a new Document instance
func NewDocument(id, filename string, pages []Page, uploadedAt time.Time) *Document {
	return &Document{
		ID:         id,
		Filename:   filename,
		Pages:      pages,
		UploadedAt: uploadedAt,
	}
}

// PageCount returns the number of extracted pages.
func (d *Document) PageCount() int {
	return len(d.Pages)
}

// CharCount returns the total number of characters across all pages.
func (d *Document) CharCount() int {
	n := 0
	for _, p := range d.Pages {
		n += utf8.RuneCountInString(p.Text)
	}
	return n
}

// HasText reports whether any page carries non-whitespace text.
func (d *Document) HasText() bool {
	for _, p := range d.Pages {
		if strings.TrimSpace(p.Text) != "" {
			return true
		}
	}
	return false
}

// Chunk is a bounded slice of a single page's text.
// Start and End are rune offsets into the page text, End exclusive.
type Chunk struct {
	Index   int
	Page    int
	Start   int
	End     int
	Content string
}

// ID returns the identifier used for the chunk inside vector stores.
func (c Chunk) ID() string {
	return strconv.Itoa(c.Index)
}

// Len returns the chunk length in runes.
func (c Chunk) Len() int {
	return c.End - c.Start
}

// Label renders the provenance of the chunk for prompts and CLI output.
func (c Chunk) Label() string {
	return fmt.Sprintf("page %d", c.Page)
}

// ScoredChunk pairs a chunk with its similarity to a query.
type ScoredChunk struct {
	Chunk Chunk
	Score float32
}

// Chunks strips the scores from a ranked result.
func Chunks(scored []ScoredChunk) []Chunk {
	out := make([]Chunk, len(scored))
	for i, s := range scored {
		out[i] = s.Chunk
	}
	return out
}
