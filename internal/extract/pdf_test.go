package extract

import (
	"context"
	"strings"
	"testing"

	"github.com/cloo-solutions/pdfqa/internal/domain"
	"github.com/cloo-solutions/pdfqa/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPDFExtractor_Extract(t *testing.T) {
	data := testutil.BuildPDF([]string{
		"Introduction\nThis report covers the year.",
		"",
		"Results (final)\nRevenue grew by 12 percent.",
	})

	pages, err := NewPDFExtractor().Extract(context.Background(), "report.pdf", data)

	require.NoError(t, err)
	require.Len(t, pages, 3)
	for i, p := range pages {
		assert.Equal(t, i+1, p.Number)
	}
	assert.Contains(t, pages[0].Text, "This report covers the year.")
	assert.Empty(t, strings.TrimSpace(pages[1].Text))
	assert.Contains(t, pages[2].Text, "Results (final)")
	assert.Contains(t, pages[2].Text, "Revenue grew by 12 percent.")
}

func TestPDFExtractor_Extract_Failures(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{name: "empty", data: nil, wantErr: domain.ErrEmptyDocument},
		{name: "not a pdf", data: []byte("hello, plain text"), wantErr: domain.ErrUnreadablePDF},
		{name: "truncated", data: []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog"), wantErr: domain.ErrUnreadablePDF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pages, err := NewPDFExtractor().Extract(context.Background(), "bad.pdf", tt.data)
			assert.Nil(t, pages)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, domain.ErrCodeExtraction, domain.CodeOf(err))
		})
	}
}

func TestPDFExtractor_Extract_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewPDFExtractor().Extract(ctx, "doc.pdf", testutil.BuildPDF([]string{"text"}))

	assert.Equal(t, domain.ErrCodeExtraction, domain.CodeOf(err))
	assert.ErrorIs(t, err, context.Canceled)
}
