package service

import (
	"github.com/cloo-solutions/pdfqa/internal/domain"
	"github.com/cloo-solutions/pdfqa/internal/pagination"
)

var errInvalidHistoryCursor = domain.NewDomainError(domain.ErrCodeValidation, "invalid history cursor")

// pageHistory slices turns into one page. Cursors carry the position and
// timestamp of the last returned turn, so a cursor taken before an upload
// reset the conversation is rejected instead of silently skipping turns.
func pageHistory(turns []domain.Turn, q HistoryQuery) (*HistoryPage, error) {
	after, err := decodeHistoryCursor(turns, q.Cursor)
	if err != nil {
		return nil, err
	}

	entries := make([]HistoryEntry, 0, len(turns))
	if q.NewestFirst {
		for pos := len(turns); pos >= 1; pos-- {
			if after == 0 || pos < after {
				entries = append(entries, HistoryEntry{Position: pos, Turn: turns[pos-1]})
			}
		}
	} else {
		for pos := after + 1; pos <= len(turns); pos++ {
			entries = append(entries, HistoryEntry{Position: pos, Turn: turns[pos-1]})
		}
	}

	page := &HistoryPage{Items: entries}
	if q.Limit > 0 && len(entries) > q.Limit {
		page.Items = entries[:q.Limit]
		page.HasMore = true
		last := page.Items[len(page.Items)-1]
		page.Cursor = pagination.Cursor{Position: last.Position, CreatedAt: last.Turn.CreatedAt}.Encode()
	}
	return page, nil
}

func decodeHistoryCursor(turns []domain.Turn, raw string) (int, error) {
	cursor, err := pagination.DecodeCursor(raw)
	if err != nil {
		return 0, domain.NewDomainErrorWithCause(errInvalidHistoryCursor.Code, errInvalidHistoryCursor.Message, err)
	}
	if cursor == nil {
		return 0, nil
	}
	pos := cursor.Position
	if pos > len(turns) {
		return 0, errInvalidHistoryCursor
	}
	if !turns[pos-1].CreatedAt.Equal(cursor.CreatedAt) {
		return 0, errInvalidHistoryCursor
	}
	return pos, nil
}
