package investcalc

import (
	"fmt"
	"strings"
)

// CheckDeletion reports whether deleting the selected rows keeps every
// stock's history intact. rows must be in canonical order, as GetHistory
// returns them, regardless of how they are displayed. A row may only be
// deleted when no later row of the same stock is retained, so per stock
// only a contiguous chronological suffix can go.
func CheckDeletion(rows []HistoryRow, selected []bool) error {
	if len(selected) != len(rows) {
		return NewError(ErrCodeInvalidInput, fmt.Sprintf("selection covers %d of %d rows", len(selected), len(rows)))
	}
	retained := map[string]struct{}{}
	for i := len(rows) - 1; i >= 0; i-- {
		key := strings.ToLower(rows[i].Stock)
		if !selected[i] {
			retained[key] = struct{}{}
			continue
		}
		if _, ok := retained[key]; ok {
			return &DeletionDisallowedError{Stock: rows[i].Stock, FlowID: rows[i].ID, Day: rows[i].Day}
		}
	}
	return nil
}

// CheckDeletionIDs is CheckDeletion with the selection given as flow ids.
// Every id must be one of rows.
func CheckDeletionIDs(rows []HistoryRow, ids []int64) error {
	want := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	selected := make([]bool, len(rows))
	found := 0
	for i, r := range rows {
		if _, ok := want[r.ID]; ok {
			selected[i] = true
			found++
		}
	}
	if found != len(want) {
		return NewError(ErrCodeNotFound, "selection contains flows outside the listed history")
	}
	return CheckDeletion(rows, selected)
}
