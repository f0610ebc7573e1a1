package monitor

import "outreach-platform/internal/calls"

// StatusFilter narrows the recipient list before display. Filters group
// related statuses: "failed" also matches no-answer and busy, "initiated"
// also matches pending and in-progress.
//
// Filtering is client-side over the current page only; it never requests a
// server-side filtered page, so the visible count after filtering may be
// smaller than the page size.
type StatusFilter string

const (
	FilterAll       StatusFilter = "all"
	FilterCompleted StatusFilter = "completed"
	FilterFailed    StatusFilter = "failed"
	FilterInitiated StatusFilter = "initiated"
)

func (f StatusFilter) IsValid() bool {
	switch f {
	case FilterAll, FilterCompleted, FilterFailed, FilterInitiated:
		return true
	}
	return false
}

// Matches reports whether a status belongs to the filter's status set.
func (f StatusFilter) Matches(s calls.Status) bool {
	switch f {
	case FilterAll:
		return true
	case FilterCompleted:
		return s == calls.StatusCompleted
	case FilterFailed:
		return s == calls.StatusFailed || s == calls.StatusNoAnswer || s == calls.StatusBusy
	case FilterInitiated:
		return s == calls.StatusInitiated || s == calls.StatusPending || s == calls.StatusInProgress
	}
	return false
}

// Apply returns the records whose status the filter matches, preserving
// input order.
func (f StatusFilter) Apply(recs []calls.StatusRecord) []calls.StatusRecord {
	if f == FilterAll {
		return recs
	}
	out := make([]calls.StatusRecord, 0, len(recs))
	for _, r := range recs {
		if f.Matches(r.Status) {
			out = append(out, r)
		}
	}
	return out
}
