package monitor

import (
	"outreach-platform/internal/batch"
	"outreach-platform/internal/calls"
)

// Stats are the display-ready aggregates recomputed from scratch on every
// snapshot. Pure derivation: the same input always yields the same numbers.
type Stats struct {
	TotalScheduled  int `json:"total_scheduled"`
	TotalDispatched int `json:"total_dispatched"`

	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	InProgress int `json:"in_progress"`

	// SuccessRate is completed/total as a percentage, 0 when total is 0.
	SuccessRate float64 `json:"success_rate"`
}

// DeriveStats computes aggregates from a remote batch snapshot.
func DeriveStats(snap batch.Snapshot) Stats {
	s := countRecords(snap.Recipients)
	s.TotalScheduled = snap.TotalScheduled
	s.TotalDispatched = snap.TotalDispatched
	s.SuccessRate = rate(s.Completed, s.TotalScheduled)
	return s
}

// DeriveLocalStats computes the same shape from local dispatch records, used
// as a fallback when no batch snapshot exists yet so the view never shows
// empty values.
func DeriveLocalStats(recs []calls.StatusRecord) Stats {
	s := countRecords(recs)
	s.TotalScheduled = len(recs)
	s.TotalDispatched = len(recs)
	s.SuccessRate = rate(s.Completed, s.TotalScheduled)
	return s
}

func countRecords(recs []calls.StatusRecord) Stats {
	var s Stats
	for _, r := range recs {
		switch r.Status {
		case calls.StatusCompleted:
			s.Completed++
		case calls.StatusFailed:
			s.Failed++
		case calls.StatusPending, calls.StatusInProgress:
			s.InProgress++
		case calls.StatusInitiated, calls.StatusBusy, calls.StatusNoAnswer:
			// not counted separately
		}
	}
	return s
}

func rate(completed, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(completed) / float64(total) * 100
}
