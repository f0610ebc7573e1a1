package monitor

import (
	"testing"

	"outreach-platform/internal/calls"
)

func TestFilter_FailedIncludesBusyAndNoAnswer(t *testing.T) {
	recs := recsWithStatuses(
		calls.StatusCompleted, calls.StatusBusy, calls.StatusNoAnswer,
		calls.StatusFailed, calls.StatusPending,
	)
	out := FilterFailed.Apply(recs)
	if len(out) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(out))
	}
	for _, r := range out {
		if r.Status == calls.StatusCompleted || r.Status == calls.StatusPending {
			t.Fatalf("filter leaked status %s", r.Status)
		}
	}
}

func TestFilter_InitiatedIncludesPendingAndInProgress(t *testing.T) {
	recs := recsWithStatuses(
		calls.StatusInitiated, calls.StatusPending, calls.StatusInProgress,
		calls.StatusCompleted, calls.StatusFailed,
	)
	out := FilterInitiated.Apply(recs)
	if len(out) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(out))
	}
}

func TestFilter_CompletedIsExact(t *testing.T) {
	recs := recsWithStatuses(calls.StatusCompleted, calls.StatusBusy, calls.StatusInitiated)
	out := FilterCompleted.Apply(recs)
	if len(out) != 1 || out[0].Status != calls.StatusCompleted {
		t.Fatalf("unexpected filtered set: %+v", out)
	}
}

func TestFilter_AllPassesEverything(t *testing.T) {
	recs := recsWithStatuses(calls.StatusCompleted, calls.StatusFailed)
	if got := FilterAll.Apply(recs); len(got) != len(recs) {
		t.Fatalf("expected passthrough, got %d of %d", len(got), len(recs))
	}
}

func TestFilter_MembershipIsExhaustive(t *testing.T) {
	all := []calls.Status{
		calls.StatusPending, calls.StatusInitiated, calls.StatusInProgress,
		calls.StatusCompleted, calls.StatusFailed, calls.StatusBusy, calls.StatusNoAnswer,
	}
	for _, s := range all {
		n := 0
		for _, f := range []StatusFilter{FilterCompleted, FilterFailed, FilterInitiated} {
			if f.Matches(s) {
				n++
			}
		}
		if n != 1 {
			t.Fatalf("status %s matched %d filters, want exactly 1", s, n)
		}
	}
}

func TestFilter_IsValid(t *testing.T) {
	if !FilterAll.IsValid() || !FilterFailed.IsValid() {
		t.Fatalf("known filters reported invalid")
	}
	if StatusFilter("busy").IsValid() {
		t.Fatalf("unknown filter reported valid")
	}
}
