package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"outreach-platform/internal/activity"
	"outreach-platform/internal/calls"
)

// fakeCaller records every call and answers from a scripted queue.
type fakeCaller struct {
	mu      sync.Mutex
	numbers []string
	times   []time.Time

	// script maps position -> (sid, err); missing positions succeed with a
	// generated sid.
	script map[int]scripted

	// cancelAfter, when set, cancels the context once that many calls were
	// placed.
	cancelAfter int
	cancel      context.CancelFunc
}

type scripted struct {
	sid string
	err error
}

func (f *fakeCaller) Name() string { return "fake" }

func (f *fakeCaller) StartCall(ctx context.Context, number string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.numbers)
	f.numbers = append(f.numbers, number)
	f.times = append(f.times, time.Now())
	if f.cancel != nil && len(f.numbers) == f.cancelAfter {
		f.cancel()
	}
	if s, ok := f.script[i]; ok {
		return s.sid, s.err
	}
	return "CA-ok", nil
}

func (f *fakeCaller) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.numbers))
	copy(out, f.numbers)
	return out
}

func targetsN(n int) []calls.Target {
	out := make([]calls.Target, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, calls.Target{
			ID:          calls.TargetID(string(rune('a'+i)), "g1"),
			Name:        "Contact " + string(rune('A'+i)),
			PhoneNumber: "+521555000" + string(rune('0'+i)),
			GroupID:     "g1",
		})
	}
	return out
}

func TestRun_PacingAndRequestCount(t *testing.T) {
	fc := &fakeCaller{}
	store := calls.NewStore()
	pacing := 30 * time.Millisecond
	d := New(fc, store, nil, WithPacing(pacing))

	start := time.Now()
	rep, err := d.Run(context.Background(), targetsN(3))
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got := len(fc.calls()); got != 3 {
		t.Fatalf("expected exactly 3 requests, got %d", got)
	}
	if rep.Dispatched != 3 || rep.Initiated != 3 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	// At least (N-1) pacing delays between first and last request.
	if elapsed < 2*pacing {
		t.Fatalf("expected at least %v elapsed, got %v", 2*pacing, elapsed)
	}
}

func TestRun_CancellationStopsBeforeNextCall(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fc := &fakeCaller{cancelAfter: 2, cancel: cancel}
	store := calls.NewStore()
	d := New(fc, store, nil, WithPacing(5*time.Millisecond))

	rep, err := d.Run(ctx, targetsN(5))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got := len(fc.calls()); got != 2 {
		t.Fatalf("expected exactly 2 requests after cancel, got %d", got)
	}
	if !rep.Canceled {
		t.Fatalf("expected canceled report, got %+v", rep)
	}
	// Remaining targets stay untouched in the store.
	if store.Len() != 2 {
		t.Fatalf("expected 2 store entries, got %d", store.Len())
	}
}

func TestRun_MissingSIDMarksFailedOthersInitiated(t *testing.T) {
	fc := &fakeCaller{script: map[int]scripted{
		0: {err: errors.New("telephony: response carries no Call-sid")},
		1: {sid: "CA2"},
		2: {sid: "CA3"},
	}}
	store := calls.NewStore()
	d := New(fc, store, nil, WithPacing(0))

	ts := targetsN(3)
	rep, err := d.Run(context.Background(), ts)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if rep.Failed != 1 || rep.Initiated != 2 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if store.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", store.Len())
	}
	r0, _ := store.Get(ts[0].ID)
	if r0.Status != calls.StatusFailed {
		t.Fatalf("expected first target failed, got %s", r0.Status)
	}
	for _, target := range ts[1:] {
		rec, _ := store.Get(target.ID)
		if rec.Status != calls.StatusInitiated {
			t.Fatalf("expected %s initiated, got %s", target.ID, rec.Status)
		}
		if rec.ConversationID == "" {
			t.Fatalf("expected conversation id on %s", target.ID)
		}
	}
}

func TestRun_EmptyTargets(t *testing.T) {
	d := New(&fakeCaller{}, calls.NewStore(), nil)
	_, err := d.Run(context.Background(), nil)
	if !errors.Is(err, ErrNoTargets) {
		t.Fatalf("expected ErrNoTargets, got %v", err)
	}
}

func TestRun_PublishesActivityPerTransition(t *testing.T) {
	repo := activity.NewMemoryRepo()
	sink := activity.NewService(repo, nil)
	fc := &fakeCaller{script: map[int]scripted{1: {err: errors.New("boom")}}}
	d := New(fc, calls.NewStore(), sink, WithPacing(0))

	_, err := d.Run(context.Background(), targetsN(2))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	events := repo.Snapshot()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Level != activity.LevelInfo || events[1].Level != activity.LevelError {
		t.Fatalf("unexpected levels: %s %s", events[0].Level, events[1].Level)
	}
}

func TestRun_NoPacingAfterLastTarget(t *testing.T) {
	fc := &fakeCaller{}
	pacing := 80 * time.Millisecond
	d := New(fc, calls.NewStore(), nil, WithPacing(pacing))

	start := time.Now()
	_, err := d.Run(context.Background(), targetsN(1))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if elapsed := time.Since(start); elapsed >= pacing {
		t.Fatalf("single-target run should not pace, took %v", elapsed)
	}
}
