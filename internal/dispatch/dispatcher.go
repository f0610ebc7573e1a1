package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"outreach-platform/internal/activity"
	"outreach-platform/internal/calls"
	"outreach-platform/internal/telephony"
)

// DefaultPacing is the fixed wait between consecutive call initiations. It
// exists to avoid hitting the telephony trigger endpoint with a burst of
// concurrent requests; it is pacing, not a backend correctness requirement.
const DefaultPacing = 500 * time.Millisecond

var (
	ErrNoTargets     = errors.New("dispatch: no targets to call")
	ErrNotConfigured = errors.New("dispatch: caller not configured")
)

// Dispatcher sequentially places outbound calls for a list of targets.
//
// Ordering invariant: call N+1 never starts before call N's response arrives
// and the pacing delay elapses. No retries; a failed call is terminal for
// that target within a run.
type Dispatcher struct {
	caller telephony.Caller
	store  *calls.Store
	events activity.Sink
	log    *slog.Logger

	pacing time.Duration
}

type Option func(*Dispatcher)

// WithPacing overrides the inter-call delay. Tests use short values.
func WithPacing(d time.Duration) Option {
	return func(dp *Dispatcher) { dp.pacing = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(dp *Dispatcher) { dp.log = l }
}

func New(caller telephony.Caller, store *calls.Store, events activity.Sink, opts ...Option) *Dispatcher {
	if events == nil {
		events = activity.NopSink{}
	}
	d := &Dispatcher{
		caller: caller,
		store:  store,
		events: events,
		log:    slog.Default(),
		pacing: DefaultPacing,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Report summarizes one dispatch run.
type Report struct {
	Dispatched int  `json:"dispatched"`
	Initiated  int  `json:"initiated"`
	Failed     int  `json:"failed"`
	Canceled   bool `json:"canceled"`
}

// Run places one call per target, in list order, with the pacing delay
// between consecutive targets (not after the last).
//
// Cancellation is cooperative via ctx: checked before each target and during
// the pacing wait. It cannot abort a request already in flight, only prevent
// the next one from starting. Remaining targets are left untouched in the
// store. Cancellation is a normal outcome, not an error.
func (d *Dispatcher) Run(ctx context.Context, targets []calls.Target) (Report, error) {
	if d.caller == nil || d.store == nil {
		return Report{}, ErrNotConfigured
	}
	if len(targets) == 0 {
		return Report{}, ErrNoTargets
	}

	var rep Report
	for i, t := range targets {
		if err := ctx.Err(); err != nil {
			rep.Canceled = true
			d.publish(activity.LevelWarn, t, fmt.Sprintf("dispatch canceled before %s", t.Name), 0)
			return rep, nil
		}

		d.store.Set(calls.StatusRecord{
			TargetID: t.ID,
			Name:     t.Name,
			Phone:    t.PhoneNumber,
			Status:   calls.StatusPending,
		})

		start := time.Now()
		sid, err := d.caller.StartCall(ctx, t.PhoneNumber)
		elapsed := time.Since(start)
		rep.Dispatched++

		if err != nil {
			rep.Failed++
			d.store.Set(calls.StatusRecord{
				TargetID: t.ID,
				Name:     t.Name,
				Phone:    t.PhoneNumber,
				Status:   calls.StatusFailed,
			})
			d.log.Warn("call initiation failed", "target", t.ID, "phone", t.PhoneNumber, "err", err)
			d.publish(activity.LevelError, t, fmt.Sprintf("call to %s failed", t.Name), elapsed.Milliseconds())
		} else {
			rep.Initiated++
			d.store.Set(calls.StatusRecord{
				TargetID:       t.ID,
				Name:           t.Name,
				Phone:          t.PhoneNumber,
				Status:         calls.StatusInitiated,
				ConversationID: sid,
			})
			d.publish(activity.LevelInfo, t, fmt.Sprintf("call to %s initiated", t.Name), elapsed.Milliseconds())
		}

		if i < len(targets)-1 {
			if !d.wait(ctx) {
				rep.Canceled = true
				return rep, nil
			}
		}
	}
	return rep, nil
}

// wait blocks for the pacing delay, honoring cancellation. Returns false when
// the context was canceled during the wait.
func (d *Dispatcher) wait(ctx context.Context) bool {
	if d.pacing <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d.pacing)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (d *Dispatcher) publish(level activity.Level, t calls.Target, msg string, durationMS int64) {
	// Fire-and-forget; the sink swallows its own failures. Use a background
	// context so a canceled run can still record its final event.
	d.events.Publish(context.Background(), activity.Event{
		Level:      level,
		GroupID:    t.GroupID,
		TargetID:   t.ID,
		Message:    msg,
		DurationMS: durationMS,
	})
}
