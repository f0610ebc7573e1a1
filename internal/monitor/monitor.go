package monitor

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"outreach-platform/internal/batch"
	"outreach-platform/internal/calls"
	"outreach-platform/internal/prefs"
)

// PollInterval is the fixed delay between status fetches. Not configurable by
// the user, no backoff, no jitter; on fetch failure the loop keeps retrying
// at this cadence until success, batch completion, or Stop.
const PollInterval = 3 * time.Second

// Fetcher is the slice of the batch client the monitor needs.
type Fetcher interface {
	FetchStatus(ctx context.Context, groupID, userID string, page, limit int) (batch.Snapshot, error)
}

// State of one monitor session.
type State string

const (
	StateIdle      State = "idle"
	StatePolling   State = "polling"
	StateCompleted State = "completed"
)

// SourcePreference decides which truth source feeds the view when both a
// batch snapshot and local dispatch records exist. The two are never merged;
// one side simply wins.
type SourcePreference string

const (
	// PreferBatch shows remote batch data whenever a snapshot is present and
	// falls back to local records only before any batch exists.
	PreferBatch SourcePreference = "batch"
	// PreferLocal shows local dispatch records whenever any exist, keeping
	// optimistic updates visible during an active batch.
	PreferLocal SourcePreference = "local"
)

// Monitor owns the poll loop for one group's batch campaign and exposes
// filter, pagination, and statistics over the latest snapshot.
type Monitor struct {
	fetcher Fetcher
	store   *calls.Store
	prefs   prefs.Store
	log     *slog.Logger

	groupID string
	userID  string

	interval time.Duration
	source   SourcePreference
	sched    *Scheduler

	mu        sync.Mutex
	state     State
	connected bool
	page      int
	pageSize  int
	filter    StatusFilter
	snapshot  *batch.Snapshot
}

type Option func(*Monitor)

// WithInterval overrides the poll interval. Tests use short values.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) { m.interval = d }
}

func WithPrefs(p prefs.Store) Option {
	return func(m *Monitor) { m.prefs = p }
}

func WithSourcePreference(s SourcePreference) Option {
	return func(m *Monitor) { m.source = s }
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) { m.log = l }
}

// New builds a monitor for one group. Page size and status filter come from
// the preference store when available, defaults otherwise.
func New(fetcher Fetcher, store *calls.Store, groupID, userID string, opts ...Option) *Monitor {
	m := &Monitor{
		fetcher:  fetcher,
		store:    store,
		log:      slog.Default(),
		groupID:  groupID,
		userID:   userID,
		interval: PollInterval,
		source:   PreferBatch,
		sched:    NewScheduler(),
		state:    StateIdle,
		page:     1,
		pageSize: prefs.DefaultPageSize,
		filter:   FilterAll,
	}
	for _, opt := range opts {
		opt(m)
	}

	ctx := context.Background()
	m.pageSize = prefs.PageSize(ctx, m.prefs, m.userID, batch.PageSizeAllowed)
	if f := StatusFilter(prefs.StatusFilter(ctx, m.prefs, m.userID)); f.IsValid() {
		m.filter = f
	}
	return m
}

// Start moves idle -> polling. Without a group id the monitor stays idle.
// The first fetch fires immediately, before the first tick.
func (m *Monitor) Start() {
	if m.groupID == "" {
		return
	}
	m.mu.Lock()
	m.state = StatePolling
	m.mu.Unlock()
	m.sched.Start(m.interval, m.tick)
}

// Stop tears down the poll loop. Records stay in place until Close.
func (m *Monitor) Stop() {
	m.sched.Stop()
	m.mu.Lock()
	if m.state == StatePolling {
		m.state = StateIdle
	}
	m.mu.Unlock()
}

// Close stops polling and clears the local status store.
func (m *Monitor) Close() {
	m.Stop()
	if m.store != nil {
		m.store.Clear()
	}
}

// SetPage switches the server-side page and triggers exactly one immediate
// fetch. The recurring timer is left alone; subsequent ticks use the new
// page.
func (m *Monitor) SetPage(ctx context.Context, page int) {
	if page < 1 {
		page = 1
	}
	m.mu.Lock()
	m.page = page
	m.mu.Unlock()
	m.fetch(ctx)
}

// SetPageSize changes the page size, resets to page 1, persists the
// preference, and restarts the poll loop so a fresh fetch fires before the
// new timer's first tick.
func (m *Monitor) SetPageSize(ctx context.Context, size int) bool {
	if !batch.PageSizeAllowed(size) {
		return false
	}
	m.mu.Lock()
	m.pageSize = size
	m.page = 1
	m.mu.Unlock()
	m.savePref(ctx, prefs.KeyLimit, strconv.Itoa(size))
	m.restart()
	return true
}

// SetFilter changes the status filter, resets to page 1 of the unfiltered
// server pagination, persists the preference, and restarts the poll loop.
func (m *Monitor) SetFilter(ctx context.Context, f StatusFilter) bool {
	if !f.IsValid() {
		return false
	}
	m.mu.Lock()
	m.filter = f
	m.page = 1
	m.mu.Unlock()
	m.savePref(ctx, prefs.KeyStatusFilter, string(f))
	m.restart()
	return true
}

// Reconnect re-issues a single fetch. Used by the manual reconnect action
// when the view looks stalled; polling itself never stopped on failure.
func (m *Monitor) Reconnect(ctx context.Context) {
	m.fetch(ctx)
}

func (m *Monitor) restart() {
	m.mu.Lock()
	if m.state != StateIdle {
		m.state = StatePolling
	}
	running := m.state == StatePolling
	m.mu.Unlock()
	if running {
		m.sched.Start(m.interval, m.tick)
	}
}

func (m *Monitor) tick(ctx context.Context) {
	m.fetch(ctx)
}

// fetch performs one status request and folds the result into monitor state.
// Failure flips the connection flag but never stops the loop.
func (m *Monitor) fetch(ctx context.Context) {
	m.mu.Lock()
	page, size := m.page, m.pageSize
	m.mu.Unlock()

	snap, err := m.fetcher.FetchStatus(ctx, m.groupID, m.userID, page, size)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		m.mu.Lock()
		m.connected = false
		m.mu.Unlock()
		m.log.Warn("batch status fetch failed", "group", m.groupID, "page", page, "err", err)
		return
	}

	m.mu.Lock()
	m.connected = true
	m.snapshot = &snap
	completed := snap.Completed()
	if completed {
		m.state = StateCompleted
	}
	m.mu.Unlock()

	if completed {
		// Stop only the poll run this fetch belongs to. A fetch from a
		// superseded run (or a one-shot page/reconnect fetch) must not cancel
		// a loop restarted concurrently by SetPageSize/SetFilter; the loop's
		// own next tick observes the completed snapshot and stops itself.
		m.sched.StopRun(ctx)
	}
}

// View is the display-ready projection of the monitor's current state.
type View struct {
	GroupID   string           `json:"group_id"`
	State     State            `json:"state"`
	Connected bool             `json:"connected"`
	Source    SourcePreference `json:"source"`

	Filter   StatusFilter `json:"filter"`
	Page     int          `json:"page"`
	PageSize int          `json:"page_size"`

	Stats      Stats                `json:"stats"`
	Records    []calls.StatusRecord `json:"records"`
	Pagination batch.Pagination     `json:"pagination"`
	BatchID    string               `json:"batch_id,omitempty"`
}

// View assembles the current projection: source-preference resolution,
// filtering over the current page, and freshly derived statistics.
func (m *Monitor) View() View {
	m.mu.Lock()
	defer m.mu.Unlock()

	v := View{
		GroupID:   m.groupID,
		State:     m.state,
		Connected: m.connected,
		Source:    m.source,
		Filter:    m.filter,
		Page:      m.page,
		PageSize:  m.pageSize,
	}

	recs, snap := m.resolveSourceLocked()
	if snap != nil {
		v.Stats = DeriveStats(*snap)
		v.Pagination = snap.Pagination
		v.BatchID = snap.BatchID
	} else {
		v.Stats = DeriveLocalStats(recs)
		v.Pagination = batch.Pagination{Page: m.page, Limit: m.pageSize, Total: len(recs)}
	}
	v.Records = m.filter.Apply(recs)
	return v
}

// resolveSourceLocked applies the explicit precedence rule between the two
// un-merged truth sources. Returns the chosen records and, when the batch
// side won, the snapshot they came from.
func (m *Monitor) resolveSourceLocked() ([]calls.StatusRecord, *batch.Snapshot) {
	local := func() []calls.StatusRecord {
		if m.store == nil {
			return nil
		}
		return m.store.Values()
	}

	switch m.source {
	case PreferLocal:
		if recs := local(); len(recs) > 0 {
			return recs, nil
		}
		if m.snapshot != nil {
			return m.snapshot.Recipients, m.snapshot
		}
		return nil, nil
	default: // PreferBatch
		if m.snapshot != nil {
			return m.snapshot.Recipients, m.snapshot
		}
		return local(), nil
	}
}

func (m *Monitor) savePref(ctx context.Context, key, value string) {
	if m.prefs == nil {
		return
	}
	if err := m.prefs.Set(ctx, m.userID, key, value); err != nil {
		m.log.Warn("preference save failed", "key", key, "err", err)
	}
}
