package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"outreach-platform/internal/activity"
	"outreach-platform/internal/batch"
	"outreach-platform/internal/calls"
	"outreach-platform/internal/dispatch"
	"outreach-platform/internal/prefs"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeBatch serves a scripted snapshot.
type fakeBatch struct {
	mu    sync.Mutex
	snap  batch.Snapshot
	calls int
}

func (f *fakeBatch) FetchStatus(ctx context.Context, groupID, userID string, page, limit int) (batch.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.snap, nil
}

func (f *fakeBatch) StartGroupCall(ctx context.Context, groupID string, in batch.StartGroupCallRequest) (batch.StartGroupCallResult, error) {
	return batch.StartGroupCallResult{BatchID: "b-1", RecipientsCount: 3}, nil
}

// fakeCaller counts telephony requests.
type fakeCaller struct {
	mu      sync.Mutex
	numbers []string
}

func (f *fakeCaller) Name() string { return "fake" }

func (f *fakeCaller) StartCall(ctx context.Context, number string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.numbers = append(f.numbers, number)
	return "CA-test", nil
}

func (f *fakeCaller) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.numbers)
}

func newTestRouter(t *testing.T, h Handlers) *gin.Engine {
	t.Helper()
	r := gin.New()
	v1 := r.Group("/v1")
	{
		mon := v1.Group("/monitor/sessions")
		mon.POST("", h.OpenSession)
		mon.GET("/:session_id", h.GetSession)
		mon.POST("/:session_id/page", h.SetPage)
		mon.POST("/:session_id/page-size", h.SetPageSize)
		mon.POST("/:session_id/filter", h.SetFilter)
		mon.POST("/:session_id/reconnect", h.Reconnect)
		mon.GET("/:session_id/export", h.Export)
		mon.POST("/:session_id/dispatch", h.Dispatch)
		mon.POST("/:session_id/dispatch/cancel", h.CancelDispatch)
		mon.DELETE("/:session_id", h.CloseSession)

		v1.POST("/groups/:group_id/batch-call", h.StartBatch)
	}
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func baseHandlers(dir *MemoryDirectory, fb *fakeBatch, fc *fakeCaller) Handlers {
	return Handlers{
		Groups:       dir,
		Batch:        fb,
		Caller:       fc,
		Sessions:     NewSessionManager(),
		Prefs:        prefs.NewMemoryStore(),
		Locks:        dispatch.NewMemoryLocker(),
		PollInterval: time.Hour,
		Pacing:       time.Millisecond,
	}
}

func groupWithAgent(n int) Group {
	g := Group{ID: "g1", Name: "Ventas", AgentID: "a1", AgentPhoneNumberID: "pn1"}
	for i := 0; i < n; i++ {
		g.Members = append(g.Members, Member{
			ID:          string(rune('a' + i)),
			Name:        "Contact " + string(rune('A'+i)),
			PhoneNumber: "+521555000" + string(rune('0'+i)),
		})
	}
	return g
}

func openSession(t *testing.T, r *gin.Engine) string {
	t.Helper()
	w := doJSON(t, r, http.MethodPost, "/v1/monitor/sessions", gin.H{"user_id": "u1", "group_id": "g1"})
	if w.Code != http.StatusCreated {
		t.Fatalf("open session: status %d body %s", w.Code, w.Body.String())
	}
	var out struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out.SessionID
}

func TestOpenSession_UnknownGroup(t *testing.T) {
	h := baseHandlers(NewMemoryDirectory(), &fakeBatch{}, &fakeCaller{})
	r := newTestRouter(t, h)
	w := doJSON(t, r, http.MethodPost, "/v1/monitor/sessions", gin.H{"user_id": "u1", "group_id": "nope"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestDispatch_RefusedWithoutAgent(t *testing.T) {
	dir := NewMemoryDirectory()
	g := groupWithAgent(3)
	g.AgentID, g.AgentPhoneNumberID = "", ""
	dir.Put(g)
	fc := &fakeCaller{}
	repo := activity.NewMemoryRepo()
	h := baseHandlers(dir, &fakeBatch{}, fc)
	h.Events = activity.NewService(repo, nil)
	r := newTestRouter(t, h)

	sid := openSession(t, r)
	w := doJSON(t, r, http.MethodPost, "/v1/monitor/sessions/"+sid+"/dispatch", nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", w.Code, w.Body.String())
	}
	if fc.count() != 0 {
		t.Fatalf("expected zero telephony requests, got %d", fc.count())
	}
	warns := 0
	for _, e := range repo.Snapshot() {
		if e.Level == activity.LevelWarn {
			warns++
		}
	}
	if warns != 1 {
		t.Fatalf("expected exactly one warning event, got %d", warns)
	}
}

func TestDispatch_RefusedWithoutMembers(t *testing.T) {
	dir := NewMemoryDirectory()
	dir.Put(groupWithAgent(0))
	fc := &fakeCaller{}
	h := baseHandlers(dir, &fakeBatch{}, fc)
	r := newTestRouter(t, h)

	sid := openSession(t, r)
	w := doJSON(t, r, http.MethodPost, "/v1/monitor/sessions/"+sid+"/dispatch", nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
	if fc.count() != 0 {
		t.Fatalf("expected zero telephony requests, got %d", fc.count())
	}
}

// brokenLocker fails every Acquire and counts Release calls.
type brokenLocker struct {
	mu       sync.Mutex
	releases int
}

func (l *brokenLocker) Acquire(ctx context.Context, groupID string) (bool, error) {
	return false, errors.New("redis unreachable")
}

func (l *brokenLocker) Release(ctx context.Context, groupID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.releases++
	return nil
}

func (l *brokenLocker) releaseCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.releases
}

func TestDispatch_LockAcquireErrorRefusesRun(t *testing.T) {
	dir := NewMemoryDirectory()
	dir.Put(groupWithAgent(3))
	fc := &fakeCaller{}
	lk := &brokenLocker{}
	h := baseHandlers(dir, &fakeBatch{}, fc)
	h.Locks = lk
	r := newTestRouter(t, h)

	sid := openSession(t, r)
	w := doJSON(t, r, http.MethodPost, "/v1/monitor/sessions/"+sid+"/dispatch", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when lock state is unverifiable, got %d: %s", w.Code, w.Body.String())
	}
	if fc.count() != 0 {
		t.Fatalf("expected zero telephony requests, got %d", fc.count())
	}
	// A lock that was never acquired must never be released; doing so would
	// free another session's hold on the group.
	time.Sleep(20 * time.Millisecond)
	if n := lk.releaseCount(); n != 0 {
		t.Fatalf("expected zero releases, got %d", n)
	}
}

func TestDispatch_RunsAndReleasesLock(t *testing.T) {
	dir := NewMemoryDirectory()
	dir.Put(groupWithAgent(3))
	fc := &fakeCaller{}
	h := baseHandlers(dir, &fakeBatch{}, fc)
	r := newTestRouter(t, h)

	sid := openSession(t, r)
	w := doJSON(t, r, http.MethodPost, "/v1/monitor/sessions/"+sid+"/dispatch", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && fc.count() < 3 {
		time.Sleep(2 * time.Millisecond)
	}
	if fc.count() != 3 {
		t.Fatalf("expected 3 calls, got %d", fc.count())
	}

	// When the run finishes the lock must be free again.
	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ok, _ := h.Locks.Acquire(context.Background(), "g1")
		if ok {
			_ = h.Locks.Release(context.Background(), "g1")
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("dispatch lock never released")
}

func TestDispatch_SecondRunOnSameGroupConflicts(t *testing.T) {
	dir := NewMemoryDirectory()
	dir.Put(groupWithAgent(5))
	fc := &fakeCaller{}
	h := baseHandlers(dir, &fakeBatch{}, fc)
	h.Pacing = 50 * time.Millisecond
	r := newTestRouter(t, h)

	sid := openSession(t, r)
	if w := doJSON(t, r, http.MethodPost, "/v1/monitor/sessions/"+sid+"/dispatch", nil); w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
	if w := doJSON(t, r, http.MethodPost, "/v1/monitor/sessions/"+sid+"/dispatch", nil); w.Code != http.StatusConflict {
		t.Fatalf("expected 409 while dispatch active, got %d", w.Code)
	}
	doJSON(t, r, http.MethodPost, "/v1/monitor/sessions/"+sid+"/dispatch/cancel", nil)
}

func TestExport_EmptyVisibleRowsIsWarning(t *testing.T) {
	dir := NewMemoryDirectory()
	dir.Put(groupWithAgent(2))
	repo := activity.NewMemoryRepo()
	h := baseHandlers(dir, &fakeBatch{}, &fakeCaller{})
	h.Events = activity.NewService(repo, nil)
	r := newTestRouter(t, h)

	sid := openSession(t, r)
	w := doJSON(t, r, http.MethodGet, "/v1/monitor/sessions/"+sid+"/export", nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
	if w.Body.Len() == 0 {
		t.Fatalf("expected warning body")
	}
	if len(repo.Snapshot()) != 1 {
		t.Fatalf("expected one warning event, got %d", len(repo.Snapshot()))
	}
}

func TestExport_VisibleRowsProduceAttachment(t *testing.T) {
	dir := NewMemoryDirectory()
	dir.Put(groupWithAgent(2))
	fb := &fakeBatch{snap: batch.Snapshot{
		BatchID:        "b-1",
		Status:         batch.BatchInProgress,
		TotalScheduled: 1,
		Recipients: []calls.StatusRecord{
			{TargetID: "r1-g1", Name: "Ana", Phone: "+5215550001", Status: calls.StatusCompleted, DurationSeconds: 30},
		},
	}}
	h := baseHandlers(dir, fb, &fakeCaller{})
	h.PollInterval = 10 * time.Millisecond
	r := newTestRouter(t, h)

	sid := openSession(t, r)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if w := doJSON(t, r, http.MethodGet, "/v1/monitor/sessions/"+sid, nil); bytes.Contains(w.Body.Bytes(), []byte("b-1")) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	w := doJSON(t, r, http.MethodGet, "/v1/monitor/sessions/"+sid+"/export", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if cd := w.Header().Get("Content-Disposition"); cd == "" {
		t.Fatalf("expected attachment header")
	}
	if w.Body.Len() == 0 {
		t.Fatalf("expected xlsx payload")
	}
}

func TestSetPageSize_RejectsUnknown(t *testing.T) {
	dir := NewMemoryDirectory()
	dir.Put(groupWithAgent(1))
	h := baseHandlers(dir, &fakeBatch{}, &fakeCaller{})
	r := newTestRouter(t, h)

	sid := openSession(t, r)
	w := doJSON(t, r, http.MethodPost, "/v1/monitor/sessions/"+sid+"/page-size", gin.H{"page_size": 7})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestCloseSession(t *testing.T) {
	dir := NewMemoryDirectory()
	dir.Put(groupWithAgent(1))
	h := baseHandlers(dir, &fakeBatch{}, &fakeCaller{})
	r := newTestRouter(t, h)

	sid := openSession(t, r)
	if w := doJSON(t, r, http.MethodDelete, "/v1/monitor/sessions/"+sid, nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w := doJSON(t, r, http.MethodGet, "/v1/monitor/sessions/"+sid, nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after close, got %d", w.Code)
	}
}

func TestStartBatch(t *testing.T) {
	h := baseHandlers(NewMemoryDirectory(), &fakeBatch{}, &fakeCaller{})
	r := newTestRouter(t, h)
	w := doJSON(t, r, http.MethodPost, "/v1/groups/g1/batch-call", gin.H{"user_id": "u1", "agent_phone_number_id": "pn1"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("b-1")) {
		t.Fatalf("expected batch id in body: %s", w.Body.String())
	}
}
