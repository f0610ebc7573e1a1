package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"outreach-platform/internal/activity"
	"outreach-platform/internal/batch"
	"outreach-platform/internal/calls"
	"outreach-platform/internal/dispatch"
	"outreach-platform/internal/export"
	"outreach-platform/internal/monitor"
	"outreach-platform/internal/prefs"
	"outreach-platform/internal/telephony"
	"outreach-platform/pkg/logger"
)

// BatchAPI is the slice of the batch client the handlers depend on.
type BatchAPI interface {
	FetchStatus(ctx context.Context, groupID, userID string, page, limit int) (batch.Snapshot, error)
	StartGroupCall(ctx context.Context, groupID string, in batch.StartGroupCallRequest) (batch.StartGroupCallResult, error)
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal modules, return JSON.
//
// Error policy: nothing here ever propagates a fault to the client as a 500
// unless a dependency is misconfigured. Refusals (no agent, empty export)
// are warnings with 4xx codes, matching how the dashboard surfaces them.
type Handlers struct {
	Groups   GroupDirectory
	Batch    BatchAPI
	Caller   telephony.Caller
	Sessions *SessionManager
	Prefs    prefs.Store
	Events   activity.Sink
	Locks    dispatch.Locker
	Log      *slog.Logger

	// PollInterval and Pacing override the fixed production values in tests.
	PollInterval time.Duration
	Pacing       time.Duration

	// Source decides snapshot-vs-local precedence for new sessions.
	Source monitor.SourcePreference
}

func (h Handlers) logger() *slog.Logger {
	if h.Log != nil {
		return h.Log
	}
	return slog.Default()
}

func (h Handlers) events() activity.Sink {
	if h.Events != nil {
		return h.Events
	}
	return activity.NopSink{}
}

// --- monitor sessions ---

type openSessionRequest struct {
	UserID  string `json:"user_id"`
	GroupID string `json:"group_id"`
}

// OpenSession creates and starts a monitor session for a group.
func (h Handlers) OpenSession(c *gin.Context) {
	if h.Batch == nil || h.Sessions == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "monitor not configured"})
		return
	}
	var req openSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.GroupID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id and group_id required"})
		return
	}
	if h.Groups != nil {
		if _, err := h.Groups.GetGroup(c.Request.Context(), req.UserID, req.GroupID); err != nil {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "group not found"})
			return
		}
	}

	store := calls.NewStore()
	opts := []monitor.Option{monitor.WithPrefs(h.Prefs), monitor.WithLogger(h.logger())}
	if h.PollInterval > 0 {
		opts = append(opts, monitor.WithInterval(h.PollInterval))
	}
	if h.Source != "" {
		opts = append(opts, monitor.WithSourcePreference(h.Source))
	}
	mon := monitor.New(h.Batch, store, req.GroupID, req.UserID, opts...)

	s := h.Sessions.Create(req.UserID, req.GroupID, store, mon)
	mon.Start()

	c.JSON(http.StatusCreated, gin.H{"session_id": s.ID, "view": mon.View()})
}

func (h Handlers) session(c *gin.Context) (*Session, bool) {
	s, err := h.Sessions.Get(c.Param("session_id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return nil, false
	}
	return s, true
}

// GetSession returns the display-ready projection of a session.
func (h Handlers) GetSession(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.Monitor.View())
}

type setPageRequest struct {
	Page int `json:"page"`
}

func (h Handlers) SetPage(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req setPageRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Page < 1 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "page must be >= 1"})
		return
	}
	s.Monitor.SetPage(c.Request.Context(), req.Page)
	c.JSON(http.StatusOK, s.Monitor.View())
}

type setPageSizeRequest struct {
	PageSize int `json:"page_size"`
}

func (h Handlers) SetPageSize(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req setPageSizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if !s.Monitor.SetPageSize(c.Request.Context(), req.PageSize) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "page_size must be one of 10, 25, 50, 100"})
		return
	}
	c.JSON(http.StatusOK, s.Monitor.View())
}

type setFilterRequest struct {
	Filter string `json:"filter"`
}

func (h Handlers) SetFilter(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req setFilterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if !s.Monitor.SetFilter(c.Request.Context(), monitor.StatusFilter(req.Filter)) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "filter must be one of all, completed, failed, initiated"})
		return
	}
	c.JSON(http.StatusOK, s.Monitor.View())
}

// Reconnect re-issues a single status fetch for a stalled-looking view.
func (h Handlers) Reconnect(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	s.Monitor.Reconnect(c.Request.Context())
	c.JSON(http.StatusOK, s.Monitor.View())
}

// Export streams the currently visible, already-filtered rows as an xlsx
// report. Zero visible rows is a warning, never a file.
func (h Handlers) Export(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	v := s.Monitor.View()
	data, name, err := export.WriteReport(v.Records, string(v.Filter), time.Now())
	if errors.Is(err, export.ErrNoRows) {
		h.events().Publish(c.Request.Context(), activity.Event{
			Level:   activity.LevelWarn,
			UserID:  s.UserID,
			GroupID: s.GroupID,
			Message: "export requested with no visible calls",
		})
		c.JSON(http.StatusUnprocessableEntity, gin.H{"warning": "no hay llamadas visibles para exportar"})
		return
	}
	if err != nil {
		logger.FromGin(c).Error("export failed", "session", s.ID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

// CloseSession stops polling, cancels any dispatch, and clears the store.
func (h Handlers) CloseSession(c *gin.Context) {
	if err := h.Sessions.Close(c.Param("session_id")); err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "closed"})
}

// --- dispatch ---

// Dispatch starts a sequential dispatch run over the session's group.
// Refusals happen before any telephony request: missing agent and empty
// member list both produce a warning and zero HTTP calls.
func (h Handlers) Dispatch(c *gin.Context) {
	if h.Caller == nil || h.Groups == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "dispatch not configured"})
		return
	}
	s, ok := h.session(c)
	if !ok {
		return
	}

	group, err := h.Groups.GetGroup(c.Request.Context(), s.UserID, s.GroupID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "group not found"})
		return
	}
	if !group.HasAgent() {
		h.events().Publish(c.Request.Context(), activity.Event{
			Level:   activity.LevelWarn,
			UserID:  s.UserID,
			GroupID: s.GroupID,
			Message: "dispatch refused: group has no calling agent assigned",
		})
		c.JSON(http.StatusUnprocessableEntity, gin.H{"warning": "el grupo no tiene un agente asignado"})
		return
	}
	targets := group.Targets()
	if len(targets) == 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"warning": "el grupo no tiene contactos"})
		return
	}

	if h.Locks != nil {
		acquired, err := h.Locks.Acquire(c.Request.Context(), s.GroupID)
		if err != nil {
			// Fail closed: without a verified lock a second session could be
			// dialing the same group, and releasing later would free a lock
			// this session never held.
			logger.FromGin(c).Error("dispatch lock acquire failed", "group", s.GroupID, "err", err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "dispatch lock unavailable"})
			return
		}
		if !acquired {
			c.JSON(http.StatusConflict, gin.H{"warning": "ya hay una marcación en curso para este grupo"})
			return
		}
	}

	ctx, started := s.BeginDispatch(context.Background())
	if !started {
		if h.Locks != nil {
			_ = h.Locks.Release(c.Request.Context(), s.GroupID)
		}
		c.JSON(http.StatusConflict, gin.H{"warning": "esta sesión ya está marcando"})
		return
	}

	d := dispatch.New(h.Caller, s.Store, h.events(),
		dispatch.WithPacing(h.pacing()), dispatch.WithLogger(h.logger()))

	go func() {
		defer s.EndDispatch()
		defer func() {
			if h.Locks != nil {
				_ = h.Locks.Release(context.Background(), s.GroupID)
			}
		}()
		rep, err := d.Run(ctx, targets)
		if err != nil {
			h.logger().Warn("dispatch run ended with error", "group", s.GroupID, "err", err)
			return
		}
		h.logger().Info("dispatch run finished",
			"group", s.GroupID,
			"dispatched", rep.Dispatched,
			"initiated", rep.Initiated,
			"failed", rep.Failed,
			"canceled", rep.Canceled,
		)
	}()

	c.JSON(http.StatusAccepted, gin.H{"status": "dispatching", "targets": len(targets)})
}

func (h Handlers) pacing() time.Duration {
	if h.Pacing > 0 {
		return h.Pacing
	}
	return dispatch.DefaultPacing
}

// CancelDispatch requests cooperative cancellation of the session's active
// run. The in-flight call, if any, is not aborted; only the next one is
// prevented.
func (h Handlers) CancelDispatch(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if !s.CancelDispatch() {
		c.JSON(http.StatusOK, gin.H{"status": "no active dispatch"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancel requested"})
}

// --- remote batch ---

type startBatchRequest struct {
	UserID             string `json:"user_id"`
	AgentPhoneNumberID string `json:"agent_phone_number_id"`
	ScheduledTimeUnix  int64  `json:"scheduled_time_unix"`
}

// StartBatch asks the groups backend to launch a server-side batch over all
// group members.
func (h Handlers) StartBatch(c *gin.Context) {
	if h.Batch == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "batch client not configured"})
		return
	}
	groupID := c.Param("group_id")
	var req startBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}

	out, err := h.Batch.StartGroupCall(c.Request.Context(), groupID, batch.StartGroupCallRequest{
		UserID:             req.UserID,
		AgentPhoneNumberID: req.AgentPhoneNumberID,
		ScheduledTimeUnix:  req.ScheduledTimeUnix,
	})
	if err != nil {
		logger.FromGin(c).Warn("start batch failed", "group", groupID, "err", err)
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "batch start failed"})
		return
	}
	h.events().Publish(c.Request.Context(), activity.Event{
		Level:   activity.LevelInfo,
		UserID:  req.UserID,
		GroupID: groupID,
		BatchID: out.BatchID,
		Message: "batch campaign started",
	})
	c.JSON(http.StatusOK, gin.H{"batch_id": out.BatchID, "recipients": out.RecipientsCount})
}
