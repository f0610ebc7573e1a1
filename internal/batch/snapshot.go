package batch

import (
	"time"

	"outreach-platform/internal/calls"
)

// Snapshot is the canonical remote-truth view of one group's outreach
// campaign at a point in time. Each poll tick replaces the previous snapshot
// wholesale; there is no merging or diffing beyond matching recipients on
// their server-provided ids.
type Snapshot struct {
	GroupID string `json:"group_id"`
	BatchID string `json:"batch_id,omitempty"`

	Status BatchStatus `json:"status"`

	TotalScheduled  int `json:"total_calls_scheduled"`
	TotalDispatched int `json:"total_calls_dispatched"`

	Recipients []calls.StatusRecord `json:"recipients"`

	Pagination Pagination `json:"pagination"`

	FetchedAt time.Time `json:"fetched_at"`
}

type BatchStatus string

const (
	BatchInProgress BatchStatus = "in_progress"
	BatchCompleted  BatchStatus = "completed"
)

// Completed reports whether the remote batch has finished. The monitor uses
// this to stop its poll loop; the client itself never owns polling lifecycle.
func (s Snapshot) Completed() bool { return s.Status == BatchCompleted }

// Pagination mirrors the server-side pagination envelope of the batch-status
// endpoint.
type Pagination struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNextPage"`
	HasPrev    bool `json:"hasPrevPage"`
}

// --- wire shapes ---

// statusEnvelope is the raw batch-status response. The payload may arrive as
// data.batchCall or, on older backends, as data.group.batchMetadata. Both are
// structurally equivalent; normalization into Snapshot happens here at the
// boundary so nothing downstream ever branches on shape.
type statusEnvelope struct {
	Success    bool        `json:"success"`
	Data       statusData  `json:"data"`
	Pagination *Pagination `json:"pagination"`
}

type statusData struct {
	BatchCall *batchPayload `json:"batchCall"`
	Group     *struct {
		BatchMetadata *batchPayload `json:"batchMetadata"`
	} `json:"group"`
}

type batchPayload struct {
	BatchID              string          `json:"batchId"`
	Status               string          `json:"status"`
	TotalCallsScheduled  int             `json:"total_calls_scheduled"`
	TotalCallsDispatched int             `json:"total_calls_dispatched"`
	Recipients           []wireRecipient `json:"recipients"`
}

type wireRecipient struct {
	ID             string                 `json:"id"`
	PhoneNumber    string                 `json:"phone_number"`
	Status         string                 `json:"status"`
	UpdatedAtUnix  int64                  `json:"updated_at_unix"`
	ConversationID string                 `json:"conversation_id"`
	DurationSecs   int                    `json:"duration_secs"`
	Summary        string                 `json:"summary"`
	Transcript     []calls.TranscriptTurn `json:"transcript"`
	AudioURL       string                 `json:"audio_url"`

	InitiationData *struct {
		DynamicVariables map[string]string `json:"dynamic_variables"`
	} `json:"conversation_initiation_client_data"`
}

// payload resolves the tagged union: batchCall wins over the legacy
// group.batchMetadata fallback.
func (d statusData) payload() (*batchPayload, bool) {
	if d.BatchCall != nil {
		return d.BatchCall, true
	}
	if d.Group != nil && d.Group.BatchMetadata != nil {
		return d.Group.BatchMetadata, true
	}
	return nil, false
}

func (e statusEnvelope) toSnapshot(groupID string, now time.Time) (Snapshot, error) {
	p, ok := e.Data.payload()
	if !ok {
		return Snapshot{}, ErrMalformedResponse
	}

	snap := Snapshot{
		GroupID:         groupID,
		BatchID:         p.BatchID,
		Status:          BatchInProgress,
		TotalScheduled:  p.TotalCallsScheduled,
		TotalDispatched: p.TotalCallsDispatched,
		FetchedAt:       now,
	}
	if p.Status == "completed" {
		snap.Status = BatchCompleted
	}
	if e.Pagination != nil {
		snap.Pagination = *e.Pagination
	}

	snap.Recipients = make([]calls.StatusRecord, 0, len(p.Recipients))
	for _, r := range p.Recipients {
		rec := calls.StatusRecord{
			TargetID:        calls.TargetID(r.ID, groupID),
			Phone:           r.PhoneNumber,
			Status:          calls.ParseStatus(r.Status),
			ConversationID:  r.ConversationID,
			DurationSeconds: r.DurationSecs,
			Summary:         r.Summary,
			Transcript:      r.Transcript,
			AudioURL:        r.AudioURL,
		}
		if r.UpdatedAtUnix > 0 {
			rec.UpdatedAt = time.Unix(r.UpdatedAtUnix, 0).UTC()
		} else {
			rec.UpdatedAt = now
		}
		if r.InitiationData != nil {
			rec.Name = r.InitiationData.DynamicVariables["name"]
		}
		snap.Recipients = append(snap.Recipients, rec)
	}
	return snap, nil
}
