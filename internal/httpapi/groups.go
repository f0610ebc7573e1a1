package httpapi

import (
	"context"
	"errors"
	"sync"

	"outreach-platform/internal/calls"
)

// Group is the slice of the group CRUD backend this service needs: enough to
// know who to call and whether an agent is assigned. The CRUD surface itself
// stays a remote collaborator.
type Group struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`

	// AgentID and AgentPhoneNumberID identify the calling agent assigned to
	// the group. Dispatch must be refused when no agent is configured.
	AgentID            string `json:"agent_id,omitempty"`
	AgentPhoneNumberID string `json:"agent_phone_number_id,omitempty"`

	Members []Member `json:"members"`
}

// Member is one contact inside a group.
type Member struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
}

// HasAgent reports whether the group can be dispatched at all.
func (g Group) HasAgent() bool { return g.AgentPhoneNumberID != "" }

// Targets maps the group's members into call targets with composite ids.
func (g Group) Targets() []calls.Target {
	out := make([]calls.Target, 0, len(g.Members))
	for _, m := range g.Members {
		out = append(out, calls.Target{
			ID:          calls.TargetID(m.ID, g.ID),
			Name:        m.Name,
			PhoneNumber: m.PhoneNumber,
			GroupID:     g.ID,
			GroupName:   g.Name,
			GroupColor:  g.Color,
		})
	}
	return out
}

var ErrGroupNotFound = errors.New("httpapi: group not found")

// GroupDirectory looks up group membership and agent assignment.
type GroupDirectory interface {
	GetGroup(ctx context.Context, userID, groupID string) (Group, error)
}

// MemoryDirectory is the in-memory GroupDirectory used by tests and local
// development.
type MemoryDirectory struct {
	mu     sync.RWMutex
	groups map[string]Group
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{groups: make(map[string]Group)}
}

func (d *MemoryDirectory) Put(g Group) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.groups[g.ID] = g
}

func (d *MemoryDirectory) GetGroup(ctx context.Context, userID, groupID string) (Group, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	g, ok := d.groups[groupID]
	if !ok {
		return Group{}, ErrGroupNotFound
	}
	return g, nil
}
