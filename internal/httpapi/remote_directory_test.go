package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRemoteDirectory_GetGroup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/g1" {
			http.NotFound(w, r)
			return
		}
		if got := r.URL.Query().Get("userId"); got != "u1" {
			t.Errorf("expected userId=u1, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"success": true,
			"data": {
				"_id": "g1",
				"name": "Ventas",
				"color": "#ff5500",
				"agentId": "a1",
				"agentPhoneNumberId": "pn1",
				"members": [
					{"_id": "m1", "name": "Ana", "phoneNumber": "+5215550001"},
					{"_id": "m2", "name": "Luis", "phoneNumber": "+5215550002"}
				]
			}
		}`))
	}))
	defer srv.Close()

	dir, err := NewRemoteDirectory(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new directory: %v", err)
	}
	g, err := dir.GetGroup(context.Background(), "u1", "g1")
	if err != nil {
		t.Fatalf("get group: %v", err)
	}
	if g.ID != "g1" || g.Name != "Ventas" || !g.HasAgent() || len(g.Members) != 2 {
		t.Fatalf("unexpected group: %#v", g)
	}
	targets := g.Targets()
	if targets[0].ID != "m1-g1" || targets[0].PhoneNumber != "+5215550001" {
		t.Fatalf("unexpected target: %#v", targets[0])
	}
}

func TestRemoteDirectory_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	dir, err := NewRemoteDirectory(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new directory: %v", err)
	}
	if _, err := dir.GetGroup(context.Background(), "u1", "missing"); !errors.Is(err, ErrGroupNotFound) {
		t.Fatalf("expected ErrGroupNotFound, got %v", err)
	}
}

func TestRemoteDirectory_RejectsEmptyBaseURL(t *testing.T) {
	if _, err := NewRemoteDirectory("  ", nil); err == nil {
		t.Fatalf("expected error")
	}
}
