package registry

import (
	"errors"
	"testing"
	"time"
)

func TestPresenceFlipsOnFirstAndLastHandle(t *testing.T) {
	var online, offline []int64
	reg := NewRegistry(
		WithOnlineFunc(func(id int64) { online = append(online, id) }),
		WithOfflineFunc(func(id int64) { offline = append(offline, id) }),
	)

	if err := reg.AddHandle(7, "ada", "h1"); err != nil {
		t.Fatalf("AddHandle h1: %v", err)
	}
	if err := reg.AddHandle(7, "ada", "h2"); err != nil {
		t.Fatalf("AddHandle h2: %v", err)
	}
	//1.- Only the first handle fires the online callback.
	if len(online) != 1 || online[0] != 7 {
		t.Fatalf("online callbacks: %v", online)
	}

	if _, off := reg.RemoveHandle("h1"); off {
		t.Fatalf("user went offline with a handle still open")
	}
	userID, off := reg.RemoveHandle("h2")
	if !off || userID != 7 {
		t.Fatalf("last removal: user %d offline %v", userID, off)
	}
	if len(offline) != 1 || offline[0] != 7 {
		t.Fatalf("offline callbacks: %v", offline)
	}
}

func TestHandleBoundToAnotherUserRejected(t *testing.T) {
	reg := NewRegistry()
	if err := reg.AddHandle(1, "ada", "h1"); err != nil {
		t.Fatalf("AddHandle: %v", err)
	}
	if err := reg.AddHandle(2, "linus", "h1"); !errors.Is(err, ErrHandleExists) {
		t.Fatalf("got %v, want ErrHandleExists", err)
	}
}

func TestReboundHandleForSameUserRefreshes(t *testing.T) {
	var online []int64
	reg := NewRegistry(WithOnlineFunc(func(id int64) { online = append(online, id) }))
	if err := reg.AddHandle(1, "ada", "h1"); err != nil {
		t.Fatalf("AddHandle: %v", err)
	}
	//1.- Re-registering the same handle is a refresh, not a conflict.
	if err := reg.AddHandle(1, "ada-renamed", "h1"); err != nil {
		t.Fatalf("re-registration must succeed, got %v", err)
	}
	if len(online) != 1 {
		t.Fatalf("online callback must fire once, fired %d times", len(online))
	}
	identity, err := reg.IdentityFor("h1")
	if err != nil || identity.Username != "ada-renamed" {
		t.Fatalf("IdentityFor after refresh: %+v, %v", identity, err)
	}
	if handles := reg.HandlesFor(1); len(handles) != 1 {
		t.Fatalf("handle set must not grow on refresh: %v", handles)
	}
}

func TestSnapshotCarriesStatusAndLastSeen(t *testing.T) {
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	reg := NewRegistry(WithClock(func() time.Time { return current }))

	reg.AddHandle(5, "ada", "h1")
	current = current.Add(42 * time.Second)
	//1.- Every handle registration stamps the user as seen right now.
	reg.AddHandle(5, "ada", "h2")

	snapshot := reg.Snapshot()
	if len(snapshot) != 1 {
		t.Fatalf("snapshot size: %d", len(snapshot))
	}
	entry := snapshot[0]
	if entry.Status != StatusOnline {
		t.Fatalf("status: %q", entry.Status)
	}
	if !entry.LastSeen.Equal(current) {
		t.Fatalf("lastSeen not refreshed: got %v, want %v", entry.LastSeen, current)
	}
	identity, err := reg.IdentityFor("h1")
	if err != nil || !identity.LastSeen.Equal(current) {
		t.Fatalf("IdentityFor lastSeen: %+v, %v", identity, err)
	}
}

func TestRemoveUnknownHandleIsNoOp(t *testing.T) {
	reg := NewRegistry()
	if userID, off := reg.RemoveHandle("ghost"); userID != 0 || off {
		t.Fatalf("unexpected result for unknown handle: %d %v", userID, off)
	}
}

func TestUserForAndHandlesFor(t *testing.T) {
	reg := NewRegistry()
	if _, err := reg.UserFor("h1"); !errors.Is(err, ErrHandleUnknown) {
		t.Fatalf("got %v, want ErrHandleUnknown", err)
	}
	reg.AddHandle(3, "ada", "h2")
	reg.AddHandle(3, "ada", "h1")

	userID, err := reg.UserFor("h1")
	if err != nil || userID != 3 {
		t.Fatalf("UserFor: %d, %v", userID, err)
	}
	handles := reg.HandlesFor(3)
	if len(handles) != 2 || handles[0] != "h1" || handles[1] != "h2" {
		t.Fatalf("HandlesFor: %v", handles)
	}
	if reg.HandlesFor(99) != nil {
		t.Fatalf("unknown user must have no handles")
	}
}

func TestSnapshotRefreshesUsername(t *testing.T) {
	reg := NewRegistry()
	reg.AddHandle(2, "old-name", "h1")
	reg.AddHandle(1, "linus", "h2")
	//1.- A reconnect with a new display name wins for presence purposes.
	reg.AddHandle(2, "new-name", "h3")

	snapshot := reg.Snapshot()
	if len(snapshot) != 2 {
		t.Fatalf("snapshot size: %d", len(snapshot))
	}
	if snapshot[0].UserID != 1 || snapshot[1].UserID != 2 {
		t.Fatalf("snapshot not sorted by id: %+v", snapshot)
	}
	if snapshot[1].Username != "new-name" {
		t.Fatalf("username not refreshed: %+v", snapshot[1])
	}
	if reg.Count() != 2 {
		t.Fatalf("count: %d", reg.Count())
	}
	if !reg.Online(1) || reg.Online(42) {
		t.Fatalf("online lookups wrong")
	}
}
