package registry

import (
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	// ErrHandleExists is returned when a handle id is rebound to a different user.
	ErrHandleExists = errors.New("connection handle already registered")
	// ErrHandleUnknown is returned when a handle id has no registered user.
	ErrHandleUnknown = errors.New("connection handle not registered")
)

// StatusOnline marks every registry entry; a user leaves the registry entirely
// when their last handle drops, so no other status ever appears.
const StatusOnline = "online"

// Entry describes one online user for presence broadcasts.
type Entry struct {
	UserID   int64     `json:"userId"`
	Username string    `json:"username"`
	Status   string    `json:"status"`
	LastSeen time.Time `json:"lastSeen"`
}

type userRecord struct {
	username string
	lastSeen time.Time
	handles  map[string]struct{}
}

// Option configures optional Registry behaviour.
type Option func(*Registry)

// WithOfflineFunc installs a callback fired after a user's last handle is
// removed. The callback runs outside the registry lock.
func WithOfflineFunc(fn func(userID int64)) Option {
	return func(r *Registry) { r.onOffline = fn }
}

// WithOnlineFunc installs a callback fired after a user's first handle is
// added. The callback runs outside the registry lock.
func WithOnlineFunc(fn func(userID int64)) Option {
	return func(r *Registry) { r.onOnline = fn }
}

// WithClock injects the time source used for lastSeen stamps, mainly for
// deterministic tests.
func WithClock(clock func() time.Time) Option {
	return func(r *Registry) {
		if clock != nil {
			r.now = clock
		}
	}
}

// Registry tracks which authenticated users are online and through which
// connection handles. A user with several tabs holds several handles; presence
// flips only on the first add and the last removal.
type Registry struct {
	mu        sync.RWMutex
	handles   map[string]int64
	users     map[int64]*userRecord
	now       func() time.Time
	onOffline func(int64)
	onOnline  func(int64)
}

// NewRegistry builds an empty registry.
func NewRegistry(opts ...Option) *Registry {
	registry := &Registry{
		handles: make(map[string]int64),
		users:   make(map[int64]*userRecord),
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(registry)
		}
	}
	return registry
}

// AddHandle binds a connection handle to a user and refreshes lastSeen. The
// username of the newest handle wins so renamed accounts refresh on reconnect.
// Re-registering a handle already bound to the same user is an idempotent
// refresh; only a handle bound to a different user is rejected.
func (r *Registry) AddHandle(userID int64, username, handleID string) error {
	if r == nil {
		return errors.New("registry is nil")
	}
	r.mu.Lock()
	if boundTo, exists := r.handles[handleID]; exists && boundTo != userID {
		r.mu.Unlock()
		return ErrHandleExists
	}
	record := r.users[userID]
	first := record == nil
	if first {
		record = &userRecord{handles: make(map[string]struct{})}
		r.users[userID] = record
	}
	record.username = username
	record.lastSeen = r.now()
	record.handles[handleID] = struct{}{}
	r.handles[handleID] = userID
	callback := r.onOnline
	r.mu.Unlock()

	//1.- Fire the presence callback only on the first handle, outside the lock.
	if first && callback != nil {
		callback(userID)
	}
	return nil
}

// RemoveHandle unbinds a handle and reports whether its user went offline.
// Removing an unknown handle is a harmless no-op.
func (r *Registry) RemoveHandle(handleID string) (userID int64, offline bool) {
	if r == nil {
		return 0, false
	}
	r.mu.Lock()
	userID, ok := r.handles[handleID]
	if !ok {
		r.mu.Unlock()
		return 0, false
	}
	delete(r.handles, handleID)
	record := r.users[userID]
	if record != nil {
		delete(record.handles, handleID)
		if len(record.handles) == 0 {
			delete(r.users, userID)
			offline = true
		}
	}
	callback := r.onOffline
	r.mu.Unlock()

	if offline && callback != nil {
		callback(userID)
	}
	return userID, offline
}

// IdentityFor resolves the full identity bound to a handle.
func (r *Registry) IdentityFor(handleID string) (Entry, error) {
	if r == nil {
		return Entry{}, ErrHandleUnknown
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	userID, ok := r.handles[handleID]
	if !ok {
		return Entry{}, ErrHandleUnknown
	}
	record := r.users[userID]
	if record == nil {
		return Entry{}, ErrHandleUnknown
	}
	return entryFor(userID, record), nil
}

// UserFor resolves the user bound to a handle.
func (r *Registry) UserFor(handleID string) (int64, error) {
	if r == nil {
		return 0, ErrHandleUnknown
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	userID, ok := r.handles[handleID]
	if !ok {
		return 0, ErrHandleUnknown
	}
	return userID, nil
}

// HandlesFor returns the live handle ids for a user. Senders resolve handles
// at send time so messages never chase a stale connection.
func (r *Registry) HandlesFor(userID int64) []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	record := r.users[userID]
	if record == nil {
		return nil
	}
	handles := make([]string, 0, len(record.handles))
	for handle := range record.handles {
		handles = append(handles, handle)
	}
	sort.Strings(handles)
	return handles
}

// Online reports whether the user currently holds at least one handle.
func (r *Registry) Online(userID int64) bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.users[userID] != nil
}

// Snapshot lists every online user sorted by id for presence broadcasts.
func (r *Registry) Snapshot() []Entry {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := make([]Entry, 0, len(r.users))
	for userID, record := range r.users {
		entries = append(entries, entryFor(userID, record))
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].UserID < entries[j].UserID })
	return entries
}

func entryFor(userID int64, record *userRecord) Entry {
	return Entry{
		UserID:   userID,
		Username: record.username,
		Status:   StatusOnline,
		LastSeen: record.lastSeen,
	}
}

// Count returns the number of online users.
func (r *Registry) Count() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}
