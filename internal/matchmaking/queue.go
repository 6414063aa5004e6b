package matchmaking

import (
	"errors"
	"sync"
	"time"

	"github.com/calvinhon/ft-transcendence-sub004/internal/game"
)

var (
	// ErrAlreadyQueued is returned when a user enqueues twice without leaving.
	ErrAlreadyQueued = errors.New("user is already queued for matchmaking")
	// ErrClosed is returned once the queue has been shut down.
	ErrClosed = errors.New("matchmaking queue is closed")
)

// Player is one matchmaking candidate together with the settings they asked
// for. A non-zero Linkage restricts pairing to the same tournament match.
type Player struct {
	UserID   int64
	Username string
	Settings game.Settings
	Linkage  game.Linkage
}

// Match pairs two players, or one player with a bot opponent when the wait
// timer expired before a compatible human arrived.
type Match struct {
	Players [2]Player
	WithBot bool
}

// MatchFunc receives completed matches. It is invoked outside the queue lock
// and may call back into the queue.
type MatchFunc func(Match)

type ticket struct {
	player Player
	timer  *time.Timer
}

// Option configures optional Queue behaviour.
type Option func(*Queue)

// WithWaitTimeout overrides how long a player waits before a bot steps in.
// A zero or negative timeout disables the bot fallback entirely.
func WithWaitTimeout(d time.Duration) Option {
	return func(q *Queue) { q.waitTimeout = d }
}

// Queue matches waiting players first-fit in arrival order. Compatibility is
// decided by the game settings; whoever queued earliest gets the left side.
type Queue struct {
	mu          sync.Mutex
	waiting     []*ticket
	byUser      map[int64]*ticket
	waitTimeout time.Duration
	matched     MatchFunc
	closed      bool
}

// NewQueue builds a queue that reports matches through the callback.
func NewQueue(matched MatchFunc, opts ...Option) *Queue {
	queue := &Queue{
		byUser:      make(map[int64]*ticket),
		waitTimeout: 5 * time.Second,
		matched:     matched,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(queue)
		}
	}
	if queue.matched == nil {
		queue.matched = func(Match) {}
	}
	return queue
}

// Enqueue adds a player and tries to pair them immediately. When no compatible
// opponent is waiting, the player stays queued and the bot fallback timer
// starts. The returned flag reports whether a match fired synchronously.
func (q *Queue) Enqueue(player Player) (bool, error) {
	if q == nil {
		return false, errors.New("queue is nil")
	}
	normalized, err := player.Settings.Normalize()
	if err != nil {
		return false, err
	}
	player.Settings = normalized

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false, ErrClosed
	}
	if _, queued := q.byUser[player.UserID]; queued {
		q.mu.Unlock()
		return false, ErrAlreadyQueued
	}
	//1.- First fit in arrival order: the earliest compatible waiter wins.
	for i, candidate := range q.waiting {
		if !candidate.player.Settings.Compatible(player.Settings) {
			continue
		}
		if candidate.player.Linkage != player.Linkage {
			continue
		}
		q.removeLocked(i, candidate)
		match := Match{Players: [2]Player{candidate.player, player}}
		q.mu.Unlock()
		q.matched(match)
		return true, nil
	}
	//2.- No partner yet: park the player and arm the bot fallback.
	entry := &ticket{player: player}
	if q.waitTimeout > 0 {
		userID := player.UserID
		entry.timer = time.AfterFunc(q.waitTimeout, func() { q.expire(userID) })
	}
	q.waiting = append(q.waiting, entry)
	q.byUser[player.UserID] = entry
	q.mu.Unlock()
	return false, nil
}

// Dequeue removes a waiting player, cancelling their bot fallback. It reports
// whether the player was actually queued.
func (q *Queue) Dequeue(userID int64) bool {
	if q == nil {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	entry, ok := q.byUser[userID]
	if !ok {
		return false
	}
	for i, candidate := range q.waiting {
		if candidate == entry {
			q.removeLocked(i, entry)
			return true
		}
	}
	return false
}

// Len returns the number of waiting players.
func (q *Queue) Len() int {
	if q == nil {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiting)
}

// Close stops every fallback timer and rejects further enqueues.
func (q *Queue) Close() {
	if q == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	for _, entry := range q.waiting {
		if entry.timer != nil {
			entry.timer.Stop()
		}
	}
	q.waiting = nil
	q.byUser = make(map[int64]*ticket)
}

// expire fires when a player waited out the timeout and hands them a bot match.
func (q *Queue) expire(userID int64) {
	q.mu.Lock()
	entry, ok := q.byUser[userID]
	if !ok || q.closed {
		//1.- The player was paired or left between the timer firing and this call.
		q.mu.Unlock()
		return
	}
	for i, candidate := range q.waiting {
		if candidate == entry {
			q.removeLocked(i, entry)
			break
		}
	}
	match := Match{Players: [2]Player{entry.player, {}}, WithBot: true}
	q.mu.Unlock()
	q.matched(match)
}

func (q *Queue) removeLocked(index int, entry *ticket) {
	if entry.timer != nil {
		entry.timer.Stop()
	}
	q.waiting = append(q.waiting[:index], q.waiting[index+1:]...)
	delete(q.byUser, entry.player.UserID)
}
