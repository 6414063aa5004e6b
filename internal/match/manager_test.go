package match

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/calvinhon/ft-transcendence-sub004/internal/game"
	"github.com/calvinhon/ft-transcendence-sub004/internal/history"
	"github.com/calvinhon/ft-transcendence-sub004/internal/tournament"
)

type sentMessage struct {
	users   []int64
	kind    string
	payload any
}

type fakeBroadcaster struct {
	mu       sync.Mutex
	messages []sentMessage
}

func (f *fakeBroadcaster) ToUsers(userIDs []int64, kind string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, sentMessage{users: append([]int64(nil), userIDs...), kind: kind, payload: payload})
}

func (f *fakeBroadcaster) count(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, message := range f.messages {
		if message.kind == kind {
			total++
		}
	}
	return total
}

func (f *fakeBroadcaster) waitFor(t *testing.T, kind string, timeout time.Duration) sentMessage {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		for _, message := range f.messages {
			if message.kind == kind {
				f.mu.Unlock()
				return message
			}
		}
		f.mu.Unlock()
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("no %q message within %v", kind, timeout)
	return sentMessage{}
}

type fakeBridge struct {
	results chan tournament.Result
}

func (f *fakeBridge) Report(_ context.Context, result tournament.Result) error {
	f.results <- result
	return nil
}

type fakeHistory struct {
	mu      sync.Mutex
	records []history.Record
}

func (f *fakeHistory) RecordMatch(_ context.Context, record history.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, record)
	return nil
}

func sequentialIDs() func() string {
	var next int
	var mu sync.Mutex
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		next++
		return fmt.Sprintf("session-%d", next)
	}
}

func humans() (game.Participant, game.Participant) {
	return game.Participant{UserID: 1, Username: "ada"},
		game.Participant{UserID: 2, Username: "linus"}
}

func TestCreateMatchAnnouncesAndTicks(t *testing.T) {
	broadcaster := &fakeBroadcaster{}
	manager := NewManager(broadcaster, WithIDFunc(sequentialIDs()))
	defer manager.Shutdown()

	left, _ := humans()
	session, err := manager.CreateMatch(left, BotParticipant(game.DefaultSettings()), game.DefaultSettings(), nil)
	if err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}
	if session.ID() != "session-1" {
		t.Fatalf("session id: %q", session.ID())
	}

	started := broadcaster.waitFor(t, MsgGameStarted, time.Second)
	payload, ok := started.payload.(StartedPayload)
	if !ok {
		t.Fatalf("unexpected started payload %T", started.payload)
	}
	if len(payload.Players) != 2 || !payload.Players[1].Bot {
		t.Fatalf("players: %+v", payload.Players)
	}
	if len(started.users) != 1 || started.users[0] != 1 {
		t.Fatalf("bot must not be a broadcast target: %v", started.users)
	}
	//1.- The loop is live: state frames keep arriving without any player input.
	broadcaster.waitFor(t, MsgGameState, time.Second)

	if _, ok := manager.SessionFor(1); !ok {
		t.Fatalf("SessionFor lost the player")
	}
	if manager.Count() != 1 {
		t.Fatalf("count: %d", manager.Count())
	}
}

func TestOneLiveMatchPerUser(t *testing.T) {
	manager := NewManager(&fakeBroadcaster{}, WithIDFunc(sequentialIDs()))
	defer manager.Shutdown()

	left, right := humans()
	if _, err := manager.CreateMatch(left, right, game.DefaultSettings(), nil); err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}
	other := game.Participant{UserID: 3, Username: "grace"}
	if _, err := manager.CreateMatch(left, other, game.DefaultSettings(), nil); !errors.Is(err, ErrUserBusy) {
		t.Fatalf("got %v, want ErrUserBusy", err)
	}
}

func TestHandleMoveRequiresLiveSession(t *testing.T) {
	manager := NewManager(&fakeBroadcaster{})
	if err := manager.HandleMove(9, game.DirectionUp, 0, 1); !errors.Is(err, ErrNoSession) {
		t.Fatalf("got %v, want ErrNoSession", err)
	}
}

func TestLeaveForfeitsAndTearsDownOnce(t *testing.T) {
	broadcaster := &fakeBroadcaster{}
	store := &fakeHistory{}
	manager := NewManager(broadcaster, WithIDFunc(sequentialIDs()), WithHistory(store))
	defer manager.Shutdown()

	left, right := humans()
	if _, err := manager.CreateMatch(left, right, game.DefaultSettings(), nil); err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}
	if err := manager.Leave(1); err != nil {
		t.Fatalf("Leave: %v", err)
	}

	ended := broadcaster.waitFor(t, MsgGameEnded, time.Second)
	payload := ended.payload.(EndedPayload)
	if payload.WinnerID != 2 || !payload.Forfeit {
		t.Fatalf("unexpected outcome: %+v", payload)
	}
	//1.- Teardown removed the mapping, so a second leave has nothing to act on.
	if err := manager.Leave(1); !errors.Is(err, ErrNoSession) {
		t.Fatalf("second Leave: got %v, want ErrNoSession", err)
	}
	if got := broadcaster.count(MsgGameEnded); got != 1 {
		t.Fatalf("gameEnded broadcast %d times", got)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.records) != 1 {
		t.Fatalf("history records: %d", len(store.records))
	}
	record := store.records[0]
	if record.WinnerID != 2 || !record.Forfeit || record.LeftID != 1 {
		t.Fatalf("unexpected history record: %+v", record)
	}
}

func TestDisconnectGraceExpiresIntoForfeit(t *testing.T) {
	broadcaster := &fakeBroadcaster{}
	manager := NewManager(broadcaster,
		WithIDFunc(sequentialIDs()),
		WithForfeitGrace(30*time.Millisecond))
	defer manager.Shutdown()

	left, right := humans()
	if _, err := manager.CreateMatch(left, right, game.DefaultSettings(), nil); err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}
	manager.HandleDisconnect(1)
	broadcaster.waitFor(t, MsgOpponentDisconnected, time.Second)

	ended := broadcaster.waitFor(t, MsgGameEnded, time.Second)
	payload := ended.payload.(EndedPayload)
	if payload.WinnerID != 2 || !payload.Forfeit {
		t.Fatalf("grace expiry outcome: %+v", payload)
	}
}

func TestReconnectCancelsForfeit(t *testing.T) {
	broadcaster := &fakeBroadcaster{}
	manager := NewManager(broadcaster,
		WithIDFunc(sequentialIDs()),
		WithForfeitGrace(60*time.Millisecond))
	defer manager.Shutdown()

	left, right := humans()
	if _, err := manager.CreateMatch(left, right, game.DefaultSettings(), nil); err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}
	manager.HandleDisconnect(1)
	manager.HandleReconnect(1)
	broadcaster.waitFor(t, MsgOpponentReconnected, time.Second)

	//1.- Wait past the original grace deadline: the match must still be alive.
	time.Sleep(120 * time.Millisecond)
	if got := broadcaster.count(MsgGameEnded); got != 0 {
		t.Fatalf("match forfeited despite reconnect")
	}
	if _, ok := manager.SessionFor(1); !ok {
		t.Fatalf("session torn down despite reconnect")
	}
}

func TestTournamentOutcomeReported(t *testing.T) {
	bridge := &fakeBridge{results: make(chan tournament.Result, 1)}
	manager := NewManager(&fakeBroadcaster{},
		WithIDFunc(sequentialIDs()),
		WithBridge(bridge))
	defer manager.Shutdown()

	left, right := humans()
	settings := game.DefaultSettings()
	settings.Mode = game.ModeTournament
	linkage := &game.Linkage{TournamentID: 7, MatchID: 21}
	if _, err := manager.CreateMatch(left, right, settings, linkage); err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}
	if err := manager.Leave(2); err != nil {
		t.Fatalf("Leave: %v", err)
	}

	select {
	case result := <-bridge.results:
		if result.TournamentID != 7 || result.MatchID != 21 {
			t.Fatalf("unexpected linkage: %+v", result)
		}
		if len(result.Players) != 2 || len(result.Ranks) != 2 {
			t.Fatalf("misaligned result: %+v", result)
		}
		//1.- Player 1 stayed, so they take rank 1 in whatever slot they occupy.
		for i, player := range result.Players {
			want := 2
			if player == 1 {
				want = 1
			}
			if result.Ranks[i] != want {
				t.Fatalf("rank for player %d: got %d, want %d", player, result.Ranks[i], want)
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("tournament result never reported")
	}
}

func TestPauseBroadcastsToBothPlayers(t *testing.T) {
	broadcaster := &fakeBroadcaster{}
	manager := NewManager(broadcaster, WithIDFunc(sequentialIDs()), WithTickRate(240))
	defer manager.Shutdown()

	left, right := humans()
	session, err := manager.CreateMatch(left, right, game.DefaultSettings(), nil)
	if err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}
	//1.- Pausing is only legal once the countdown has handed over to active play.
	deadline := time.Now().Add(5 * time.Second)
	for session.Status() != game.StatusActive {
		if time.Now().After(deadline) {
			t.Fatalf("session never became active")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := manager.HandlePause(1, true); err != nil {
		t.Fatalf("HandlePause: %v", err)
	}
	paused := broadcaster.waitFor(t, MsgGamePaused, time.Second)
	if len(paused.users) != 2 {
		t.Fatalf("pause must reach both players: %v", paused.users)
	}
	if err := manager.HandlePause(2, false); err != nil {
		t.Fatalf("resume: %v", err)
	}
	broadcaster.waitFor(t, MsgGameResumed, time.Second)
}

func TestShutdownStopsEverything(t *testing.T) {
	manager := NewManager(&fakeBroadcaster{}, WithIDFunc(sequentialIDs()))
	left, right := humans()
	if _, err := manager.CreateMatch(left, right, game.DefaultSettings(), nil); err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}
	manager.Shutdown()
	if manager.Count() != 0 {
		t.Fatalf("sessions survived shutdown: %d", manager.Count())
	}
}
