package match

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/calvinhon/ft-transcendence-sub004/internal/ai"
	"github.com/calvinhon/ft-transcendence-sub004/internal/game"
	"github.com/calvinhon/ft-transcendence-sub004/internal/history"
	"github.com/calvinhon/ft-transcendence-sub004/internal/logging"
	"github.com/calvinhon/ft-transcendence-sub004/internal/replay"
	"github.com/calvinhon/ft-transcendence-sub004/internal/simulation"
	"github.com/calvinhon/ft-transcendence-sub004/internal/tournament"
)

var (
	// ErrUserBusy is returned when a user tries to join a second live match.
	ErrUserBusy = errors.New("user is already in a match")
	// ErrNoSession is returned when a user acts without a live match.
	ErrNoSession = errors.New("user has no active match")
)

// Outbound message kinds pushed to clients during a match lifecycle.
const (
	MsgGameStarted          = "gameStarted"
	MsgGameState            = "gameState"
	MsgGoalScored           = "goalScored"
	MsgGamePaused           = "gamePaused"
	MsgGameResumed          = "gameResumed"
	MsgGameEnded            = "gameEnded"
	MsgOpponentDisconnected = "opponentDisconnected"
	MsgOpponentReconnected  = "opponentReconnected"
)

// Broadcaster fans a payload out to every live connection of the listed users.
// Implementations resolve connection handles at send time.
type Broadcaster interface {
	ToUsers(userIDs []int64, messageType string, payload any)
}

// ResultReporter delivers tournament outcomes; delivery is best effort.
type ResultReporter interface {
	Report(ctx context.Context, result tournament.Result) error
}

// HistoryRecorder persists finished matches.
type HistoryRecorder interface {
	RecordMatch(ctx context.Context, record history.Record) error
}

// StartedPayload announces a new match to its players.
type StartedPayload struct {
	SessionID string         `json:"gameId"`
	Settings  game.Settings  `json:"settings"`
	Players   []PlayerInfo   `json:"players"`
	State     *game.Snapshot `json:"state"`
}

// PlayerInfo is the public view of one participant.
type PlayerInfo struct {
	UserID   int64     `json:"userId"`
	Username string    `json:"username"`
	Side     game.Side `json:"side"`
	Bot      bool      `json:"bot,omitempty"`
}

// EndedPayload announces the final result to the players.
type EndedPayload struct {
	SessionID  string      `json:"gameId"`
	Winner     game.Side   `json:"winner"`
	WinnerID   int64       `json:"winnerId"`
	WinnerName string      `json:"winnerName"`
	Scores     game.Scores `json:"scores"`
	Forfeit    bool        `json:"forfeit,omitempty"`
}

// PausePayload reports who paused or resumed.
type PausePayload struct {
	SessionID string         `json:"gameId"`
	UserID    int64          `json:"userId"`
	State     *game.Snapshot `json:"state"`
}

type running struct {
	session  *game.Session
	loop     *simulation.Loop
	recorder *replay.Recorder
	userIDs  []int64
	grace    map[int64]*time.Timer
	finished bool
}

// Option configures optional Manager behaviour.
type Option func(*Manager)

// WithBridge wires the tournament result reporter.
func WithBridge(bridge ResultReporter) Option {
	return func(m *Manager) { m.bridge = bridge }
}

// WithHistory wires the match history store.
func WithHistory(store HistoryRecorder) Option {
	return func(m *Manager) { m.store = store }
}

// WithReplayRoot enables replay recording under the given directory.
func WithReplayRoot(root string) Option {
	return func(m *Manager) { m.replayRoot = root }
}

// WithTickRate overrides the simulation frequency in ticks per second.
func WithTickRate(hz float64) Option {
	return func(m *Manager) {
		if hz > 0 {
			m.tickRate = hz
		}
	}
}

// WithForfeitGrace overrides how long a disconnected player may reconnect
// before forfeiting.
func WithForfeitGrace(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.forfeitGrace = d
		}
	}
}

// WithResumePolicy forwards the pause resume policy to every session.
func WithResumePolicy(policy string) Option {
	return func(m *Manager) { m.resumePolicy = policy }
}

// WithLogger overrides the manager logger.
func WithLogger(logger *logging.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithIDFunc overrides session id generation, mainly for deterministic tests.
func WithIDFunc(fn func() string) Option {
	return func(m *Manager) {
		if fn != nil {
			m.newID = fn
		}
	}
}

// Manager owns every live session: it creates matches, drives their tick
// loops, routes player actions, and performs teardown exactly once.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*running
	byUser   map[int64]*running

	tickRate     float64
	forfeitGrace time.Duration
	resumePolicy string
	replayRoot   string

	broadcaster Broadcaster
	bridge      ResultReporter
	store       HistoryRecorder
	logger      *logging.Logger
	newID       func() string
}

// NewManager builds a manager that broadcasts through the given fan-out.
func NewManager(broadcaster Broadcaster, opts ...Option) *Manager {
	manager := &Manager{
		sessions:     make(map[string]*running),
		byUser:       make(map[int64]*running),
		tickRate:     60,
		forfeitGrace: 10 * time.Second,
		resumePolicy: "any",
		broadcaster:  broadcaster,
		logger:       logging.L(),
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(manager)
		}
	}
	if manager.broadcaster == nil {
		manager.broadcaster = noopBroadcaster{}
	}
	return manager
}

type noopBroadcaster struct{}

func (noopBroadcaster) ToUsers([]int64, string, any) {}

// BotParticipant builds the AI opponent matching the requested difficulty.
// Bots use negative ids so they can never collide with real accounts.
func BotParticipant(settings game.Settings) game.Participant {
	profile := ai.ProfileFor(settings.AIDifficulty)
	return game.Participant{
		UserID:   -1,
		Username: profile.Name,
		Bot:      true,
		Profile:  profile,
	}
}

// CreateMatch starts a new session for the two participants, announces it, and
// begins ticking. Either participant may be a bot.
func (m *Manager) CreateMatch(left, right game.Participant, settings game.Settings, linkage *game.Linkage) (*game.Session, error) {
	if m == nil {
		return nil, errors.New("manager is nil")
	}
	opts := []game.SessionOption{game.WithResumePolicy(m.resumePolicy)}
	if linkage != nil {
		opts = append(opts, game.WithTournament(*linkage))
	}
	session, err := game.NewSession(m.newID(), settings, left, right, opts...)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	//1.- One live match per user: reject before any goroutine is spawned.
	for _, participant := range []game.Participant{left, right} {
		if participant.Bot {
			continue
		}
		if _, busy := m.byUser[participant.UserID]; busy {
			m.mu.Unlock()
			return nil, fmt.Errorf("%w: user %d", ErrUserBusy, participant.UserID)
		}
	}
	run := &running{
		session: session,
		grace:   make(map[int64]*time.Timer),
	}
	for _, participant := range []game.Participant{left, right} {
		if !participant.Bot {
			run.userIDs = append(run.userIDs, participant.UserID)
			m.byUser[participant.UserID] = run
		}
	}
	m.sessions[session.ID()] = run
	if m.replayRoot != "" {
		names := []string{left.Username, right.Username}
		recorder, _, err := replay.NewRecorder(m.replayRoot, session.ID(), string(settings.Mode), names, nil)
		if err != nil {
			m.logger.Warn("replay recording disabled for session",
				logging.String("session_id", session.ID()), logging.Error(err))
		} else {
			run.recorder = recorder
		}
	}
	m.mu.Unlock()

	started := StartedPayload{
		SessionID: session.ID(),
		Settings:  session.Settings(),
		State:     session.Snapshot(),
	}
	for _, participant := range session.Participants() {
		started.Players = append(started.Players, PlayerInfo{
			UserID:   participant.UserID,
			Username: participant.Username,
			Side:     participant.Side,
			Bot:      participant.Bot,
		})
	}
	m.broadcaster.ToUsers(run.userIDs, MsgGameStarted, started)

	if _, err := session.Begin(); err != nil {
		m.teardown(run, nil)
		return nil, err
	}
	run.loop = simulation.NewLoop(m.tickRate, func(step time.Duration) {
		m.step(run, step)
	})
	run.loop.Start(context.Background())

	m.logger.Info("match started",
		logging.String("session_id", session.ID()),
		logging.String("mode", string(settings.Mode)),
		logging.Int64("left", left.UserID),
		logging.Int64("right", right.UserID))
	return session, nil
}

// SessionFor returns the live session a user plays in.
func (m *Manager) SessionFor(userID int64) (*game.Session, bool) {
	if m == nil {
		return nil, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.byUser[userID]
	if !ok {
		return nil, false
	}
	return run.session, true
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// HandleMove applies a movement intent from a user to their session.
func (m *Manager) HandleMove(userID int64, direction game.Direction, paddleIndex int, sequence uint64) error {
	run, err := m.runFor(userID)
	if err != nil {
		return err
	}
	return run.session.ApplyIntent(userID, direction, paddleIndex, sequence)
}

// HandlePause pauses or resumes the user's session and notifies both players.
func (m *Manager) HandlePause(userID int64, paused bool) error {
	run, err := m.runFor(userID)
	if err != nil {
		return err
	}
	event, err := run.session.Pause(userID, paused)
	if err != nil {
		return err
	}
	if event == nil {
		return nil
	}
	kind := MsgGamePaused
	if event.Kind == game.EventResumed {
		kind = MsgGameResumed
	}
	m.broadcaster.ToUsers(run.userIDs, kind, PausePayload{
		SessionID: run.session.ID(),
		UserID:    userID,
		State:     event.State,
	})
	return nil
}

// Leave forfeits the user's session immediately, with no grace period.
func (m *Manager) Leave(userID int64) error {
	run, err := m.runFor(userID)
	if err != nil {
		return err
	}
	m.forfeit(run, userID)
	return nil
}

// HandleDisconnect pauses the user's session and arms the forfeit grace timer.
// Reconnecting before it fires cancels the forfeit.
func (m *Manager) HandleDisconnect(userID int64) {
	run, err := m.runFor(userID)
	if err != nil {
		return
	}
	//1.- Pause play so the opponent is not farming goals against an empty chair.
	if event, err := run.session.Pause(userID, true); err == nil && event != nil {
		m.broadcaster.ToUsers(run.userIDs, MsgGamePaused, PausePayload{
			SessionID: run.session.ID(),
			UserID:    userID,
			State:     event.State,
		})
	}
	m.broadcaster.ToUsers(run.userIDs, MsgOpponentDisconnected, map[string]any{
		"gameId":  run.session.ID(),
		"userId":  userID,
		"graceMs": m.forfeitGrace.Milliseconds(),
	})

	m.mu.Lock()
	if run.finished {
		m.mu.Unlock()
		return
	}
	if existing := run.grace[userID]; existing != nil {
		existing.Stop()
	}
	run.grace[userID] = time.AfterFunc(m.forfeitGrace, func() {
		m.forfeit(run, userID)
	})
	m.mu.Unlock()

	m.logger.Info("player disconnected from match",
		logging.String("session_id", run.session.ID()),
		logging.Int64("user_id", userID),
		logging.Duration("grace", m.forfeitGrace))
}

// HandleReconnect cancels a pending forfeit and resumes the paused session.
func (m *Manager) HandleReconnect(userID int64) {
	run, err := m.runFor(userID)
	if err != nil {
		return
	}
	m.mu.Lock()
	timer := run.grace[userID]
	delete(run.grace, userID)
	m.mu.Unlock()
	if timer == nil {
		return
	}
	timer.Stop()

	if event, err := run.session.Pause(userID, false); err == nil && event != nil {
		m.broadcaster.ToUsers(run.userIDs, MsgGameResumed, PausePayload{
			SessionID: run.session.ID(),
			UserID:    userID,
			State:     event.State,
		})
	}
	m.broadcaster.ToUsers(run.userIDs, MsgOpponentReconnected, map[string]any{
		"gameId": run.session.ID(),
		"userId": userID,
	})
	m.logger.Info("player reconnected to match",
		logging.String("session_id", run.session.ID()),
		logging.Int64("user_id", userID))
}

// Shutdown stops every loop and finalizes replay bundles. Running matches are
// abandoned without a winner.
func (m *Manager) Shutdown() {
	if m == nil {
		return
	}
	m.mu.Lock()
	runs := make([]*running, 0, len(m.sessions))
	for _, run := range m.sessions {
		runs = append(runs, run)
	}
	m.mu.Unlock()

	for _, run := range runs {
		run.loop.Stop()
		m.teardown(run, nil)
	}
}

func (m *Manager) runFor(userID int64) (*running, error) {
	if m == nil {
		return nil, errors.New("manager is nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.byUser[userID]
	if !ok {
		return nil, fmt.Errorf("%w: user %d", ErrNoSession, userID)
	}
	return run, nil
}

// step runs inside the loop goroutine once per fixed timestep.
func (m *Manager) step(run *running, dt time.Duration) {
	events := run.session.Tick(dt)
	for _, event := range events {
		m.dispatch(run, event)
	}
}

func (m *Manager) dispatch(run *running, event game.Event) {
	switch event.Kind {
	case game.EventState:
		m.broadcaster.ToUsers(run.userIDs, MsgGameState, event.State)
		if run.recorder != nil && event.State != nil {
			if payload, err := json.Marshal(event.State); err == nil {
				run.recorder.AppendFrame(event.State.Tick, payload)
			}
		}
	case game.EventGoal:
		m.broadcaster.ToUsers(run.userIDs, MsgGoalScored, map[string]any{
			"gameId": run.session.ID(),
			"scorer": event.Goal.Scorer,
			"scores": event.Goal.Scores,
		})
		if run.recorder != nil {
			if payload, err := json.Marshal(event.Goal); err == nil {
				run.recorder.AppendEvent(run.session.Snapshot().Tick, "goal", payload)
			}
		}
	case game.EventFinished:
		m.finish(run, event.Outcome)
	}
}

func (m *Manager) forfeit(run *running, leaverID int64) {
	event, err := run.session.Forfeit(leaverID)
	if err != nil || event == nil {
		return
	}
	m.finish(run, event.Outcome)
}

// finish performs teardown exactly once: announce the result, stop the loop,
// persist history, report the tournament bridge, and close the replay bundle.
func (m *Manager) finish(run *running, outcome *game.Outcome) {
	if outcome == nil {
		return
	}
	m.mu.Lock()
	if run.finished {
		m.mu.Unlock()
		return
	}
	run.finished = true
	for _, timer := range run.grace {
		timer.Stop()
	}
	m.mu.Unlock()

	m.broadcaster.ToUsers(run.userIDs, MsgGameEnded, EndedPayload{
		SessionID:  outcome.SessionID,
		Winner:     outcome.Winner,
		WinnerID:   outcome.WinnerID,
		WinnerName: outcome.WinnerName,
		Scores:     outcome.Scores,
		Forfeit:    outcome.Forfeit,
	})
	m.logger.Info("match finished",
		logging.String("session_id", outcome.SessionID),
		logging.String("winner", string(outcome.Winner)),
		logging.Int("left_score", outcome.Scores.Left),
		logging.Int("right_score", outcome.Scores.Right),
		logging.Bool("forfeit", outcome.Forfeit))

	m.persist(run, outcome)
	m.report(run, outcome)
	m.teardown(run, outcome)
}

func (m *Manager) persist(run *running, outcome *game.Outcome) {
	if m.store == nil {
		return
	}
	participants := run.session.Participants()
	record := history.Record{
		SessionID:  outcome.SessionID,
		Mode:       string(outcome.Mode),
		LeftID:     participants[0].UserID,
		LeftName:   participants[0].Username,
		RightID:    participants[1].UserID,
		RightName:  participants[1].Username,
		WinnerID:   outcome.WinnerID,
		LeftScore:  outcome.Scores.Left,
		RightScore: outcome.Scores.Right,
		Forfeit:    outcome.Forfeit,
		FinishedAt: time.Now().UTC(),
	}
	if outcome.Tournament != nil {
		record.TournamentID = outcome.Tournament.TournamentID
		record.MatchID = outcome.Tournament.MatchID
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.store.RecordMatch(ctx, record); err != nil {
		m.logger.Warn("match history write failed",
			logging.String("session_id", outcome.SessionID), logging.Error(err))
	}
}

func (m *Manager) report(run *running, outcome *game.Outcome) {
	if m.bridge == nil || outcome.Tournament == nil {
		return
	}
	result := tournament.Result{
		TournamentID: outcome.Tournament.TournamentID,
		MatchID:      outcome.Tournament.MatchID,
	}
	//1.- Ranks align index-for-index with the players slice: 1 wins, 2 loses.
	for _, participant := range run.session.Participants() {
		rank := 2
		if participant.UserID == outcome.WinnerID {
			rank = 1
		}
		result.Players = append(result.Players, participant.UserID)
		result.Ranks = append(result.Ranks, rank)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	go func() {
		defer cancel()
		m.bridge.Report(ctx, result)
	}()
}

// teardown removes the run from the lookup tables and releases its resources.
// The loop is stopped from a fresh goroutine because teardown may be invoked
// from inside the loop's own step.
func (m *Manager) teardown(run *running, outcome *game.Outcome) {
	m.mu.Lock()
	delete(m.sessions, run.session.ID())
	for _, userID := range run.userIDs {
		if m.byUser[userID] == run {
			delete(m.byUser, userID)
		}
	}
	recorder := run.recorder
	run.recorder = nil
	loop := run.loop
	m.mu.Unlock()

	if loop != nil {
		go loop.Stop()
	}
	if recorder != nil {
		if outcome != nil {
			if payload, err := json.Marshal(outcome); err == nil {
				recorder.AppendEvent(0, "finished", payload)
			}
		}
		if err := recorder.Close(); err != nil {
			m.logger.Warn("replay bundle close failed",
				logging.String("session_id", run.session.ID()), logging.Error(err))
		}
	}
}
