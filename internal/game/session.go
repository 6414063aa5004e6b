package game

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/calvinhon/ft-transcendence-sub004/internal/ai"
)

// Status enumerates the session lifecycle. Finished is terminal.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusCountdown Status = "countdown"
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusFinished  Status = "finished"
)

const (
	// defaultCountdown freezes play while clients render the 3..2..1 overlay.
	defaultCountdown = 3 * time.Second
	// serveFreeze holds the ball centred after a goal before the next serve.
	serveFreeze = time.Second
	// aiDeadband stops bot paddles from jittering around their target.
	aiDeadband = 4.0
)

var (
	// ErrNotParticipant is returned when a user acts on a session they are not part of.
	ErrNotParticipant = errors.New("user is not a participant in this session")
	// ErrInvalidDirection is returned for movement intents that are neither up nor down.
	ErrInvalidDirection = errors.New("direction must be up or down")
	// ErrInvalidPaddle is returned when a paddle index does not exist for the sender's team.
	ErrInvalidPaddle = errors.New("paddle index out of range")
	// ErrStaleIntent signals an intent whose sequence id is not newer than the last accepted one.
	ErrStaleIntent = errors.New("intent sequence is stale")
	// ErrNotActive is returned for pause requests outside the Active state.
	ErrNotActive = errors.New("session is not active")
	// ErrNotPauseHolder is returned when the resume policy restricts resuming to the pauser.
	ErrNotPauseHolder = errors.New("only the pausing player may resume")
	// ErrFinished is returned for any mutation attempted after the terminal state.
	ErrFinished = errors.New("session already finished")
)

// Participant identifies one side of a match. Bot participants carry the AI
// profile that drives their paddles.
type Participant struct {
	UserID   int64
	Username string
	Side     Side
	Bot      bool
	Profile  ai.Profile
}

// Linkage tags a session with the tournament match its outcome belongs to.
type Linkage struct {
	TournamentID int64
	MatchID      int64
}

// EventKind labels the notifications a tick or state transition produces.
type EventKind string

const (
	EventState    EventKind = "state"
	EventGoal     EventKind = "goal"
	EventPaused   EventKind = "paused"
	EventResumed  EventKind = "resumed"
	EventFinished EventKind = "finished"
)

// Goal records a single point.
type Goal struct {
	Scorer Side
	Scores Scores
}

// Outcome summarises a finished match for broadcast, history, and the
// tournament bridge.
type Outcome struct {
	SessionID  string
	Mode       Mode
	Winner     Side
	WinnerID   int64
	WinnerName string
	Scores     Scores
	Forfeit    bool
	Tournament *Linkage
}

// Event is a notification emitted by the session for the gateway to fan out.
type Event struct {
	Kind    EventKind
	State   *Snapshot
	Goal    *Goal
	Outcome *Outcome
}

// Snapshot is a point-in-time copy of the full match state. Callers receive
// fresh slices and may mutate them freely.
type Snapshot struct {
	SessionID string   `json:"gameId"`
	Status    Status   `json:"status"`
	Countdown int      `json:"countdown,omitempty"`
	Ball      Ball     `json:"ball"`
	Left      []Paddle `json:"leftPaddles"`
	Right     []Paddle `json:"rightPaddles"`
	Scores    Scores   `json:"scores"`
	Tick      uint64   `json:"tick"`
}

type paddleKey struct {
	side  Side
	index int
}

type intentState struct {
	direction Direction
	lastSeq   uint64
	pending   bool
}

type botState struct {
	nextDecision time.Duration
	target       float64
}

// SessionOption configures optional Session behaviour at construction time.
type SessionOption func(*Session)

// WithRand injects a deterministic random source for serves and AI mistakes.
func WithRand(rng *rand.Rand) SessionOption {
	return func(s *Session) {
		if rng != nil {
			s.rng = rng
		}
	}
}

// WithResumePolicy selects who may resume a paused match: "any" participant or
// only the pause "holder".
func WithResumePolicy(policy string) SessionOption {
	return func(s *Session) {
		s.resumeAny = strings.TrimSpace(policy) != "holder"
	}
}

// WithCountdown overrides the pre-serve countdown duration.
func WithCountdown(d time.Duration) SessionOption {
	return func(s *Session) {
		if d >= 0 {
			s.countdown = d
		}
	}
}

// WithTournament links the session outcome to an external tournament match.
func WithTournament(linkage Linkage) SessionOption {
	return func(s *Session) {
		clone := linkage
		s.tournament = &clone
	}
}

// Session owns the full mutable state of one match. All mutation happens under
// the session mutex: the tick driver and message dispatch serialize there, so
// no two goroutines ever race on match state.
type Session struct {
	mu sync.Mutex

	id       string
	settings Settings
	left     Participant
	right    Participant

	paddles map[Side][]Paddle
	ball    Ball
	scores  Scores
	status  Status

	countdown time.Duration
	freeze    time.Duration
	tick      uint64
	elapsed   time.Duration

	pauseHolder int64
	resumeAny   bool
	tournament  *Linkage

	intents map[paddleKey]*intentState
	bots    map[paddleKey]*botState

	rng         *rand.Rand
	phys        physics
	paddleSpeed float64
	outcome     *Outcome
}

// NewSession builds a session in the Waiting state. Settings are normalized and
// frozen; paddles are laid out per mode and the first serve is staged frozen.
func NewSession(id string, settings Settings, left, right Participant, opts ...SessionOption) (*Session, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("session id must not be empty")
	}
	normalized, err := settings.Normalize()
	if err != nil {
		return nil, err
	}
	if left.UserID == right.UserID {
		return nil, fmt.Errorf("participants must be distinct, both are user %d", left.UserID)
	}
	left.Side = SideLeft
	right.Side = SideRight

	session := &Session{
		id:          id,
		settings:    normalized,
		left:        left,
		right:       right,
		status:      StatusWaiting,
		countdown:   defaultCountdown,
		resumeAny:   true,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		phys:        physics{ballSpeed: normalized.BallSpeedValue(), accelerateOnHit: normalized.AccelerateOnHit},
		paddleSpeed: normalized.PaddleSpeedValue(),
		intents:     make(map[paddleKey]*intentState),
		bots:        make(map[paddleKey]*botState),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(session)
		}
	}

	//1.- Lay out paddles per side: coop plays one each, team modes spread them out.
	session.paddles = map[Side][]Paddle{
		SideLeft:  layoutPaddles(SideLeft, normalized.Team1Count),
		SideRight: layoutPaddles(SideRight, normalized.Team2Count),
	}
	//2.- Register a throttled decision slot for every bot-controlled paddle.
	for _, participant := range []Participant{left, right} {
		if !participant.Bot {
			continue
		}
		for i := range session.paddles[participant.Side] {
			session.bots[paddleKey{side: participant.Side, index: i}] = &botState{target: BoardHeight / 2}
		}
	}
	//3.- Stage the opening serve frozen until the countdown releases it.
	serve(&session.ball, session.phys.ballSpeed, session.rng)
	return session, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	if s == nil {
		return ""
	}
	return s.id
}

// Settings returns the frozen match settings.
func (s *Session) Settings() Settings {
	if s == nil {
		return Settings{}
	}
	return s.settings
}

// Tournament returns the linkage, or nil for casual matches.
func (s *Session) Tournament() *Linkage {
	if s == nil || s.tournament == nil {
		return nil
	}
	clone := *s.tournament
	return &clone
}

// Participants returns the left and right participants in order.
func (s *Session) Participants() [2]Participant {
	if s == nil {
		return [2]Participant{}
	}
	return [2]Participant{s.left, s.right}
}

// HasParticipant reports whether the user plays in this session.
func (s *Session) HasParticipant(userID int64) bool {
	if s == nil {
		return false
	}
	return s.left.UserID == userID || s.right.UserID == userID
}

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	if s == nil {
		return StatusFinished
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Outcome returns the terminal outcome, or nil while the match is running.
func (s *Session) Outcome() *Outcome {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outcome == nil {
		return nil
	}
	clone := *s.outcome
	return &clone
}

// Begin moves the session out of Waiting into the countdown phase.
func (s *Session) Begin() (Event, error) {
	if s == nil {
		return Event{}, errors.New("session is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusWaiting {
		return Event{}, fmt.Errorf("cannot begin session in state %s", s.status)
	}
	s.status = StatusCountdown
	return Event{Kind: EventState, State: s.snapshotLocked()}, nil
}

// ApplyIntent records a movement intent for one of the sender's paddles. Only
// the newest intent per paddle survives until the next tick; stale or duplicate
// sequence ids are dropped.
func (s *Session) ApplyIntent(userID int64, direction Direction, paddleIndex int, sequence uint64) error {
	if s == nil {
		return errors.New("session is nil")
	}
	if !direction.Valid() {
		return ErrInvalidDirection
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusFinished {
		return ErrFinished
	}
	participant, ok := s.participantLocked(userID)
	if !ok {
		return ErrNotParticipant
	}
	if paddleIndex < 0 || paddleIndex >= len(s.paddles[participant.Side]) {
		return fmt.Errorf("%w: %d", ErrInvalidPaddle, paddleIndex)
	}
	key := paddleKey{side: participant.Side, index: paddleIndex}
	state := s.intents[key]
	if state == nil {
		state = &intentState{}
		s.intents[key] = state
	}
	//1.- Enforce monotonic sequencing when the client numbers its intents.
	if sequence != 0 && sequence <= state.lastSeq {
		return fmt.Errorf("%w: got %d, last %d", ErrStaleIntent, sequence, state.lastSeq)
	}
	if sequence != 0 {
		state.lastSeq = sequence
	}
	state.direction = direction
	state.pending = true
	return nil
}

// Pause requests a pause or resume on behalf of a participant. A second pause
// while already paused is a no-op and produces no event.
func (s *Session) Pause(userID int64, paused bool) (*Event, error) {
	if s == nil {
		return nil, errors.New("session is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusFinished {
		return nil, ErrFinished
	}
	if _, ok := s.participantLocked(userID); !ok {
		return nil, ErrNotParticipant
	}
	if paused {
		if s.status == StatusPaused {
			return nil, nil
		}
		if s.status != StatusActive {
			return nil, ErrNotActive
		}
		s.status = StatusPaused
		s.pauseHolder = userID
		return &Event{Kind: EventPaused, State: s.snapshotLocked()}, nil
	}
	if s.status != StatusPaused {
		return nil, nil
	}
	//1.- The resume policy decides whether anyone or only the pauser may resume.
	if !s.resumeAny && userID != s.pauseHolder {
		return nil, ErrNotPauseHolder
	}
	s.status = StatusActive
	s.pauseHolder = 0
	return &Event{Kind: EventResumed, State: s.snapshotLocked()}, nil
}

// Forfeit finishes the match in favour of the remaining participant after the
// leaver's grace period expired. Calling it on a finished session is a no-op.
func (s *Session) Forfeit(leaverID int64) (*Event, error) {
	if s == nil {
		return nil, errors.New("session is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusFinished {
		return nil, nil
	}
	leaver, ok := s.participantLocked(leaverID)
	if !ok {
		return nil, ErrNotParticipant
	}
	winner := leaver.Side.Opponent()
	//1.- Award the win with the full score-to-win margin attributed to the forfeit.
	if winner == SideLeft {
		s.scores.Left = s.settings.ScoreToWin
	} else {
		s.scores.Right = s.settings.ScoreToWin
	}
	outcome := s.finishLocked(winner, true)
	return &Event{Kind: EventFinished, State: s.snapshotLocked(), Outcome: outcome}, nil
}

// Tick advances the simulation by one fixed timestep and returns the events to
// broadcast. Paused and finished sessions tick to nothing.
func (s *Session) Tick(dt time.Duration) []Event {
	if s == nil || dt <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.status {
	case StatusWaiting, StatusPaused, StatusFinished:
		return nil
	}
	s.tick++
	s.elapsed += dt

	if s.status == StatusCountdown {
		s.countdown -= dt
		if s.countdown <= 0 {
			s.countdown = 0
			s.status = StatusActive
			s.ball.Frozen = false
		}
		return []Event{{Kind: EventState, State: s.snapshotLocked()}}
	}

	var events []Event
	step := dt.Seconds()

	//1.- Apply the freshest human intent per paddle, then clear it for the next tick.
	for key, state := range s.intents {
		if !state.pending {
			continue
		}
		state.pending = false
		s.movePaddleLocked(key, state.direction, step)
	}
	//2.- Let throttled bot controllers steer their paddles through the same path.
	s.driveBotsLocked(step)

	//3.- Count down the serve freeze before the ball is released.
	if s.ball.Frozen && s.freeze > 0 {
		s.freeze -= dt
		if s.freeze <= 0 {
			s.freeze = 0
			s.ball.Frozen = false
		}
	}

	result := s.phys.step(&s.ball, s.paddles[SideLeft], s.paddles[SideRight], step)
	if result.Scored {
		if result.Scorer == SideLeft {
			s.scores.Left++
		} else {
			s.scores.Right++
		}
		events = append(events, Event{Kind: EventGoal, Goal: &Goal{Scorer: result.Scorer, Scores: s.scores}})
		if s.scores.ForSide(result.Scorer) >= s.settings.ScoreToWin {
			outcome := s.finishLocked(result.Scorer, false)
			events = append(events,
				Event{Kind: EventState, State: s.snapshotLocked()},
				Event{Kind: EventFinished, State: s.snapshotLocked(), Outcome: outcome},
			)
			return events
		}
		//4.- Re-centre the ball frozen for the serve delay before the next rally.
		serve(&s.ball, s.phys.ballSpeed, s.rng)
		s.freeze = serveFreeze
	}

	events = append(events, Event{Kind: EventState, State: s.snapshotLocked()})
	return events
}

// Snapshot returns a copy of the current state for external observers.
func (s *Session) Snapshot() *Snapshot {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) participantLocked(userID int64) (Participant, bool) {
	if s.left.UserID == userID {
		return s.left, true
	}
	if s.right.UserID == userID {
		return s.right, true
	}
	return Participant{}, false
}

func (s *Session) movePaddleLocked(key paddleKey, direction Direction, step float64) {
	paddles := s.paddles[key.side]
	if key.index < 0 || key.index >= len(paddles) {
		return
	}
	delta := s.paddleSpeed * step
	if direction == DirectionUp {
		delta = -delta
	}
	paddles[key.index].Y = clampPaddleY(paddles[key.index].Y + delta)
}

func (s *Session) driveBotsLocked(step float64) {
	for key, bot := range s.bots {
		paddles := s.paddles[key.side]
		if key.index >= len(paddles) {
			continue
		}
		profile := s.right.Profile
		if key.side == SideLeft {
			profile = s.left.Profile
		}
		//1.- Recompute the target only once per reaction window; reuse it in between.
		if s.elapsed >= bot.nextDecision {
			bot.target = ai.Decide(profile, s.ball.Y, paddles[key.index].Y, PaddleHeight, s.rng)
			bot.nextDecision = s.elapsed + profile.ReactionTime
		}
		center := paddles[key.index].Y + PaddleHeight/2
		delta := bot.target - center
		if math.Abs(delta) < aiDeadband {
			continue
		}
		move := math.Min(math.Abs(delta), s.paddleSpeed*step)
		if delta < 0 {
			move = -move
		}
		paddles[key.index].Y = clampPaddleY(paddles[key.index].Y + move)
	}
}

func (s *Session) finishLocked(winner Side, forfeit bool) *Outcome {
	s.status = StatusFinished
	s.pauseHolder = 0
	winning := s.right
	if winner == SideLeft {
		winning = s.left
	}
	outcome := &Outcome{
		SessionID:  s.id,
		Mode:       s.settings.Mode,
		Winner:     winner,
		WinnerID:   winning.UserID,
		WinnerName: winning.Username,
		Scores:     s.scores,
		Forfeit:    forfeit,
	}
	if s.tournament != nil {
		clone := *s.tournament
		outcome.Tournament = &clone
	}
	s.outcome = outcome
	return outcome
}

func (s *Session) snapshotLocked() *Snapshot {
	snapshot := &Snapshot{
		SessionID: s.id,
		Status:    s.status,
		Ball:      s.ball,
		Scores:    s.scores,
		Tick:      s.tick,
		Left:      append([]Paddle(nil), s.paddles[SideLeft]...),
		Right:     append([]Paddle(nil), s.paddles[SideRight]...),
	}
	if s.status == StatusCountdown {
		snapshot.Countdown = int(math.Ceil(s.countdown.Seconds()))
	}
	return snapshot
}
