package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/calvinhon/ft-transcendence-sub004/internal/ai"
	"github.com/calvinhon/ft-transcendence-sub004/internal/auth"
	"github.com/calvinhon/ft-transcendence-sub004/internal/game"
	"github.com/calvinhon/ft-transcendence-sub004/internal/logging"
	"github.com/calvinhon/ft-transcendence-sub004/internal/match"
	"github.com/calvinhon/ft-transcendence-sub004/internal/matchmaking"
	"github.com/calvinhon/ft-transcendence-sub004/internal/registry"
)

// Sender delivers a raw frame to one connection handle. Implementations must
// tolerate handles that vanished between resolution and delivery.
type Sender interface {
	Send(handleID string, frame []byte) error
}

// Gateway is the message layer between raw connections and the match engine.
// It authenticates handles, validates inbound frames, routes actions, and fans
// outbound events back out through the registry.
type Gateway struct {
	sender   Sender
	registry *registry.Registry
	verifier *auth.Verifier
	logger   *logging.Logger

	manager *match.Manager
	queue   *matchmaking.Queue
}

// NewGateway builds a gateway over the given transport. Bind must be called
// with the manager and queue before the first frame arrives.
func NewGateway(sender Sender, reg *registry.Registry, verifier *auth.Verifier, logger *logging.Logger) *Gateway {
	if logger == nil {
		logger = logging.L()
	}
	return &Gateway{
		sender:   sender,
		registry: reg,
		verifier: verifier,
		logger:   logger,
	}
}

// Bind wires the session manager and matchmaking queue. Called once during
// startup, before any connection is accepted.
func (g *Gateway) Bind(manager *match.Manager, queue *matchmaking.Queue) {
	g.manager = manager
	g.queue = queue
}

// SetSender installs the transport. The hub and gateway reference each other,
// so whichever is built second closes the cycle here before serving starts.
func (g *Gateway) SetSender(sender Sender) {
	g.sender = sender
}

// ToUsers implements match.Broadcaster: handles are resolved at send time so a
// user who dropped between event and delivery is silently skipped.
func (g *Gateway) ToUsers(userIDs []int64, messageType string, payload any) {
	if g == nil || g.sender == nil {
		return
	}
	frame := Encode(messageType, payload)
	for _, userID := range userIDs {
		for _, handle := range g.registry.HandlesFor(userID) {
			if err := g.sender.Send(handle, frame); err != nil {
				g.logger.Debug("frame delivery failed",
					logging.String("handle", handle),
					logging.String("type", messageType),
					logging.Error(err))
			}
		}
	}
}

// OnMatch receives completed pairings from the matchmaking queue and turns
// them into live sessions.
func (g *Gateway) OnMatch(result matchmaking.Match) {
	first := result.Players[0]
	settings := first.Settings
	left := game.Participant{UserID: first.UserID, Username: first.Username}

	var right game.Participant
	if result.WithBot {
		//1.- The wait-timeout fallback always fields the medium bot; the requested
		// difficulty only applies to explicit bot games.
		settings.AIDifficulty = string(ai.DifficultyMedium)
		//2.- Tell the waiting player a bot stepped in before the match announces.
		g.ToUsers([]int64{first.UserID}, MsgMatchedWithBot, map[string]any{
			"difficulty": settings.AIDifficulty,
		})
		right = match.BotParticipant(settings)
	} else {
		second := result.Players[1]
		right = game.Participant{UserID: second.UserID, Username: second.Username}
	}

	var linkage *game.Linkage
	if first.Linkage != (game.Linkage{}) {
		clone := first.Linkage
		linkage = &clone
	}
	if _, err := g.manager.CreateMatch(left, right, settings, linkage); err != nil {
		g.logger.Error("match creation failed",
			logging.Int64("left", left.UserID),
			logging.Int64("right", right.UserID),
			logging.Error(err))
		targets := []int64{left.UserID}
		if !right.Bot {
			targets = append(targets, right.UserID)
		}
		g.ToUsers(targets, MsgError, ErrorPayload{Code: CodeInternal, Message: "failed to start match"})
	}
}

// HandleMessage processes one inbound frame from a connection handle.
func (g *Gateway) HandleMessage(handleID string, raw []byte) {
	envelope, err := ParseEnvelope(raw)
	if err != nil {
		g.sendError(handleID, CodeBadRequest, err.Error())
		return
	}

	if envelope.Type == MsgAuthenticate {
		g.handleAuth(handleID, envelope.Data)
		return
	}
	//1.- Every other message requires an authenticated handle.
	identity, err := g.registry.IdentityFor(handleID)
	if err != nil {
		g.sendError(handleID, CodeUnauthenticated, "authenticate first")
		return
	}

	switch envelope.Type {
	case MsgJoinGame:
		g.handleJoin(handleID, identity, envelope.Data, false)
	case MsgJoinBotGame:
		g.handleJoin(handleID, identity, envelope.Data, true)
	case MsgLeaveQueue:
		g.queue.Dequeue(identity.UserID)
	case MsgMovePaddle:
		g.handleMove(handleID, identity, envelope.Data)
	case MsgPause:
		g.handlePause(handleID, identity, envelope.Data)
	case MsgLeaveGame:
		if err := g.manager.Leave(identity.UserID); err != nil && !errors.Is(err, match.ErrNoSession) {
			g.sendError(handleID, CodeInternal, "failed to leave match")
		}
	case MsgListOnline:
		g.send(handleID, MsgOnlineUsers, g.registry.Snapshot())
	default:
		g.sendError(handleID, CodeBadRequest, fmt.Sprintf("unknown message type %q", envelope.Type))
	}
}

// HandleClose cleans up after a dropped connection. Only the last handle of a
// user triggers queue removal and the match forfeit grace timer.
func (g *Gateway) HandleClose(handleID string) {
	userID, offline := g.registry.RemoveHandle(handleID)
	if !offline {
		return
	}
	g.queue.Dequeue(userID)
	g.manager.HandleDisconnect(userID)
	g.broadcastPresence()
}

func (g *Gateway) handleAuth(handleID string, data json.RawMessage) {
	var payload AuthPayload
	if len(data) > 0 {
		if err := json.Unmarshal(data, &payload); err != nil {
			g.sendError(handleID, CodeBadRequest, "malformed authenticate payload")
			return
		}
	}

	userID := payload.UserID
	username := payload.Username
	if g.verifier.Enabled() {
		claims, err := g.verifier.Verify(payload.Token)
		if err != nil {
			g.sendError(handleID, CodeUnauthenticated, "invalid token")
			return
		}
		userID = claims.UserID
		username = claims.Username
	}
	if userID == 0 {
		g.sendError(handleID, CodeUnauthenticated, "missing identity")
		return
	}
	if username == "" {
		username = fmt.Sprintf("player-%d", userID)
	}

	if err := g.registry.AddHandle(userID, username, handleID); err != nil {
		g.sendError(handleID, CodeInternal, "registration failed")
		return
	}
	_, inMatch := g.manager.SessionFor(userID)
	g.send(handleID, MsgConnectionAck, AckPayload{UserID: userID, Username: username, InMatch: inMatch})
	g.broadcastPresence()

	//1.- A player returning mid-match cancels their forfeit countdown.
	if inMatch {
		g.manager.HandleReconnect(userID)
	}
	g.logger.Info("connection authenticated",
		logging.String("handle", handleID),
		logging.Int64("user_id", userID),
		logging.Bool("in_match", inMatch))
}

func (g *Gateway) handleJoin(handleID string, identity registry.Entry, data json.RawMessage, withBot bool) {
	var payload JoinPayload
	if len(data) > 0 {
		if err := json.Unmarshal(data, &payload); err != nil {
			g.sendError(handleID, CodeBadRequest, "malformed join payload")
			return
		}
	}
	settings, err := payload.Settings.Normalize()
	if err != nil {
		g.sendError(handleID, CodeInvalidSettings, err.Error())
		return
	}
	if _, busy := g.manager.SessionFor(identity.UserID); busy {
		g.sendError(handleID, CodeUserBusy, "already in a match")
		return
	}

	//1.- Bot games and coop mode skip the queue entirely.
	if withBot || settings.Mode == game.ModeCoop {
		left := game.Participant{UserID: identity.UserID, Username: identity.Username}
		var linkage *game.Linkage
		if payload.Linkage() != (game.Linkage{}) {
			clone := payload.Linkage()
			linkage = &clone
		}
		if _, err := g.manager.CreateMatch(left, match.BotParticipant(settings), settings, linkage); err != nil {
			g.routeActionError(handleID, err)
		}
		return
	}

	player := matchmaking.Player{
		UserID:   identity.UserID,
		Username: identity.Username,
		Settings: settings,
		Linkage:  payload.Linkage(),
	}
	matched, err := g.queue.Enqueue(player)
	if err != nil {
		g.routeActionError(handleID, err)
		return
	}
	if !matched {
		g.send(handleID, MsgQueued, map[string]any{"mode": settings.Mode})
	}
}

func (g *Gateway) handleMove(handleID string, identity registry.Entry, data json.RawMessage) {
	var payload MovePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		g.sendError(handleID, CodeBadRequest, "malformed move payload")
		return
	}
	if err := payload.Validate(); err != nil {
		g.sendError(handleID, CodeBadRequest, err.Error())
		return
	}
	err := g.manager.HandleMove(identity.UserID, payload.Direction, payload.PaddleIndex, payload.Sequence)
	if err != nil && !errors.Is(err, game.ErrStaleIntent) {
		//1.- Stale intents are routine under latency; everything else surfaces.
		g.routeActionError(handleID, err)
	}
}

func (g *Gateway) handlePause(handleID string, identity registry.Entry, data json.RawMessage) {
	var payload PausePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		g.sendError(handleID, CodeBadRequest, "malformed pause payload")
		return
	}
	if err := g.manager.HandlePause(identity.UserID, payload.Paused); err != nil {
		g.routeActionError(handleID, err)
	}
}

// routeActionError maps engine errors onto the wire error taxonomy.
func (g *Gateway) routeActionError(handleID string, err error) {
	switch {
	case errors.Is(err, match.ErrNoSession):
		g.sendError(handleID, CodeNotInMatch, "no active match")
	case errors.Is(err, match.ErrUserBusy):
		g.sendError(handleID, CodeUserBusy, "already in a match")
	case errors.Is(err, matchmaking.ErrAlreadyQueued):
		g.sendError(handleID, CodeAlreadyQueued, "already waiting for a match")
	case errors.Is(err, game.ErrInvalidSettings):
		g.sendError(handleID, CodeInvalidSettings, err.Error())
	case errors.Is(err, game.ErrInvalidDirection),
		errors.Is(err, game.ErrInvalidPaddle),
		errors.Is(err, game.ErrNotActive),
		errors.Is(err, game.ErrNotPauseHolder),
		errors.Is(err, game.ErrNotParticipant),
		errors.Is(err, game.ErrFinished):
		g.sendError(handleID, CodeBadRequest, err.Error())
	default:
		g.logger.Error("unhandled action error", logging.Error(err))
		g.sendError(handleID, CodeInternal, "internal error")
	}
}

// broadcastPresence pushes the online user list to everyone who is connected.
func (g *Gateway) broadcastPresence() {
	entries := g.registry.Snapshot()
	userIDs := make([]int64, 0, len(entries))
	for _, entry := range entries {
		userIDs = append(userIDs, entry.UserID)
	}
	g.ToUsers(userIDs, MsgOnlineUsers, entries)
}

func (g *Gateway) send(handleID, messageType string, payload any) {
	if err := g.sender.Send(handleID, Encode(messageType, payload)); err != nil {
		g.logger.Debug("frame delivery failed",
			logging.String("handle", handleID),
			logging.String("type", messageType),
			logging.Error(err))
	}
}

func (g *Gateway) sendError(handleID, code, message string) {
	g.send(handleID, MsgError, ErrorPayload{Code: code, Message: message})
}
