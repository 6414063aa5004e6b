package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/calvinhon/ft-transcendence-sub004/internal/game"
)

// Inbound message kinds accepted from clients.
const (
	MsgAuthenticate = "authenticate"
	MsgJoinGame     = "joinGame"
	MsgJoinBotGame  = "joinBotGame"
	MsgLeaveQueue   = "leaveQueue"
	MsgMovePaddle   = "movePaddle"
	MsgPause        = "pause"
	MsgLeaveGame    = "leaveGame"
	MsgListOnline   = "listOnline"
)

// Outbound message kinds produced by the gateway itself. Session lifecycle
// kinds (gameStarted, gameState, ...) live in the match package.
const (
	MsgConnectionAck  = "connectionAck"
	MsgQueued         = "queued"
	MsgMatchedWithBot = "matchedWithBot"
	MsgOnlineUsers    = "onlineUsers"
	MsgError          = "error"
)

// Error codes carried in error frames so clients can react programmatically.
const (
	CodeUnauthenticated = "unauthenticated"
	CodeBadRequest      = "badRequest"
	CodeInvalidSettings = "invalidSettings"
	CodeAlreadyQueued   = "alreadyQueued"
	CodeUserBusy        = "userBusy"
	CodeNotInMatch      = "notInMatch"
	CodeInternal        = "internal"
)

var errMissingType = errors.New("message has no type")

// Envelope is the wire frame for every message in both directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ParseEnvelope decodes and minimally validates one inbound frame.
func ParseEnvelope(raw []byte) (Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return Envelope{}, fmt.Errorf("malformed message: %w", err)
	}
	if envelope.Type == "" {
		return Envelope{}, errMissingType
	}
	return envelope, nil
}

// AuthPayload carries either a signed token or, in development setups without
// a shared secret, a self-declared identity.
type AuthPayload struct {
	Token    string `json:"token,omitempty"`
	UserID   int64  `json:"userId,omitempty"`
	Username string `json:"username,omitempty"`
}

// JoinPayload asks for a match with the given settings. Tournament joins also
// carry the bracket linkage so the result lands on the right match.
type JoinPayload struct {
	Settings     game.Settings `json:"settings"`
	TournamentID int64         `json:"tournamentId,omitempty"`
	MatchID      int64         `json:"matchId,omitempty"`
}

// Linkage converts the optional tournament fields into a session linkage.
func (p JoinPayload) Linkage() game.Linkage {
	return game.Linkage{TournamentID: p.TournamentID, MatchID: p.MatchID}
}

// MovePayload is a paddle movement intent.
type MovePayload struct {
	Direction   game.Direction `json:"direction"`
	PaddleIndex int            `json:"paddleIndex"`
	Sequence    uint64         `json:"sequence,omitempty"`
}

// Validate rejects intents the session would refuse anyway, without taking
// the session lock.
func (p MovePayload) Validate() error {
	if !p.Direction.Valid() {
		return fmt.Errorf("direction must be up or down, got %q", p.Direction)
	}
	if p.PaddleIndex < 0 {
		return fmt.Errorf("paddleIndex must not be negative, got %d", p.PaddleIndex)
	}
	return nil
}

// PausePayload toggles the pause state of the sender's match.
type PausePayload struct {
	Paused bool `json:"paused"`
}

// AckPayload confirms a successful authentication.
type AckPayload struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
	InMatch  bool   `json:"inMatch,omitempty"`
}

// ErrorPayload is the body of every error frame.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Encode wraps a payload into a wire frame. Marshal failures fall back to an
// internal error frame so the client always receives valid JSON.
func Encode(messageType string, payload any) []byte {
	data, err := json.Marshal(payload)
	if err != nil {
		fallback, _ := json.Marshal(Envelope{Type: MsgError})
		return fallback
	}
	frame, err := json.Marshal(Envelope{Type: messageType, Data: data})
	if err != nil {
		fallback, _ := json.Marshal(Envelope{Type: MsgError})
		return fallback
	}
	return frame
}
