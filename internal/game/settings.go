package game

import (
	"errors"
	"fmt"
	"strings"
)

// Mode selects the paddle layout and pairing rules for a match.
type Mode string

const (
	ModeCoop       Mode = "coop"
	ModeArcade     Mode = "arcade"
	ModeTournament Mode = "tournament"
)

// ErrInvalidSettings is returned when match settings violate basic invariants.
var ErrInvalidSettings = errors.New("invalid game settings")

// Speed presets accepted for ball and paddle pace. The numeric values are the
// classic per-frame pixel steps expressed in pixels per second at 60 Hz.
const (
	SpeedSlow   = "slow"
	SpeedMedium = "medium"
	SpeedFast   = "fast"
)

// Settings captures the immutable per-match configuration. Values are frozen
// once a session starts.
type Settings struct {
	Mode            Mode   `json:"gameMode"`
	AIDifficulty    string `json:"aiDifficulty"`
	BallSpeed       string `json:"ballSpeed"`
	PaddleSpeed     string `json:"paddleSpeed"`
	PowerupsEnabled bool   `json:"powerupsEnabled"`
	AccelerateOnHit bool   `json:"accelerateOnHit"`
	ScoreToWin      int    `json:"scoreToWin"`
	Team1Count      int    `json:"team1PlayerCount,omitempty"`
	Team2Count      int    `json:"team2PlayerCount,omitempty"`
}

// DefaultSettings mirrors the service defaults applied when a client omits its
// preferences entirely.
func DefaultSettings() Settings {
	return Settings{
		Mode:         ModeCoop,
		AIDifficulty: "medium",
		BallSpeed:    SpeedMedium,
		PaddleSpeed:  SpeedMedium,
		ScoreToWin:   5,
		Team1Count:   1,
		Team2Count:   1,
	}
}

// Normalize fills omitted fields with defaults and validates the rest.
func (s Settings) Normalize() (Settings, error) {
	defaults := DefaultSettings()
	//1.- Backfill blanks before validating so sparse client payloads stay usable.
	if strings.TrimSpace(string(s.Mode)) == "" {
		s.Mode = defaults.Mode
	}
	if strings.TrimSpace(s.AIDifficulty) == "" {
		s.AIDifficulty = defaults.AIDifficulty
	}
	if strings.TrimSpace(s.BallSpeed) == "" {
		s.BallSpeed = defaults.BallSpeed
	}
	if strings.TrimSpace(s.PaddleSpeed) == "" {
		s.PaddleSpeed = defaults.PaddleSpeed
	}
	if s.ScoreToWin == 0 {
		s.ScoreToWin = defaults.ScoreToWin
	}
	if s.Team1Count <= 0 {
		s.Team1Count = 1
	}
	if s.Team2Count <= 0 {
		s.Team2Count = 1
	}

	switch s.Mode {
	case ModeCoop, ModeArcade, ModeTournament:
	default:
		return Settings{}, fmt.Errorf("%w: unknown game mode %q", ErrInvalidSettings, s.Mode)
	}
	if s.ScoreToWin < 0 {
		return Settings{}, fmt.Errorf("%w: scoreToWin must be positive, got %d", ErrInvalidSettings, s.ScoreToWin)
	}
	if !validPreset(s.BallSpeed) {
		return Settings{}, fmt.Errorf("%w: unknown ball speed %q", ErrInvalidSettings, s.BallSpeed)
	}
	if !validPreset(s.PaddleSpeed) {
		return Settings{}, fmt.Errorf("%w: unknown paddle speed %q", ErrInvalidSettings, s.PaddleSpeed)
	}
	//2.- Coop always plays one paddle per side regardless of requested team sizes.
	if s.Mode == ModeCoop {
		s.Team1Count = 1
		s.Team2Count = 1
	}
	if s.Team1Count > 4 || s.Team2Count > 4 {
		return Settings{}, fmt.Errorf("%w: team size is capped at 4 paddles", ErrInvalidSettings)
	}
	return s, nil
}

// Compatible reports whether two queued settings can share a match. Pairing
// requires the same mode and the same team shape; first fit in arrival order
// decides beyond that.
func (s Settings) Compatible(other Settings) bool {
	return s.Mode == other.Mode &&
		s.Team1Count == other.Team1Count &&
		s.Team2Count == other.Team2Count
}

// BallSpeedValue resolves the ball speed preset to pixels per second.
func (s Settings) BallSpeedValue() float64 {
	return presetValue(s.BallSpeed, 360, 480, 720)
}

// PaddleSpeedValue resolves the paddle speed preset to pixels per second.
func (s Settings) PaddleSpeedValue() float64 {
	return presetValue(s.PaddleSpeed, 480, 780, 1080)
}

func validPreset(raw string) bool {
	switch raw {
	case SpeedSlow, SpeedMedium, SpeedFast:
		return true
	}
	return false
}

func presetValue(raw string, slow, medium, fast float64) float64 {
	switch raw {
	case SpeedSlow:
		return slow
	case SpeedFast:
		return fast
	default:
		return medium
	}
}
