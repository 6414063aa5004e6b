package ai

import (
	"strings"
	"time"
)

// Difficulty selects one of the built-in bot skill tiers.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Profile describes a bot opponent. Skill is bounded purely through decision
// cadence and error rate; the controller never sees more state than a player would.
type Profile struct {
	Difficulty   Difficulty
	Name         string
	ReactionTime time.Duration
	ErrorChance  float64
}

var profiles = map[Difficulty]Profile{
	DifficultyEasy:   {Difficulty: DifficultyEasy, Name: "EasyBot", ReactionTime: 300 * time.Millisecond, ErrorChance: 0.18},
	DifficultyMedium: {Difficulty: DifficultyMedium, Name: "MediumBot", ReactionTime: 200 * time.Millisecond, ErrorChance: 0.09},
	DifficultyHard:   {Difficulty: DifficultyHard, Name: "HardBot", ReactionTime: 100 * time.Millisecond, ErrorChance: 0.04},
}

// ProfileFor resolves the profile for a difficulty key, falling back to medium
// for unknown values so malformed settings never break session creation.
func ProfileFor(difficulty string) Profile {
	key := Difficulty(strings.ToLower(strings.TrimSpace(difficulty)))
	if profile, ok := profiles[key]; ok {
		return profile
	}
	return profiles[DifficultyMedium]
}

// Profiles returns every built-in profile, ordered easy to hard.
func Profiles() []Profile {
	return []Profile{profiles[DifficultyEasy], profiles[DifficultyMedium], profiles[DifficultyHard]}
}
