package ai

import "math/rand"

// Decide returns the vertical target the bot paddle should steer towards.
// With probability ErrorChance the target is deliberately offset from the ball
// to simulate a misread; otherwise the bot simply tracks the ball's height.
// The function is pure apart from draws on the supplied source and never
// mutates session state; callers feed the target through the same intent path
// as human input.
func Decide(profile Profile, ballY, paddleY, paddleHeight float64, rng *rand.Rand) float64 {
	if rng == nil {
		return ballY
	}
	if profile.ErrorChance > 0 && rng.Float64() < profile.ErrorChance {
		//1.- Miss by at least one paddle height so mistakes are visible at any speed.
		offset := paddleHeight + rng.Float64()*paddleHeight
		if rng.Float64() < 0.5 {
			offset = -offset
		}
		return ballY + offset
	}
	return ballY
}
