package game

import "math/rand"

// Board geometry shared by the simulation and every client renderer.
const (
	BoardWidth   = 800.0
	BoardHeight  = 600.0
	PaddleHeight = 100.0
	PaddleWidth  = 10.0
	LeftPaddleX  = 50.0
	RightPaddleX = 750.0

	// MaxPaddleY is the highest top coordinate a paddle may occupy.
	MaxPaddleY = BoardHeight - PaddleHeight
)

// Side identifies one half of the board.
type Side string

const (
	SideLeft  Side = "left"
	SideRight Side = "right"
)

// Opponent returns the other side.
func (s Side) Opponent() Side {
	if s == SideLeft {
		return SideRight
	}
	return SideLeft
}

// Direction is a movement intent for a paddle, never an absolute position.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// Valid reports whether the direction is one of the two accepted values.
func (d Direction) Valid() bool { return d == DirectionUp || d == DirectionDown }

// Paddle is a vertical bat pinned to one side's x-plane.
type Paddle struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Ball carries position and velocity in pixels and pixels per second.
type Ball struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	VX     float64 `json:"vx"`
	VY     float64 `json:"vy"`
	Frozen bool    `json:"frozen,omitempty"`
}

// Scores tracks goals per side; values never decrease.
type Scores struct {
	Left  int `json:"left"`
	Right int `json:"right"`
}

// ForSide returns the score belonging to the given side.
func (s Scores) ForSide(side Side) int {
	if side == SideLeft {
		return s.Left
	}
	return s.Right
}

// serve recentres the ball frozen with a randomized direction and launch angle.
// The horizontal component always carries the full base speed so rallies keep
// their pace after every goal.
func serve(ball *Ball, speed float64, rng *rand.Rand) {
	ball.X = BoardWidth / 2
	ball.Y = BoardHeight / 2
	ball.Frozen = true
	direction := 1.0
	if rng.Float64() > 0.5 {
		direction = -1.0
	}
	ball.VX = direction * speed
	ball.VY = (rng.Float64() - 0.5) * speed
}

// layoutPaddles distributes count paddles evenly across the board height on
// the given side, centring each paddle within its section.
func layoutPaddles(side Side, count int) []Paddle {
	if count <= 0 {
		count = 1
	}
	x := LeftPaddleX
	if side == SideRight {
		x = RightPaddleX
	}
	spacing := BoardHeight / float64(count+1)
	paddles := make([]Paddle, count)
	for i := range paddles {
		y := spacing*float64(i+1) - PaddleHeight/2
		paddles[i] = Paddle{X: x, Y: clampPaddleY(y)}
	}
	return paddles
}

func clampPaddleY(y float64) float64 {
	if y < 0 {
		return 0
	}
	if y > MaxPaddleY {
		return MaxPaddleY
	}
	return y
}
