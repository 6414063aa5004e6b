package game

import "math"

// physics advances the ball and resolves collisions for one fixed timestep.
// It is deliberately free of session bookkeeping so the collision rules can be
// exercised in isolation.
type physics struct {
	ballSpeed       float64
	accelerateOnHit bool
}

// moveResult reports what the ball did during one step.
type moveResult struct {
	Scored bool
	Scorer Side
}

// step integrates the ball and resolves wall, paddle, and goal interactions.
// Paddle collisions are swept across the travelled segment so a fast ball
// cannot tunnel through a paddle between two ticks.
func (p physics) step(ball *Ball, left, right []Paddle, dt float64) moveResult {
	if ball == nil || ball.Frozen || dt <= 0 {
		return moveResult{}
	}
	prevX := ball.X
	prevY := ball.Y

	ball.X += ball.VX * dt
	ball.Y += ball.VY * dt

	//1.- Reflect off the horizontal walls, folding any overshoot back inside.
	if ball.Y < 0 {
		ball.Y = -ball.Y
		ball.VY = -ball.VY
	}
	if ball.Y > BoardHeight {
		ball.Y = 2*BoardHeight - ball.Y
		ball.VY = -ball.VY
	}

	//2.- Test the travelled segment against every paddle plane before goals.
	for i := range left {
		if p.sweptCollision(ball, prevX, prevY, &left[i], SideLeft) {
			return moveResult{}
		}
	}
	for i := range right {
		if p.sweptCollision(ball, prevX, prevY, &right[i], SideRight) {
			return moveResult{}
		}
	}

	//3.- A ball past either goal line scores for the opposing side.
	if ball.X < 0 {
		return moveResult{Scored: true, Scorer: SideRight}
	}
	if ball.X > BoardWidth {
		return moveResult{Scored: true, Scorer: SideLeft}
	}
	return moveResult{}
}

// sweptCollision checks whether the ball crossed the paddle's hit plane during
// this step and, if so, repositions it just outside the paddle and rebounds.
func (p physics) sweptCollision(ball *Ball, prevX, prevY float64, paddle *Paddle, side Side) bool {
	//1.- The ball interacts with the inner edge of the paddle's 10px slab.
	planeX := paddle.X + PaddleWidth
	if side == SideRight {
		planeX = paddle.X - PaddleWidth
	}
	crossed := (prevX <= planeX && ball.X >= planeX) || (prevX >= planeX && ball.X <= planeX)
	if !crossed || ball.X == prevX {
		return false
	}
	//2.- Interpolate the crossing height along the travelled segment.
	t := (planeX - prevX) / (ball.X - prevX)
	crossY := prevY + t*(ball.Y-prevY)
	if crossY < paddle.Y || crossY > paddle.Y+PaddleHeight {
		return false
	}
	offset := 1.0
	if side == SideRight {
		offset = -1.0
	}
	ball.X = planeX + offset
	ball.Y = crossY
	p.rebound(ball, paddle, side, crossY)
	return true
}

// rebound redirects the ball based on where it struck the paddle, optionally
// accelerating up to twice the base speed.
func (p physics) rebound(ball *Ball, paddle *Paddle, side Side, crossY float64) {
	hitPos := (crossY - paddle.Y) / PaddleHeight
	angle := (hitPos - 0.5) * math.Pi / 2
	if side == SideRight {
		angle = math.Pi + (hitPos-0.5)*math.Pi/2
	}
	speed := math.Hypot(ball.VX, ball.VY)
	if p.accelerateOnHit {
		speed = math.Min(speed*1.1, p.ballSpeed*2)
	}
	ball.VX = math.Abs(speed) * math.Cos(angle)
	ball.VY = speed * math.Sin(angle)
}
