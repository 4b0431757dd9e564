// Package axis implements one controllable degree of freedom of the
// machine: soft limits, acceleration, sign inversion, machine zero, a
// homing sub-machine, and trapezoidal-profile integration of position
// toward a commanded target.
package axis

import (
	"math"

	"github.com/pkg/errors"
)

// Epsilon is the settle tolerance used throughout the motion model, in
// the configured machine unit (conventionally millimetres).
const Epsilon = 1e-4

// ID identifies an axis. IDs are assigned densely by whoever owns the
// axis table (the machine brain); the axis itself never allocates one.
type ID int

// Kind distinguishes linear travel from rotary travel. Rotary axes
// ignore soft limits when Min == Max (unbounded rotation).
type Kind int

const (
	Linear Kind = iota
	Rotary
)

type homingPhase int

const (
	homingNone homingPhase = iota
	homingSeek
	homingBackoff
	homingReseek
	homingSetZero
)

// Axis is one degree of freedom. Zero value is not usable; construct
// with New.
type Axis struct {
	id   ID
	name string
	kind Kind

	min, max float64

	position float64
	target   float64
	velocity float64

	acceleration float64

	invert      bool
	machineZero float64

	homed    bool
	isHoming bool
	phase    homingPhase

	homingRapid float64
	homingFeed  float64

	// rapidVelocity is the traverse-rate cap used for G00-style rapid
	// moves and as the tie-break cap when a commanded feed would exceed
	// it (spec §4.A "Tie-break").
	rapidVelocity float64

	// cruiseVelocity is the velocity cap Integrate targets for the move
	// currently in progress; it is set by CommandTarget, not by the
	// caller of Integrate, so a retarget mid-motion always carries its
	// own cap.
	cruiseVelocity float64

	// clamped is the KinematicClamp advisory flag (spec §7): set when
	// the most recent CommandTarget had to clip its argument to limits.
	clamped bool
}

// New creates an axis with the given soft limits. Acceleration and
// rapid velocity default to small positive values satisfying the
// acceleration > 0 invariant; callers should call SetAccel and
// SetRapidVelocity to configure real values.
func New(id ID, name string, kind Kind, min, max float64) *Axis {
	return &Axis{
		id:            id,
		name:          name,
		kind:          kind,
		min:           min,
		max:           max,
		acceleration:  1,
		rapidVelocity: 1,
	}
}

func (a *Axis) ID() ID     { return a.id }
func (a *Axis) Name() string { return a.name }
func (a *Axis) Kind() Kind { return a.kind }

func (a *Axis) Limits() (min, max float64) { return a.min, a.max }
func (a *Axis) Position() float64          { return a.position }
func (a *Axis) Target() float64            { return a.target }
func (a *Axis) Velocity() float64          { return a.velocity }
func (a *Axis) Acceleration() float64      { return a.acceleration }
func (a *Axis) RapidVelocity() float64     { return a.rapidVelocity }
func (a *Axis) Invert() bool               { return a.invert }
func (a *Axis) MachineZero() float64       { return a.machineZero }
func (a *Axis) Homed() bool                { return a.homed }
func (a *Axis) IsHoming() bool             { return a.isHoming }
func (a *Axis) Clamped() bool              { return a.clamped }

// bounded reports whether soft limits actually constrain this axis:
// always true for Linear, true for Rotary unless Min == Max.
func (a *Axis) bounded() bool {
	return a.kind == Linear || a.min != a.max
}

// SetLimits reconfigures the soft limits. Allowed in any state; if the
// current position now falls outside the new bounds it is clamped (the
// spec requires min <= position <= max to hold after any completed
// motion step, and a limit change is as good a time as any to restore
// it).
func (a *Axis) SetLimits(min, max float64) error {
	if min > max {
		return errors.Errorf("axis %d: invalid limits %g > %g", a.id, min, max)
	}
	a.min, a.max = min, max
	if a.bounded() {
		if a.position < min {
			a.position = min
		} else if a.position > max {
			a.position = max
		}
	}
	return nil
}

// SetAccel sets the acceleration used by Integrate. Acceleration must
// be strictly positive.
func (a *Axis) SetAccel(accel float64) error {
	if accel <= 0 {
		return errors.Errorf("axis %d: acceleration must be > 0, got %g", a.id, accel)
	}
	a.acceleration = accel
	return nil
}

// SetRapidVelocity sets the traverse-rate cap for rapid moves and the
// tie-break ceiling for feed moves.
func (a *Axis) SetRapidVelocity(v float64) error {
	if v <= 0 {
		return errors.Errorf("axis %d: rapid velocity must be > 0, got %g", a.id, v)
	}
	a.rapidVelocity = v
	return nil
}

func (a *Axis) SetInvert(inv bool)         { a.invert = inv }
func (a *Axis) SetMachineZero(v float64)   { a.machineZero = v }

// Reported returns position translated into the external coordinate
// frame: machine_zero subtracted, then sign-inverted if Invert is set
// (spec §3 "machine_zero (offset applied when reporting to external
// coord frames)").
func (a *Axis) Reported() float64 {
	v := a.position - a.machineZero
	if a.invert {
		v = -v
	}
	return v
}

// Halt immediately stops the axis in place: target snaps to the
// current position and velocity zeroes, with no deceleration ramp.
// Used by EStop, which per spec §5 "clamps targets to positions and
// zeros velocities" rather than decelerating through the normal
// profile.
func (a *Axis) Halt() {
	a.target = a.position
	a.velocity = 0
}

// CommandTarget sets a new motion target and the velocity cap Integrate
// should use while approaching it. cruiseVelocity is clamped to the
// rapid cap (tie-break: a feed that would exceed rapid is capped at
// rapid). The target itself is clamped to the soft limits unless this
// is an unbounded rotary axis.
func (a *Axis) CommandTarget(target, cruiseVelocity float64) {
	a.clamped = false
	if a.bounded() {
		if target < a.min {
			target = a.min
			a.clamped = true
		} else if target > a.max {
			target = a.max
			a.clamped = true
		}
	}
	a.target = target

	cruiseVelocity = math.Abs(cruiseVelocity)
	if cruiseVelocity > a.rapidVelocity {
		cruiseVelocity = a.rapidVelocity
	}
	a.cruiseVelocity = cruiseVelocity
}

// Jog issues a relative move of delta from the current position. When
// rapid is true the axis traverses at its rapid cap; otherwise it uses
// feedrate (still capped at rapid, per the CommandTarget tie-break).
func (a *Axis) Jog(delta float64, rapid bool, feedrate float64) {
	vel := a.rapidVelocity
	if !rapid {
		vel = feedrate
	}
	a.CommandTarget(a.position+delta, vel)
}

// Home starts the homing sub-machine: seek toward the negative limit,
// back off a short distance, re-seek slowly for precision, then latch
// machine zero. rapidVel and feedVel govern the seek and re-seek legs
// respectively.
func (a *Axis) Home(rapidVel, feedVel float64) {
	a.isHoming = true
	a.homed = false
	a.homingRapid = rapidVel
	a.homingFeed = feedVel
	a.phase = homingSeek
	a.enterPhase()
}

func (a *Axis) enterPhase() {
	switch a.phase {
	case homingSeek:
		a.CommandTarget(a.min, a.homingRapid)
	case homingBackoff:
		a.CommandTarget(a.min+a.backoffDistance(), a.homingRapid)
	case homingReseek:
		a.CommandTarget(a.min, a.homingFeed)
	case homingSetZero:
		a.homed = true
		a.position = a.machineZero
		a.target = a.position
		a.velocity = 0
		a.isHoming = false
		a.phase = homingNone
	}
}

func (a *Axis) backoffDistance() float64 {
	d := (a.max - a.min) * 0.02
	if d < 1e-3 {
		d = 1e-3
	}
	return d
}

// Settled reports whether the axis has reached its current target and
// come to rest, within Epsilon.
func (a *Axis) Settled() bool {
	return math.Abs(a.position-a.target) <= Epsilon && a.velocity == 0
}

// Integrate advances position toward target by dt seconds using a
// trapezoidal acceleration profile. overrideRatio scales both the
// velocity cap (linearly) and the acceleration (quadratically), which
// preserves the shape of the profile while changing its rate — per
// spec §9's "implementers may instead scale time (equivalent)" note,
// this is the velocity-scaling variant of that trade-off.
func (a *Axis) Integrate(dt, overrideRatio float64) {
	if dt <= 0 {
		return
	}
	if a.isHoming && a.Settled() && a.phase != homingNone {
		a.advanceHoming()
	}

	remaining := a.target - a.position
	if math.Abs(remaining) <= Epsilon {
		a.position = a.target
		a.velocity = 0
		return
	}

	dirTarget := sign(remaining)
	effAccel := a.acceleration * overrideRatio * overrideRatio
	if effAccel <= 0 {
		effAccel = a.acceleration
	}

	vmax := math.Abs(a.cruiseVelocity * overrideRatio)
	if vmax <= 0 {
		vmax = effAccel * dt
	}

	curSpeed := math.Abs(a.velocity)
	curDir := sign(a.velocity)
	movingTowardTarget := curDir == 0 || curDir == dirTarget

	var newSpeed float64
	if movingTowardTarget {
		stopDist := (curSpeed * curSpeed) / (2 * effAccel)
		if stopDist >= math.Abs(remaining) {
			newSpeed = curSpeed - effAccel*dt
		} else {
			newSpeed = curSpeed + effAccel*dt
		}
	} else {
		newSpeed = curSpeed - effAccel*dt
	}
	if newSpeed < 0 {
		newSpeed = 0
	}
	if newSpeed > vmax {
		newSpeed = vmax
	}

	avgSpeed := (curSpeed + newSpeed) / 2.0
	delta := dirTarget * avgSpeed * dt
	newPosition := a.position + delta

	newRemaining := a.target - newPosition
	if sign(newRemaining) != dirTarget || math.Abs(newRemaining) <= Epsilon {
		newPosition = a.target
		newSpeed = 0
	}

	a.position = newPosition
	a.velocity = dirTarget * newSpeed

	if a.bounded() {
		if a.position < a.min {
			a.position = a.min
		} else if a.position > a.max {
			a.position = a.max
		}
	}
}

func (a *Axis) advanceHoming() {
	switch a.phase {
	case homingSeek:
		a.phase = homingBackoff
	case homingBackoff:
		a.phase = homingReseek
	case homingReseek:
		a.phase = homingSetZero
	default:
		return
	}
	a.enterPhase()
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
