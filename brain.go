// Package vmill implements the machine-wide orchestrator: the command
// surface, the tick loop coupling channels to axes, and the snapshot
// serializer. It owns every axis, work offset, tool table entry, and
// channel; nothing outside this package mutates them directly.
package vmill

import (
	"sort"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/danxdz/vmill/axis"
	"github.com/danxdz/vmill/channel"
	"github.com/danxdz/vmill/offset"
	"github.com/danxdz/vmill/tool"
)

// MaxStepMS bounds the simulation sub-step size used by Tick to limit
// numerical error (spec §4.F).
const MaxStepMS = 12.0

// MachineBrain is the single owned aggregate described in spec §5: all
// mutable state lives inside one value, and every operation — command
// or Tick — takes the same lock.
type MachineBrain struct {
	mu        sync.Mutex
	tickGuard *semaphore.Weighted

	axes       []*axis.Axis
	nextAxisID int

	offsets *offset.Table
	tools   *tool.Table

	channels []*channel.Channel

	estop    bool
	feedHold bool

	axisOverride map[int]float64

	homingOrderQueue     []axis.ID
	homingOrderWaitingFor axis.ID
	homingOrderActive    bool
	homingOrderRapid     float64
	homingOrderFeed      float64
}

// New returns an empty, ready-to-configure machine brain.
func New() *MachineBrain {
	return &MachineBrain{
		tickGuard:    semaphore.NewWeighted(1),
		offsets:      offset.New(),
		tools:        tool.NewTable(),
		axisOverride: make(map[int]float64),
	}
}

// ---- Configuration ----

// AddAxis creates a new axis with the given soft limits and returns its
// dense, creation-order id.
func (b *MachineBrain) AddAxis(name string, kind axis.Kind, min, max float64) (axis.ID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if min > max {
		return 0, newConfigError("add_axis %q: invalid limits %g > %g", name, min, max)
	}
	id := axis.ID(b.nextAxisID)
	b.nextAxisID++
	b.axes = append(b.axes, axis.New(id, name, kind, min, max))
	return id, nil
}

// AddChannel registers a channel with the given caller-supplied id and
// axis mappings. Every mapping must reference a known axis id; an
// unknown id refuses the whole add and leaves prior state intact
// (spec §7: the only configuration fault requiring clear_config).
func (b *MachineBrain) AddChannel(id int, mappings []channel.AxisMapping) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.channels {
		if ch.ID() == id {
			return newConfigError("add_channel: duplicate channel id %d", id)
		}
	}
	for _, m := range mappings {
		if _, err := b.axisByIDLocked(axis.ID(m.AxisID)); err != nil {
			return wrapConfigError(err, "add_channel %d: mapping references unknown axis %d", id, m.AxisID)
		}
	}
	b.channels = append(b.channels, channel.New(id, mappings))
	return nil
}

// AddWorkOffset appends a new named work-coordinate system and returns
// its index.
func (b *MachineBrain) AddWorkOffset(label string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.offsets.Add(label)
}

// ClearConfig removes all axes, channels, and work offsets; estop state
// is preserved (spec §3 Lifecycles).
func (b *MachineBrain) ClearConfig() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.axes = nil
	b.nextAxisID = 0
	b.channels = nil
	b.offsets = offset.New()
	b.tools = tool.NewTable()
	b.axisOverride = make(map[int]float64)
	b.homingOrderQueue = nil
	b.homingOrderActive = false
}

func (b *MachineBrain) SetAxisAccel(id axis.ID, accel float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	a, err := b.axisByIDLocked(id)
	if err != nil {
		return wrapConfigError(err, "set_axis_accel")
	}
	if err := a.SetAccel(accel); err != nil {
		return wrapConfigError(err, "set_axis_accel")
	}
	return nil
}

func (b *MachineBrain) SetAxisInvert(id axis.ID, invert bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	a, err := b.axisByIDLocked(id)
	if err != nil {
		return wrapConfigError(err, "set_axis_invert")
	}
	a.SetInvert(invert)
	return nil
}

func (b *MachineBrain) SetAxisMachineZero(id axis.ID, v float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	a, err := b.axisByIDLocked(id)
	if err != nil {
		return wrapConfigError(err, "set_axis_machine_zero")
	}
	a.SetMachineZero(v)
	return nil
}

// SetAxisRapidVelocity sets an axis's traverse-rate cap. Not named in
// §6's command list verbatim but required to configure the rapid cap
// referenced throughout §4.A/§8 S4 — grounded in the same
// configuration-command shape as SetAxisAccel.
func (b *MachineBrain) SetAxisRapidVelocity(id axis.ID, v float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	a, err := b.axisByIDLocked(id)
	if err != nil {
		return wrapConfigError(err, "set_axis_rapid_velocity")
	}
	if err := a.SetRapidVelocity(v); err != nil {
		return wrapConfigError(err, "set_axis_rapid_velocity")
	}
	return nil
}

func (b *MachineBrain) axisByIDLocked(id axis.ID) (*axis.Axis, error) {
	for _, a := range b.axes {
		if a.ID() == id {
			return a, nil
		}
	}
	return nil, ErrUnknownAxis
}

func (b *MachineBrain) channelByIDLocked(id int) (*channel.Channel, error) {
	for _, ch := range b.channels {
		if ch.ID() == id {
			return ch, nil
		}
	}
	return nil, ErrUnknownChannel
}

// ---- Runtime ----

// SetEStop sets or clears the emergency stop. Setting true immediately
// freezes every axis (spec §5): targets clamp to positions and
// velocities zero. Clearing it leaves axes where they are; resuming
// motion requires a fresh jog or program load.
func (b *MachineBrain) SetEStop(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.estop = v
	if v {
		for _, a := range b.axes {
			a.Halt()
		}
	}
}

// SetFeedHold sets or clears the machine-wide feed hold. Spec §3/§4.E/
// §4.G all reference feed_hold as existing mutable state but §6's
// command list never names its setter explicitly; this fills that gap
// the same way every other boolean flag in §6 is set (a plain setter),
// since feed hold has to be reachable from somewhere for the RUNNING
// <-> PAUSED transitions in §4.E to mean anything.
func (b *MachineBrain) SetFeedHold(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.feedHold = v
}

func (b *MachineBrain) HomeAxis(id axis.ID, rapid, feed float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	a, err := b.axisByIDLocked(id)
	if err != nil {
		return wrapConfigError(err, "home_axis")
	}
	a.Home(rapid, feed)
	return nil
}

// HomeAll starts every axis homing independently and concurrently
// (no inter-axis ordering).
func (b *MachineBrain) HomeAll(rapid, feed float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, a := range b.axes {
		a.Home(rapid, feed)
	}
}

// HomeAllOrdered homes primary to completion first, then the remaining
// axes in registration order, one at a time. Progress is driven by
// Tick, since completion can only be observed across sub-steps.
func (b *MachineBrain) HomeAllOrdered(primary axis.ID, rapid, feed float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	primaryAxis, err := b.axisByIDLocked(primary)
	if err != nil {
		return wrapConfigError(err, "home_all_ordered")
	}

	queue := make([]axis.ID, 0, len(b.axes)-1)
	for _, a := range b.axes {
		if a.ID() != primary {
			queue = append(queue, a.ID())
		}
	}

	primaryAxis.Home(rapid, feed)
	b.homingOrderQueue = queue
	b.homingOrderWaitingFor = primary
	b.homingOrderActive = true
	b.homingOrderRapid = rapid
	b.homingOrderFeed = feed
	return nil
}

func (b *MachineBrain) advanceHomingOrder() {
	if !b.homingOrderActive {
		return
	}
	waiting, err := b.axisByIDLocked(b.homingOrderWaitingFor)
	if err != nil || waiting.IsHoming() || !waiting.Homed() {
		return
	}
	if len(b.homingOrderQueue) == 0 {
		b.homingOrderActive = false
		return
	}
	next := b.homingOrderQueue[0]
	b.homingOrderQueue = b.homingOrderQueue[1:]
	nextAxis, err := b.axisByIDLocked(next)
	if err != nil {
		return
	}
	nextAxis.Home(b.homingOrderRapid, b.homingOrderFeed)
	b.homingOrderWaitingFor = next
}

// IsHoming reports whether any axis is currently in the homing
// sub-machine, or an ordered homing sequence is still in flight.
func (b *MachineBrain) IsHoming() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.isHomingLocked()
}

func (b *MachineBrain) isHomingLocked() bool {
	if b.homingOrderActive {
		return true
	}
	for _, a := range b.axes {
		if a.IsHoming() {
			return true
		}
	}
	return false
}

func (b *MachineBrain) JogAxis(id axis.ID, delta float64) error {
	return b.jog(id, delta, true, 0)
}

func (b *MachineBrain) JogAxisRapid(id axis.ID, delta float64) error {
	return b.jog(id, delta, true, 0)
}

func (b *MachineBrain) JogAxisFeed(id axis.ID, delta, feed float64) error {
	return b.jog(id, delta, false, feed)
}

func (b *MachineBrain) jog(id axis.ID, delta float64, rapid bool, feed float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	a, err := b.axisByIDLocked(id)
	if err != nil {
		return wrapConfigError(err, "jog_axis")
	}
	a.Jog(delta, rapid, feed)
	b.axisOverride[int(id)] = 1.0
	return nil
}

// MoveTo commands a direct positioning move at the axis's rapid cap.
func (b *MachineBrain) MoveTo(id axis.ID, target float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	a, err := b.axisByIDLocked(id)
	if err != nil {
		return wrapConfigError(err, "move_to")
	}
	a.CommandTarget(target, a.RapidVelocity())
	b.axisOverride[int(id)] = 1.0
	return nil
}

func (b *MachineBrain) SetActiveWCS(index int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.offsets.SetActive(index); err != nil {
		return wrapConfigError(err, "set_active_wcs")
	}
	return nil
}

func (b *MachineBrain) SetWorkZero(axisID axis.ID, wcsIndex int, machinePos float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.axisByIDLocked(axisID); err != nil {
		return wrapConfigError(err, "set_work_zero")
	}
	if err := b.offsets.SetZero(int(axisID), wcsIndex, machinePos); err != nil {
		return wrapConfigError(err, "set_work_zero")
	}
	return nil
}

// ---- Tooling ----

func (b *MachineBrain) SetToolTableEntry(channelID, slot int, length, radius float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.channelByIDLocked(channelID); err != nil {
		return wrapConfigError(err, "set_tool_table_entry")
	}
	b.tools.Set(slot, length, radius)
	return nil
}

func (b *MachineBrain) SetActiveTool(channelID, slot int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, err := b.channelByIDLocked(channelID)
	if err != nil {
		return wrapConfigError(err, "set_active_tool")
	}
	ch.SetActiveTool(b.tools, slot)
	return nil
}

func (b *MachineBrain) SetToolLength(channelID int, v float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, err := b.channelByIDLocked(channelID)
	if err != nil {
		return wrapConfigError(err, "set_tool_length")
	}
	ch.SetToolLength(v)
	return nil
}

func (b *MachineBrain) SetToolRadius(channelID int, v float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, err := b.channelByIDLocked(channelID)
	if err != nil {
		return wrapConfigError(err, "set_tool_radius")
	}
	ch.SetToolRadius(v)
	return nil
}

func (b *MachineBrain) SetToolLengthComp(channelID int, active bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, err := b.channelByIDLocked(channelID)
	if err != nil {
		return wrapConfigError(err, "set_tool_length_comp")
	}
	ch.SetToolLengthComp(active, b.tools, 0, false)
	return nil
}

func (b *MachineBrain) SetCutterComp(channelID int, mode tool.CutterComp) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, err := b.channelByIDLocked(channelID)
	if err != nil {
		return wrapConfigError(err, "set_cutter_comp")
	}
	ch.SetCutterComp(mode, b.tools, 0, false)
	return nil
}

// ---- Channel ----

func (b *MachineBrain) LoadProgram(channelID int, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, err := b.channelByIDLocked(channelID)
	if err != nil {
		return wrapConfigError(err, "load_program")
	}
	ch.LoadProgram(text)
	return nil
}

func (b *MachineBrain) ResetProgram(channelID int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, err := b.channelByIDLocked(channelID)
	if err != nil {
		return wrapConfigError(err, "reset_program")
	}
	ch.ResetProgram()
	return nil
}

// StepOnce runs a single Advance step of the channel, then halts it.
// That step executes the block at pc when its target is a single
// segment; for a multi-segment arc block it emits only the next
// subsegment, and when the channel's axes have not settled it emits
// nothing. The channel is re-paused afterward in every case.
func (b *MachineBrain) StepOnce(channelID int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, err := b.channelByIDLocked(channelID)
	if err != nil {
		return wrapConfigError(err, "step_once")
	}
	ready := b.channelReadyLocked(ch)
	targets, stepErr := ch.Advance(false, ready, b.tools, b.offsets)
	b.applyTargetsLocked(ch, targets)
	ch.ForcePause()
	if stepErr != nil {
		return newExecutionError(ch.ID(), stepErr)
	}
	return nil
}

func (b *MachineBrain) ToggleUserPause(channelID int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, err := b.channelByIDLocked(channelID)
	if err != nil {
		return wrapConfigError(err, "toggle_pause")
	}
	ch.ToggleUserPause()
	return nil
}

func (b *MachineBrain) JumpBlocks(channelID int, delta int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, err := b.channelByIDLocked(channelID)
	if err != nil {
		return wrapConfigError(err, "jump_blocks")
	}
	ch.JumpBlocks(delta)
	return nil
}

func (b *MachineBrain) SetFeedOverride(channelID int, ratio float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, err := b.channelByIDLocked(channelID)
	if err != nil {
		return wrapConfigError(err, "set_feed_override")
	}
	if err := ch.SetFeedOverride(ratio); err != nil {
		return wrapConfigError(err, "set_feed_override")
	}
	return nil
}

func (b *MachineBrain) SetSingleBlock(channelID int, v bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, err := b.channelByIDLocked(channelID)
	if err != nil {
		return wrapConfigError(err, "set_single_block")
	}
	ch.SetSingleBlock(v)
	return nil
}

// ---- Time & observation ----

// Tick advances simulated time by dtMs milliseconds, subdividing into
// sub-steps of at most MaxStepMS. Within each sub-step every channel is
// advanced (in channel-id order) before any axis is integrated (in
// axis-id order), per the §5 ordering guarantee. Tick is non-reentrant:
// a call made while another is still executing returns
// ErrTickReentrant rather than blocking.
func (b *MachineBrain) Tick(dtMs float64) error {
	if !b.tickGuard.TryAcquire(1) {
		return ErrTickReentrant
	}
	defer b.tickGuard.Release(1)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.estop {
		for _, a := range b.axes {
			a.Halt()
		}
		return nil
	}

	var firstErr error
	remaining := dtMs
	for remaining > 1e-9 {
		step := remaining
		if step > MaxStepMS {
			step = MaxStepMS
		}
		remaining -= step
		dtSec := step / 1000.0

		for _, ch := range b.channelsByIDLocked() {
			ready := b.channelReadyLocked(ch)
			paused := ch.Paused() || b.feedHold
			targets, err := ch.Advance(paused, ready, b.tools, b.offsets)
			b.applyTargetsLocked(ch, targets)
			if err != nil && firstErr == nil {
				firstErr = newExecutionError(ch.ID(), err)
			}
		}

		for _, a := range b.axesByIDLocked() {
			ratio, ok := b.axisOverride[int(a.ID())]
			if !ok {
				// Axes no channel or jog has commanded yet (e.g. homing)
				// run at an override of 1.0.
				ratio = 1.0
			}
			a.Integrate(dtSec, ratio)
		}

		b.advanceHomingOrder()
	}

	return firstErr
}

func (b *MachineBrain) applyTargetsLocked(ch *channel.Channel, targets []channel.AxisTarget) {
	for _, t := range targets {
		a, err := b.axisByIDLocked(axis.ID(t.AxisID))
		if err != nil {
			continue
		}
		if t.Rapid {
			a.CommandTarget(t.MachineValue, a.RapidVelocity())
		} else {
			a.CommandTarget(t.MachineValue, t.CruiseVelocity)
		}
		b.axisOverride[t.AxisID] = ch.FeedOverrideRatio()
	}
}

// channelReadyLocked reports whether ch's mapped axes have settled
// enough to accept the next block/subsegment: full settle (position
// and velocity) for exact-stop (G61), position only for continuous
// path (G64) — spec §4.E "G64 differs from G61 only by not demanding
// zero velocity at the boundary".
func (b *MachineBrain) channelReadyLocked(ch *channel.Channel) bool {
	exact := ch.PathMode() == channel.ExactStop
	for _, m := range ch.AxisMappings() {
		a, err := b.axisByIDLocked(axis.ID(m.AxisID))
		if err != nil {
			continue
		}
		if exact {
			if !a.Settled() {
				return false
			}
		} else if absf(a.Position()-a.Target()) > axis.Epsilon {
			return false
		}
	}
	return true
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func (b *MachineBrain) axesByIDLocked() []*axis.Axis {
	out := append([]*axis.Axis(nil), b.axes...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func (b *MachineBrain) channelsByIDLocked() []*channel.Channel {
	out := append([]*channel.Channel(nil), b.channels...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}
