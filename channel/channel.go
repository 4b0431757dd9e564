// Package channel implements one independent G/M-code interpreter: a
// modal state machine that turns a parsed program into per-axis motion
// targets, tracking work-coordinate position, tool registers, feed
// override, single-block/pause, and the block-level run state.
package channel

import (
	"github.com/pkg/errors"

	"github.com/danxdz/vmill/gcode"
	"github.com/danxdz/vmill/offset"
	"github.com/danxdz/vmill/tool"
)

// Channel is one G-code interpreter and its runtime state.
type Channel struct {
	id   int
	axes []AxisMapping

	sourceText string
	program    []gcode.Block
	pc         int
	activePC   int

	state      State
	errMessage string

	motionMode   MotionMode
	plane        Plane
	units        Units
	distanceMode DistanceMode
	feedMode     FeedMode
	pathMode     PathMode

	tool tool.State

	feedRate          float64
	spindleRPM        float64
	spindleMode       SpindleMode
	coolantOn         bool
	feedOverrideRatio float64
	singleBlockMode   bool
	userPaused        bool
	isRunning         bool

	pendingT    int
	pendingTSet bool

	// workPos is the channel's current position in work coordinates,
	// updated the instant a block is interpreted (not when the axes
	// physically arrive) so the next incremental-mode block resolves
	// against the logical, not physical, current point.
	workPos        map[byte]float64
	programmedWork map[byte]float64

	compTransition bool

	segmentQueue [][]AxisTarget
}

// New creates a channel with the given id and axis mappings.
func New(id int, axes []AxisMapping) *Channel {
	ch := &Channel{
		id:                id,
		axes:              append([]AxisMapping(nil), axes...),
		feedOverrideRatio: 1.0,
		tool:              tool.NewState(),
	}
	ch.resetModalDefaults()
	ch.workPos = zeroWorkPos()
	return ch
}

func zeroWorkPos() map[byte]float64 {
	return map[byte]float64{'X': 0, 'Y': 0, 'Z': 0, 'A': 0, 'B': 0, 'C': 0}
}

func (ch *Channel) ID() int                  { return ch.id }
func (ch *Channel) AxisMappings() []AxisMapping { return append([]AxisMapping(nil), ch.axes...) }
func (ch *Channel) PC() int                  { return ch.pc }
func (ch *Channel) ActivePC() int            { return ch.activePC }
func (ch *Channel) State() State             { return ch.state }
func (ch *Channel) ErrorMessage() string     { return ch.errMessage }
func (ch *Channel) MotionMode() MotionMode   { return ch.motionMode }
func (ch *Channel) Plane() Plane             { return ch.plane }
func (ch *Channel) Units() Units             { return ch.units }
func (ch *Channel) DistanceMode() DistanceMode { return ch.distanceMode }
func (ch *Channel) FeedMode() FeedMode       { return ch.feedMode }
func (ch *Channel) PathMode() PathMode       { return ch.pathMode }
func (ch *Channel) Tool() tool.State         { return ch.tool }
func (ch *Channel) FeedRate() float64        { return ch.feedRate }
func (ch *Channel) SpindleRPM() float64      { return ch.spindleRPM }
func (ch *Channel) SpindleMode() SpindleMode { return ch.spindleMode }
func (ch *Channel) CoolantOn() bool          { return ch.coolantOn }
func (ch *Channel) FeedOverrideRatio() float64 { return ch.feedOverrideRatio }
func (ch *Channel) SingleBlock() bool        { return ch.singleBlockMode }
func (ch *Channel) Paused() bool             { return ch.userPaused }
func (ch *Channel) IsRunning() bool          { return ch.isRunning }
func (ch *Channel) CompTransition() bool     { return ch.compTransition }

func (ch *Channel) ProgrammedWork() map[byte]float64 {
	out := make(map[byte]float64, len(ch.programmedWork))
	for k, v := range ch.programmedWork {
		out[k] = v
	}
	return out
}

func (ch *Channel) Program() []gcode.Block {
	return append([]gcode.Block(nil), ch.program...)
}

func (ch *Channel) resetModalDefaults() {
	ch.motionMode = Rapid
	ch.plane = PlaneXY
	ch.units = Millimeters
	ch.distanceMode = Absolute
	ch.feedMode = UnitsPerMinute
	ch.pathMode = ContinuousPath
	ch.tool.CutterComp = tool.CompOff
	ch.tool.LengthCompActive = false
	ch.spindleMode = SpindleOff
	ch.coolantOn = false
	ch.feedRate = 0
	ch.spindleRPM = 0
	ch.pendingT = 0
	ch.pendingTSet = false
}

// LoadProgram parses text, resets pc/active_pc/paused/is_running, and
// restores modal defaults while preserving feed_override_ratio (spec
// §4.E "Modal defaults on load").
func (ch *Channel) LoadProgram(text string) {
	ch.sourceText = text
	ch.program = gcode.Parse(text)
	ch.pc = 0
	ch.activePC = -1
	ch.userPaused = false
	ch.isRunning = false
	ch.state = Idle
	ch.errMessage = ""
	ch.segmentQueue = nil
	ch.resetModalDefaults()
	ch.workPos = zeroWorkPos()
	ch.programmedWork = zeroWorkPos()
}

// ResetProgram reloads the most recently loaded source text.
func (ch *Channel) ResetProgram() {
	ch.LoadProgram(ch.sourceText)
}

// ToggleUserPause flips the channel's own pause flag and, for the
// common case of a channel not currently blocked by a brain-level
// hold, updates the visible state immediately rather than waiting for
// the next Advance (spec §4.E state machine: "RUNNING->PAUSED on
// toggle_pause", not "...on the next tick").
func (ch *Channel) ToggleUserPause() {
	ch.userPaused = !ch.userPaused
	if ch.userPaused && ch.state == Running {
		ch.state = Paused
	} else if !ch.userPaused && ch.state == Paused {
		ch.state = Running
	}
}

func (ch *Channel) SetSingleBlock(v bool) {
	ch.singleBlockMode = v
}

// ForcePause pauses the channel unconditionally, used by step_once to
// halt again immediately after executing exactly one block.
func (ch *Channel) ForcePause() {
	ch.userPaused = true
	if ch.state == Running {
		ch.state = Paused
	}
}

// SetFeedOverride sets the feed override ratio; ratio must be >= 0.
func (ch *Channel) SetFeedOverride(ratio float64) error {
	if ratio < 0 {
		return errors.Errorf("channel %d: feed override must be >= 0, got %g", ch.id, ratio)
	}
	ch.feedOverrideRatio = ratio
	return nil
}

// JumpBlocks shifts pc by delta, clamped to the program bounds.
func (ch *Channel) JumpBlocks(delta int) {
	ch.pc += delta
	if ch.pc < 0 {
		ch.pc = 0
	}
	if ch.pc > len(ch.program) {
		ch.pc = len(ch.program)
	}
}

func (ch *Channel) SetToolTableEntry(table *tool.Table, slot int, length, radius float64) {
	table.Set(slot, length, radius)
}

func (ch *Channel) SetActiveTool(table *tool.Table, slot int) {
	ch.tool.SetActiveTool(table, slot)
}

func (ch *Channel) SetToolLength(v float64)      { ch.tool.ToolLength = v }
func (ch *Channel) SetToolRadius(v float64)      { ch.tool.ToolRadius = v }

func (ch *Channel) SetToolLengthComp(active bool, table *tool.Table, h int, hPresent bool) {
	ch.tool.SetLengthComp(active, table, h, hPresent)
}

func (ch *Channel) SetCutterComp(mode tool.CutterComp, table *tool.Table, d int, dPresent bool) {
	ch.tool.SetCutterComp(mode, table, d, dPresent)
}

// Advance runs one execution-tick step per spec §4.E. paused combines
// the channel's own user-pause flag with any brain-level hold (feed
// hold, estop) the caller wants applied this sub-step; ready reports
// whether the channel's mapped axes have settled enough to accept the
// next target (the threshold — full settle for G61, position-only for
// G64 — is the caller's responsibility, since only the caller can see
// the axis states).
func (ch *Channel) Advance(paused bool, ready bool, toolTable *tool.Table, offsets *offset.Table) ([]AxisTarget, error) {
	if ch.state == Errored || ch.state == Completed {
		ch.isRunning = false
		return nil, nil
	}
	if paused {
		if ch.state == Running {
			ch.state = Paused
		}
		ch.isRunning = false
		return nil, nil
	}
	if ch.pc >= len(ch.program) && len(ch.segmentQueue) == 0 {
		ch.state = Completed
		ch.isRunning = false
		return nil, nil
	}
	if !ready {
		ch.isRunning = false
		return nil, nil
	}

	ch.isRunning = true
	if ch.state != Running {
		ch.state = Running
	}

	if len(ch.segmentQueue) > 0 {
		seg := ch.segmentQueue[0]
		ch.segmentQueue = ch.segmentQueue[1:]
		if len(ch.segmentQueue) == 0 {
			ch.finishBlock()
		}
		return seg, nil
	}

	// Empty blocks (blank, comment-only or wholly malformed lines) are
	// skipped: they never become the active block and never trigger a
	// single-block pause.
	if ch.program[ch.pc].Empty() {
		ch.pc++
		return nil, nil
	}

	block := ch.program[ch.pc]
	ch.activePC = ch.pc
	ch.pc++

	segments, err := ch.interpret(block, toolTable, offsets)
	if err != nil {
		ch.state = Errored
		ch.errMessage = err.Error()
		ch.isRunning = false
		return nil, err
	}
	if len(segments) == 0 {
		// No motion in this block (a pure modal/M-word line): nothing to
		// emit, but the block is still "finished" immediately.
		ch.finishBlock()
		return nil, nil
	}

	first := segments[0]
	if len(segments) > 1 {
		ch.segmentQueue = segments[1:]
	} else {
		ch.finishBlock()
	}
	return first, nil
}

func (ch *Channel) finishBlock() {
	if ch.singleBlockMode {
		ch.userPaused = true
		ch.state = Paused
	}
}

// interpret applies one block's modal/M-word/motion effects in order
// and returns the resulting motion subsegments (empty for a block with
// no motion).
func (ch *Channel) interpret(block gcode.Block, toolTable *tool.Table, offsets *offset.Table) ([][]AxisTarget, error) {
	ch.compTransition = false

	if err := ch.applyModal(block, toolTable, offsets); err != nil {
		return nil, err
	}
	if err := ch.applyM(block, toolTable); err != nil {
		return nil, err
	}
	ch.applyNonMotionWords(block)

	return ch.planMotion(block, toolTable, offsets)
}
