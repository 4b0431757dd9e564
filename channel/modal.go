package channel

import (
	"github.com/pkg/errors"

	"github.com/danxdz/vmill/gcode"
	"github.com/danxdz/vmill/offset"
	"github.com/danxdz/vmill/tool"
)

// applyModal resolves the block's G-word (if any) into the matching
// modal group (spec §4.E point 1). Only one G-word can appear per
// Block (the data model stores one value per letter), so a program
// must put each modal change on its own line — consistent with every
// example in the spec's own scenarios.
func (ch *Channel) applyModal(block gcode.Block, toolTable *tool.Table, offsets *offset.Table) error {
	if !block.Has('G') {
		return nil
	}
	g := int(block.Get('G', 0))

	switch g {
	case 0:
		ch.motionMode = Rapid
	case 1:
		ch.motionMode = Feed
	case 2:
		ch.motionMode = ArcCW
	case 3:
		ch.motionMode = ArcCCW
	case 17:
		ch.plane = PlaneXY
	case 18:
		ch.plane = PlaneXZ
	case 19:
		ch.plane = PlaneYZ
	case 20:
		ch.units = Inches
	case 21:
		ch.units = Millimeters
	case 40:
		if ch.tool.CutterComp != tool.CompOff {
			ch.compTransition = true
		}
		ch.tool.SetCutterComp(tool.CompOff, toolTable, 0, false)
	case 41:
		if ch.tool.CutterComp == tool.CompOff {
			ch.compTransition = true
		}
		ch.tool.SetCutterComp(tool.CompLeft, toolTable, intOr(block, 'D', ch.tool.ActiveD), block.Has('D'))
	case 42:
		if ch.tool.CutterComp == tool.CompOff {
			ch.compTransition = true
		}
		ch.tool.SetCutterComp(tool.CompRight, toolTable, intOr(block, 'D', ch.tool.ActiveD), block.Has('D'))
	case 43:
		ch.tool.SetLengthComp(true, toolTable, intOr(block, 'H', ch.tool.ActiveH), block.Has('H'))
	case 49:
		ch.tool.LengthCompActive = false
	case 54, 55, 56, 57, 58, 59:
		index := g - 54
		if err := offsets.SetActive(index); err != nil {
			return errors.Wrapf(err, "channel %d: select WCS G%d", ch.id, g)
		}
	case 61:
		ch.pathMode = ExactStop
	case 64:
		ch.pathMode = ContinuousPath
	case 90:
		ch.distanceMode = Absolute
	case 91:
		ch.distanceMode = Incremental
	case 94:
		ch.feedMode = UnitsPerMinute
	case 95:
		ch.feedMode = UnitsPerRev
	}
	return nil
}

func intOr(block gcode.Block, letter byte, fallback int) int {
	if block.Has(letter) {
		return int(block.Get(letter, 0))
	}
	return fallback
}

// applyM resolves the block's M-word (spec §4.E point 2).
func (ch *Channel) applyM(block gcode.Block, toolTable *tool.Table) error {
	if block.Has('T') {
		ch.pendingT = int(block.Get('T', 0))
		ch.pendingTSet = true
	}

	if !block.Has('M') {
		return nil
	}
	m := int(block.Get('M', 0))

	switch m {
	case 0:
		ch.userPaused = true
	case 3:
		ch.spindleMode = SpindleCW
		if block.Has('S') {
			ch.spindleRPM = block.Get('S', 0)
		}
	case 4:
		ch.spindleMode = SpindleCCW
		if block.Has('S') {
			ch.spindleRPM = block.Get('S', 0)
		}
	case 5:
		ch.spindleMode = SpindleOff
	case 6:
		if !ch.pendingTSet {
			break
		}
		slot := ch.pendingT
		if ch.tool.LengthCompActive && slot != 0 && !toolTable.Has(slot) {
			return errors.Errorf("channel %d: M06 T%d: no tool table entry and length comp active", ch.id, slot)
		}
		ch.tool.SetActiveTool(toolTable, slot)
		if ch.tool.LengthCompActive {
			ch.tool.SetLengthComp(true, toolTable, slot, true)
		}
		ch.pendingTSet = false
	case 8:
		ch.coolantOn = true
	case 9:
		ch.coolantOn = false
	case 30:
		ch.pc = len(ch.program)
	}
	return nil
}

// applyNonMotionWords resolves F/S words present on their own (spec
// §4.E point 3); F<=0 is ignored here and only rejected at motion time
// when an active feed move actually needs it (spec §7 ExecutionError).
func (ch *Channel) applyNonMotionWords(block gcode.Block) {
	if block.Has('F') {
		f := block.Get('F', 0)
		if f > 0 {
			ch.feedRate = f
		}
	}
	if block.Has('S') && !block.Has('M') {
		ch.spindleRPM = block.Get('S', 0)
	}
}
