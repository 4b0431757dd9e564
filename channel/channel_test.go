package channel

import (
	"math"
	"testing"

	"github.com/danxdz/vmill/offset"
	"github.com/danxdz/vmill/tool"
)

func newTestChannel(axesLabels ...string) *Channel {
	mappings := make([]AxisMapping, len(axesLabels))
	for i, l := range axesLabels {
		mappings[i] = AxisMapping{AxisID: i, Label: l}
	}
	return New(0, mappings)
}

func newTestOffsets() *offset.Table {
	t := offset.New()
	t.Add("G54")
	return t
}

// drive runs Advance until the channel stops producing new segments
// (completed, errored, or paused), always reporting axes as settled.
// It returns every AxisTarget batch emitted, in order.
func drive(t *testing.T, ch *Channel, toolTable *tool.Table, offsets *offset.Table, maxSteps int) [][]AxisTarget {
	t.Helper()
	var batches [][]AxisTarget
	for i := 0; i < maxSteps; i++ {
		targets, err := ch.Advance(false, true, toolTable, offsets)
		if err != nil {
			return batches
		}
		if targets != nil {
			batches = append(batches, targets)
		}
		if ch.State() == Completed || ch.State() == Errored || ch.State() == Paused {
			break
		}
	}
	return batches
}

func TestSingleLinearFeedEmitsMachineTarget(t *testing.T) {
	ch := newTestChannel("X")
	offsets := newTestOffsets()
	toolTable := tool.NewTable()

	ch.LoadProgram("G21\nG90\nG01 X10 F600\n")
	batches := drive(t, ch, toolTable, offsets, 10)

	if len(batches) != 1 || len(batches[0]) != 1 {
		t.Fatalf("expected exactly one single-axis target batch, got %v", batches)
	}
	target := batches[0][0]
	if target.MachineValue != 10 {
		t.Errorf("expected machine target 10, got %g", target.MachineValue)
	}
	if target.Rapid {
		t.Errorf("expected a feed move, not rapid")
	}
	wantCruise := 600.0 / 60.0
	if math.Abs(target.CruiseVelocity-wantCruise) > 1e-9 {
		t.Errorf("expected cruise velocity %g mm/s, got %g", wantCruise, target.CruiseVelocity)
	}
	if ch.ActivePC() != 2 {
		t.Errorf("expected active_pc on the G01 line (index 2), got %d", ch.ActivePC())
	}
}

func TestWorkOffsetAppliedToMachineTarget(t *testing.T) {
	ch := newTestChannel("X")
	offsets := newTestOffsets()
	offsets.SetZero(0, 0, 5)
	toolTable := tool.NewTable()

	ch.LoadProgram("G90\nG01 X10 F600\n")
	batches := drive(t, ch, toolTable, offsets, 10)

	if len(batches) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(batches))
	}
	if got := batches[0][0].MachineValue; got != 15 {
		t.Errorf("expected machine X == 15 (10 + offset 5), got %g", got)
	}
}

func TestToolLengthCompOffsetsZ(t *testing.T) {
	ch := newTestChannel("Z")
	offsets := newTestOffsets()
	toolTable := tool.NewTable()
	toolTable.Set(1, 50, 4)
	ch.SetActiveTool(toolTable, 1)

	ch.LoadProgram("G43 H1\nG01 Z-10 F300\n")
	batches := drive(t, ch, toolTable, offsets, 10)

	if len(batches) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(batches))
	}
	if got := batches[0][0].MachineValue; got != 40 {
		t.Errorf("expected machine Z == 40 (-10 + 50), got %g", got)
	}
}

func TestRapidVsFeedCapFlag(t *testing.T) {
	ch := newTestChannel("X")
	offsets := newTestOffsets()
	toolTable := tool.NewTable()

	ch.LoadProgram("G90\nG00 X100\nG01 X0 F60\n")
	batches := drive(t, ch, toolTable, offsets, 10)

	if len(batches) != 2 {
		t.Fatalf("expected 2 batches (rapid then feed), got %d", len(batches))
	}
	if !batches[0][0].Rapid {
		t.Errorf("expected first move to be rapid")
	}
	if batches[1][0].Rapid {
		t.Errorf("expected second move to be a capped feed move")
	}
	wantCruise := 60.0 / 60.0
	if math.Abs(batches[1][0].CruiseVelocity-wantCruise) > 1e-9 {
		t.Errorf("expected feed cruise 1 mm/s, got %g", batches[1][0].CruiseVelocity)
	}
}

func TestSingleBlockPausesAfterEachBlock(t *testing.T) {
	ch := newTestChannel("X")
	offsets := newTestOffsets()
	toolTable := tool.NewTable()

	ch.SetSingleBlock(true)
	ch.LoadProgram("G01 X1 F600\nG01 X2 F600\n")

	targets, err := ch.Advance(false, true, toolTable, offsets)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if targets == nil {
		t.Fatalf("expected a target from the first block")
	}
	if ch.State() != Paused {
		t.Fatalf("expected Paused after the first block with single_block set, got %s", ch.State())
	}
	if ch.PC() != 1 {
		t.Errorf("expected pc on the second block, got %d", ch.PC())
	}

	// Still paused: another Advance should do nothing.
	targets, err = ch.Advance(ch.Paused(), true, toolTable, offsets)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if targets != nil {
		t.Fatalf("expected no targets while paused, got %v", targets)
	}

	ch.ToggleUserPause()
	targets, err = ch.Advance(ch.Paused(), true, toolTable, offsets)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if targets == nil {
		t.Fatalf("expected the second block to execute after resuming")
	}
}

func TestProgramCompletesAtEnd(t *testing.T) {
	ch := newTestChannel("X")
	offsets := newTestOffsets()
	toolTable := tool.NewTable()

	ch.LoadProgram("G01 X1 F600\n")
	drive(t, ch, toolTable, offsets, 10)

	// One more Advance with pc already past the end should complete.
	ch.Advance(false, true, toolTable, offsets)
	if ch.State() != Completed {
		t.Errorf("expected Completed once pc reaches the end, got %s", ch.State())
	}
	if ch.IsRunning() {
		t.Errorf("expected is_running false once completed")
	}
}

func TestZeroFeedIsExecutionError(t *testing.T) {
	ch := newTestChannel("X")
	offsets := newTestOffsets()
	toolTable := tool.NewTable()

	ch.LoadProgram("G01 X10\n")
	_, err := ch.Advance(false, true, toolTable, offsets)
	if err == nil {
		t.Fatalf("expected an error for a feed move with no feed rate set")
	}
	if ch.State() != Errored {
		t.Errorf("expected channel state Errored, got %s", ch.State())
	}
}

func TestArcStaysOnCircleAndReachesEndpoint(t *testing.T) {
	ch := newTestChannel("X", "Y")
	offsets := newTestOffsets()
	toolTable := tool.NewTable()

	ch.LoadProgram("G17\nG90\nG02 X10 Y0 I5 J0 F600\n")
	batches := drive(t, ch, toolTable, offsets, 200)

	if len(batches) == 0 {
		t.Fatalf("expected at least one subsegment batch")
	}

	xByAxis := map[int]float64{0: 0, 1: 0}
	for _, batch := range batches {
		for _, target := range batch {
			xByAxis[target.AxisID] = target.MachineValue
		}
		x, y := xByAxis[0], xByAxis[1]
		dist := math.Hypot(x-5, y-0)
		if math.Abs(dist-5) > 0.05 {
			t.Errorf("sample (%g,%g) deviates from circle by more than 0.05: dist=%g", x, y, dist)
		}
	}
	finalX, finalY := xByAxis[0], xByAxis[1]
	if math.Abs(finalX-10) > 1e-6 || math.Abs(finalY-0) > 1e-6 {
		t.Errorf("expected arc to terminate at (10,0), got (%g,%g)", finalX, finalY)
	}
}

func TestArcDirectionMirrorsBetweenCWAndCCW(t *testing.T) {
	offsets := newTestOffsets()
	toolTable := tool.NewTable()

	cw := newTestChannel("X", "Y")
	cw.LoadProgram("G17\nG90\nG02 X10 Y0 I5 J0 F600\n")
	cwBatches := drive(t, cw, toolTable, offsets, 200)

	ccw := newTestChannel("X", "Y")
	ccw.LoadProgram("G17\nG90\nG03 X10 Y0 I5 J0 F600\n")
	ccwBatches := drive(t, ccw, toolTable, offsets, 200)

	if len(cwBatches) == 0 || len(ccwBatches) == 0 {
		t.Fatalf("expected samples from both directions")
	}
	// Midpoint of the CW sweep (viewed looking down +Z, i.e. the usual
	// clock face) should sit above the chord (y>0, the short way through
	// 12 o'clock from 9 to 3) while the CCW sweep's midpoint sits below
	// it (y<0, through 6 o'clock), for a 180-degree arc from (0,0) to
	// (10,0) about center (5,0).
	midCW := cwBatches[len(cwBatches)/2]
	midCCW := ccwBatches[len(ccwBatches)/2]
	yCW := valueForAxis(midCW, 1)
	yCCW := valueForAxis(midCCW, 1)
	if yCW <= 0 {
		t.Errorf("expected CW arc midpoint y > 0, got %g", yCW)
	}
	if yCCW >= 0 {
		t.Errorf("expected CCW arc midpoint y < 0, got %g", yCCW)
	}
}

func valueForAxis(batch []AxisTarget, axisID int) float64 {
	for _, t := range batch {
		if t.AxisID == axisID {
			return t.MachineValue
		}
	}
	return 0
}

func TestLoadThenResetYieldsSameStartingState(t *testing.T) {
	ch := newTestChannel("X")
	ch.LoadProgram("G01 X10 F600\n")
	ch.SetFeedOverride(0.5)

	offsets := newTestOffsets()
	toolTable := tool.NewTable()
	drive(t, ch, toolTable, offsets, 10)

	ch.ResetProgram()
	if ch.PC() != 0 {
		t.Errorf("expected pc==0 after reset, got %d", ch.PC())
	}
	if ch.ActivePC() != -1 {
		t.Errorf("expected active_pc==-1 after reset, got %d", ch.ActivePC())
	}
	if ch.State() != Idle {
		t.Errorf("expected Idle after reset, got %s", ch.State())
	}
	if ch.FeedOverrideRatio() != 0.5 {
		t.Errorf("expected feed_override_ratio to survive reset, got %g", ch.FeedOverrideRatio())
	}
}

func TestMotionWithNoAxisWordsEmitsNoSegments(t *testing.T) {
	ch := newTestChannel("X")
	offsets := newTestOffsets()
	toolTable := tool.NewTable()

	ch.LoadProgram("M08\nM09\n")
	batches := drive(t, ch, toolTable, offsets, 10)
	if len(batches) != 0 {
		t.Errorf("expected no motion targets for a purely modal program, got %v", batches)
	}
	if ch.State() != Completed {
		t.Errorf("expected the program to complete, got %s", ch.State())
	}
}
