package channel

import (
	"math"

	"github.com/pkg/errors"

	"github.com/danxdz/vmill/gcode"
	"github.com/danxdz/vmill/offset"
	"github.com/danxdz/vmill/tool"
)

var axisLetters = [6]byte{'X', 'Y', 'Z', 'A', 'B', 'C'}

func unitScale(u Units) float64 {
	if u == Inches {
		return 25.4
	}
	return 1
}

// planeAxes returns the two in-plane letters (a, b) and the plane
// normal letter for the active plane modal group.
func planeAxes(p Plane) (a, b, normal byte) {
	switch p {
	case PlaneXZ:
		return 'X', 'Z', 'Y'
	case PlaneYZ:
		return 'Y', 'Z', 'X'
	default:
		return 'X', 'Y', 'Z'
	}
}

// planMotion resolves a block's motion words into machine-space
// subsegments (spec §4.E point 4). A block with no motion words and no
// arc-defining I/J/K/R (while in an arc motion mode) returns no
// segments at all.
func (ch *Channel) planMotion(block gcode.Block, toolTable *tool.Table, offsets *offset.Table) ([][]AxisTarget, error) {
	scale := unitScale(ch.units)
	isArc := ch.motionMode == ArcCW || ch.motionMode == ArcCCW
	arcWords := block.Has('I') || block.Has('J') || block.Has('K') || block.Has('R')
	hasAxisWord := false
	for _, l := range axisLetters {
		if block.Has(l) {
			hasAxisWord = true
			break
		}
	}
	if !hasAxisWord && !(isArc && arcWords) {
		return nil, nil
	}

	start := ch.workPos
	end := make(map[byte]float64, len(start))
	for k, v := range start {
		end[k] = v
	}
	for _, l := range axisLetters {
		if !block.Has(l) {
			continue
		}
		programmed := block.Get(l, 0) * scale
		if ch.distanceMode == Incremental {
			end[l] = start[l] + programmed
		} else {
			end[l] = programmed
		}
	}

	if err := ch.checkMotionPreconditions(); err != nil {
		return nil, err
	}

	var work []map[byte]float64
	var err error
	if isArc {
		work, err = ch.planArc(block, start, end, scale)
		if err != nil {
			return nil, err
		}
	} else {
		work = []map[byte]float64{end}
	}

	ch.workPos = end
	ch.programmedWork = make(map[byte]float64, len(end))
	for k, v := range end {
		ch.programmedWork[k] = v
	}

	segments := make([][]AxisTarget, 0, len(work))
	from := start
	for i, sample := range work {
		final := sample
		if !isArc && ch.tool.CutterComp != tool.CompOff {
			final = ch.applyCutterComp(from, sample)
		}
		targets := ch.buildTargets(from, final, toolTable, offsets, i == len(work)-1)
		if len(targets) > 0 {
			segments = append(segments, targets)
		}
		from = sample
	}
	return segments, nil
}

func (ch *Channel) checkMotionPreconditions() error {
	if ch.motionMode == Rapid {
		return nil
	}
	effectiveFeed := ch.feedRate
	if ch.feedMode == UnitsPerRev {
		effectiveFeed = ch.feedRate * ch.spindleRPM
	}
	if effectiveFeed <= 0 {
		return errors.Errorf("channel %d: feed rate must be > 0 for a feed/arc move", ch.id)
	}
	if ch.tool.CutterComp != tool.CompOff && ch.tool.ToolRadius <= 0 {
		return errors.Errorf("channel %d: cutter compensation active with zero tool radius", ch.id)
	}
	return nil
}

// applyCutterComp offsets a linear segment's in-plane endpoint by
// ±tool_radius along the travel direction's normal (spec §4.C). Arc
// segments are executed uncompensated; lead-in/lead-out trim/arc
// joints are a preview-only concern per spec §4.C/§9.
func (ch *Channel) applyCutterComp(from, to map[byte]float64) map[byte]float64 {
	a, b, _ := planeAxes(ch.plane)
	da := to[a] - from[a]
	db := to[b] - from[b]
	length := math.Hypot(da, db)
	out := make(map[byte]float64, len(to))
	for k, v := range to {
		out[k] = v
	}
	if length <= 1e-9 {
		return out
	}
	ux, uy := da/length, db/length
	var nx, ny float64
	if ch.tool.CutterComp == tool.CompLeft {
		nx, ny = -uy, ux
	} else {
		nx, ny = uy, -ux
	}
	r := ch.tool.ToolRadius
	out[a] = to[a] + nx*r
	out[b] = to[b] + ny*r
	return out
}

// buildTargets maps one work-space sample to machine-space AxisTargets
// for every channel-mapped axis, including axes whose own delta is zero
// (they get a zero cruise velocity); a subsegment with no displacement
// at all yields no targets.
func (ch *Channel) buildTargets(from, to map[byte]float64, toolTable *tool.Table, offsets *offset.Table, isFinalSample bool) []AxisTarget {
	scale := unitScale(ch.units)
	feedPerSec := ch.feedRate / 60.0
	if ch.feedMode == UnitsPerRev {
		feedPerSec = (ch.feedRate * ch.spindleRPM) / 60.0
	}
	feedPerSec *= scale * ch.feedOverrideRatio

	totalDist := 0.0
	deltas := make(map[byte]float64)
	for _, m := range ch.axes {
		l := labelByte(m.Label)
		if l == 0 {
			continue
		}
		tv, ok := to[l]
		if !ok {
			continue
		}
		fv := from[l]
		d := tv - fv
		deltas[l] = d
		totalDist += d * d
	}
	totalDist = math.Sqrt(totalDist)

	var targets []AxisTarget
	for _, m := range ch.axes {
		l := labelByte(m.Label)
		if l == 0 {
			continue
		}
		tv, ok := to[l]
		if !ok {
			continue
		}
		d := deltas[l]
		if math.Abs(d) < 1e-9 && totalDist < 1e-9 {
			continue
		}

		machine := offsets.WorkToMachine(m.AxisID, tv)
		if l == 'Z' && ch.tool.LengthCompActive {
			machine += ch.tool.ToolLength
		}

		rapid := ch.motionMode == Rapid
		cruise := 0.0
		if !rapid {
			if totalDist > 1e-9 {
				cruise = feedPerSec * math.Abs(d) / totalDist
			} else {
				cruise = feedPerSec
			}
		}
		targets = append(targets, AxisTarget{
			AxisID:         m.AxisID,
			MachineValue:   machine,
			Rapid:          rapid,
			CruiseVelocity: cruise,
		})
	}
	return targets
}

func labelByte(label string) byte {
	if len(label) != 1 {
		return 0
	}
	return label[0]
}

// planArc discretizes a G02/G03 block into work-space sample points
// (spec §4.E point 4): chord error <= 0.01*radius, at least 8 segments
// per full revolution. The normal axis and any other simultaneously
// moving axes are interpolated linearly across samples (a helical
// move); the final sample is forced to the exact programmed endpoint.
func (ch *Channel) planArc(block gcode.Block, start, end map[byte]float64, scale float64) ([]map[byte]float64, error) {
	a, b, _ := planeAxes(ch.plane)
	x1, y1 := start[a], start[b]
	x2, y2 := end[a], end[b]
	clockwise := ch.motionMode == ArcCW

	var cx, cy, r float64
	if block.Has('R') {
		r = math.Abs(block.Get('R', 0) * scale)
		cx, cy = arcCenterFromRadius(x1, y1, x2, y2, block.Get('R', 0)*scale, clockwise)
	} else {
		oa, ob := planeCenterOffsets(ch.plane, block, scale)
		cx, cy = x1+oa, y1+ob
		r = math.Hypot(x1-cx, y1-cy)
	}
	if r <= 1e-9 {
		return []map[byte]float64{end}, nil
	}

	startAngle := math.Atan2(y1-cy, x1-cx)
	endAngle := math.Atan2(y2-cy, x2-cx)

	var delta float64
	if clockwise {
		delta = startAngle - endAngle
		if delta <= 1e-12 {
			delta += 2 * math.Pi
		}
	} else {
		delta = endAngle - startAngle
		if delta <= 1e-12 {
			delta += 2 * math.Pi
		}
	}

	maxChordErr := 0.01 * r
	cosArg := 1 - maxChordErr/r
	if cosArg < -1 {
		cosArg = -1
	}
	if cosArg > 1 {
		cosArg = 1
	}
	thetaPerSeg := 2 * math.Acos(cosArg)
	if thetaPerSeg <= 1e-9 {
		thetaPerSeg = 2 * math.Pi
	}
	segsFullRev := int(math.Ceil(2 * math.Pi / thetaPerSeg))
	if segsFullRev < 8 {
		segsFullRev = 8
	}
	numSegs := int(math.Ceil(delta / (2 * math.Pi) * float64(segsFullRev)))
	if numSegs < 1 {
		numSegs = 1
	}

	sweep := 1.0
	if clockwise {
		sweep = -1
	}

	samples := make([]map[byte]float64, 0, numSegs)
	for i := 1; i <= numSegs; i++ {
		frac := float64(i) / float64(numSegs)
		sample := make(map[byte]float64, len(end))
		for k, v := range start {
			sample[k] = v + (end[k]-v)*frac
		}
		if i == numSegs {
			sample[a] = end[a]
			sample[b] = end[b]
		} else {
			angle := startAngle + sweep*delta*frac
			sample[a] = cx + r*math.Cos(angle)
			sample[b] = cy + r*math.Sin(angle)
		}
		samples = append(samples, sample)
	}
	return samples, nil
}

func planeCenterOffsets(plane Plane, block gcode.Block, scale float64) (oa, ob float64) {
	switch plane {
	case PlaneXZ:
		return block.Get('I', 0) * scale, block.Get('K', 0) * scale
	case PlaneYZ:
		return block.Get('J', 0) * scale, block.Get('K', 0) * scale
	default:
		return block.Get('I', 0) * scale, block.Get('J', 0) * scale
	}
}

// arcCenterFromRadius computes an R-mode arc's center: the minor arc
// (sweep <= 180°) for a positive radius, the major arc for a negative
// one, matching common G-code dialect convention.
func arcCenterFromRadius(x1, y1, x2, y2, r float64, clockwise bool) (cx, cy float64) {
	dx, dy := x2-x1, y2-y1
	d := math.Hypot(dx, dy)
	mx, my := (x1+x2)/2, (y1+y2)/2
	if d < 1e-9 {
		return mx, my
	}
	absR := math.Abs(r)
	hSq := absR*absR - (d*d)/4
	if hSq < 0 {
		hSq = 0
	}
	h := math.Sqrt(hSq)

	side := 1.0
	if clockwise {
		side = -1
	}
	if r < 0 {
		side = -side
	}
	cx = mx + side*h*(-dy/d)
	cy = my + side*h*(dx/d)
	return cx, cy
}
