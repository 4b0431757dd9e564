package vmill

import "github.com/danxdz/vmill/channel"

// AxisSnapshot is the plain-data view of one axis (spec §4.G).
type AxisSnapshot struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	Kind        int     `json:"kind"`
	Position    float64 `json:"position"`
	Reported    float64 `json:"reported"`
	Target      float64 `json:"target"`
	Velocity    float64 `json:"velocity"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	Invert      bool    `json:"invert"`
	MachineZero float64 `json:"machine_zero"`
	Homed       bool    `json:"homed"`
	IsHoming    bool    `json:"is_homing"`
	Clamped     bool    `json:"clamped"`
}

// AxisOffsetSnapshot is one axis's configured offset within a WCS.
type AxisOffsetSnapshot struct {
	AxisID int     `json:"axis_id"`
	Value  float64 `json:"value"`
}

// WorkOffsetSnapshot is one named work-coordinate system.
type WorkOffsetSnapshot struct {
	Label  string               `json:"label"`
	Values []AxisOffsetSnapshot `json:"values"`
}

// AxisMappingSnapshot is one of a channel's program-visible axes.
type AxisMappingSnapshot struct {
	AxisID       int    `json:"axis_id"`
	DisplayLabel string `json:"display_label"`
}

// BlockSnapshot is one line of a channel's loaded program.
type BlockSnapshot struct {
	Line int    `json:"line"`
	Text string `json:"text"`
}

// ChannelSnapshot is the plain-data view of one channel (spec §4.G).
type ChannelSnapshot struct {
	ID               int                   `json:"id"`
	AxisMappings     []AxisMappingSnapshot `json:"axis_mappings"`
	PC               int                   `json:"pc"`
	ActivePC         int                   `json:"active_pc"`
	Program          []BlockSnapshot       `json:"program"`
	State            string                `json:"state"`
	ErrorMessage     string                `json:"error_message,omitempty"`
	MotionMode       int                   `json:"motion_mode"`
	Plane            int                   `json:"plane"`
	Units            int                   `json:"units"`
	DistanceMode     int                   `json:"distance_mode"`
	FeedMode         int                   `json:"feed_mode"`
	PathMode         int                   `json:"path_mode"`
	CutterComp       int                   `json:"cutter_comp"`
	LengthCompActive bool                  `json:"length_comp_active"`
	FeedRate         float64               `json:"feed_rate"`
	SpindleRPM       float64               `json:"spindle_rpm"`
	SpindleMode      int                   `json:"spindle_mode"`
	CoolantOn        bool                  `json:"coolant_on"`
	ToolLength       float64               `json:"tool_length"`
	ToolRadius       float64               `json:"tool_radius"`
	ActiveTool       int                   `json:"active_tool"`
	FeedOverride     float64               `json:"feed_override_ratio"`
	SingleBlock      bool                  `json:"single_block"`
	Paused           bool                  `json:"paused"`
	IsRunning        bool                  `json:"is_running"`
	CurrentMotion    int                   `json:"current_motion"`
	ProgrammedWork   map[string]float64    `json:"programmed_work"`
	CompTransition   bool                  `json:"comp_transition"`
}

// Snapshot is the opaque, structurally stable record returned by
// GetFullState (spec §4.G). All slices and maps are independent copies
// — no field aliases MachineBrain's internal storage.
type Snapshot struct {
	Axes        []AxisSnapshot       `json:"axes"`
	WorkOffsets []WorkOffsetSnapshot `json:"work_offsets"`
	ActiveWCS   int                  `json:"active_wcs"`
	Channels    []ChannelSnapshot    `json:"channels"`
	EStop       bool                 `json:"estop"`
	FeedHold    bool                 `json:"feed_hold"`
	IsHoming    bool                 `json:"is_homing"`
}

// GetFullState returns a deep copy of the current machine state.
func (b *MachineBrain) GetFullState() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := Snapshot{
		ActiveWCS: b.offsets.Active(),
		EStop:     b.estop,
		FeedHold:  b.feedHold,
		IsHoming:  b.isHomingLocked(),
	}

	for _, a := range b.axesByIDLocked() {
		min, max := a.Limits()
		snap.Axes = append(snap.Axes, AxisSnapshot{
			ID:          int(a.ID()),
			Name:        a.Name(),
			Kind:        int(a.Kind()),
			Position:    a.Position(),
			Reported:    a.Reported(),
			Target:      a.Target(),
			Velocity:    a.Velocity(),
			Min:         min,
			Max:         max,
			Invert:      a.Invert(),
			MachineZero: a.MachineZero(),
			Homed:       a.Homed(),
			IsHoming:    a.IsHoming(),
			Clamped:     a.Clamped(),
		})
	}

	for _, wcs := range b.offsets.Entries() {
		entry := WorkOffsetSnapshot{Label: wcs.Label}
		for axisID, v := range wcs.Values {
			entry.Values = append(entry.Values, AxisOffsetSnapshot{AxisID: axisID, Value: v})
		}
		snap.WorkOffsets = append(snap.WorkOffsets, entry)
	}

	for _, ch := range b.channelsByIDLocked() {
		snap.Channels = append(snap.Channels, snapshotChannel(ch))
	}

	return snap
}

func snapshotChannel(ch *channel.Channel) ChannelSnapshot {
	mappings := make([]AxisMappingSnapshot, 0, len(ch.AxisMappings()))
	for _, m := range ch.AxisMappings() {
		mappings = append(mappings, AxisMappingSnapshot{AxisID: m.AxisID, DisplayLabel: m.Label})
	}

	program := make([]BlockSnapshot, 0, len(ch.Program()))
	for _, blk := range ch.Program() {
		program = append(program, BlockSnapshot{Line: blk.Line, Text: blk.Reprint()})
	}

	work := make(map[string]float64)
	for letter, v := range ch.ProgrammedWork() {
		work[string(letter)] = v
	}

	t := ch.Tool()

	return ChannelSnapshot{
		ID:               ch.ID(),
		AxisMappings:     mappings,
		PC:               ch.PC(),
		ActivePC:         ch.ActivePC(),
		Program:          program,
		State:            ch.State().String(),
		ErrorMessage:     ch.ErrorMessage(),
		MotionMode:       int(ch.MotionMode()),
		Plane:            int(ch.Plane()),
		Units:            int(ch.Units()),
		DistanceMode:     int(ch.DistanceMode()),
		FeedMode:         int(ch.FeedMode()),
		PathMode:         int(ch.PathMode()),
		CutterComp:       int(t.CutterComp),
		LengthCompActive: t.LengthCompActive,
		FeedRate:         ch.FeedRate(),
		SpindleRPM:       ch.SpindleRPM(),
		SpindleMode:      int(ch.SpindleMode()),
		CoolantOn:        ch.CoolantOn(),
		ToolLength:       t.ToolLength,
		ToolRadius:       t.ToolRadius,
		ActiveTool:       t.ActiveTool,
		FeedOverride:     ch.FeedOverrideRatio(),
		SingleBlock:      ch.SingleBlock(),
		Paused:           ch.Paused(),
		IsRunning:        ch.IsRunning(),
		CurrentMotion:    int(ch.MotionMode()),
		ProgrammedWork:   work,
		CompTransition:   ch.CompTransition(),
	}
}
