// Package tool implements the shared slot -> (length, radius) tool
// table and the per-channel tool register state (active tool, length
// and cutter compensation, H/D selectors).
package tool

// CutterComp is the active cutter-radius-compensation mode.
type CutterComp int

const (
	CompOff   CutterComp = 40
	CompLeft  CutterComp = 41
	CompRight CutterComp = 42
)

// Entry is one tool table row: a slot's configured length and radius.
type Entry struct {
	Length float64
	Radius float64
}

// Table is the shared slot -> Entry table. Slot 0 always means "no
// tool" and is never stored; lookups for it (or any missing slot)
// return the zero Entry.
type Table struct {
	entries map[int]Entry
}

// NewTable creates an empty tool table.
func NewTable() *Table {
	return &Table{entries: make(map[int]Entry)}
}

// Set stores length/radius for the given slot.
func (t *Table) Set(slot int, length, radius float64) {
	if slot == 0 {
		return
	}
	t.entries[slot] = Entry{Length: length, Radius: radius}
}

// Get returns the entry for slot, or the zero Entry if slot is 0 or
// unconfigured.
func (t *Table) Get(slot int) Entry {
	return t.entries[slot]
}

// Has reports whether slot carries a configured entry (false for slot
// 0, which is never stored).
func (t *Table) Has(slot int) bool {
	_, ok := t.entries[slot]
	return ok
}

// State is a channel's current tool registers.
type State struct {
	ActiveTool        int
	ToolLength        float64
	ToolRadius        float64
	LengthCompActive  bool
	CutterComp        CutterComp
	ActiveH           int
	ActiveD           int
}

// NewState returns the modal defaults for a freshly loaded channel:
// no tool, no compensation.
func NewState() State {
	return State{CutterComp: CompOff}
}

// SetActiveTool loads slot's length/radius into the state, defaulting
// to 0/0 for slot 0 or a slot missing from table.
func (s *State) SetActiveTool(table *Table, slot int) {
	s.ActiveTool = slot
	entry := table.Get(slot)
	s.ToolLength = entry.Length
	s.ToolRadius = entry.Radius
}

// SetLengthComp toggles G43 (true)/G49 (false). When enabling with an
// H word present (hPresent), the table entry for that H slot's length
// is loaded (0 for slot 0 or a missing slot); with no H word the
// current length is kept.
func (s *State) SetLengthComp(active bool, table *Table, h int, hPresent bool) {
	s.LengthCompActive = active
	if active {
		s.ActiveH = h
		if hPresent {
			s.ToolLength = table.Get(h).Length
		}
	}
}

// SetCutterComp sets the cutter-compensation mode. When entering G41/
// G42 with a D word, the table entry for that D slot's radius is
// loaded; D absent keeps the current radius.
func (s *State) SetCutterComp(mode CutterComp, table *Table, d int, dPresent bool) {
	s.CutterComp = mode
	if mode != CompOff && dPresent {
		s.ActiveD = d
		s.ToolRadius = table.Get(d).Radius
	}
}
