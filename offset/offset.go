// Package offset implements the work-coordinate-system (WCS) table: an
// ordered set of named offsets, one map entry per axis, with an active
// index used to resolve work coordinates to machine coordinates.
package offset

import "github.com/pkg/errors"

// WCS is one named work-coordinate system: a label (e.g. "G54") and a
// sparse axis id -> offset map. Axes with no entry are assumed to have
// a zero offset in this system.
type WCS struct {
	Label  string
	Values map[int]float64
}

// Table is the ordered set of configured WCSs plus the active index.
// Insertion order is preserved; the zero value is an empty, unusable
// table (Add at least one WCS before use).
type Table struct {
	entries []WCS
	active  int
}

// New returns an empty work-offset table.
func New() *Table {
	return &Table{}
}

// Add appends a new WCS with the given label and returns its index.
func (t *Table) Add(label string) int {
	t.entries = append(t.entries, WCS{Label: label, Values: make(map[int]float64)})
	return len(t.entries) - 1
}

// Len returns the number of configured WCSs.
func (t *Table) Len() int { return len(t.entries) }

// Active returns the index of the currently active WCS.
func (t *Table) Active() int { return t.active }

// SetActive selects the active WCS, clamped to the table bounds.
func (t *Table) SetActive(index int) error {
	if len(t.entries) == 0 {
		return errors.New("work offset table is empty")
	}
	if index < 0 {
		index = 0
	}
	if index >= len(t.entries) {
		index = len(t.entries) - 1
	}
	t.active = index
	return nil
}

// SetZero stores machinePos as the offset for axisID within the given
// WCS index.
func (t *Table) SetZero(axisID int, wcsIndex int, machinePos float64) error {
	if wcsIndex < 0 || wcsIndex >= len(t.entries) {
		return errors.Errorf("work offset table: index %d out of range [0,%d)", wcsIndex, len(t.entries))
	}
	t.entries[wcsIndex].Values[axisID] = machinePos
	return nil
}

// Offset returns the configured offset for axisID in the given WCS
// index, or 0 if unset.
func (t *Table) Offset(wcsIndex int, axisID int) float64 {
	if wcsIndex < 0 || wcsIndex >= len(t.entries) {
		return 0
	}
	return t.entries[wcsIndex].Values[axisID]
}

// WorkToMachine resolves a work-coordinate value for axisID under the
// active WCS: machine = work + offset(active, axisID).
func (t *Table) WorkToMachine(axisID int, workValue float64) float64 {
	return workValue + t.Offset(t.active, axisID)
}

// Entries returns a copy of the configured WCSs, safe for a snapshot to
// retain without aliasing internal storage.
func (t *Table) Entries() []WCS {
	out := make([]WCS, len(t.entries))
	for i, e := range t.entries {
		values := make(map[int]float64, len(e.Values))
		for k, v := range e.Values {
			values[k] = v
		}
		out[i] = WCS{Label: e.Label, Values: values}
	}
	return out
}
