package models

import (
	"encoding/json"
	"time"
)

// Fixed leading columns of every row.
const (
	TimestampColumn = "timestamp"
	CycleIDColumn   = "cycle_id"
)

// TimestampLayout is the layout of the timestamp column.
const TimestampLayout = time.RFC3339

// Column is one named cell of a CycleRow.
type Column struct {
	Name  string
	Value Value
}

// CycleRow is the unit of persistence: everything one cycle observed.
// It is immutable once built; accessors return copies.
type CycleRow struct {
	cycleID   string
	timestamp time.Time
	disks     []DiskIdentity
	columns   []Column
	index     map[string]int
}

// RowInput carries the parsed pieces the row is assembled from. Smart and
// DiskStats must be aligned with Disks.
type RowInput struct {
	CycleID       string
	Timestamp     time.Time
	Disks         []DiskIdentity
	Smart         []SmartAttributeSet
	DiskStats     []DiskMetricRecord
	Server        ServerMetricRecord
	ServerMetrics []ServerMetric
}

// NewCycleRow flattens the cycle's records into ordered columns: timestamp,
// cycle_id, then for each disk in enumeration order its SMART columns and I/O
// columns, then the server-level columns.
func NewCycleRow(in RowInput) CycleRow {
	row := CycleRow{
		cycleID:   in.CycleID,
		timestamp: in.Timestamp,
		disks:     append([]DiskIdentity(nil), in.Disks...),
		index:     make(map[string]int),
	}

	row.add(Column{Name: TimestampColumn, Value: Text(in.Timestamp.Format(TimestampLayout))})
	row.add(Column{Name: CycleIDColumn, Value: Text(in.CycleID)})

	for i := range in.Disks {
		for _, col := range in.Smart[i].Columns() {
			row.add(col)
		}
		for _, col := range in.DiskStats[i].Columns() {
			row.add(col)
		}
	}
	for _, col := range in.Server.Columns(in.ServerMetrics) {
		row.add(col)
	}
	return row
}

func (r *CycleRow) add(col Column) {
	if _, dup := r.index[col.Name]; dup {
		return
	}
	r.index[col.Name] = len(r.columns)
	r.columns = append(r.columns, col)
}

// CycleID returns the identifier shared with the cycle's log lines.
func (r CycleRow) CycleID() string { return r.cycleID }

// Timestamp returns when the cycle started.
func (r CycleRow) Timestamp() time.Time { return r.timestamp }

// Disks returns the enumerated disks in order.
func (r CycleRow) Disks() []DiskIdentity { return append([]DiskIdentity(nil), r.disks...) }

// Columns returns a copy of the ordered columns.
func (r CycleRow) Columns() []Column { return append([]Column(nil), r.columns...) }

// Header returns the column names in order.
func (r CycleRow) Header() []string {
	names := make([]string, len(r.columns))
	for i, col := range r.columns {
		names[i] = col.Name
	}
	return names
}

// Lookup finds a column value by name.
func (r CycleRow) Lookup(name string) (Value, bool) {
	i, ok := r.index[name]
	if !ok {
		return Missing(), false
	}
	return r.columns[i].Value, true
}

// Len returns the number of columns.
func (r CycleRow) Len() int { return len(r.columns) }

// MarshalJSON encodes the row as a flat object; missing values become null.
func (r CycleRow) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(r.columns))
	for _, col := range r.columns {
		flat[col.Name] = col.Value.Interface()
	}
	return json.Marshal(flat)
}
