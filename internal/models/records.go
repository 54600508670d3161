package models

import (
	"path/filepath"
	"strconv"
	"strings"
)

// DiskIdentity names a physical disk for one cycle. Name is the kernel name
// ("sda", "nvme0n1") and is what column names embed; Path is the device node.
type DiskIdentity struct {
	Name string
	Path string
}

// NewDiskIdentity accepts either a kernel name or a /dev path.
func NewDiskIdentity(nameOrPath string) DiskIdentity {
	nameOrPath = strings.TrimSpace(nameOrPath)
	if strings.HasPrefix(nameOrPath, "/") {
		return DiskIdentity{Name: filepath.Base(nameOrPath), Path: nameOrPath}
	}
	return DiskIdentity{Name: nameOrPath, Path: "/dev/" + nameOrPath}
}

func (d DiskIdentity) String() string { return d.Name }

// SmartAttribute holds the normalized VALUE and decoded RAW_VALUE of one attribute.
type SmartAttribute struct {
	ID         int
	Normalized Value
	Raw        Value
}

// SmartAttributeSet has exactly one entry per whitelisted attribute ID, in
// whitelist order. Attributes the disk did not report stay Missing.
type SmartAttributeSet struct {
	Disk       DiskIdentity
	Model      Value
	Serial     Value
	Health     Value
	Attributes []SmartAttribute
	index      map[int]int
}

// NewSmartAttributeSet returns an all-missing set for the whitelist.
func NewSmartAttributeSet(disk DiskIdentity, whitelist []int) SmartAttributeSet {
	set := SmartAttributeSet{
		Disk:       disk,
		Attributes: make([]SmartAttribute, len(whitelist)),
		index:      make(map[int]int, len(whitelist)),
	}
	for i, id := range whitelist {
		set.Attributes[i] = SmartAttribute{ID: id}
		set.index[id] = i
	}
	return set
}

// Set stores an attribute reading. IDs outside the whitelist are ignored and
// Set reports false.
func (s *SmartAttributeSet) Set(id int, normalized, raw Value) bool {
	i, ok := s.index[id]
	if !ok {
		return false
	}
	s.Attributes[i].Normalized = normalized
	s.Attributes[i].Raw = raw
	return true
}

// Get returns the reading for a whitelisted attribute.
func (s SmartAttributeSet) Get(id int) (SmartAttribute, bool) {
	i, ok := s.index[id]
	if !ok {
		return SmartAttribute{}, false
	}
	return s.Attributes[i], true
}

// Found counts attributes with at least one non-missing value.
func (s SmartAttributeSet) Found() int {
	n := 0
	for _, attr := range s.Attributes {
		if !attr.Normalized.IsMissing() || !attr.Raw.IsMissing() {
			n++
		}
	}
	return n
}

// Columns lists the per-disk SMART columns in their fixed order.
func (s SmartAttributeSet) Columns() []Column {
	cols := make([]Column, 0, 3+2*len(s.Attributes))
	cols = append(cols,
		Column{Name: DiskColumn(s.Disk, "model"), Value: s.Model},
		Column{Name: DiskColumn(s.Disk, "serial_number"), Value: s.Serial},
		Column{Name: DiskColumn(s.Disk, "disk_status"), Value: s.Health},
	)
	for _, attr := range s.Attributes {
		prefix := "smart_" + strconv.Itoa(attr.ID)
		cols = append(cols,
			Column{Name: DiskColumn(s.Disk, prefix+"_normalized"), Value: attr.Normalized},
			Column{Name: DiskColumn(s.Disk, prefix+"_raw"), Value: attr.Raw},
		)
	}
	return cols
}

// DiskMetricRecord is the I/O statistics sample for one disk.
type DiskMetricRecord struct {
	Disk            DiskIdentity
	IOQueueSize     Value // aqu-sz
	ReadThroughput  Value // rkB/s
	ReadQueueTime   Value // r_await, ms
	ReadQPS         Value // r/s
	WriteQPS        Value // w/s
	WriteQueueTime  Value // w_await, ms
	WriteThroughput Value // wkB/s
	Util            Value // %util
}

// MissingDiskMetrics returns a record with every field missing.
func MissingDiskMetrics(disk DiskIdentity) DiskMetricRecord {
	return DiskMetricRecord{Disk: disk}
}

// Columns lists the per-disk I/O columns in their fixed order.
func (r DiskMetricRecord) Columns() []Column {
	return []Column{
		{Name: DiskColumn(r.Disk, "io_queue_size"), Value: r.IOQueueSize},
		{Name: DiskColumn(r.Disk, "read_throughput"), Value: r.ReadThroughput},
		{Name: DiskColumn(r.Disk, "read_queue_time"), Value: r.ReadQueueTime},
		{Name: DiskColumn(r.Disk, "read_qps"), Value: r.ReadQPS},
		{Name: DiskColumn(r.Disk, "write_qps"), Value: r.WriteQPS},
		{Name: DiskColumn(r.Disk, "write_queue_time"), Value: r.WriteQueueTime},
		{Name: DiskColumn(r.Disk, "write_throughput"), Value: r.WriteThroughput},
		{Name: DiskColumn(r.Disk, "util"), Value: r.Util},
	}
}

// DiskColumnSeparator joins disk name and metric name in per-disk columns.
const DiskColumnSeparator = "."

// DiskColumn builds the column name for a per-disk metric, e.g. "sda.smart_5_raw".
func DiskColumn(disk DiskIdentity, metric string) string {
	return disk.Name + DiskColumnSeparator + metric
}

// SplitDiskColumn reverses DiskColumn. Server-level columns return ok=false.
func SplitDiskColumn(column string) (disk, metric string, ok bool) {
	i := strings.Index(column, DiskColumnSeparator)
	if i <= 0 || i == len(column)-1 {
		return "", column, false
	}
	return column[:i], column[i+1:], true
}
