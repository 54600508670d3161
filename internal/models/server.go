package models

// ServerMetric identifies one host-level metric column.
type ServerMetric int

const (
	DiskMaxUtil ServerMetric = iota
	DiskAvgUtil
	TCPOutSegs
	TCPCurrEstab
	PageIn
	PageOut
	TotalDiskReadKB
	TotalDiskWriteKB
	TotalMemKB
	UsedMemKB
	FreeMemKB
	MemRes
	CPUKernel
	CPUBusy
	UDPOutDatagrams
	UDPInDatagrams
	NetPPSReceive
	NetPPSTransmit
	ReceiveSpeed
	Load1
	Load5
	Load15

	numServerMetrics
)

var serverMetricNames = [numServerMetrics]string{
	DiskMaxUtil:      "disk_max_util",
	DiskAvgUtil:      "disk_avg_util",
	TCPOutSegs:       "tcp_outsegs",
	TCPCurrEstab:     "tcp_currestab",
	PageIn:           "page_in",
	PageOut:          "page_out",
	TotalDiskReadKB:  "total_disk_read_kb",
	TotalDiskWriteKB: "total_disk_write_kb",
	TotalMemKB:       "total_mem_kb",
	UsedMemKB:        "used_mem_kb",
	FreeMemKB:        "free_mem_kb",
	MemRes:           "mem_res",
	CPUKernel:        "cpu_kernel",
	CPUBusy:          "cpu_busy",
	UDPOutDatagrams:  "udp_outdatagrams",
	UDPInDatagrams:   "udp_indatagrams",
	NetPPSReceive:    "net_pps_receive",
	NetPPSTransmit:   "net_pps_transmit",
	ReceiveSpeed:     "receive_speed",
	Load1:            "load1",
	Load5:            "load5",
	Load15:           "load15",
}

func (m ServerMetric) String() string {
	if m >= 0 && m < numServerMetrics {
		return serverMetricNames[m]
	}
	return "unknown"
}

// ServerMetricRecord holds every host-level metric; unset entries are Missing.
type ServerMetricRecord struct {
	values [numServerMetrics]Value
}

// Set stores a value; out-of-range metrics are ignored.
func (r *ServerMetricRecord) Set(m ServerMetric, v Value) {
	if m >= 0 && m < numServerMetrics {
		r.values[m] = v
	}
}

// Get returns the stored value or Missing.
func (r ServerMetricRecord) Get(m ServerMetric) Value {
	if m >= 0 && m < numServerMetrics {
		return r.values[m]
	}
	return Missing()
}

// Merge copies the given keys from other into r.
func (r *ServerMetricRecord) Merge(other ServerMetricRecord, keys []ServerMetric) {
	for _, k := range keys {
		r.Set(k, other.Get(k))
	}
}

// Columns renders the given keys in order.
func (r ServerMetricRecord) Columns(keys []ServerMetric) []Column {
	cols := make([]Column, 0, len(keys))
	for _, k := range keys {
		cols = append(cols, Column{Name: k.String(), Value: r.Get(k)})
	}
	return cols
}
