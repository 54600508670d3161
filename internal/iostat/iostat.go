// Package iostat parses sysstat iostat device reports.
package iostat

import (
	"bufio"
	"bytes"
	"errors"
	"math"
	"strconv"
	"strings"

	pdcerrors "github.com/rcourtman/pulse-disk-collector/internal/errors"
	"github.com/rcourtman/pulse-disk-collector/internal/models"
	"github.com/rcourtman/pulse-disk-collector/internal/toolexec"
)

// Source is the failure-list name for per-disk I/O statistics.
const Source = "iostat"

// Column aliases across sysstat versions. The first present alias wins.
var (
	ColQueueSize       = []string{"aqu-sz", "avgqu-sz"}
	ColReadThroughput  = []string{"rkB/s"}
	ColReadAwait       = []string{"r_await", "await"}
	ColReadsPerSec     = []string{"r/s"}
	ColWritesPerSec    = []string{"w/s"}
	ColWriteAwait      = []string{"w_await", "await"}
	ColWriteThroughput = []string{"wkB/s"}
	ColUtil            = []string{"%util"}
	ColKBRead          = []string{"kB_read"}
	ColKBWritten       = []string{"kB_wrtn"}
)

// DiskCommand samples one second of extended statistics for one disk.
// -y skips the since-boot report so the values are the interval rates.
func DiskCommand(disk models.DiskIdentity) toolexec.Command {
	return toolexec.NewCommand("iostat", "-d", "-x", "-k", "-y", "1", "1", disk.Name)
}

// Report is one device table from iostat output.
type Report struct {
	columns map[string]int
	devices []string
	rows    map[string][]string
}

// Devices returns device names in report order.
func (r Report) Devices() []string { return append([]string(nil), r.devices...) }

// Has reports whether the device has a row.
func (r Report) Has(device string) bool {
	_, ok := r.rows[device]
	return ok
}

// Float returns the device's value in the first column alias present in the
// header. Locales that print decimal commas are accepted.
func (r Report) Float(device string, aliases ...string) (float64, bool) {
	row, ok := r.rows[device]
	if !ok {
		return 0, false
	}
	for _, name := range aliases {
		idx, ok := r.columns[name]
		if !ok {
			continue
		}
		if idx >= len(row) {
			return 0, false
		}
		f, err := strconv.ParseFloat(strings.ReplaceAll(row[idx], ",", "."), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

var errNoDeviceTable = errors.New("no Device header found")

// Parse returns the last device report in raw. iostat prints one report per
// interval, each headed by a line starting with "Device".
func Parse(raw []byte) (Report, error) {
	var (
		current Report
		found   bool
		inCPU   bool
	)

	scanner := bufio.NewScanner(bytes.NewReader(raw))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if strings.HasPrefix(fields[0], "Device") {
			current = Report{
				columns: make(map[string]int, len(fields)),
				rows:    make(map[string][]string),
			}
			for i, name := range fields {
				current.columns[name] = i
			}
			found = true
			inCPU = false
			continue
		}
		// avg-cpu blocks are interleaved when -d is not given.
		if strings.HasPrefix(fields[0], "avg-cpu") {
			inCPU = true
			continue
		}
		if !found || inCPU || len(fields) < 2 {
			continue
		}
		if _, dup := current.rows[fields[0]]; !dup {
			current.devices = append(current.devices, fields[0])
		}
		current.rows[fields[0]] = fields
	}
	if err := scanner.Err(); err != nil {
		return Report{}, pdcerrors.WrapParseError(Source, err)
	}
	if !found {
		return Report{}, pdcerrors.WrapParseError(Source, errNoDeviceTable)
	}
	return current, nil
}

// ParseDisk builds the I/O record for disk from extended iostat output. A
// disk the report does not mention gets an all-missing record and no error.
func ParseDisk(raw []byte, disk models.DiskIdentity) (models.DiskMetricRecord, error) {
	report, err := Parse(raw)
	if err != nil {
		return models.MissingDiskMetrics(disk), err
	}
	return RecordFor(report, disk), nil
}

// RecordFor extracts one disk's record from a parsed report. Rates are the
// tool's own interval values; nothing is re-derived from counters.
func RecordFor(report Report, disk models.DiskIdentity) models.DiskMetricRecord {
	rec := models.MissingDiskMetrics(disk)
	if !report.Has(disk.Name) {
		return rec
	}
	get := func(ctor func(float64) models.Value, aliases []string) models.Value {
		f, ok := report.Float(disk.Name, aliases...)
		if !ok || f < 0 {
			return models.Missing()
		}
		return ctor(f)
	}
	rec.IOQueueSize = get(models.Rate, ColQueueSize)
	rec.ReadThroughput = get(models.Kilobytes, ColReadThroughput)
	rec.ReadQueueTime = get(models.Millis, ColReadAwait)
	rec.ReadQPS = get(models.Rate, ColReadsPerSec)
	rec.WriteQPS = get(models.Rate, ColWritesPerSec)
	rec.WriteQueueTime = get(models.Millis, ColWriteAwait)
	rec.WriteThroughput = get(models.Kilobytes, ColWriteThroughput)
	rec.Util = get(models.Percent, ColUtil)
	return rec
}
