package serverstat

import (
	"bufio"
	"bytes"
	"errors"
	"strings"

	"github.com/rcourtman/pulse-disk-collector/internal/models"
	"github.com/rcourtman/pulse-disk-collector/internal/toolexec"
)

func cpuSource() Source {
	return &toolSource{
		name:    CPU,
		keys:    []models.ServerMetric{models.CPUKernel, models.CPUBusy},
		command: func(Env) toolexec.Command { return toolexec.NewCommand("mpstat", "1", "1") },
		parse:   func(raw []byte, _ Env) (models.ServerMetricRecord, error) { return ParseMpstat(raw) },
	}
}

func memorySource() Source {
	return &toolSource{
		name:    Memory,
		keys:    []models.ServerMetric{models.TotalMemKB, models.UsedMemKB, models.FreeMemKB, models.MemRes},
		command: func(Env) toolexec.Command { return toolexec.NewCommand("free", "-k") },
		parse:   func(raw []byte, _ Env) (models.ServerMetricRecord, error) { return ParseFree(raw) },
	}
}

func pagingSource() Source {
	return &toolSource{
		name:    Paging,
		keys:    []models.ServerMetric{models.PageIn, models.PageOut},
		command: func(Env) toolexec.Command { return toolexec.NewCommand("vmstat", "1", "2") },
		parse:   func(raw []byte, _ Env) (models.ServerMetricRecord, error) { return ParseVmstat(raw) },
	}
}

// ParseMpstat reads the "all" CPU row, preferring the Average line. Fields
// are aligned from the right of the header because the time column is one
// or two tokens depending on the locale (AM/PM). cpu_kernel is %sys and
// cpu_busy is 100 - %idle.
func ParseMpstat(raw []byte) (models.ServerMetricRecord, error) {
	var (
		rec      models.ServerMetricRecord
		header   []string
		selected []string
	)

	scanner := bufio.NewScanner(bytes.NewReader(raw))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if indexOf(fields, "CPU") >= 0 && indexOf(fields, "%idle") >= 0 {
			header = fields
			continue
		}
		if header == nil {
			continue
		}
		if cell, ok := fromRight(header, fields, "CPU"); ok && cell == "all" {
			selected = fields
			if strings.HasPrefix(fields[0], "Average") {
				break
			}
		}
	}
	if header == nil {
		return rec, errors.New("mpstat header with CPU and %idle not found")
	}
	if selected == nil {
		return rec, errors.New("mpstat row for all CPUs not found")
	}

	for _, name := range []string{"%sys", "%system"} {
		if cell, ok := fromRight(header, selected, name); ok {
			if f, ok := parseNumber(cell); ok {
				rec.Set(models.CPUKernel, models.Percent(f))
			}
			break
		}
	}
	if cell, ok := fromRight(header, selected, "%idle"); ok {
		if idle, ok := parseNumber(cell); ok && idle >= 0 && idle <= 100 {
			rec.Set(models.CPUBusy, models.Percent(100-idle))
		}
	}
	return rec, nil
}

// fromRight returns the cell of row that sits under header column name,
// counting from the last column.
func fromRight(header, row []string, name string) (string, bool) {
	idx := indexOf(header, name)
	if idx < 0 {
		return "", false
	}
	pos := len(row) - (len(header) - idx)
	if pos < 0 || pos >= len(row) {
		return "", false
	}
	return row[pos], true
}

// ParseFree reads the Mem: line of `free -k`. mem_res is total minus used.
// Russian locales print "Память:".
func ParseFree(raw []byte) (models.ServerMetricRecord, error) {
	var rec models.ServerMetricRecord

	scanner := bufio.NewScanner(bytes.NewReader(raw))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 || (fields[0] != "Mem:" && fields[0] != "Память:") {
			continue
		}
		total, okTotal := parseNumber(fields[1])
		used, okUsed := parseNumber(fields[2])
		free, okFree := parseNumber(fields[3])
		if okTotal {
			rec.Set(models.TotalMemKB, models.Kilobytes(total))
		}
		if okUsed {
			rec.Set(models.UsedMemKB, models.Kilobytes(used))
		}
		if okFree {
			rec.Set(models.FreeMemKB, models.Kilobytes(free))
		}
		if okTotal && okUsed && total >= used {
			rec.Set(models.MemRes, models.Kilobytes(total-used))
		}
		return rec, nil
	}
	return rec, errors.New("free output has no Mem: line")
}

// ParseVmstat reads si/so from the last sample of `vmstat 1 2`. The first
// sample is the since-boot average, the last is the interval.
func ParseVmstat(raw []byte) (models.ServerMetricRecord, error) {
	var (
		rec    models.ServerMetricRecord
		header []string
		last   []string
	)

	scanner := bufio.NewScanner(bytes.NewReader(raw))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "procs") {
			continue
		}
		if indexOf(fields, "si") >= 0 && indexOf(fields, "so") >= 0 {
			header = fields
			continue
		}
		if header != nil && len(fields) == len(header) {
			last = fields
		}
	}
	if header == nil {
		return rec, errors.New("vmstat header with si/so not found")
	}
	if last == nil {
		return rec, errors.New("vmstat printed no samples")
	}

	if n, ok := parseInt(last[indexOf(header, "si")]); ok {
		rec.Set(models.PageIn, models.Count(n))
	}
	if n, ok := parseInt(last[indexOf(header, "so")]); ok {
		rec.Set(models.PageOut, models.Count(n))
	}
	return rec, nil
}
