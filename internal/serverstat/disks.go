package serverstat

import (
	"github.com/rcourtman/pulse-disk-collector/internal/iostat"
	"github.com/rcourtman/pulse-disk-collector/internal/models"
	"github.com/rcourtman/pulse-disk-collector/internal/toolexec"
)

func diskNames(disks []models.DiskIdentity) []string {
	names := make([]string, len(disks))
	for i, d := range disks {
		names[i] = d.Name
	}
	return names
}

func noDisks(env Env) bool { return len(env.Disks) == 0 }

func diskUtilSource() Source {
	return &toolSource{
		name: DiskUtil,
		keys: []models.ServerMetric{models.DiskMaxUtil, models.DiskAvgUtil},
		command: func(env Env) toolexec.Command {
			args := append([]string{"-d", "-x", "-y", "1", "1"}, diskNames(env.Disks)...)
			return toolexec.NewCommand("iostat", args...)
		},
		parse: func(raw []byte, env Env) (models.ServerMetricRecord, error) {
			return ParseDiskUtil(raw, env.Disks)
		},
		skip: noDisks,
	}
}

func diskSummarySource() Source {
	return &toolSource{
		name: DiskSummary,
		keys: []models.ServerMetric{models.TotalDiskReadKB, models.TotalDiskWriteKB},
		command: func(env Env) toolexec.Command {
			args := append([]string{"-d", "-k"}, diskNames(env.Disks)...)
			return toolexec.NewCommand("iostat", args...)
		},
		parse: func(raw []byte, env Env) (models.ServerMetricRecord, error) {
			return ParseDiskSummary(raw, env.Disks)
		},
		skip: noDisks,
	}
}

// ParseDiskUtil computes max and mean %util over the enumerated disks the
// report lists. Disks absent from the report do not count towards the mean.
func ParseDiskUtil(raw []byte, disks []models.DiskIdentity) (models.ServerMetricRecord, error) {
	var rec models.ServerMetricRecord
	report, err := iostat.Parse(raw)
	if err != nil {
		return rec, err
	}

	var (
		maxUtil, sum float64
		n            int
	)
	for _, disk := range disks {
		util, ok := report.Float(disk.Name, iostat.ColUtil...)
		if !ok {
			continue
		}
		if n == 0 || util > maxUtil {
			maxUtil = util
		}
		sum += util
		n++
	}
	if n > 0 {
		rec.Set(models.DiskMaxUtil, models.Percent(maxUtil))
		rec.Set(models.DiskAvgUtil, models.Percent(sum/float64(n)))
	}
	return rec, nil
}

// ParseDiskSummary sums kB_read and kB_wrtn over the enumerated disks.
func ParseDiskSummary(raw []byte, disks []models.DiskIdentity) (models.ServerMetricRecord, error) {
	var rec models.ServerMetricRecord
	report, err := iostat.Parse(raw)
	if err != nil {
		return rec, err
	}

	var (
		read, written float64
		nRead, nWrite int
	)
	for _, disk := range disks {
		if v, ok := report.Float(disk.Name, iostat.ColKBRead...); ok {
			read += v
			nRead++
		}
		if v, ok := report.Float(disk.Name, iostat.ColKBWritten...); ok {
			written += v
			nWrite++
		}
	}
	if nRead > 0 {
		rec.Set(models.TotalDiskReadKB, models.Kilobytes(read))
	}
	if nWrite > 0 {
		rec.Set(models.TotalDiskWriteKB, models.Kilobytes(written))
	}
	return rec, nil
}
