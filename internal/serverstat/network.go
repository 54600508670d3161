package serverstat

import (
	"bufio"
	"bytes"
	"errors"
	"strings"

	"github.com/rcourtman/pulse-disk-collector/internal/models"
	"github.com/rcourtman/pulse-disk-collector/internal/toolexec"
	"github.com/rs/zerolog/log"
)

func netRxSource() Source {
	return &toolSource{
		name:    NetRx,
		keys:    []models.ServerMetric{models.ReceiveSpeed},
		command: func(Env) toolexec.Command { return toolexec.NewCommand("ifstat", "1", "1") },
		parse: func(raw []byte, env Env) (models.ServerMetricRecord, error) {
			return ParseIfstat(raw, env.Interface)
		},
	}
}

// ParseIfstat reads the inbound KB/s of iface from `ifstat 1 1`: a line of
// interface names, a line of "KB/s in  KB/s out" headers, then one sample
// line with an in/out pair per interface. An empty iface selects the first
// interface. An interface ifstat does not list leaves receive_speed missing.
func ParseIfstat(raw []byte, iface string) (models.ServerMetricRecord, error) {
	var (
		rec   models.ServerMetricRecord
		lines [][]string
	)

	scanner := bufio.NewScanner(bytes.NewReader(raw))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		lines = append(lines, fields)
	}
	if len(lines) < 3 || !strings.Contains(strings.Join(lines[1], " "), "KB/s") {
		return rec, errors.New("ifstat output lacks interface, header and sample lines")
	}

	interfaces, sample := lines[0], lines[len(lines)-1]
	idx := 0
	if iface != "" {
		idx = indexOf(interfaces, iface)
		if idx < 0 {
			log.Warn().
				Str("component", "serverstat").
				Str("interface", iface).
				Strs("available", interfaces).
				Msg("Configured interface not reported by ifstat")
			return rec, nil
		}
	}
	if idx*2 < len(sample) {
		if f, ok := parseNumber(sample[idx*2]); ok && f >= 0 {
			rec.Set(models.ReceiveSpeed, models.Rate(f))
		}
	}
	return rec, nil
}
