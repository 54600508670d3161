package serverstat

import (
	"bufio"
	"bytes"
	"errors"
	"strings"

	"github.com/rcourtman/pulse-disk-collector/internal/models"
	"github.com/rcourtman/pulse-disk-collector/internal/toolexec"
)

// NetstatCommand is shared by the tcp, udp and pps sources; the per-cycle
// toolexec.Shared invoker runs it once.
var NetstatCommand = toolexec.NewCommand("netstat", "-s")

// NetstatCounters maps section ("Tcp", "Udp", "Ip") to counter phrase to value.
type NetstatCounters map[string]map[string]int64

// Lookup returns the first phrase found in section.
func (c NetstatCounters) Lookup(section string, phrases ...string) (int64, bool) {
	counters, ok := c[section]
	if !ok {
		return 0, false
	}
	for _, phrase := range phrases {
		if v, ok := counters[phrase]; ok {
			return v, true
		}
	}
	return 0, false
}

// ParseNetstat reads `netstat -s`. Section headers are unindented lines
// ending in ':'. Counters are either "<n> phrase" or "Key: <n>".
func ParseNetstat(raw []byte) (NetstatCounters, error) {
	counters := make(NetstatCounters)
	section := ""

	scanner := bufio.NewScanner(bytes.NewReader(raw))
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if line[0] != ' ' && line[0] != '\t' && strings.HasSuffix(trimmed, ":") {
			section = strings.TrimSuffix(trimmed, ":")
			if counters[section] == nil {
				counters[section] = make(map[string]int64)
			}
			continue
		}
		if section == "" {
			continue
		}

		fields := strings.Fields(trimmed)
		if n, ok := parseInt(fields[0]); ok && len(fields) > 1 {
			phrase := strings.Join(fields[1:], " ")
			if _, seen := counters[section][phrase]; !seen {
				counters[section][phrase] = n
			}
			continue
		}
		if key, value, ok := strings.Cut(trimmed, ":"); ok {
			if n, ok := parseInt(value); ok {
				counters[section][strings.TrimSpace(key)] = n
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(counters) == 0 {
		return nil, errors.New("netstat output has no sections")
	}
	return counters, nil
}

func netstatSource(name string, keys []models.ServerMetric, extract func(NetstatCounters, *models.ServerMetricRecord) error) Source {
	return &toolSource{
		name:    name,
		keys:    keys,
		command: func(Env) toolexec.Command { return NetstatCommand },
		parse: func(raw []byte, _ Env) (models.ServerMetricRecord, error) {
			var rec models.ServerMetricRecord
			counters, err := ParseNetstat(raw)
			if err != nil {
				return rec, err
			}
			return rec, extract(counters, &rec)
		},
	}
}

func setCounter(rec *models.ServerMetricRecord, m models.ServerMetric, v int64, ok bool) {
	if ok {
		rec.Set(m, models.Count(v))
	}
}

func tcpSource() Source {
	return netstatSource(TCP, []models.ServerMetric{models.TCPOutSegs, models.TCPCurrEstab},
		func(c NetstatCounters, rec *models.ServerMetricRecord) error {
			if _, ok := c["Tcp"]; !ok {
				return errors.New("netstat output has no Tcp section")
			}
			// net-tools before 2.10 misspells "sent" as "send".
			v, ok := c.Lookup("Tcp", "segments sent out", "segments send out", "OutSegs")
			setCounter(rec, models.TCPOutSegs, v, ok)
			v, ok = c.Lookup("Tcp", "connections established", "CurrEstab")
			setCounter(rec, models.TCPCurrEstab, v, ok)
			return nil
		})
}

func udpSource() Source {
	return netstatSource(UDP, []models.ServerMetric{models.UDPOutDatagrams, models.UDPInDatagrams},
		func(c NetstatCounters, rec *models.ServerMetricRecord) error {
			if _, ok := c["Udp"]; !ok {
				return errors.New("netstat output has no Udp section")
			}
			v, ok := c.Lookup("Udp", "packets sent", "datagrams sent", "OutDatagrams")
			setCounter(rec, models.UDPOutDatagrams, v, ok)
			v, ok = c.Lookup("Udp", "packets received", "datagrams received", "InDatagrams")
			setCounter(rec, models.UDPInDatagrams, v, ok)
			return nil
		})
}

// ppsSource reports the IP packet counters as printed; netstat -s gives
// cumulative totals, not rates.
func ppsSource() Source {
	return netstatSource(PPS, []models.ServerMetric{models.NetPPSReceive, models.NetPPSTransmit},
		func(c NetstatCounters, rec *models.ServerMetricRecord) error {
			if _, ok := c["Ip"]; !ok {
				return errors.New("netstat output has no Ip section")
			}
			v, ok := c.Lookup("Ip", "total packets received", "InReceives")
			setCounter(rec, models.NetPPSReceive, v, ok)
			v, ok = c.Lookup("Ip", "requests sent out", "OutRequests")
			setCounter(rec, models.NetPPSTransmit, v, ok)
			return nil
		})
}
