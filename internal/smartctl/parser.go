package smartctl

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	pdcerrors "github.com/rcourtman/pulse-disk-collector/internal/errors"
	"github.com/rcourtman/pulse-disk-collector/internal/models"
)

// Source is the failure-list name for SMART collection.
const Source = "smartctl"

// TemperatureAttribute is Temperature_Celsius; its raw value is degrees.
const TemperatureAttribute = 194

// DefaultAttributes is the standard attribute whitelist.
var DefaultAttributes = []int{1, 3, 4, 5, 7, 9, 10, 12, 187, 188, 191, 192, 193, 194, 198, 199}

// StandbyStatus is reported as disk_status when the drive was asleep and
// smartctl declined to wake it.
const StandbyStatus = "STANDBY"

var errNoAttributeTable = errors.New("no attribute table found")

// Parse turns smartctl output (text or --json) into an attribute set for the
// whitelist. Attributes the drive does not report stay missing; only output
// without any recognisable structure is a parse failure.
func Parse(raw []byte, disk models.DiskIdentity, whitelist []int) (models.SmartAttributeSet, error) {
	set := models.NewSmartAttributeSet(disk, whitelist)

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return set, pdcerrors.WrapParseError(Source, errors.New("empty output"))
	}

	var err error
	if trimmed[0] == '{' {
		err = parseJSON(trimmed, &set)
	} else {
		err = parseText(trimmed, &set)
	}
	if err != nil {
		var colErr *pdcerrors.CollectError
		if !errors.As(err, &colErr) {
			err = pdcerrors.WrapParseError(Source, err)
		}
		return models.NewSmartAttributeSet(disk, whitelist), err
	}
	return set, nil
}

// parseText handles the classic table printed by `smartctl -i -H -A`. The
// attribute table header names the columns; VALUE is located by name and
// RAW_VALUE is everything from its column onward, since raw values may
// contain spaces ("42 (Min/Max 18/55)").
func parseText(raw []byte, set *models.SmartAttributeSet) error {
	var (
		inTable    bool
		recognised bool
		valueCol   = -1
		rawCol     = -1
		nvme       bool
	)

	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" {
			inTable = false
			continue
		}
		if inTable {
			parseAttributeLine(line, valueCol, rawCol, set)
			continue
		}
		if isDefaultLayoutRow(line) {
			parseAttributeLine(line, defaultValueCol, defaultRawCol, set)
			recognised = true
			continue
		}

		if key, value, ok := infoField(line); ok {
			switch key {
			case "device model", "model number", "product":
				set.Model = models.Text(value)
			case "serial number":
				set.Serial = models.Text(value)
			case "smart overall-health self-assessment test result", "smart health status":
				set.Health = models.Text(value)
				recognised = true
			}
			if nvme {
				applyNVMeField(set, key, value)
			}
			continue
		}

		switch {
		case strings.HasPrefix(line, "ID#"):
			fields := strings.Fields(line)
			valueCol, rawCol = columnIndex(fields, "VALUE"), columnIndex(fields, "RAW_VALUE")
			if valueCol < 0 || rawCol < 0 {
				return fmt.Errorf("attribute table header lacks VALUE/RAW_VALUE: %q", line)
			}
			inTable = true
			recognised = true
			continue
		case strings.HasPrefix(line, "SMART/Health Information"):
			nvme = true
			recognised = true
			continue
		case strings.Contains(line, "STANDBY mode"):
			set.Health = models.Text(StandbyStatus)
			recognised = true
			continue
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if !recognised {
		return errNoAttributeTable
	}
	return nil
}

// Columns of the default attribute table layout:
// ID# ATTRIBUTE_NAME FLAG VALUE WORST THRESH TYPE UPDATED WHEN_FAILED RAW_VALUE
const (
	defaultValueCol = 3
	defaultRawCol   = 9
)

// isDefaultLayoutRow recognises an attribute row printed without its ID#
// header, e.g. when a wrapper trims smartctl's output to the table body.
func isDefaultLayoutRow(line string) bool {
	fields := strings.Fields(line)
	if len(fields) <= defaultRawCol || !strings.HasPrefix(fields[2], "0x") {
		return false
	}
	id, err := strconv.Atoi(fields[0])
	return err == nil && id >= 1 && id <= 255
}

func parseAttributeLine(line string, valueCol, rawCol int, set *models.SmartAttributeSet) {
	fields := strings.Fields(line)
	if len(fields) <= rawCol || len(fields) <= valueCol {
		return
	}
	id, err := strconv.Atoi(fields[0])
	if err != nil || id < 1 || id > 255 {
		return
	}
	normalized := parseCount(fields[valueCol])
	rawValue := decodeRaw(id, strings.Join(fields[rawCol:], " "))
	set.Set(id, normalized, rawValue)
}

// infoField splits "Key:   value" lines from the information and health
// sections. Attribute rows and section banners never contain ": ".
func infoField(line string) (string, string, bool) {
	idx := strings.Index(line, ":")
	if idx <= 0 || strings.HasPrefix(line, "ID#") || strings.HasPrefix(line, "===") {
		return "", "", false
	}
	key := strings.ToLower(strings.TrimSpace(line[:idx]))
	value := strings.TrimSpace(line[idx+1:])
	if value == "" {
		return "", "", false
	}
	return key, value, true
}

// applyNVMeField maps the NVMe health log onto the ATA IDs that carry the
// same meaning, so NVMe disks still fill power-on hours, power cycles and
// temperature.
func applyNVMeField(set *models.SmartAttributeSet, key, value string) {
	var id int
	switch key {
	case "temperature":
		id = TemperatureAttribute
	case "power on hours":
		id = 9
	case "power cycles":
		id = 12
	default:
		return
	}
	set.Set(id, models.Missing(), decodeRaw(id, value))
}

func columnIndex(fields []string, name string) int {
	for i, f := range fields {
		if f == name {
			return i
		}
	}
	return -1
}

// decodeRaw takes the leading integer of a RAW_VALUE field. Negative or
// non-numeric values are missing.
func decodeRaw(id int, raw string) models.Value {
	digits := leadingInteger(raw)
	if digits == "" {
		return models.Missing()
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || n < 0 {
		return models.Missing()
	}
	if id == TemperatureAttribute {
		return models.Celsius(n)
	}
	return models.Count(n)
}

func parseCount(field string) models.Value {
	n, err := strconv.ParseInt(strings.ReplaceAll(field, ",", ""), 10, 64)
	if err != nil {
		return models.Missing()
	}
	return models.Count(n)
}

func leadingInteger(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	end := 0
	for end < len(s) {
		c := s[end]
		if (c >= '0' && c <= '9') || (end == 0 && c == '-') {
			end++
			continue
		}
		break
	}
	if end == 0 || s[:end] == "-" {
		return ""
	}
	return s[:end]
}

// smartctlJSON is the subset of `smartctl --json` used here.
type smartctlJSON struct {
	Device struct {
		Name     string `json:"name"`
		Protocol string `json:"protocol"`
	} `json:"device"`
	ModelName    string `json:"model_name"`
	SerialNumber string `json:"serial_number"`
	SmartStatus  *struct {
		Passed bool `json:"passed"`
	} `json:"smart_status"`
	PowerMode          string `json:"power_mode"`
	ATASmartAttributes *struct {
		Table []struct {
			ID    int    `json:"id"`
			Name  string `json:"name"`
			Value *int64 `json:"value"`
			Raw   struct {
				Value  *int64 `json:"value"`
				String string `json:"string"`
			} `json:"raw"`
		} `json:"table"`
	} `json:"ata_smart_attributes"`
	NVMeSmartHealthInformationLog *struct {
		Temperature  *int64 `json:"temperature"`
		PowerOnHours *int64 `json:"power_on_hours"`
		PowerCycles  *int64 `json:"power_cycles"`
	} `json:"nvme_smart_health_information_log"`
	Smartctl struct {
		ExitStatus int `json:"exit_status"`
		Messages   []struct {
			String   string `json:"string"`
			Severity string `json:"severity"`
		} `json:"messages"`
	} `json:"smartctl"`
}

// inStandby reports a drive that -n standby left asleep. Exit status bit 1
// alone also covers open failures, so it is not taken as standby.
func (doc smartctlJSON) inStandby() bool {
	if strings.EqualFold(doc.PowerMode, "standby") {
		return true
	}
	for _, msg := range doc.Smartctl.Messages {
		if strings.Contains(strings.ToUpper(msg.String), "STANDBY") {
			return true
		}
	}
	return false
}

func parseJSON(raw []byte, set *models.SmartAttributeSet) error {
	var doc smartctlJSON
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}

	set.Model = models.Text(doc.ModelName)
	set.Serial = models.Text(doc.SerialNumber)
	if doc.SmartStatus != nil {
		if doc.SmartStatus.Passed {
			set.Health = models.Text("PASSED")
		} else {
			set.Health = models.Text("FAILED")
		}
	}

	recognised := doc.SmartStatus != nil
	if doc.inStandby() {
		set.Health = models.Text(StandbyStatus)
		recognised = true
	}

	if doc.ATASmartAttributes != nil {
		recognised = true
		for _, entry := range doc.ATASmartAttributes.Table {
			normalized := models.Missing()
			if entry.Value != nil {
				normalized = models.Count(*entry.Value)
			}
			// raw.value packs min/max into the upper bytes for temperature,
			// so prefer the leading integer of raw.string.
			rawValue := decodeRaw(entry.ID, entry.Raw.String)
			if rawValue.IsMissing() && entry.Raw.Value != nil {
				rawValue = decodeRaw(entry.ID, strconv.FormatInt(*entry.Raw.Value, 10))
			}
			set.Set(entry.ID, normalized, rawValue)
		}
	}

	if nvme := doc.NVMeSmartHealthInformationLog; nvme != nil {
		recognised = true
		setNVMe := func(id int, v *int64) {
			if v != nil {
				set.Set(id, models.Missing(), decodeRaw(id, strconv.FormatInt(*v, 10)))
			}
		}
		setNVMe(TemperatureAttribute, nvme.Temperature)
		setNVMe(9, nvme.PowerOnHours)
		setNVMe(12, nvme.PowerCycles)
	}

	if !recognised {
		return errNoAttributeTable
	}
	return nil
}
