package smartctl

import (
	"context"
	"errors"
	"testing"
	"time"

	pdcerrors "github.com/rcourtman/pulse-disk-collector/internal/errors"
	"github.com/rcourtman/pulse-disk-collector/internal/models"
	"github.com/rcourtman/pulse-disk-collector/internal/toolexec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ataOutput = `smartctl 7.2 2020-12-30 r5155 [x86_64-linux-5.15.0-91-generic] (local build)
Copyright (C) 2002-20, Bruce Allen, Christian Franke, www.smartmontools.org

=== START OF INFORMATION SECTION ===
Model Family:     Seagate Barracuda 7200.14 (AF)
Device Model:     ST1000DM003-1CH162
Serial Number:    Z1D5K2AB
LU WWN Device Id: 5 000c50 065a1b2c3
Firmware Version: CC47
User Capacity:    1,000,204,886,016 bytes [1.00 TB]
SMART support is: Enabled

=== START OF READ SMART DATA SECTION ===
SMART overall-health self-assessment test result: PASSED

SMART Attributes Data Structure revision number: 10
Vendor Specific SMART Attributes with Thresholds:
ID# ATTRIBUTE_NAME          FLAG     VALUE WORST THRESH TYPE      UPDATED  WHEN_FAILED RAW_VALUE
  1 Raw_Read_Error_Rate     0x000f   117   099   006    Pre-fail  Always       -       158143240
  5 Reallocated_Sector_Ct   0x0033   100   100   010    Pre-fail  Always       -       0
  9 Power_On_Hours          0x0032   061   061   000    Old_age   Always       -       34512h+12m+03.112s
194 Temperature_Celsius     0x0022   042   055   000    Old_age   Always       -       42 (0 18 0 0 0)
197 Current_Pending_Sector  0x0012   100   100   000    Old_age   Always       -       8
199 UDMA_CRC_Error_Count    0x003e   200   200   000    Old_age   Always       -       -3

`

func sda() models.DiskIdentity { return models.NewDiskIdentity("sda") }

func TestParseTextWhitelistSubset(t *testing.T) {
	set, err := Parse([]byte(ataOutput), sda(), DefaultAttributes)
	require.NoError(t, err)

	assert.Equal(t, "ST1000DM003-1CH162", set.Model.String())
	assert.Equal(t, "Z1D5K2AB", set.Serial.String())
	assert.Equal(t, "PASSED", set.Health.String())

	tests := []struct {
		id         int
		normalized string
		raw        string
	}{
		{1, "117", "158143240"},
		{5, "100", "0"},
		{9, "61", "34512"},
		{194, "42", "42"},
		{199, "200", models.MissingToken}, // negative raw
		{3, models.MissingToken, models.MissingToken},
		{187, models.MissingToken, models.MissingToken},
	}
	for _, tt := range tests {
		attr, ok := set.Get(tt.id)
		require.True(t, ok, "id %d", tt.id)
		assert.Equal(t, tt.normalized, attr.Normalized.String(), "normalized %d", tt.id)
		assert.Equal(t, tt.raw, attr.Raw.String(), "raw %d", tt.id)
	}

	_, ok := set.Get(197)
	assert.False(t, ok, "attributes outside the whitelist are dropped")
	assert.Len(t, set.Attributes, len(DefaultAttributes))
}

func TestParseTextScenarioReallocatedAndTemperature(t *testing.T) {
	out := `=== START OF READ SMART DATA SECTION ===
ID# ATTRIBUTE_NAME          FLAG     VALUE WORST THRESH TYPE      UPDATED  WHEN_FAILED RAW_VALUE
  5 Reallocated_Sector_Ct   0x0033   100   100   010    Pre-fail  Always       -       0
194 Temperature_Celsius     0x0022   042   055   000    Old_age   Always       -       42
`
	set, err := Parse([]byte(out), sda(), DefaultAttributes)
	require.NoError(t, err)

	realloc, _ := set.Get(5)
	temp, _ := set.Get(194)
	assert.Equal(t, "0", realloc.Raw.String())
	assert.Equal(t, models.KindCount, realloc.Raw.Kind())
	assert.Equal(t, "42", temp.Raw.String())
	assert.Equal(t, models.KindTemperature, temp.Raw.Kind())

	missing := 0
	for _, attr := range set.Attributes {
		if attr.Raw.IsMissing() {
			missing++
		}
	}
	assert.Equal(t, 14, missing)
	assert.True(t, set.Model.IsMissing())
}

func TestParseBriefFormat(t *testing.T) {
	out := `ID# ATTRIBUTE_NAME          FLAGS    VALUE WORST THRESH FAIL RAW_VALUE
  5 Reallocated_Sector_Ct   PO--CK   100   100   010    -    16
  9 Power_On_Hours          -O--CK   092   092   000    -    7421
                            ||||||_ K auto-keep
                            |||||__ C event count
`
	set, err := Parse([]byte(out), sda(), []int{5, 9})
	require.NoError(t, err)
	attr, _ := set.Get(5)
	assert.Equal(t, "16", attr.Raw.String())
	attr, _ = set.Get(9)
	assert.Equal(t, "92", attr.Normalized.String())
	assert.Equal(t, "7421", attr.Raw.String())
}

func TestParseNVMeText(t *testing.T) {
	out := `=== START OF INFORMATION SECTION ===
Model Number:                       Samsung SSD 970 EVO Plus 1TB
Serial Number:                      S4EWNX0N123456

=== START OF SMART DATA SECTION ===
SMART overall-health self-assessment test result: PASSED

SMART/Health Information (NVMe Log 0x02)
Critical Warning:                   0x00
Temperature:                        38 Celsius
Power Cycles:                       1,204
Power On Hours:                     12,030
`
	set, err := Parse([]byte(out), models.NewDiskIdentity("nvme0n1"), DefaultAttributes)
	require.NoError(t, err)
	assert.Equal(t, "Samsung SSD 970 EVO Plus 1TB", set.Model.String())

	temp, _ := set.Get(194)
	assert.Equal(t, "38", temp.Raw.String())
	assert.True(t, temp.Normalized.IsMissing())
	cycles, _ := set.Get(12)
	assert.Equal(t, "1204", cycles.Raw.String())
	hours, _ := set.Get(9)
	assert.Equal(t, "12030", hours.Raw.String())
}

func TestParseStandby(t *testing.T) {
	out := `smartctl 7.3 2022-02-28 r5338 [x86_64-linux-6.1.0] (local build)
Device is in STANDBY mode, exit(2)
`
	set, err := Parse([]byte(out), sda(), DefaultAttributes)
	require.NoError(t, err)
	assert.Equal(t, StandbyStatus, set.Health.String())
	assert.Equal(t, 0, set.Found())
}

func TestParseFailures(t *testing.T) {
	tests := []struct {
		name string
		out  string
	}{
		{"empty", "   \n"},
		{"no structure", "smartctl: command not supported on this device\nplease try -d sat\n"},
		{"header without raw", "ID# ATTRIBUTE_NAME VALUE\n  5 Reallocated 100\n"},
		{"broken json", `{"model_name": `},
		{"json without tables", `{"json_format_version": [1, 0]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := Parse([]byte(tt.out), sda(), DefaultAttributes)
			require.Error(t, err)
			assert.True(t, errors.Is(err, pdcerrors.ErrParse))
			assert.Equal(t, 0, set.Found())
			assert.Len(t, set.Attributes, len(DefaultAttributes))
		})
	}
}

func TestParseJSON(t *testing.T) {
	out := `{
  "device": {"name": "/dev/sdb", "protocol": "ATA"},
  "model_name": "WDC WD40EFRX-68N32N0",
  "serial_number": "WD-WCC7K1234567",
  "smart_status": {"passed": false},
  "ata_smart_attributes": {
    "table": [
      {"id": 5, "name": "Reallocated_Sector_Ct", "value": 200, "raw": {"value": 12, "string": "12"}},
      {"id": 194, "name": "Temperature_Celsius", "value": 113, "raw": {"value": 171799117861, "string": "37 (Min/Max 21/45)"}},
      {"id": 240, "name": "Head_Flying_Hours", "value": 100, "raw": {"value": 5, "string": "5"}}
    ]
  }
}`
	set, err := Parse([]byte(out), models.NewDiskIdentity("/dev/sdb"), DefaultAttributes)
	require.NoError(t, err)
	assert.Equal(t, "WDC WD40EFRX-68N32N0", set.Model.String())
	assert.Equal(t, "FAILED", set.Health.String())

	temp, _ := set.Get(194)
	assert.Equal(t, "37", temp.Raw.String(), "raw.string wins over packed raw.value")
	assert.Equal(t, "113", temp.Normalized.String())
	realloc, _ := set.Get(5)
	assert.Equal(t, "12", realloc.Raw.String())
	assert.Equal(t, 2, set.Found())
}

func TestParseJSONStandbyNeedsPowerModeOrMessage(t *testing.T) {
	tests := []struct {
		name    string
		out     string
		standby bool
	}{
		{"power mode", `{"smartctl": {"exit_status": 2}, "power_mode": "STANDBY"}`, true},
		{"message", `{"smartctl": {"exit_status": 2, "messages": [{"string": "Device is in STANDBY mode, exit(2)", "severity": "information"}]}}`, true},
		{"open failure", `{"smartctl": {"exit_status": 2, "messages": [{"string": "Smartctl open device: /dev/sda failed: Permission denied", "severity": "error"}]}, "device": {"name": "/dev/sda"}}`, false},
		{"bare exit status", `{"smartctl": {"exit_status": 2}, "device": {"name": "/dev/sda"}}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := Parse([]byte(tt.out), sda(), DefaultAttributes)
			if tt.standby {
				require.NoError(t, err)
				assert.Equal(t, StandbyStatus, set.Health.String())
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, pdcerrors.ErrParse))
			assert.True(t, set.Health.IsMissing())
		})
	}
}

func TestParseTextRowsWithoutHeader(t *testing.T) {
	out := `  5 Reallocated_Sector_Ct   0x0033   100   100   010    Pre-fail  Always       -       0
194 Temperature_Celsius     0x0022   108   100   000    Old_age   Always       -       42 (Min/Max 18/55)
`
	set, err := Parse([]byte(out), sda(), []int{5, 194})
	require.NoError(t, err)
	realloc, _ := set.Get(5)
	assert.Equal(t, "0", realloc.Raw.String())
	assert.Equal(t, "100", realloc.Normalized.String())
	temp, _ := set.Get(194)
	assert.Equal(t, "42", temp.Raw.String())
	assert.Equal(t, "108", temp.Normalized.String())
}

func TestCollectRecoversNonZeroExitOutput(t *testing.T) {
	disk := sda()
	exitErr := toolexec.NonZeroExit(Command(disk), 4, []byte(ataOutput), errors.New("exit status 4"))
	fake := toolexec.NewFake().On("smartctl", toolexec.FakeResponse{Err: exitErr})

	set, err := Collect(context.Background(), fake, disk, DefaultAttributes, time.Second)
	require.Error(t, err)
	assert.True(t, errors.Is(err, pdcerrors.ErrToolNonZeroExit))
	assert.True(t, Usable(set, err))
	temp, _ := set.Get(194)
	assert.Equal(t, "42", temp.Raw.String())

	var colErr *pdcerrors.CollectError
	require.True(t, errors.As(err, &colErr))
	assert.Equal(t, "sda", colErr.Device)
}

func TestCollectToolMissing(t *testing.T) {
	set, err := Collect(context.Background(), toolexec.NewFake(), sda(), DefaultAttributes, time.Second)
	require.Error(t, err)
	assert.True(t, errors.Is(err, pdcerrors.ErrToolNotFound))
	assert.False(t, Usable(set, err))
	assert.Equal(t, 0, set.Found())
}

func TestCollectSuccess(t *testing.T) {
	fake := toolexec.NewFake().On("smartctl -n standby -i -H -A /dev/sda", toolexec.FakeResponse{Stdout: ataOutput})
	set, err := Collect(context.Background(), fake, sda(), []int{5, 194}, time.Second)
	require.NoError(t, err)
	assert.True(t, Usable(set, err))
	assert.Equal(t, 2, set.Found())
}
