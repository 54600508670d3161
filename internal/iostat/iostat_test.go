package iostat

import (
	"errors"
	"testing"

	pdcerrors "github.com/rcourtman/pulse-disk-collector/internal/errors"
	"github.com/rcourtman/pulse-disk-collector/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const extendedOutput = `Linux 5.15.0-91-generic (storage01) 	01/15/2024 	_x86_64_	(8 CPU)

Device            r/s     rkB/s   rrqm/s  %rrqm r_await rareq-sz     w/s     wkB/s   wrqm/s  %wrqm w_await wareq-sz     d/s     dkB/s   drqm/s  %drqm d_await dareq-sz     f/s f_await  aqu-sz  %util
sda             12.00    480.00     0.00   0.00    1.25    40.00    3.00     24.00     1.00  25.00    4.50     8.00    0.00      0.00     0.00   0.00    0.00     0.00    0.00    0.00    0.03   2.80
sdb              0.00      0.00     0.00   0.00    0.00     0.00    0.00      0.00     0.00   0.00    0.00     0.00    0.00      0.00     0.00   0.00    0.00     0.00    0.00    0.00    0.00   0.00

`

const legacyOutput = `Linux 3.10.0-1160.el7.x86_64 (legacy) 	01/15/2024 	_x86_64_	(4 CPU)

Device:         rrqm/s   wrqm/s     r/s     w/s    rkB/s    wkB/s avgrq-sz avgqu-sz   await r_await w_await  svctm  %util
sda               0,00     1,00    5,00    2,00    80,00    16,00    27,43     0,02    2,50    2,00    3,75   0,80   0,56

`

func TestParseDiskExtended(t *testing.T) {
	rec, err := ParseDisk([]byte(extendedOutput), models.NewDiskIdentity("sda"))
	require.NoError(t, err)

	assert.Equal(t, "0.03", rec.IOQueueSize.String())
	assert.Equal(t, "480", rec.ReadThroughput.String())
	assert.Equal(t, "1.25", rec.ReadQueueTime.String())
	assert.Equal(t, "12", rec.ReadQPS.String())
	assert.Equal(t, "3", rec.WriteQPS.String())
	assert.Equal(t, "4.5", rec.WriteQueueTime.String())
	assert.Equal(t, "24", rec.WriteThroughput.String())
	assert.Equal(t, "2.8", rec.Util.String())
	assert.Equal(t, models.KindPercent, rec.Util.Kind())
}

func TestParseDiskLegacyAliasesAndDecimalComma(t *testing.T) {
	rec, err := ParseDisk([]byte(legacyOutput), models.NewDiskIdentity("/dev/sda"))
	require.NoError(t, err)

	assert.Equal(t, "0.02", rec.IOQueueSize.String(), "avgqu-sz alias")
	assert.Equal(t, "2", rec.ReadQueueTime.String(), "r_await preferred over await")
	assert.Equal(t, "3.75", rec.WriteQueueTime.String())
	assert.Equal(t, "0.56", rec.Util.String())
}

func TestParseDiskMissingDeviceRow(t *testing.T) {
	rec, err := ParseDisk([]byte(extendedOutput), models.NewDiskIdentity("sdz"))
	require.NoError(t, err, "an unreported disk is not a failure")
	for _, col := range rec.Columns() {
		assert.True(t, col.Value.IsMissing(), col.Name)
	}
	assert.Equal(t, "sdz", rec.Disk.Name)
}

func TestParseUsesLastReport(t *testing.T) {
	out := `Device  r/s  %util
sda     1.00 10.00

Device  r/s  %util
sda     2.00 20.00
sdc     0.50  5.00
`
	report, err := Parse([]byte(out))
	require.NoError(t, err)
	util, ok := report.Float("sda", ColUtil...)
	require.True(t, ok)
	assert.Equal(t, 20.0, util)
	assert.Equal(t, []string{"sda", "sdc"}, report.Devices())
}

func TestParseSkipsCPUBlock(t *testing.T) {
	out := `avg-cpu:  %user   %nice %system %iowait  %steal   %idle
           1.02    0.00    0.51    0.10    0.00   98.37

Device             tps    kB_read/s    kB_wrtn/s    kB_read    kB_wrtn
sda               1.23        10.50        20.25    1234567    2345678

avg-cpu:  %user   %nice %system %iowait  %steal   %idle
           2.00    0.00    1.00    0.00    0.00   97.00
`
	report, err := Parse([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, []string{"sda"}, report.Devices())
	read, ok := report.Float("sda", ColKBRead...)
	require.True(t, ok)
	assert.Equal(t, 1234567.0, read)
}

func TestParseNoDeviceTable(t *testing.T) {
	_, err := Parse([]byte("iostat: invalid option -- 'y'\nUsage: iostat [ options ]\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, pdcerrors.ErrParse))

	rec, err := ParseDisk(nil, models.NewDiskIdentity("sda"))
	require.Error(t, err)
	assert.True(t, rec.Util.IsMissing())
}

func TestFloatRejectsGarbage(t *testing.T) {
	report, err := Parse([]byte("Device %util\nsda n/a\n"))
	require.NoError(t, err)
	_, ok := report.Float("sda", ColUtil...)
	assert.False(t, ok)
	_, ok = report.Float("sda", "missing-column")
	assert.False(t, ok)
}

func TestDiskCommand(t *testing.T) {
	cmd := DiskCommand(models.NewDiskIdentity("/dev/nvme0n1"))
	assert.Equal(t, "iostat -d -x -k -y 1 1 nvme0n1", cmd.String())
}
