package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rcourtman/pulse-disk-collector/internal/config"
	pdcerrors "github.com/rcourtman/pulse-disk-collector/internal/errors"
	"github.com/rcourtman/pulse-disk-collector/internal/recordlog"
	"github.com/rcourtman/pulse-disk-collector/internal/toolexec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	lsblkOut = "sda disk\nsda1 part\n"
	smartOut = `=== START OF INFORMATION SECTION ===
Device Model:     ST1000DM003-1CH162
Serial Number:    Z1D5K2XY

SMART overall-health self-assessment test result: PASSED

ID# ATTRIBUTE_NAME          FLAG     VALUE WORST THRESH TYPE      UPDATED  WHEN_FAILED RAW_VALUE
  5 Reallocated_Sector_Ct   0x0033   100   100   010    Pre-fail  Always       -       0
194 Temperature_Celsius     0x0022   108   100   000    Old_age   Always       -       42 (Min/Max 18/55)
`
	freeOut = `               total        used        free      shared  buff/cache   available
Mem:        16314600     4219876     8345620      301244     3749104    11453672
`
)

func isolateEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		config.EnvSmartAttributes, config.EnvServerSources, config.EnvToolTimeout, config.EnvLogPath,
		config.EnvDiskExclude, config.EnvInterface, config.EnvSQLitePath, config.EnvAPIURL,
		config.EnvMetricsTextfile, config.EnvLogLevel, config.EnvLogFormat, config.EnvLogFile,
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	t.Chdir(t.TempDir())
}

func useFakeTools(t *testing.T, fake *toolexec.Fake) {
	t.Helper()
	old := newInvoker
	newInvoker = func() toolexec.Invoker { return fake }
	t.Cleanup(func() { newInvoker = old })
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	oldVersion, oldBuildTime, oldGitCommit := Version, BuildTime, GitCommit
	t.Cleanup(func() { Version, BuildTime, GitCommit = oldVersion, oldBuildTime, oldGitCommit })

	Version, BuildTime, GitCommit = "1.2.3", "2024-01-15", "abcdef"
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "pulse-disk-collector 1.2.3")
	assert.Contains(t, out, "Built: 2024-01-15")
	assert.Contains(t, out, "Commit: abcdef")

	BuildTime, GitCommit = "unknown", "unknown"
	out, err = execute(t, "version")
	require.NoError(t, err)
	assert.NotContains(t, out, "Built:")
	assert.NotContains(t, out, "Commit:")
}

func TestCollectThenMirrorStats(t *testing.T) {
	isolateEnv(t)
	useFakeTools(t, toolexec.NewFake().
		On("lsblk", toolexec.FakeResponse{Stdout: lsblkOut}).
		On("smartctl", toolexec.FakeResponse{Stdout: smartOut}).
		On("free", toolexec.FakeResponse{Stdout: freeOut}))

	dir := t.TempDir()
	logPath := filepath.Join(dir, "disk_metrics.csv")
	dbPath := filepath.Join(dir, "rows.db")
	textfile := filepath.Join(dir, "pdc.prom")

	for i := 0; i < 2; i++ {
		_, err := execute(t, "collect",
			"--log-path", logPath,
			"--sources", "memory",
			"--smart-attributes", "5,194",
			"--sqlite", dbPath,
			"--metrics-textfile", textfile,
			"--log-format", "json",
		)
		require.NoError(t, err, "a missing iostat is a partial cycle, not a failure")
	}

	log, err := recordlog.Read(logPath)
	require.NoError(t, err)
	require.Len(t, log.Rows, 2)
	assert.Equal(t, "ST1000DM003-1CH162", log.Rows[0][log.Column("sda.model")])
	assert.Equal(t, "42", log.Rows[1][log.Column("sda.smart_194_raw")])
	assert.Equal(t, -1, log.Column("sda1.model"), "partitions are not disks")

	prom, err := os.ReadFile(textfile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `pdc_last_cycle_outcome{outcome="partial"} 1`)

	out, err := execute(t, "mirror-stats", "--sqlite", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Cycles:   2")
}

func TestCollectFailsWhenEnumerationFails(t *testing.T) {
	isolateEnv(t)
	useFakeTools(t, toolexec.NewFake())

	logPath := filepath.Join(t.TempDir(), "disk_metrics.csv")
	_, err := execute(t, "--log-path", logPath, "--sources", "memory", "--log-format", "json")
	require.Error(t, err)
	assert.ErrorIs(t, err, pdcerrors.ErrEnumeration)

	_, statErr := os.Stat(logPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestCollectRejectsInvalidFlags(t *testing.T) {
	isolateEnv(t)
	useFakeTools(t, toolexec.NewFake())

	_, err := execute(t, "collect", "--smart-attributes", "5,x")
	assert.Error(t, err)

	_, err = execute(t, "collect", "--tool-timeout", "0", "--log-path", filepath.Join(t.TempDir(), "m.csv"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tool_timeout_seconds")
}

func TestConfigCmdAppliesFlags(t *testing.T) {
	isolateEnv(t)
	t.Setenv(config.EnvAPIURL, "http://collector.example/api/")

	out, err := execute(t, "config", "--tool-timeout", "5", "--sources", "cpu,loadavg")
	require.NoError(t, err)
	assert.Contains(t, out, "tool_timeout_seconds: 5")
	assert.Contains(t, out, "- loadavg")
	assert.Contains(t, out, "api_url: http://collector.example/api/")

	_, err = execute(t, "config", "--sources", "gpu")
	assert.Error(t, err)
}

func TestExportCmd(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	logPath := filepath.Join(dir, "disk_metrics.csv")
	require.NoError(t, os.WriteFile(logPath, []byte("timestamp,cycle_id,sda.smart_194_raw\n2024-01-15T10:00:00Z,c1,42\n"), 0o600))
	outPath := filepath.Join(dir, "disk_metrics.parquet")

	out, err := execute(t, "export", "--log", logPath, "--out", outPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Exported 1 rows, 3 columns (1 numeric)")
	assert.FileExists(t, outPath)

	_, err = execute(t, "export", "--log", logPath)
	assert.Error(t, err)
}

func TestExportCmdReadsConfiguredLogPath(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	logPath := filepath.Join(dir, "var", "disk_metrics.csv")
	require.NoError(t, os.MkdirAll(filepath.Dir(logPath), 0o755))
	require.NoError(t, os.WriteFile(logPath, []byte("timestamp,cycle_id,cpu_busy\n2024-01-15T10:00:00Z,c1,12.5\n2024-01-15T10:05:00Z,c2,NA\n"), 0o600))

	out, err := execute(t, "export", "--log-path", logPath, "--out", filepath.Join(dir, "a.parquet"))
	require.NoError(t, err)
	assert.Contains(t, out, "Exported 2 rows")

	t.Setenv(config.EnvLogPath, logPath)
	out, err = execute(t, "export", "--out", filepath.Join(dir, "b.parquet"))
	require.NoError(t, err)
	assert.Contains(t, out, "Exported 2 rows")
}
