package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rcourtman/pulse-disk-collector/internal/config"
	"github.com/rcourtman/pulse-disk-collector/internal/logging"
	"github.com/rcourtman/pulse-disk-collector/internal/pipeline"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// options holds the persistent flags. A flag overrides the loaded
// configuration only when it was set on the command line.
type options struct {
	configFile      string
	smartAttributes string
	sources         string
	toolTimeout     float64
	logPath         string
	diskExclude     string
	iface           string
	sqlitePath      string
	apiURL          string
	metricsTextfile string
	logLevel        string
	logFormat       string
	logFile         string
}

func (o *options) register(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&o.configFile, "config", "", "Path to a YAML configuration file")
	flags.StringVar(&o.smartAttributes, "smart-attributes", "", "Comma-separated SMART attribute IDs to record")
	flags.StringVar(&o.sources, "sources", "", "Comma-separated server sources to enable")
	flags.Float64Var(&o.toolTimeout, "tool-timeout", config.DefaultToolTimeoutSeconds, "Timeout in seconds for each external tool")
	flags.StringVar(&o.logPath, "log-path", config.DefaultLogPath, "Collection log (CSV) path")
	flags.StringVar(&o.diskExclude, "disk-exclude", "", "Comma-separated wildcard patterns of disks to skip")
	flags.StringVar(&o.iface, "interface", "", "Network interface for net_rx (default: first reported)")
	flags.StringVar(&o.sqlitePath, "sqlite", "", "Mirror every row into this SQLite database")
	flags.StringVar(&o.apiURL, "api-url", "", "Submit every row to <api-url>submit-metrics")
	flags.StringVar(&o.metricsTextfile, "metrics-textfile", "", "Write collector metrics to this Prometheus textfile")
	flags.StringVar(&o.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flags.StringVar(&o.logFormat, "log-format", "auto", "Log format (auto, json, console)")
	flags.StringVar(&o.logFile, "log-file", "", "Also append logs to this file")
}

// load builds the effective configuration for cmd.
func (o *options) load(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("smart-attributes") {
		ids, err := config.ParseIDList(o.smartAttributes)
		if err != nil {
			return nil, fmt.Errorf("--smart-attributes: %w", err)
		}
		cfg.SmartAttributes = ids
	}
	if flags.Changed("sources") {
		cfg.EnabledServerSources = config.SplitList(o.sources)
	}
	if flags.Changed("tool-timeout") {
		cfg.ToolTimeoutSeconds = o.toolTimeout
	}
	if flags.Changed("disk-exclude") {
		cfg.DiskExclude = config.SplitList(o.diskExclude)
	}

	strs := []struct {
		flag string
		val  string
		dst  *string
	}{
		{"log-path", o.logPath, &cfg.LogPath},
		{"interface", o.iface, &cfg.NetworkInterface},
		{"sqlite", o.sqlitePath, &cfg.SQLitePath},
		{"api-url", o.apiURL, &cfg.APIURL},
		{"metrics-textfile", o.metricsTextfile, &cfg.MetricsTextfile},
		{"log-level", o.logLevel, &cfg.LogLevel},
		{"log-format", o.logFormat, &cfg.LogFormat},
		{"log-file", o.logFile, &cfg.LogFile},
	}
	for _, s := range strs {
		if flags.Changed(s.flag) {
			*s.dst = s.val
		}
	}
	return cfg, nil
}

func newCollectCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "collect",
		Short: "Run one collection cycle (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollect(cmd, opts)
		},
	}
}

// runCollect runs exactly one cycle. It fails only when no row reached the
// collection log; failed sources are logged and still exit 0.
func runCollect(cmd *cobra.Command, opts *options) error {
	cfg, err := opts.load(cmd)
	if err != nil {
		return err
	}

	logging.Init(logging.Config{
		Format:    cfg.LogFormat,
		Level:     cfg.LogLevel,
		Component: "pulse-disk-collector",
		FilePath:  cfg.LogFile,
	})
	defer logging.Shutdown()

	p, err := pipeline.Build(cfg, newInvoker(), Version)
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close row mirror")
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Debug().
		Str("log_path", cfg.LogPath).
		Ints("smart_attributes", cfg.SmartAttributes).
		Strs("sources", cfg.EnabledServerSources).
		Msg("Starting collection cycle")

	_, err = p.RunCycle(ctx)
	return err
}
