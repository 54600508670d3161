// Package pipeline runs one collection cycle end to end: collect, append to
// the collection log, feed the optional mirrors, and record self-metrics.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/rcourtman/pulse-disk-collector/internal/blockdev"
	"github.com/rcourtman/pulse-disk-collector/internal/config"
	"github.com/rcourtman/pulse-disk-collector/internal/cycle"
	"github.com/rcourtman/pulse-disk-collector/internal/hostmetrics"
	"github.com/rcourtman/pulse-disk-collector/internal/logging"
	"github.com/rcourtman/pulse-disk-collector/internal/metrics"
	"github.com/rcourtman/pulse-disk-collector/internal/models"
	"github.com/rcourtman/pulse-disk-collector/internal/recordlog"
	"github.com/rcourtman/pulse-disk-collector/internal/rowstore"
	"github.com/rcourtman/pulse-disk-collector/internal/serverstat"
	"github.com/rcourtman/pulse-disk-collector/internal/submit"
	"github.com/rcourtman/pulse-disk-collector/internal/toolexec"
	"github.com/rs/zerolog"
)

const component = "pipeline"

// Collector runs one cycle.
type Collector interface {
	Run(ctx context.Context) cycle.Result
}

// Appender persists a row to the collection log.
type Appender interface {
	Append(row models.CycleRow) error
}

// RowMirror receives every row that was appended.
type RowMirror interface {
	Insert(ctx context.Context, row models.CycleRow) error
}

// RowSender posts every row that was appended.
type RowSender interface {
	Send(ctx context.Context, row models.CycleRow) error
}

// Pipeline wires one cycle's collaborators. Store, Sender and Metrics are
// optional.
type Pipeline struct {
	Collector Collector
	Writer    Appender
	Store     RowMirror
	Sender    RowSender
	Metrics   *metrics.Recorder
	// MetricsTextfile is rewritten after every cycle when set.
	MetricsTextfile string

	closers []func() error
}

// Build assembles a pipeline from configuration. invoker runs every
// external tool, including lsblk.
func Build(cfg *config.Config, invoker toolexec.Invoker, version string) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	enumerator := blockdev.Enumerator{
		Invoker: invoker,
		Timeout: cfg.ToolTimeout(),
		Exclude: cfg.DiskExclude,
	}
	collector := cycle.New(invoker, enumerator, cycle.Config{
		SmartAttributes: cfg.SmartAttributes,
		Sources:         SelectSources(cfg.EnabledServerSources),
		ToolTimeout:     cfg.ToolTimeout(),
		Interface:       cfg.NetworkInterface,
	})

	p := &Pipeline{
		Collector:       collector,
		Writer:          recordlog.NewWriter(cfg.LogPath),
		Metrics:         metrics.NewRecorder(),
		MetricsTextfile: cfg.MetricsTextfile,
	}

	if cfg.SQLitePath != "" {
		store, err := rowstore.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		p.Store = store
		p.closers = append(p.closers, store.Close)
	}
	if cfg.APIURL != "" {
		client, err := submit.NewClient(cfg.APIURL, version, cfg.ToolTimeout())
		if err != nil {
			p.Close()
			return nil, err
		}
		p.Sender = client
	}
	return p, nil
}

// SelectSources resolves enabled source names in the given order. Unknown
// names are skipped; config validation reports them.
func SelectSources(names []string) []serverstat.Source {
	known := hostmetrics.Sources()
	out := make([]serverstat.Source, 0, len(names))
	for _, name := range names {
		if src, ok := known[name]; ok {
			out = append(out, src)
		}
	}
	return out
}

// Close releases mirrors opened by Build.
func (p *Pipeline) Close() error {
	var errs []error
	for _, c := range p.closers {
		errs = append(errs, c())
	}
	p.closers = nil
	return errors.Join(errs...)
}

// RunCycle runs one cycle. It returns an error only when no row reached
// the collection log: an aborted cycle or a write failure. Source failures
// are part of a successful, partial result.
func (p *Pipeline) RunCycle(ctx context.Context) (cycle.Result, error) {
	ctx, _ = logging.WithCycleID(ctx, logging.GetCycleID(ctx))
	logger := logging.FromContext(ctx).With().Str("component", component).Logger()

	res := p.Collector.Run(ctx)
	if p.Metrics != nil {
		p.Metrics.RecordCycle(res)
	}
	defer p.writeTextfile(ctx)

	if res.State == cycle.StateAborted {
		logger.Error().
			Str("action", "cycle_aborted").
			Err(res.Err).
			Dur("duration", res.Duration()).
			Msg("Collection cycle aborted, no row written")
		return res, res.Err
	}

	if err := p.Writer.Append(*res.Row); err != nil {
		if p.Metrics != nil {
			p.Metrics.RecordWriteFailure()
		}
		logger.Error().
			Str("action", "write_failed").
			Err(err).
			Int("columns", res.Row.Len()).
			Msg("Failed to append cycle row, row discarded")
		return res, err
	}
	if p.Metrics != nil {
		p.Metrics.RecordWritten(res)
	}

	p.mirror(ctx, res, logger)

	switch res.Outcome() {
	case cycle.OutcomePartial:
		logger.Warn().
			Str("action", "cycle_partial").
			Strs("failed_sources", res.FailedSources()).
			Str("failures", res.Summary()).
			Int("disks", len(res.Disks)).
			Dur("duration", res.Duration()).
			Msg("Collection cycle completed with failed sources")
	default:
		logger.Info().
			Str("action", "cycle_done").
			Int("disks", len(res.Disks)).
			Int("columns", res.Row.Len()).
			Dur("duration", res.Duration()).
			Msg("Collection cycle completed")
	}
	return res, nil
}

func (p *Pipeline) mirror(ctx context.Context, res cycle.Result, logger zerolog.Logger) {
	if p.Store != nil {
		if err := p.Store.Insert(ctx, *res.Row); err != nil {
			p.mirrorFailed("sqlite", err, logger)
		}
	}
	if p.Sender != nil {
		if err := p.Sender.Send(ctx, *res.Row); err != nil {
			p.mirrorFailed("api", err, logger)
		} else {
			logger.Info().Str("action", "submitted").Msg("Metrics submitted to server")
		}
	}
}

func (p *Pipeline) mirrorFailed(mirror string, err error, logger zerolog.Logger) {
	if p.Metrics != nil {
		p.Metrics.RecordMirrorFailure(mirror)
	}
	logger.Warn().
		Str("action", "mirror_failed").
		Str("mirror", mirror).
		Err(err).
		Msg("Failed to deliver cycle row")
}

func (p *Pipeline) writeTextfile(ctx context.Context) {
	if p.Metrics == nil || p.MetricsTextfile == "" {
		return
	}
	if err := p.Metrics.WriteTextfile(p.MetricsTextfile); err != nil {
		logging.FromContext(ctx).Warn().
			Str("component", component).
			Str("path", p.MetricsTextfile).
			Err(err).
			Msg("Failed to write metrics textfile")
	}
}
