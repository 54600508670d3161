// Package cycle runs one collection cycle: enumerate disks, invoke every
// tool concurrently, parse each output, and merge the results into a row.
package cycle

import (
	"context"
	"errors"
	"sort"
	"time"

	pdcerrors "github.com/rcourtman/pulse-disk-collector/internal/errors"
	"github.com/rcourtman/pulse-disk-collector/internal/iostat"
	"github.com/rcourtman/pulse-disk-collector/internal/logging"
	"github.com/rcourtman/pulse-disk-collector/internal/models"
	"github.com/rcourtman/pulse-disk-collector/internal/serverstat"
	"github.com/rcourtman/pulse-disk-collector/internal/smartctl"
	"github.com/rcourtman/pulse-disk-collector/internal/toolexec"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DefaultToolTimeout bounds each invocation when Config leaves it unset.
const DefaultToolTimeout = 30 * time.Second

// DiskEnumerator discovers the disks to sample. It is called once per cycle.
type DiskEnumerator interface {
	Enumerate(ctx context.Context) ([]models.DiskIdentity, error)
}

// Config selects what a cycle collects.
type Config struct {
	SmartAttributes []int
	Sources         []serverstat.Source
	ToolTimeout     time.Duration
	Interface       string
}

// Collector runs cycles. It keeps no state between them.
type Collector struct {
	invoker    toolexec.Invoker
	enumerator DiskEnumerator
	cfg        Config
	now        func() time.Time
}

// New creates a Collector.
func New(invoker toolexec.Invoker, enumerator DiskEnumerator, cfg Config) *Collector {
	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = DefaultToolTimeout
	}
	if cfg.SmartAttributes == nil {
		cfg.SmartAttributes = smartctl.DefaultAttributes
	}
	return &Collector{
		invoker:    invoker,
		enumerator: enumerator,
		cfg:        cfg,
		now:        time.Now,
	}
}

// invocation is one tool output slot filled during StateInvoking.
type invocation struct {
	raw []byte
	err error
}

// Run executes one cycle. The returned Result always carries a row unless
// the cycle was aborted by an enumeration failure or cancellation.
func (c *Collector) Run(ctx context.Context) Result {
	ctx, cycleID := logging.WithCycleID(ctx, logging.GetCycleID(ctx))
	logger := logging.FromContext(ctx).With().Str("component", "cycle").Logger()

	res := Result{CycleID: cycleID, State: StateEnumerating, Started: c.now().UTC()}

	disks, err := c.enumerator.Enumerate(ctx)
	if err != nil {
		if pdcerrors.TypeOf(err) != pdcerrors.ErrorTypeEnumeration {
			err = pdcerrors.WrapEnumerationError(err)
		}
		return c.abort(res, StateEnumerating, err, logger)
	}
	res.Disks = disks
	logger.Debug().Int("disks", len(disks)).Msg("Enumerated disks")

	// Identical commands within this cycle run once.
	invoker := toolexec.NewShared(c.invoker)
	env := serverstat.Env{
		Invoker:   invoker,
		Timeout:   c.cfg.ToolTimeout,
		Disks:     disks,
		Interface: c.cfg.Interface,
	}

	res.State = StateInvoking
	smartOut := make([]invocation, len(disks))
	ioOut := make([]invocation, len(disks))
	srcOut := make([]invocation, len(c.cfg.Sources))

	// Goroutines never return errors: a failed tool is recorded, not fatal.
	var g errgroup.Group
	for i, disk := range disks {
		g.Go(func() error {
			smartOut[i] = invokeTool(ctx, invoker, smartctl.Command(disk), c.cfg.ToolTimeout)
			return nil
		})
		g.Go(func() error {
			ioOut[i] = invokeTool(ctx, invoker, iostat.DiskCommand(disk), c.cfg.ToolTimeout)
			return nil
		})
	}
	for i, src := range c.cfg.Sources {
		g.Go(func() error {
			raw, err := src.Invoke(ctx, env)
			srcOut[i] = invocation{raw: raw, err: err}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return c.abort(res, StateInvoking, err, logger)
	}

	res.State = StateParsing
	smart := make([]models.SmartAttributeSet, len(disks))
	stats := make([]models.DiskMetricRecord, len(disks))
	for i, disk := range disks {
		smart[i] = c.parseSmart(&res, disk, smartOut[i])
		stats[i] = c.parseDiskStats(&res, disk, ioOut[i])
	}

	var server models.ServerMetricRecord
	for i, src := range c.cfg.Sources {
		rec, ok := c.parseSource(&res, src, env, srcOut[i])
		if ok {
			server.Merge(rec, src.Keys())
		}
	}

	res.State = StateMerging
	row := models.NewCycleRow(models.RowInput{
		CycleID:       cycleID,
		Timestamp:     res.Started,
		Disks:         disks,
		Smart:         smart,
		DiskStats:     stats,
		Server:        server,
		ServerMetrics: c.serverKeys(),
	})
	res.Row = &row
	res.State = StateDone
	res.Finished = c.now().UTC()

	for _, f := range res.Failures {
		evt := logger.Warn().
			Str("source", f.Source).
			Str("stage", f.Stage.String()).
			Str("error_type", string(f.Type)).
			Bool("recovered", f.Recovered).
			Err(f.Err)
		if f.Device != "" {
			evt = evt.Str("device", f.Device)
		}
		evt.Msg("Source failed during cycle")
	}
	logger.Debug().
		Int("columns", row.Len()).
		Int("failures", len(res.Failures)).
		Dur("duration", res.Duration()).
		Msg("Cycle merged")
	return res
}

func (c *Collector) abort(res Result, stage State, err error, logger zerolog.Logger) Result {
	res.State = StateAborted
	res.Err = err
	res.Finished = c.now().UTC()
	logger.Debug().Str("stage", stage.String()).Err(err).Msg("Cycle aborted")
	return res
}

func invokeTool(ctx context.Context, invoker toolexec.Invoker, cmd toolexec.Command, timeout time.Duration) invocation {
	out, err := invoker.Invoke(ctx, cmd, timeout)
	if err != nil {
		return invocation{raw: pdcerrors.PartialOutput(err), err: err}
	}
	return invocation{raw: out.Stdout}
}

// record appends a failure for source. A parse of partial output that
// succeeded marks an invocation failure as recovered.
func (r *Result) record(source, device string, inv invocation, parseErr error) {
	switch {
	case inv.err != nil:
		r.Failures = append(r.Failures, Failure{
			Source:    source,
			Device:    device,
			Stage:     StateInvoking,
			Type:      pdcerrors.TypeOf(inv.err),
			Recovered: len(inv.raw) > 0 && parseErr == nil,
			Err:       inv.err,
		})
	case parseErr != nil:
		r.Failures = append(r.Failures, Failure{
			Source: source,
			Device: device,
			Stage:  StateParsing,
			Type:   pdcerrors.TypeOf(parseErr),
			Err:    parseErr,
		})
	}
}

func (c *Collector) parseSmart(res *Result, disk models.DiskIdentity, inv invocation) models.SmartAttributeSet {
	if inv.err != nil && len(inv.raw) == 0 {
		res.record(smartctl.Source, disk.Name, inv, nil)
		return models.NewSmartAttributeSet(disk, c.cfg.SmartAttributes)
	}

	set, err := smartctl.Parse(inv.raw, disk, c.cfg.SmartAttributes)
	if err == nil && inv.err != nil && isStandby(set) {
		// smartctl -n standby flags a sleeping drive through its exit status.
		return set
	}
	if err == nil && inv.err != nil && !smartctl.Usable(set, inv.err) {
		err = pdcerrors.WrapParseError(smartctl.Source, errors.New("no usable data in partial output"))
	}
	res.record(smartctl.Source, disk.Name, inv, err)
	if err != nil {
		return models.NewSmartAttributeSet(disk, c.cfg.SmartAttributes)
	}
	return set
}

func isStandby(set models.SmartAttributeSet) bool {
	health, ok := set.Health.Str()
	return ok && health == smartctl.StandbyStatus
}

func (c *Collector) parseDiskStats(res *Result, disk models.DiskIdentity, inv invocation) models.DiskMetricRecord {
	if inv.err != nil && len(inv.raw) == 0 {
		res.record(iostat.Source, disk.Name, inv, nil)
		return models.MissingDiskMetrics(disk)
	}
	rec, err := iostat.ParseDisk(inv.raw, disk)
	res.record(iostat.Source, disk.Name, inv, err)
	if err != nil {
		return models.MissingDiskMetrics(disk)
	}
	return rec
}

func (c *Collector) parseSource(res *Result, src serverstat.Source, env serverstat.Env, inv invocation) (models.ServerMetricRecord, bool) {
	if inv.err != nil && len(inv.raw) == 0 {
		res.record(src.Name(), "", inv, nil)
		return models.ServerMetricRecord{}, false
	}
	rec, err := src.Parse(inv.raw, env)
	res.record(src.Name(), "", inv, err)
	return rec, err == nil
}

// serverKeys lists the keys owned by the enabled sources in column order.
func (c *Collector) serverKeys() []models.ServerMetric {
	seen := make(map[models.ServerMetric]bool)
	var keys []models.ServerMetric
	for _, src := range c.cfg.Sources {
		for _, k := range src.Keys() {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
