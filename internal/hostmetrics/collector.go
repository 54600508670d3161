// Package hostmetrics provides server metrics read in-process through
// gopsutil rather than by running a tool.
package hostmetrics

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	pdcerrors "github.com/rcourtman/pulse-disk-collector/internal/errors"
	"github.com/rcourtman/pulse-disk-collector/internal/models"
	"github.com/rcourtman/pulse-disk-collector/internal/serverstat"
	goload "github.com/shirou/gopsutil/v4/load"
)

// SourceLoadAvg is the source name for the load average.
const SourceLoadAvg = "loadavg"

// System call wrappers for testing
var (
	loadAvg = goload.AvgWithContext
)

// LoadAvg returns the load1/load5/load15 source.
func LoadAvg() serverstat.Source { return loadAvgSource{} }

type loadAvgSource struct{}

func (loadAvgSource) Name() string { return SourceLoadAvg }

func (loadAvgSource) Keys() []models.ServerMetric {
	return []models.ServerMetric{models.Load1, models.Load5, models.Load15}
}

// Invoke samples the load average and renders it the way /proc/loadavg
// starts, so Parse handles gopsutil and procfs text alike.
func (loadAvgSource) Invoke(ctx context.Context, env serverstat.Env) ([]byte, error) {
	collectCtx := ctx
	if env.Timeout > 0 {
		var cancel context.CancelFunc
		collectCtx, cancel = context.WithTimeout(ctx, env.Timeout)
		defer cancel()
	}

	avg, err := loadAvg(collectCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, pdcerrors.NewCollectError(pdcerrors.ErrorTypeToolTimeout, "read", SourceLoadAvg, err)
		}
		return nil, pdcerrors.NewCollectError(pdcerrors.ErrorTypeToolNotFound, "read", SourceLoadAvg, err)
	}
	if avg == nil {
		return nil, nil
	}
	return []byte(fmt.Sprintf("%s %s %s\n",
		strconv.FormatFloat(avg.Load1, 'f', -1, 64),
		strconv.FormatFloat(avg.Load5, 'f', -1, 64),
		strconv.FormatFloat(avg.Load15, 'f', -1, 64))), nil
}

// Parse reads the first three fields of loadavg text.
func (loadAvgSource) Parse(raw []byte, _ serverstat.Env) (models.ServerMetricRecord, error) {
	var rec models.ServerMetricRecord
	fields := strings.Fields(string(raw))
	if len(fields) < 3 {
		return rec, pdcerrors.WrapParseError(SourceLoadAvg, errors.New("no load average reported"))
	}
	for i, m := range []models.ServerMetric{models.Load1, models.Load5, models.Load15} {
		f, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return models.ServerMetricRecord{}, pdcerrors.WrapParseError(SourceLoadAvg, err)
		}
		rec.Set(m, models.Rate(f))
	}
	return rec, nil
}

// Sources returns every server source, tool-backed and in-process, by name.
func Sources() map[string]serverstat.Source {
	sources := serverstat.Builtin()
	load := LoadAvg()
	sources[load.Name()] = load
	return sources
}
