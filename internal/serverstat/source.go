// Package serverstat holds the host-level metric sources. Each source runs
// one tool and owns a disjoint set of ServerMetricRecord keys.
package serverstat

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	pdcerrors "github.com/rcourtman/pulse-disk-collector/internal/errors"
	"github.com/rcourtman/pulse-disk-collector/internal/models"
	"github.com/rcourtman/pulse-disk-collector/internal/toolexec"
)

// Source names.
const (
	CPU         = "cpu"
	Memory      = "memory"
	Paging      = "paging"
	TCP         = "tcp"
	UDP         = "udp"
	PPS         = "pps"
	NetRx       = "net_rx"
	DiskUtil    = "disk_util"
	DiskSummary = "disk_summary"
)

// Env is what a source may depend on during one cycle.
type Env struct {
	Invoker   toolexec.Invoker
	Timeout   time.Duration
	Disks     []models.DiskIdentity
	Interface string
}

// Source produces part of the ServerMetricRecord in two steps so a cycle
// can run every invocation concurrently before parsing anything. Invoke
// returns raw text, including partial output that accompanied an error.
// Parse sets only Keys.
type Source interface {
	Name() string
	Keys() []models.ServerMetric
	Invoke(ctx context.Context, env Env) ([]byte, error)
	Parse(raw []byte, env Env) (models.ServerMetricRecord, error)
}

// Collect runs both steps of src. Output captured alongside a non-zero
// exit is still parsed; the record is then returned with the exit error.
func Collect(ctx context.Context, src Source, env Env) (models.ServerMetricRecord, error) {
	raw, err := src.Invoke(ctx, env)
	if err != nil {
		if len(raw) > 0 {
			if rec, parseErr := src.Parse(raw, env); parseErr == nil {
				return rec, err
			}
		}
		return models.ServerMetricRecord{}, err
	}
	return src.Parse(raw, env)
}

// toolSource is a Source backed by one external command.
type toolSource struct {
	name    string
	keys    []models.ServerMetric
	command func(env Env) toolexec.Command
	parse   func(raw []byte, env Env) (models.ServerMetricRecord, error)
	// skip short-circuits the invocation when it cannot yield anything.
	skip func(env Env) bool
}

func (s *toolSource) Name() string                { return s.name }
func (s *toolSource) Keys() []models.ServerMetric { return s.keys }

func (s *toolSource) Invoke(ctx context.Context, env Env) ([]byte, error) {
	if s.skip != nil && s.skip(env) {
		return nil, nil
	}
	res, err := env.Invoker.Invoke(ctx, s.command(env), env.Timeout)
	if err != nil {
		return pdcerrors.PartialOutput(err), err
	}
	return res.Stdout, nil
}

func (s *toolSource) Parse(raw []byte, env Env) (models.ServerMetricRecord, error) {
	if s.skip != nil && s.skip(env) {
		return models.ServerMetricRecord{}, nil
	}
	rec, err := s.parse(raw, env)
	if err != nil {
		return models.ServerMetricRecord{}, parseError(s.name, err)
	}
	return rec, nil
}

func parseError(source string, err error) error {
	if pdcerrors.TypeOf(err) == pdcerrors.ErrorTypeParse {
		return err
	}
	return pdcerrors.WrapParseError(source, err)
}

// Builtin returns the tool-backed sources keyed by name.
func Builtin() map[string]Source {
	sources := []Source{
		cpuSource(),
		memorySource(),
		pagingSource(),
		tcpSource(),
		udpSource(),
		ppsSource(),
		netRxSource(),
		diskUtilSource(),
		diskSummarySource(),
	}
	out := make(map[string]Source, len(sources))
	for _, src := range sources {
		out[src.Name()] = src
	}
	return out
}

// Names lists the builtin source names in sorted order.
func Names() []string {
	builtin := Builtin()
	names := make([]string, 0, len(builtin))
	for name := range builtin {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// parseNumber accepts decimal commas as printed under some locales.
func parseNumber(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(s), ",", "."), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func parseInt(s string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func indexOf(fields []string, name string) int {
	for i, f := range fields {
		if f == name {
			return i
		}
	}
	return -1
}
