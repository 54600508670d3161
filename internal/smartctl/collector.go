// Package smartctl provides S.M.A.R.T. attribute collection from local disks.
package smartctl

import (
	"context"
	"errors"
	"time"

	pdcerrors "github.com/rcourtman/pulse-disk-collector/internal/errors"
	"github.com/rcourtman/pulse-disk-collector/internal/models"
	"github.com/rcourtman/pulse-disk-collector/internal/toolexec"
	"github.com/rs/zerolog/log"
)

// Command builds the smartctl invocation for one disk.
// -n standby: don't wake a sleeping drive (smartctl exits with bit 1 set)
// -i: device info (model, serial)
// -H: overall health
// -A: attribute table
func Command(disk models.DiskIdentity) toolexec.Command {
	return toolexec.NewCommand("smartctl", "-n", "standby", "-i", "-H", "-A", disk.Path)
}

// Collect runs smartctl for one disk and parses the result. smartctl's exit
// status is a bitmask and is often non-zero on healthy systems, so output
// captured alongside a non-zero exit is still parsed. When that succeeds the
// set is returned together with the exit error so the caller can record it.
func Collect(ctx context.Context, invoker toolexec.Invoker, disk models.DiskIdentity, whitelist []int, timeout time.Duration) (models.SmartAttributeSet, error) {
	res, err := invoker.Invoke(ctx, Command(disk), timeout)
	if err != nil {
		partial := pdcerrors.PartialOutput(err)
		if len(partial) == 0 {
			return models.NewSmartAttributeSet(disk, whitelist), withDevice(err, disk)
		}
		set, parseErr := Parse(partial, disk, whitelist)
		if parseErr != nil {
			return set, withDevice(err, disk)
		}
		log.Debug().
			Str("component", "smartctl").
			Str("device", disk.Name).
			Int("found", set.Found()).
			Err(err).
			Msg("Parsed SMART output despite non-zero exit")
		return set, withDevice(err, disk)
	}

	set, err := Parse(res.Stdout, disk, whitelist)
	if err != nil {
		return set, withDevice(err, disk)
	}

	log.Debug().
		Str("component", "smartctl").
		Str("device", disk.Name).
		Int("found", set.Found()).
		Int("whitelisted", len(whitelist)).
		Dur("duration", res.Duration).
		Msg("Collected SMART data")
	return set, nil
}

// Usable reports whether a set returned by Collect carries data despite err.
func Usable(set models.SmartAttributeSet, err error) bool {
	if err == nil {
		return true
	}
	if !errors.Is(err, pdcerrors.ErrToolNonZeroExit) {
		return false
	}
	_, hasHealth := set.Health.Str()
	return hasHealth || set.Found() > 0
}

func withDevice(err error, disk models.DiskIdentity) error {
	var colErr *pdcerrors.CollectError
	if errors.As(err, &colErr) && colErr.Device == "" {
		colErr.WithDevice(disk.Name)
	}
	return err
}
