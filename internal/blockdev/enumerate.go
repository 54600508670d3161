// Package blockdev discovers the physical disks present at the start of a cycle.
package blockdev

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/IGLOU-EU/go-wildcard/v2"
	pdcerrors "github.com/rcourtman/pulse-disk-collector/internal/errors"
	"github.com/rcourtman/pulse-disk-collector/internal/models"
	"github.com/rcourtman/pulse-disk-collector/internal/toolexec"
	"github.com/rs/zerolog/log"
)

const component = "blockdev"

// ListCommand lists whole block devices without partitions or headers.
var ListCommand = toolexec.NewCommand("lsblk", "-d", "-n", "-o", "NAME,TYPE")

// Enumerator lists disks through lsblk. It keeps no state between calls.
type Enumerator struct {
	Invoker toolexec.Invoker
	Timeout time.Duration
	Exclude []string
}

// Enumerate returns the current disks in lsblk order. No disks is a valid
// result; any failure to run or read lsblk is an enumeration failure.
func (e Enumerator) Enumerate(ctx context.Context) ([]models.DiskIdentity, error) {
	res, err := e.Invoker.Invoke(ctx, ListCommand, e.Timeout)
	if err != nil {
		return nil, pdcerrors.WrapEnumerationError(err)
	}

	disks, err := ParseLsblk(res.Stdout, e.Exclude)
	if err != nil {
		return nil, pdcerrors.WrapEnumerationError(err)
	}

	log.Debug().
		Str("component", component).
		Str("action", "enumerate").
		Int("disks", len(disks)).
		Msg("Enumerated block devices")
	return disks, nil
}

// ParseLsblk reads "NAME TYPE" lines and keeps type "disk" entries that no
// exclude pattern matches.
func ParseLsblk(raw []byte, exclude []string) ([]models.DiskIdentity, error) {
	var (
		disks []models.DiskIdentity
		seen  = make(map[string]struct{})
	)

	scanner := bufio.NewScanner(bytes.NewReader(raw))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 2 {
			return nil, fmt.Errorf("unexpected lsblk line %q", scanner.Text())
		}
		name, devType := fields[0], fields[1]
		// Only include disk types (not loop, rom, partition)
		if devType != "disk" {
			continue
		}
		disk := models.NewDiskIdentity(name)
		if MatchesExclude(disk, exclude) {
			log.Debug().
				Str("component", component).
				Str("action", "skip_excluded_device").
				Str("device", disk.Path).
				Msg("Skipping excluded device")
			continue
		}
		if _, dup := seen[disk.Name]; dup {
			continue
		}
		seen[disk.Name] = struct{}{}
		disks = append(disks, disk)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return disks, nil
}

// MatchesExclude reports whether any pattern matches the disk's name
// ("sda", "nvme*") or its path ("/dev/sd?").
func MatchesExclude(disk models.DiskIdentity, patterns []string) bool {
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		if wildcard.Match(pattern, disk.Name) || wildcard.Match(pattern, disk.Path) {
			return true
		}
	}
	return false
}
