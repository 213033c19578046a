//go:build linux

package platform

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Poweroff shuts the machine down. Wake is a fresh boot, matching a soft-off
// microcontroller whose wake source resets it.
type Poweroff struct {
	// DryRun logs instead of powering off.
	DryRun bool

	log *logrus.Entry
}

// NewPoweroff returns a PowerManager backed by reboot(2).
func NewPoweroff(dryRun bool, log *logrus.Entry) *Poweroff {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Poweroff{DryRun: dryRun, log: log.WithField("component", "platform")}
}

// ForceLowestPowerState flushes filesystems and powers off.
func (p *Poweroff) ForceLowestPowerState() error {
	if p.DryRun {
		p.log.Warn("dry run: skipping power off")
		return nil
	}
	p.log.Info("powering off")
	unix.Sync()
	if err := unix.Reboot(unix.LINUX_REBOOT_CMD_POWER_OFF); err != nil {
		return fmt.Errorf("power off: %w", err)
	}
	return nil
}

// BootClock reports time since boot, including time spent suspended.
type BootClock struct{}

// Uptime reads CLOCK_BOOTTIME.
func (BootClock) Uptime() time.Duration {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_BOOTTIME, &ts); err != nil {
		return 0
	}
	return time.Duration(ts.Nano())
}
