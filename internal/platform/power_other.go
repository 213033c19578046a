//go:build !linux

package platform

import (
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// Poweroff is not available on non-Linux platforms; only DryRun works.
type Poweroff struct {
	DryRun bool

	log *logrus.Entry
}

// NewPoweroff returns a PowerManager that can only dry-run.
func NewPoweroff(dryRun bool, log *logrus.Entry) *Poweroff {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Poweroff{DryRun: dryRun, log: log.WithField("component", "platform")}
}

// ForceLowestPowerState logs in dry-run mode and fails otherwise.
func (p *Poweroff) ForceLowestPowerState() error {
	if p.DryRun {
		p.log.Warn("dry run: skipping power off")
		return nil
	}
	return errors.New("platform: power off not supported (requires Linux)")
}

// BootClock falls back to process uptime on non-Linux platforms.
type BootClock struct{}

var processStart = time.Now()

// Uptime returns the time since the process started.
func (BootClock) Uptime() time.Duration {
	return time.Since(processStart)
}
