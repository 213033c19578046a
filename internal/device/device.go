// Package device assembles the event pipeline, the power state machine and the
// wireless control service over a set of hardware bindings, and runs the
// consumer loop that drives them.
package device

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/sweeney/powerctl/internal/ble"
	"github.com/sweeney/powerctl/internal/debounce"
	"github.com/sweeney/powerctl/internal/event"
	"github.com/sweeney/powerctl/internal/gpio"
	"github.com/sweeney/powerctl/internal/platform"
	"github.com/sweeney/powerctl/internal/power"
)

// ErrInitFailure wraps every error that aborts startup.
var ErrInitFailure = errors.New("device: init failure")

// Hardware is the set of collaborators the device runs against.
type Hardware struct {
	Button    gpio.Button
	Indicator gpio.Output
	Controls  []gpio.Output
	Stack     ble.Stack
	Power     platform.PowerManager
	Clock     platform.Clock
}

// Config holds the tunables.
type Config struct {
	PoolSize   int
	Debounce   debounce.Config
	Thresholds power.Thresholds
	BLE        ble.Config
}

// DefaultConfig returns the stock settings.
func DefaultConfig() Config {
	return Config{
		PoolSize:   event.DefaultPoolSize,
		Debounce:   debounce.Config{Period: debounce.DefaultPeriod, Ticks: debounce.DefaultTicks},
		Thresholds: power.DefaultThresholds,
		BLE:        ble.DefaultConfig(),
	}
}

// Device owns one instance of every core component.
type Device struct {
	hw      Hardware
	pool    *event.Pool
	queue   *event.Queue
	filter  *debounce.Filter
	service *ble.Service
	machine *power.Machine
	log     *logrus.Entry
}

// New builds a Device. Missing bindings fail with ErrInitFailure.
func New(hw Hardware, cfg Config, log *logrus.Entry, opts ...debounce.Option) (*Device, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	switch {
	case hw.Button == nil:
		return nil, fmt.Errorf("%w: no button line", ErrInitFailure)
	case hw.Indicator == nil:
		return nil, fmt.Errorf("%w: no indicator line", ErrInitFailure)
	case hw.Stack == nil:
		return nil, fmt.Errorf("%w: no wireless stack", ErrInitFailure)
	case hw.Power == nil:
		return nil, fmt.Errorf("%w: no power manager", ErrInitFailure)
	}
	if hw.Clock == nil {
		hw.Clock = platform.NewProcessClock()
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = event.DefaultPoolSize
	}

	pool, err := event.NewPool(cfg.PoolSize)
	if err != nil {
		return nil, fmt.Errorf("%w: event pool: %w", ErrInitFailure, err)
	}
	// One slot per pool record, so Enqueue never finds the queue full.
	queue, err := event.NewQueue(cfg.PoolSize)
	if err != nil {
		return nil, fmt.Errorf("%w: event queue: %w", ErrInitFailure, err)
	}
	producer := event.NewProducer(pool, queue, log)

	service := ble.NewService(hw.Stack, hw.Controls, producer, cfg.BLE, log)
	ctx := &power.Context{
		Indicator:  hw.Indicator,
		Button:     hw.Button,
		Radio:      service,
		Link:       service,
		Power:      hw.Power,
		Clock:      hw.Clock,
		Thresholds: cfg.Thresholds,
	}

	return &Device{
		hw:      hw,
		pool:    pool,
		queue:   queue,
		filter:  debounce.New(cfg.Debounce, hw.Button, producer, log, opts...),
		service: service,
		machine: power.NewMachine(ctx, log),
		log:     log.WithField("component", "device"),
	}, nil
}

// Observe registers o for power state transitions. Call before Run.
func (d *Device) Observe(o power.Observer) {
	d.machine.Observe(o)
}

// OnWrite registers o for applied control point writes.
func (d *Device) OnWrite(o ble.WriteObserver) {
	d.service.OnWrite(o)
}

// Service returns the wireless control service.
func (d *Device) Service() *ble.Service {
	return d.service
}

// Stats is a point-in-time view of the pipeline counters.
type Stats struct {
	KeyEvents    uint64
	KeyFailures  uint64
	Pool         event.PoolStats
	Queued       int
	ControlLines [ble.NumControlPoints]uint16
	Advertising  bool
	Peer         string
}

// Stats returns the pipeline counters. Safe to call from any goroutine.
func (d *Device) Stats() Stats {
	return Stats{
		KeyEvents:    d.filter.Emitted(),
		KeyFailures:  d.filter.Failed(),
		Pool:         d.pool.Stats(),
		Queued:       d.queue.Len(),
		ControlLines: d.service.Values(),
		Advertising:  d.service.Advertising(),
		Peer:         d.service.Peer(),
	}
}

// Run starts the wireless service, the debounce goroutine and the state
// machine (in RESET), then dispatches events until ctx is done or the state
// machine fails. Cancellation returns nil.
func (d *Device) Run(ctx context.Context) error {
	if err := d.service.Start(); err != nil {
		d.log.WithError(err).Error("wireless service failed to start")
		return fmt.Errorf("%w: %w", ErrInitFailure, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	d.hw.Button.OnEdge(d.filter.Edge)
	wg.Add(1)
	go func() {
		defer wg.Done()
		d.filter.Run(ctx)
	}()

	if err := d.machine.Start(power.Reset); err != nil {
		d.log.WithError(err).Error("state machine failed to start")
		return fmt.Errorf("start state machine: %w", err)
	}
	d.log.WithField("state", d.machine.State()).Info("running")

	for {
		ev, err := d.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				d.log.Info("stopping")
				return nil
			}
			return fmt.Errorf("dequeue: %w", err)
		}

		err = d.machine.Dispatch(ev)
		if ferr := d.pool.Free(ev); ferr != nil {
			d.log.WithError(ferr).Error("free event")
		}
		if err != nil {
			d.log.WithError(err).Error("state machine failed, stopping consumer")
			return fmt.Errorf("dispatch: %w", err)
		}
	}
}
