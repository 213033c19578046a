package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/sweeney/powerctl/internal/ble"
	"github.com/sweeney/powerctl/internal/config"
	"github.com/sweeney/powerctl/internal/device"
	"github.com/sweeney/powerctl/internal/gpio"
	"github.com/sweeney/powerctl/internal/mqtt"
	"github.com/sweeney/powerctl/internal/platform"
	"github.com/sweeney/powerctl/internal/status"
	"github.com/sweeney/powerctl/internal/web"
)

// statusInterval is how often the run loop samples the pipeline counters.
const statusInterval = time.Second

type publisher interface {
	mqtt.Publisher
	mqtt.ConnectionStatus
}

func run(cfg *config.Config, log *logrus.Entry) error {
	hw, chip, err := openHardware(cfg, log)
	if err != nil {
		return err
	}
	defer chip.Close()

	dev, err := device.New(hw, cfg.Device(), log)
	if err != nil {
		return err
	}

	var pub publisher = discardPublisher{}
	if cfg.MQTT.Broker != "" {
		rp, err := mqtt.NewRealPublisher(mqtt.Options{Broker: cfg.MQTT.Broker, ClientID: cfg.MQTT.ClientID}, log)
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		pub = rp
	} else {
		log.Warn("no mqtt broker configured, telemetry disabled")
	}
	defer pub.Close()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), statusConfig(cfg))
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}
	tracker.SetMQTTConnected(pub.IsConnected())

	tel := newTelemetry(pub, tracker, dev.Service(), log)
	dev.Observe(tel.transition)
	dev.OnWrite(tel.write)

	publishSystem(pub, tracker, log, "STARTUP", "")

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, log)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("http server failed")
			}
		}()
		defer srv.Shutdown(context.Background())
	}

	heartbeat := make(chan time.Time, 1)
	if cfg.MQTT.Heartbeat != "" {
		c := cron.New()
		if _, err := c.AddFunc(cfg.MQTT.Heartbeat, func() {
			select {
			case heartbeat <- time.Now():
			default:
			}
		}); err != nil {
			return fmt.Errorf("heartbeat schedule: %w", err)
		}
		c.Start()
		defer c.Stop()
	}

	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	log.WithFields(logrus.Fields{
		"broker":    cfg.MQTT.Broker,
		"http":      cfg.HTTP.Addr,
		"heartbeat": cfg.MQTT.Heartbeat,
		"dry_run":   cfg.Power.DryRun,
	}).Info("started")

	return runLoop(dev, pub, tracker, log, ticker.C, heartbeat, sigCh)
}

// openHardware requests the lines from the GPIO chip and binds the radio,
// power and clock. The caller closes the chip.
func openHardware(cfg *config.Config, log *logrus.Entry) (device.Hardware, *gpio.Chip, error) {
	chip, err := gpio.OpenChip(cfg.GPIO.Chip)
	if err != nil {
		return device.Hardware{}, nil, fmt.Errorf("init gpio: %w", err)
	}

	fail := func(what string, err error) (device.Hardware, *gpio.Chip, error) {
		chip.Close()
		return device.Hardware{}, nil, fmt.Errorf("init %s: %w", what, err)
	}

	button, err := chip.RequestButton(cfg.GPIO.Button)
	if err != nil {
		return fail("button", err)
	}
	indicator, err := chip.RequestOutput(cfg.GPIO.Indicator, gpio.Low)
	if err != nil {
		return fail("indicator", err)
	}
	controls := make([]gpio.Output, 0, len(cfg.GPIO.Controls))
	for _, pin := range cfg.GPIO.Controls {
		out, err := chip.RequestOutput(pin, gpio.Low)
		if err != nil {
			return fail(fmt.Sprintf("control line %d", pin), err)
		}
		controls = append(controls, out)
	}
	clock, err := platform.NewClock(cfg.Power.Clock)
	if err != nil {
		return fail("clock", err)
	}

	return device.Hardware{
		Button:    button,
		Indicator: indicator,
		Controls:  controls,
		Stack:     ble.NewAdapter(log),
		Power:     platform.NewPoweroff(cfg.Power.DryRun, log),
		Clock:     clock,
	}, chip, nil
}

// runner is the part of device.Device the run loop drives.
type runner interface {
	Run(ctx context.Context) error
	Stats() device.Stats
}

// runLoop runs dev until a signal arrives or dev stops on its own, keeping
// tracker current and publishing HEARTBEAT and SHUTDOWN system events.
func runLoop(dev runner, pub publisher, tracker *status.Tracker, log *logrus.Entry, tick, heartbeat <-chan time.Time, sig <-chan os.Signal) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- dev.Run(ctx) }()

	for {
		select {
		case s := <-sig:
			reason := signalName(s)
			log.WithField("signal", reason).Info("shutting down")
			cancel()
			err := <-done
			refresh(dev, pub, tracker)
			publishSystem(pub, tracker, log, "SHUTDOWN", reason)
			return err

		case err := <-done:
			if err == nil {
				err = errors.New("device stopped")
			}
			log.WithError(err).Error("device stopped")
			refresh(dev, pub, tracker)
			publishSystem(pub, tracker, log, "SHUTDOWN", "ERROR")
			return err

		case <-tick:
			refresh(dev, pub, tracker)

		case <-heartbeat:
			refresh(dev, pub, tracker)
			// Refresh network info for heartbeat
			if net := readNetworkInfo(); net != nil {
				tracker.SetNetwork(net)
			}
			snap := tracker.Snapshot()
			log.WithFields(logrus.Fields{
				"state":  snap.State,
				"uptime": snap.Uptime().Truncate(time.Second),
				"writes": snap.Counts.Writes,
			}).Info("heartbeat")
			publishSystem(pub, tracker, log, "HEARTBEAT", "")
		}
	}
}

// refresh copies the pipeline counters and link state into the tracker.
func refresh(dev runner, pub mqtt.ConnectionStatus, tracker *status.Tracker) {
	st := dev.Stats()
	tracker.Update(status.Pipeline{
		KeyEvents:    st.KeyEvents,
		KeyFailures:  st.KeyFailures,
		PoolCapacity: st.Pool.Capacity,
		PoolInUse:    st.Pool.InUse,
		Dropped:      st.Pool.Dropped,
		Queued:       st.Queued,
	})
	tracker.SetLink(st.Advertising, st.Peer)
	tracker.SetMQTTConnected(pub.IsConnected())
}

// publishSystem publishes a retained system event carrying a full status
// snapshot. HEARTBEAT is not retained.
func publishSystem(pub mqtt.Publisher, tracker *status.Tracker, log *logrus.Entry, event, reason string) {
	snap := tracker.Snapshot()
	err := pub.PublishSystem(mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   event != "HEARTBEAT",
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	})
	if err != nil {
		log.WithError(err).WithField("event", event).Warn("failed to publish system event")
		return
	}
	log.WithField("event", event).Debug("published system event")
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

func statusConfig(cfg *config.Config) status.Config {
	return status.Config{
		DebounceMs:    cfg.Debounce.Period.Milliseconds(),
		DebounceTicks: cfg.Debounce.Ticks,
		SystemOnMs:    cfg.Power.SystemOnThreshold.Milliseconds(),
		PairingMs:     cfg.Power.PairingThreshold.Milliseconds(),
		PowerOffMs:    cfg.Power.PowerOffHold.Milliseconds(),
		Heartbeat:     cfg.MQTT.Heartbeat,
		Broker:        cfg.MQTT.Broker,
		HTTPAddr:      cfg.HTTP.Addr,
		LocalName:     cfg.BLE.LocalName,
		DryRun:        cfg.Power.DryRun,
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
