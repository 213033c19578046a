package main

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sweeney/powerctl/internal/config"
	"github.com/sweeney/powerctl/internal/gpio"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type options struct {
	configPath string
	logLevel   string
	logJSON    bool

	broker string
	http   string
	dryRun bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "powerctl",
		Short: "Power button, sleep and wireless control for a battery peripheral",
		Long: `powerctl debounces the power button, runs the power state machine
(deep sleep, reset, advertise, pairing, connected) and exposes five control
lines over a BLE service. State changes are published to MQTT and shown on
an HTTP status page.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return configureLogging(logrus.StandardLogger(), opts.logLevel, opts.logJSON)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", config.DefaultPath, "config file (missing file uses defaults)")
	pf.StringVar(&opts.logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	pf.BoolVar(&opts.logJSON, "log-json", false, "log as JSON")

	root.AddCommand(newRunCmd(opts), newPrintStateCmd(opts), newVersionCmd())
	return root
}

func newRunCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			return run(cfg, logrus.NewEntry(logrus.StandardLogger()))
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.broker, "broker", "", "MQTT broker address (overrides config, empty config value disables)")
	f.StringVar(&opts.http, "http", "", "HTTP status address (overrides config)")
	f.BoolVar(&opts.dryRun, "dry-run", false, "log instead of powering off")
	return cmd
}

func newPrintStateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "print-state",
		Short: "Print the button state and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			chip, err := gpio.OpenChip(cfg.GPIO.Chip)
			if err != nil {
				return fmt.Errorf("init gpio: %w", err)
			}
			defer chip.Close()

			button, err := chip.RequestButton(cfg.GPIO.Button)
			if err != nil {
				return fmt.Errorf("init gpio: %w", err)
			}
			return printState(cmd.OutOrStdout(), button)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "powerctl %s\n", version)
		},
	}
}

// loadConfig reads the config file and applies the run flags that were set.
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("broker") {
		cfg.MQTT.Broker = opts.broker
	}
	if flags.Changed("http") {
		cfg.HTTP.Addr = opts.http
	}
	if flags.Changed("dry-run") {
		cfg.Power.DryRun = opts.dryRun
	}
	return cfg, nil
}

func configureLogging(logger *logrus.Logger, level string, asJSON bool) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	logger.SetLevel(lvl)
	if asJSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}

func printState(w io.Writer, button gpio.Input) error {
	l, err := button.Read()
	if err != nil {
		return fmt.Errorf("read gpio: %w", err)
	}
	state := "RELEASED"
	if gpio.Pressed(l) {
		state = "PRESSED"
	}
	_, err = fmt.Fprintf(w, "button: %s (%s)\n", state, l)
	return err
}
