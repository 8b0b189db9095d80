// settingsctl encodes, decodes and applies settings messages, and inspects
// the persistence journal they are saved to.
//
// Usage:
//
//	settingsctl [--config file] [--log-level level] [--metrics] <command> [args]
//
// Commands:
//
//	encode [--out file] key=type:value...   build a message
//	decode <file>                           print the tuples of a message
//	apply <file>                            apply a message to the saved settings
//	dump                                    print the saved settings as CBOR diagnostic
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	kv_settings "kv-settings"
	"kv-settings/config"
	"kv-settings/internal/logging"
	"kv-settings/metrics"
)

var errUsage = errors.New("usage")

type app struct {
	cfg      *config.Config
	log      *zap.Logger
	recorder kv_settings.Recorder
	out      io.Writer
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	var configPath, logLevel string
	var showMetrics bool

	flagSet := pflag.NewFlagSet("settingsctl", pflag.ContinueOnError)
	flagSet.SetInterspersed(false)
	flagSet.StringVar(&configPath, "config", "", "YAML configuration file (default: $"+config.EnvConfig+")")
	flagSet.StringVar(&logLevel, "log-level", "", "override the configured log level")
	flagSet.BoolVar(&showMetrics, "metrics", false, "print counters in Prometheus text format on exit")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("%w: %w", errUsage, err)
	}

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	a := &app{cfg: cfg, log: log, recorder: kv_settings.NopRecorder{}, out: out}
	registry := prometheus.NewRegistry()
	if showMetrics {
		recorder, err := metrics.New(registry)
		if err != nil {
			return err
		}
		a.recorder = recorder
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		return fmt.Errorf("%w: missing command (encode, decode, apply, dump)", errUsage)
	}
	command, rest := rest[0], rest[1:]
	switch command {
	case "encode":
		err = a.encode(rest)
	case "decode":
		err = a.decode(rest)
	case "apply":
		err = a.apply(rest)
	case "dump":
		err = a.dump(rest)
	default:
		err = fmt.Errorf("%w: unknown command %q", errUsage, command)
	}
	if err != nil {
		return err
	}

	if showMetrics {
		return writeMetrics(out, registry)
	}
	return nil
}

func writeMetrics(out io.Writer, gatherer prometheus.Gatherer) error {
	families, err := gatherer.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}
	for _, family := range families {
		if _, err := expfmt.MetricFamilyToText(out, family); err != nil {
			return fmt.Errorf("writing metrics: %w", err)
		}
	}
	return nil
}
