package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

type appConfig struct {
	schemaPath      string
	instance        string
	backend         string
	serialDev       string
	baud            int
	serialReadTO    time.Duration
	canIf           string
	metricsAddr     string
	mdnsEnable      bool
	mdnsName        string
	logFormat       string
	logLevel        string
	logMetricsEvery time.Duration
	lenient         bool
	txBuffer        int
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	schemaPath := flag.String("schema", "protocol.toml", "Protocol schema document (TOML)")
	instance := flag.String("instance", "canprotod", "Protocol instance name used in logs")
	backend := flag.String("backend", "socketcan", "Bus backend: serial|socketcan")
	serialDev := flag.String("serial", "/dev/ttyUSB0", "Serial device path (when --backend=serial)")
	baud := flag.Int("baud", 115200, "Serial baud rate")
	serialReadTO := flag.Duration("serial-read-timeout", 50*time.Millisecond, "Serial read timeout")
	canIf := flag.String("can-if", "can0", "SocketCAN interface (when --backend=socketcan)")
	metricsAddr := flag.String("metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")
	mdnsEnable := flag.Bool("mdns-enable", false, "Advertise the daemon via mDNS")
	mdnsName := flag.String("mdns-name", "", "mDNS instance name (default canprotod-<hostname>)")
	logFormat := flag.String("log-format", "text", "Log format: text|json")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	logMetricsEvery := flag.Duration("log-metrics-interval", 0, "If >0, periodically log metrics counters")
	lenient := flag.Bool("lenient", false, "Start even when the schema reported rule errors")
	txBuffer := flag.Int("tx-buffer", 1024, "Async TX queue capacity (frames)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	// Track explicitly set flags so they take precedence over env.
	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })
	cfg.schemaPath = *schemaPath
	cfg.instance = *instance
	cfg.backend = *backend
	cfg.serialDev = *serialDev
	cfg.baud = *baud
	cfg.serialReadTO = *serialReadTO
	cfg.canIf = *canIf
	cfg.metricsAddr = *metricsAddr
	cfg.mdnsEnable = *mdnsEnable
	cfg.mdnsName = *mdnsName
	cfg.logFormat = *logFormat
	cfg.logLevel = *logLevel
	cfg.logMetricsEvery = *logMetricsEvery
	cfg.lenient = *lenient
	cfg.txBuffer = *txBuffer

	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		fmt.Printf("environment override error: %v\n", err)
		return nil, *showVersion
	}
	if err := cfg.validate(); err != nil {
		fmt.Printf("configuration error: %v\n", err)
		return nil, *showVersion
	}
	return cfg, *showVersion
}

// applyEnvOverrides lets CANPROTOD_* variables fill values the command
// line left at their defaults.
func applyEnvOverrides(cfg *appConfig, set map[string]struct{}) error {
	str := func(flagName, env string, dst *string) {
		if _, explicit := set[flagName]; explicit {
			return
		}
		if v, ok := os.LookupEnv(env); ok {
			*dst = v
		}
	}
	str("schema", "CANPROTOD_SCHEMA", &cfg.schemaPath)
	str("instance", "CANPROTOD_INSTANCE", &cfg.instance)
	str("backend", "CANPROTOD_BACKEND", &cfg.backend)
	str("serial", "CANPROTOD_SERIAL", &cfg.serialDev)
	str("can-if", "CANPROTOD_CAN_IF", &cfg.canIf)
	str("metrics-addr", "CANPROTOD_METRICS_ADDR", &cfg.metricsAddr)
	str("mdns-name", "CANPROTOD_MDNS_NAME", &cfg.mdnsName)
	str("log-format", "CANPROTOD_LOG_FORMAT", &cfg.logFormat)
	str("log-level", "CANPROTOD_LOG_LEVEL", &cfg.logLevel)

	if _, explicit := set["baud"]; !explicit {
		if v, ok := os.LookupEnv("CANPROTOD_BAUD"); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("CANPROTOD_BAUD: %w", err)
			}
			cfg.baud = n
		}
	}
	if _, explicit := set["mdns-enable"]; !explicit {
		if v, ok := os.LookupEnv("CANPROTOD_MDNS_ENABLE"); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("CANPROTOD_MDNS_ENABLE: %w", err)
			}
			cfg.mdnsEnable = b
		}
	}
	return nil
}

// validate performs semantic validation of the parsed configuration. It
// does not attempt to open devices or listeners.
func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	if c.schemaPath == "" {
		return errors.New("schema path must not be empty")
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	switch c.backend {
	case "serial", "socketcan":
	default:
		return fmt.Errorf("invalid backend: %s", c.backend)
	}
	if c.baud <= 0 {
		return fmt.Errorf("baud must be > 0 (got %d)", c.baud)
	}
	if c.serialReadTO <= 0 {
		return fmt.Errorf("serial-read-timeout must be > 0 (got %s)", c.serialReadTO)
	}
	if c.txBuffer <= 0 {
		return fmt.Errorf("tx-buffer must be > 0 (got %d)", c.txBuffer)
	}
	return nil
}
