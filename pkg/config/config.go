// Package config loads the bridge settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the bridge needs at startup.
type Config struct {
	TuyaAccessID     string // TUYA_ACCESS_ID (required)
	TuyaAccessKey    string // TUYA_ACCESS_KEY (required)
	TuyaAPIEndpoint  string // TUYA_API_ENDPOINT (default "https://openapi.tuyaeu.com")
	TuyaMQEndpoint   string // TUYA_MQ_ENDPOINT (default "wss://mqe.tuyaeu.com:8285/")
	TuyaMQEnv        string // TUYA_MQ_ENV (default "event", "event-test" for the test channel)
	PlugDeviceID     string // TUYA_DEVICE_ID (required)
	GateDeviceID     string // TUYA_GATE_DEVICE_ID (required)
	PingHostname     string // PING_HOSTNAME (required)
	PingMethod       string // PING_METHOD (default "exec"; "icmp" for in-process echo)
	PingTimeout      time.Duration
	TelegramToken    string // TELEGRAM_BOT_TOKEN (required)
	TelegramChatID   string // TELEGRAM_CHAT_ID (required)
	TelegramAPIURL   string // TELEGRAM_API_URL (default "https://api.telegram.org")
	PollInterval     time.Duration
	LogLevel         string // LOG_LEVEL (default "info")
	Syslog           bool   // SYSLOG (default false)
	LockFile         string // LOCK_FILE (default "/var/lock/gate_bridge.lock", empty = no lock)
	IFTTTKey         string // IFTTT_KEY (enables the open-too-long warning)
	IFTTTEvent       string // IFTTT_EVENT
	GateOpenWarning  time.Duration
	SheetCredentials string // SHEET_CREDENTIALS (service account json path, enables journal)
	SheetID          string // SHEET_ID
	SheetRange       string // SHEET_RANGE (default "Gate!A2:C2")
	NATSURL          string // NATS_URL (optional, empty = no events)
	NATSSubject      string // NATS_SUBJECT (default "gate_bridge.gate")
}

var required = []string{
	"TUYA_ACCESS_ID",
	"TUYA_ACCESS_KEY",
	"TUYA_DEVICE_ID",
	"TUYA_GATE_DEVICE_ID",
	"PING_HOSTNAME",
	"TELEGRAM_BOT_TOKEN",
	"TELEGRAM_CHAT_ID",
}

// Load reads an optional .env file from the working directory and then the
// process environment. Values already set in the environment win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (*Config, error) {
	var missing []string
	for _, key := range required {
		if os.Getenv(key) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment: %s", strings.Join(missing, ", "))
	}

	c := &Config{
		TuyaAccessID:     os.Getenv("TUYA_ACCESS_ID"),
		TuyaAccessKey:    os.Getenv("TUYA_ACCESS_KEY"),
		TuyaAPIEndpoint:  envOrDefault("TUYA_API_ENDPOINT", "https://openapi.tuyaeu.com"),
		TuyaMQEndpoint:   envOrDefault("TUYA_MQ_ENDPOINT", "wss://mqe.tuyaeu.com:8285/"),
		TuyaMQEnv:        envOrDefault("TUYA_MQ_ENV", "event"),
		PlugDeviceID:     os.Getenv("TUYA_DEVICE_ID"),
		GateDeviceID:     os.Getenv("TUYA_GATE_DEVICE_ID"),
		PingHostname:     os.Getenv("PING_HOSTNAME"),
		PingMethod:       envOrDefault("PING_METHOD", "exec"),
		TelegramToken:    os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:   os.Getenv("TELEGRAM_CHAT_ID"),
		TelegramAPIURL:   envOrDefault("TELEGRAM_API_URL", "https://api.telegram.org"),
		LogLevel:         envOrDefault("LOG_LEVEL", "info"),
		LockFile:         envOrDefault("LOCK_FILE", "/var/lock/gate_bridge.lock"),
		IFTTTKey:         os.Getenv("IFTTT_KEY"),
		IFTTTEvent:       os.Getenv("IFTTT_EVENT"),
		SheetCredentials: os.Getenv("SHEET_CREDENTIALS"),
		SheetID:          os.Getenv("SHEET_ID"),
		SheetRange:       envOrDefault("SHEET_RANGE", "Gate!A2:C2"),
		NATSURL:          os.Getenv("NATS_URL"),
		NATSSubject:      envOrDefault("NATS_SUBJECT", "gate_bridge.gate"),
	}

	switch c.PingMethod {
	case "exec", "icmp":
	default:
		return nil, fmt.Errorf("PING_METHOD: unknown method %q", c.PingMethod)
	}

	var err error
	if c.PollInterval, err = durationEnv("POLL_INTERVAL", "30s"); err != nil {
		return nil, err
	}
	if c.PollInterval <= 0 {
		return nil, errors.New("POLL_INTERVAL: must be positive")
	}
	if c.PingTimeout, err = durationEnv("PING_TIMEOUT", "2s"); err != nil {
		return nil, err
	}
	if c.GateOpenWarning, err = durationEnv("GATE_OPEN_WARNING", "2m"); err != nil {
		return nil, err
	}

	if s := os.Getenv("SYSLOG"); s != "" {
		if c.Syslog, err = strconv.ParseBool(s); err != nil {
			return nil, fmt.Errorf("SYSLOG: %w", err)
		}
	}

	if (c.IFTTTKey == "") != (c.IFTTTEvent == "") {
		return nil, errors.New("IFTTT_KEY and IFTTT_EVENT must be set together")
	}
	if (c.SheetCredentials == "") != (c.SheetID == "") {
		return nil, errors.New("SHEET_CREDENTIALS and SHEET_ID must be set together")
	}

	return c, nil
}

// AlarmEnabled reports whether the open-too-long warning is configured.
func (c *Config) AlarmEnabled() bool { return c.IFTTTKey != "" }

// JournalEnabled reports whether gate changes are appended to a spreadsheet.
func (c *Config) JournalEnabled() bool { return c.SheetID != "" }

// EventsEnabled reports whether gate changes are published to NATS.
func (c *Config) EventsEnabled() bool { return c.NATSURL != "" }

func durationEnv(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
