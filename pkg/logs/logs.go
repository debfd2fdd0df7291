package logs

import (
	"fmt"
	"io"
	"log"
	"log/syslog"
	"strings"

	logger "github.com/d2r2/go-logger"
)

// Packages lists the package loggers registered by the bridge.
var Packages = []string{"alarm", "bridge", "events", "gate", "journal", "notifier", "reach", "telegram", "tuya"}

// syslog hooks, replaced in tests
var (
	openSyslog = func(name string) (io.Writer, error) {
		return syslog.New(syslog.LOG_NOTICE, name)
	}
	setApplicationName = logger.SetApplicationName
	enableSyslog       = logger.EnableSyslog
)

// SetupSyslog configures log and every package logger to write to syslog
func SetupSyslog(name string) error {
	logwriter, err := openSyslog(name)
	if err != nil {
		log.Printf("Unable to configure logger to write to syslog:%s\n", err)
		return err
	}
	log.SetOutput(logwriter)
	log.SetFlags(0)

	setApplicationName(name)
	enableSyslog(true)
	return nil
}

// ParseLevel maps a level name such as "debug" or "warn" to a go-logger level.
func ParseLevel(name string) (logger.LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return logger.DebugLevel, nil
	case "", "info":
		return logger.InfoLevel, nil
	case "notify", "notice":
		return logger.NotifyLevel, nil
	case "warn", "warning":
		return logger.WarnLevel, nil
	case "error":
		return logger.ErrorLevel, nil
	case "fatal":
		return logger.FatalLevel, nil
	}
	return logger.InfoLevel, fmt.Errorf("unknown log level %q", name)
}

// SetLevel changes the level of every bridge package logger.
func SetLevel(name string) error {
	level, err := ParseLevel(name)
	if err != nil {
		return err
	}
	for _, pkg := range Packages {
		logger.ChangePackageLogLevel(pkg, level)
	}
	return nil
}
