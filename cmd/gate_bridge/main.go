package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	logger "github.com/d2r2/go-logger"
	"github.com/gofrs/flock"
	"gobot.io/x/gobot"

	"github.com/starryalley/gate_bridge/pkg/alarm"
	"github.com/starryalley/gate_bridge/pkg/bridge"
	"github.com/starryalley/gate_bridge/pkg/config"
	"github.com/starryalley/gate_bridge/pkg/events"
	"github.com/starryalley/gate_bridge/pkg/gate"
	"github.com/starryalley/gate_bridge/pkg/journal"
	"github.com/starryalley/gate_bridge/pkg/logs"
	"github.com/starryalley/gate_bridge/pkg/notifier"
	"github.com/starryalley/gate_bridge/pkg/reach"
	"github.com/starryalley/gate_bridge/pkg/telegram"
	"github.com/starryalley/gate_bridge/pkg/tuya"
)

func main() {
	os.Exit(run())
}

func run() int {
	defer logger.FinalizeLogger()

	cfg, err := config.Load()
	if err != nil {
		log.Printf("Invalid configuration:%v\n", err)
		return 1
	}
	if cfg.Syslog {
		logs.SetupSyslog("GateBridge")
	}
	if err := logs.SetLevel(cfg.LogLevel); err != nil {
		log.Printf("Invalid configuration:%v\n", err)
		return 1
	}

	// only one bridge may drive the plug and the chat
	if cfg.LockFile != "" {
		fileLock := flock.New(cfg.LockFile)
		locked, err := fileLock.TryLock()
		if err != nil {
			log.Printf("Unable to lock %s:%v\n", cfg.LockFile, err)
			return 1
		}
		if !locked {
			log.Printf("Another instance holds %s\n", cfg.LockFile)
			return 1
		}
		defer fileLock.Unlock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cloud := tuya.NewClient(cfg.TuyaAPIEndpoint, cfg.TuyaAccessID, cfg.TuyaAccessKey)
	if err := cloud.Connect(ctx); err != nil {
		log.Printf("Tuya API connection test failed:%v\n", err)
	} else {
		log.Printf("Tuya API connected\n")
	}
	plug := tuya.NewDeviceState(cloud)
	if on, err := plug.GetState(ctx, cfg.PlugDeviceID); err != nil {
		log.Printf("Unable to read plug state:%v\n", err)
	} else {
		log.Printf("Plug %s is on:%v\n", cfg.PlugDeviceID, on)
	}

	chat := telegram.New(cfg.TelegramAPIURL, cfg.TelegramToken, cfg.TelegramChatID)
	status := notifier.New(chat, nil)
	log.Printf("Posting gate status to %s\n", chat.Chat())

	gateState := gate.NewState(nil)
	listener := gate.NewListener(cfg.GateDeviceID, gateState.Set)
	feed := tuya.NewPulsar(cfg.TuyaMQEndpoint, cfg.TuyaAccessID, cfg.TuyaAccessKey, cfg.TuyaMQEnv)
	feed.AddMessageListener(listener.HandleMessage)
	feed.Start(ctx)
	defer feed.Stop()

	prober, err := reach.New(cfg.PingMethod, cfg.PingTimeout)
	if err != nil {
		log.Printf("Invalid configuration:%v\n", err)
		return 1
	}

	b := bridge.New(gateState, status, prober, plug, cfg.PingHostname, cfg.PlugDeviceID)

	if cfg.AlarmEnabled() {
		monitor := alarm.New(alarm.NewIFTTT(cfg.IFTTTKey, cfg.IFTTTEvent), cfg.GateOpenWarning)
		defer monitor.Stop()
		b.Observe(monitor)
	}
	if cfg.JournalEnabled() {
		service, err := journal.NewSheetsService(ctx, cfg.SheetCredentials)
		if err != nil {
			log.Printf("Gate journal disabled:%v\n", err)
		} else if j, err := journal.New(service, cfg.SheetID, cfg.SheetRange); err != nil {
			log.Printf("Gate journal disabled:%v\n", err)
		} else {
			b.Observe(j)
		}
	}
	if cfg.EventsEnabled() {
		pub, err := events.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			log.Printf("Gate events disabled:%v\n", err)
		} else {
			defer pub.Close()
			b.Observe(pub)
		}
	}

	ticks := b.Guard(ctx)
	tickers := make(chan *time.Ticker, 1)
	work := func() {
		ticks.Tick()
		tickers <- gobot.Every(cfg.PollInterval, ticks.Tick)
	}

	// gobot only traps SIGINT, wait for SIGTERM as well
	robot := gobot.NewRobot("GateBridgeBot", work)
	robot.AutoRun = false
	if err := robot.Start(); err != nil {
		log.Printf("Unable to start robot:%v\n", err)
		return 1
	}
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	<-sigCtx.Done()
	stop()

	// abort a running tick, then make sure none starts while shutting down
	cancel()
	ticks.Close()
	select {
	case ticker := <-tickers:
		ticker.Stop()
	default:
	}
	if err := robot.Stop(); err != nil {
		log.Printf("Robot stopped with error:%v\n", err)
	}
	log.Printf("Gate bridge exited\n")
	return 0
}
