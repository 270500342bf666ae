package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	sddaemon "github.com/coreos/go-systemd/v22/daemon"
	"github.com/op/go-logging"

	"github.com/ldotlopez/kadoma/common/ble"
	"github.com/ldotlopez/kadoma/common/config"
	log2 "github.com/ldotlopez/kadoma/common/log"
	"github.com/ldotlopez/kadoma/common/persistance"
	"github.com/ldotlopez/kadoma/common/socket"
	. "github.com/ldotlopez/kadoma/common/util"
	"github.com/ldotlopez/kadoma/daemon/control"
)

func useSyslog(cfg config.Config) bool {
	env := os.Getenv("KADOMA_LOG_SYSLOG")
	if env != "" {
		return env == "true"
	}
	return cfg.LogSyslog
}

var log = log2.SetupLogging("kadomad", logging.NOTICE, false)

func loadConfig() (cfg config.Config, err error) {
	path, err := socket.KadomaDirFile(config.CONFIG_FILENAME)
	if err != nil {
		return
	}
	return config.Load(path)
}

//	connect retries every interval until the device is attached or ctx ends
func connect(ctx context.Context, cfg config.Config, cs *control.ControlServer, interval time.Duration) (device ble.Device) {
	opts, err := ble.OptionsFromConfig(cfg)
	if err != nil {
		log.Error(err)
		return
	}
	device, err = ble.NewDevice(cfg.Backend, opts, log)
	if err != nil {
		log.Error(err)
		return nil
	}
	for {
		if cfg.ForceDisconnect && cfg.Backend == config.BACKEND_BLUEZ {
			if err = ble.ForceDisconnect(cfg.Adapter, opts.Address); err != nil {
				log.Warning("force disconnect failed:", err.Error())
			}
		}
		err = ble.ConnectWithRetry(ctx, device, cfg.ConnectAttempts, log)
		if err == nil {
			if err = cs.Attach(ctx, device); err == nil {
				log.Notice("serving", opts.Address)
				return
			}
			device.Disconnect()
		}
		log.Error(fmt.Sprintf("could not connect to %s: %s, retrying in %s", opts.Address, err.Error(), interval))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

func main() {
	defer func() {
		if x := recover(); x != nil {
			log.Error(fmt.Sprintf("run time panic: %v", x))
			log.Error(string(debug.Stack()))
			panic(x)
		}
	}()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal(err)
	}
	log = log2.SetupLogging("kadomad", log2.ParseLevel(cfg.LogLevel, logging.NOTICE), useSyslog(cfg))

	kadomaDir, err := socket.KadomaDir()
	if err != nil {
		log.Fatal(err)
	}

	daemonSocket, err := socket.DaemonListen()
	if err != nil {
		log.Fatal(err)
	}
	defer daemonSocket.Close()

	controlServer, err := control.NewControlServer(persistance.FilePersister{Dir: kadomaDir}, cfg.Timeouts, log)
	if err != nil {
		log.Fatal(err)
	}
	go func() {
		err := controlServer.HandleControlHTTP(daemonSocket)
		if err != nil {
			log.Error("controlServer return:", err)
		}
	}()

	if _, err := sddaemon.SdNotify(false, sddaemon.SdNotifyReady); err != nil {
		log.Warning("systemd notify failed:", err.Error())
	}
	log.Notice("kadomad launched and listening on UNIX socket")

	ctx, cancel := context.WithCancel(context.Background())
	var device ble.Device
	connected := make(chan ble.Device, 1)
	if cfg.Address == "" {
		log.Error(ErrDeviceNotConfigured.Error())
	} else {
		go func() {
			var d ble.Device
			if RecoverToLog("connect", func() {
				d = connect(ctx, cfg, controlServer, cfg.MonitorInterval.Duration)
			}, log) {
				d = nil
			}
			connected <- d
			if d != nil {
				RecoverToLog("status monitor", func() {
					controlServer.Monitor(ctx, cfg.MonitorInterval.Duration)
				}, log)
			}
		}()
	}

	stopSignal := make(chan os.Signal, 1)
	signal.Notify(stopSignal, os.Interrupt, syscall.SIGHUP, syscall.SIGQUIT, syscall.SIGTERM)
	sig, ok := <-stopSignal
	sddaemon.SdNotify(false, sddaemon.SdNotifyStopping)
	cancel()
	controlServer.Stop()
	select {
	case device = <-connected:
	case <-time.After(cfg.Timeouts.Connect.Duration):
	}
	if device != nil {
		if err := device.Disconnect(); err != nil {
			log.Warning("disconnect failed:", err.Error())
		}
	}
	if ok {
		log.Notice("stopping with signal", sig)
	}
}
