package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/satori/go.uuid"
	"github.com/youtube/vitess/go/ioutil2"
)

const CONFIG_FILENAME = "config.toml"

const (
	BACKEND_BLUEZ  = "bluez"
	BACKEND_TINYGO = "tinygo"
)

//	Duration reads and writes TOML strings such as "5s" or "1m30s"
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) (err error) {
	d.Duration, err = time.ParseDuration(strings.TrimSpace(string(text)))
	return
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type Timeouts struct {
	//	BLE connection establishment, per attempt
	Connect Duration `toml:"connect"`
	//	default bound for one command round trip
	Command Duration `toml:"command"`
	//	pause between the queries of a status refresh
	QueryDelay Duration `toml:"query_delay"`
}

type Config struct {
	Address         string   `toml:"address"`
	Adapter         string   `toml:"adapter"`
	Backend         string   `toml:"backend"`
	ServiceUUID     string   `toml:"service_uuid"`
	NotifyUUID      string   `toml:"notify_uuid"`
	WriteUUID       string   `toml:"write_uuid"`
	ConnectAttempts int      `toml:"connect_attempts"`
	ForceDisconnect bool     `toml:"force_disconnect"`
	MonitorInterval Duration `toml:"monitor_interval"`
	LogLevel        string   `toml:"log_level"`
	LogSyslog       bool     `toml:"log_syslog"`
	Timeouts        Timeouts `toml:"timeouts"`
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		Connect:    Duration{15 * time.Second},
		Command:    Duration{5 * time.Second},
		QueryDelay: Duration{100 * time.Millisecond},
	}
}

func Default() Config {
	backend := BACKEND_TINYGO
	if runtime.GOOS == "linux" {
		backend = BACKEND_BLUEZ
	}
	return Config{
		Adapter:         "hci0",
		Backend:         backend,
		ServiceUUID:     "2141e110-213a-11e6-b67b-9e71128cae77",
		NotifyUUID:      "2141e111-213a-11e6-b67b-9e71128cae77",
		WriteUUID:       "2141e112-213a-11e6-b67b-9e71128cae77",
		ConnectAttempts: 3,
		MonitorInterval: Duration{30 * time.Second},
		LogLevel:        "NOTICE",
		Timeouts:        DefaultTimeouts(),
	}
}

//	Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (cfg Config, err error) {
	cfg = Default()
	md, err := toml.DecodeFile(path, &cfg)
	if errors.Is(err, os.ErrNotExist) {
		err = nil
		return
	}
	if err != nil {
		err = fmt.Errorf("reading %s: %w", path, err)
		return
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, key := range undecoded {
			keys[i] = key.String()
		}
		sort.Strings(keys)
		err = fmt.Errorf("%s: unknown keys %s", path, strings.Join(keys, ", "))
		return
	}
	err = cfg.Validate()
	return
}

func (cfg Config) Validate() (err error) {
	switch cfg.Backend {
	case BACKEND_BLUEZ, BACKEND_TINYGO:
	default:
		return fmt.Errorf("unknown backend %q, expected %s or %s", cfg.Backend, BACKEND_BLUEZ, BACKEND_TINYGO)
	}
	if _, _, _, err = cfg.UUIDs(); err != nil {
		return
	}
	if cfg.ConnectAttempts < 1 {
		return fmt.Errorf("connect_attempts must be at least 1")
	}
	if cfg.Timeouts.Command.Duration <= 0 || cfg.Timeouts.Connect.Duration <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	return
}

func (cfg Config) UUIDs() (service, notify, write uuid.UUID, err error) {
	if service, err = uuid.FromString(cfg.ServiceUUID); err != nil {
		err = fmt.Errorf("service_uuid: %w", err)
		return
	}
	if notify, err = uuid.FromString(cfg.NotifyUUID); err != nil {
		err = fmt.Errorf("notify_uuid: %w", err)
		return
	}
	if write, err = uuid.FromString(cfg.WriteUUID); err != nil {
		err = fmt.Errorf("write_uuid: %w", err)
		return
	}
	return
}

func Save(path string, cfg Config) (err error) {
	var buf bytes.Buffer
	if err = toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return
	}
	err = ioutil2.WriteFileAtomic(path, buf.Bytes(), 0600)
	return
}
