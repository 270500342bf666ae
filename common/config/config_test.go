package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), CONFIG_FILENAME))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Adapter != "hci0" || cfg.Timeouts.Command.Duration != 5*time.Second {
		t.Fatal("defaults not applied", cfg)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), CONFIG_FILENAME)
	err := os.WriteFile(path, []byte(`
address = "AA:BB:CC:DD:EE:FF"
backend = "tinygo"
monitor_interval = "1m"

[timeouts]
command = "2s"
`), 0600)
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Address != "AA:BB:CC:DD:EE:FF" || cfg.Backend != BACKEND_TINYGO {
		t.Fatal("values not read", cfg)
	}
	if cfg.MonitorInterval.Duration != time.Minute || cfg.Timeouts.Command.Duration != 2*time.Second {
		t.Fatal("durations not read", cfg)
	}
	if cfg.Timeouts.Connect != DefaultTimeouts().Connect {
		t.Fatal("unset timeouts should keep defaults")
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), CONFIG_FILENAME)
	if err := os.WriteFile(path, []byte("adress = \"typo\"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "adress") {
		t.Fatal("expected unknown key error, got", err)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Backend = "bleak"
	if cfg.Validate() == nil {
		t.Fatal("unknown backend accepted")
	}
	cfg = Default()
	cfg.WriteUUID = "not-a-uuid"
	if cfg.Validate() == nil {
		t.Fatal("bad uuid accepted")
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), CONFIG_FILENAME)
	cfg := Default()
	cfg.Address = "11:22:33:44:55:66"
	cfg.Timeouts.QueryDelay = Duration{250 * time.Millisecond}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded != cfg {
		t.Fatal("config changed across save and load", loaded)
	}
}
