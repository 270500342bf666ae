package log

import (
	"os"
	"testing"

	"github.com/op/go-logging"
)

func TestParseLevel(t *testing.T) {
	if ParseLevel("DEBUG", logging.INFO) != logging.DEBUG {
		t.Fatal("DEBUG not parsed")
	}
	if ParseLevel("bogus", logging.WARNING) != logging.WARNING {
		t.Fatal("unknown level should fall back to default")
	}
}

func TestLevelFromEnv(t *testing.T) {
	os.Setenv(LOG_LEVEL_ENV, "ERROR")
	defer os.Unsetenv(LOG_LEVEL_ENV)
	if LevelFromEnv(logging.INFO) != logging.ERROR {
		t.Fatal("env override ignored")
	}
	if SetupLogging("test", logging.INFO, false) == nil {
		t.Fatal("nil logger")
	}
}
