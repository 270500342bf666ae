package util

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/op/go-logging"
)

func TestRand128Base62(t *testing.T) {
	a, err := Rand128Base62()
	if err != nil {
		t.Fatal(err)
	}
	b, err := Rand128Base62()
	if err != nil {
		t.Fatal(err)
	}
	if a == "" || a == b {
		t.Fatal("expected distinct random strings")
	}
	if strings.ContainsAny(a, "/+=") {
		t.Fatal("not path safe", a)
	}
}

func TestRecoverToLog(t *testing.T) {
	ran := false
	panicked := RecoverToLog("boom task", func() {
		ran = true
		panic(errors.New("boom"))
	}, logging.MustGetLogger("test"))
	if !ran || !panicked {
		t.Fatal("panic not reported", ran, panicked)
	}
	if RecoverToLog("quiet task", func() {}, nil) {
		t.Fatal("no panic expected")
	}
}

func TestTrueBefore(t *testing.T) {
	start := time.Now()
	TrueBefore(t, func() bool { return time.Since(start) > 5*time.Millisecond }, time.Now().Add(time.Second))
}

func TestColorKeepsText(t *testing.T) {
	if !strings.Contains(Red("fail"), "fail") || !strings.Contains(Green("ok"), "ok") {
		t.Fatal("colored text lost")
	}
}
