package log

import (
	"os"

	"github.com/op/go-logging"
)

var Log = logging.MustGetLogger("")
var syslogFormat = logging.MustStringFormatter(
	`%{time:15:04:05.000} %{level:.6s} ▶ %{message}`,
)
var stderrFormat = logging.MustStringFormatter(
	`%{color}%{time:15:04:05.000} kadoma ▶ %{message}%{color:reset}`,
)

const LOG_LEVEL_ENV = "KADOMA_LOG_LEVEL"

func SetupLogging(prefix string, defaultLogLevel logging.Level, trySyslog bool) *logging.Logger {
	var backend logging.Backend
	if trySyslog {
		backend = getSyslogBackend(prefix)
	}
	if backend == nil {
		backend = logging.NewLogBackend(os.Stderr, prefix, 0)
		logging.SetFormatter(stderrFormat)
	}
	leveled := logging.AddModuleLevel(backend)
	leveled.SetLevel(LevelFromEnv(defaultLogLevel), prefix)
	leveled.SetLevel(LevelFromEnv(defaultLogLevel), "")

	logging.SetBackend(leveled)
	return Log
}

//	LevelFromEnv reads KADOMA_LOG_LEVEL, falling back to defaultLogLevel.
func LevelFromEnv(defaultLogLevel logging.Level) logging.Level {
	return ParseLevel(os.Getenv(LOG_LEVEL_ENV), defaultLogLevel)
}

func ParseLevel(name string, defaultLogLevel logging.Level) logging.Level {
	switch name {
	case "CRITICAL":
		return logging.CRITICAL
	case "ERROR":
		return logging.ERROR
	case "WARNING":
		return logging.WARNING
	case "NOTICE":
		return logging.NOTICE
	case "INFO":
		return logging.INFO
	case "DEBUG":
		return logging.DEBUG
	}
	return defaultLogLevel
}
