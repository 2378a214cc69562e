package logger

import (
	"os"
	"path/filepath"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/mattn/go-isatty"
	logging "github.com/op/go-logging"
	"github.com/pkg/errors"
)

const (
	LOG_ROTATION_INTERVAL = 24 * time.Hour
	LOG_MAX_AGE           = 30 * 24 * time.Hour
	LOG_FORMAT            = "%{time:2006-01-02 15:04:05.000} [%{level:.4s}] %{module} %{message}"
	LOG_COLOR_FORMAT      = "%{color}%{time:2006-01-02 15:04:05.000} [%{level:.4s}]%{color:reset} %{module} %{message}"
)

func consoleFormat() string {
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		return LOG_COLOR_FORMAT
	}
	return LOG_FORMAT
}

// InitLog logs to stderr at levelString and, when filePath is set, to a file
// rotated daily. Table output may go to stdout, so logs stay off it.
func InitLog(filePath string, levelString string) error {
	level, err := logging.LogLevel(levelString)
	if err != nil {
		return err
	}

	console := logging.AddModuleLevel(
		logging.NewBackendFormatter(
			logging.NewLogBackend(os.Stderr, "", 0),
			logging.MustStringFormatter(consoleFormat()),
		),
	)
	console.SetLevel(level, "")
	if filePath == "" {
		logging.SetBackend(console)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return err
	}
	ioWriter, err := rotatelogs.New(
		filePath+".%Y-%m-%d",
		rotatelogs.WithLinkName(filePath),
		rotatelogs.WithMaxAge(LOG_MAX_AGE),
		rotatelogs.WithRotationTime(LOG_ROTATION_INTERVAL),
	)
	if err != nil {
		return errors.Wrapf(err, "log file %s", filePath)
	}
	file := logging.AddModuleLevel(
		logging.NewBackendFormatter(
			logging.NewLogBackend(ioWriter, "", 0),
			logging.MustStringFormatter(LOG_FORMAT),
		),
	)
	file.SetLevel(level, "")
	logging.SetBackend(console, file)
	return nil
}
