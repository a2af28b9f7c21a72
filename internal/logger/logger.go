// Package logger builds the service's logrus logger.
package logger

import (
	"io"
	"os"

	"github.com/natefinch/lumberjack"
	"github.com/sirupsen/logrus"
)

const (
	defaultLevel = logrus.InfoLevel

	maxSizeMB  = 100
	maxBackups = 3
	maxAgeDays = 28
)

// New logs to stdout and, when filename is set, to a rotated file.
func New(filename, level string, production bool) *logrus.Logger {
	log := logrus.New()

	var out io.Writer = os.Stdout
	if filename != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   filename,
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			MaxAge:     maxAgeDays,
		})
	}
	log.SetOutput(out)

	if production {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			PadLevelText:    true,
			TimestampFormat: "01-02|15:04:05.000",
		})
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = defaultLevel
	}
	log.SetLevel(lvl)
	return log
}
