package config

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

type LoggerResult struct {
	Logger *logrus.Logger
	file   *os.File
}

// Close releases the log file, if one was opened.
func (r *LoggerResult) Close() error {
	if r.file == nil {
		return nil
	}
	return r.file.Close()
}

func InitLogger(isDebug bool, logFile string) (*LoggerResult, error) {
	logger := logrus.New()

	// Console formatter (colorized)
	consoleFormatter := &logrus.TextFormatter{
		FullTimestamp: true,
		ForceColors:   true,
	}
	logger.SetFormatter(consoleFormatter)

	result := &LoggerResult{Logger: logger}

	if logFile == "" {
		logger.SetOutput(os.Stdout)
	} else if file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666); err != nil {
		// fallback to console only
		logger.SetOutput(os.Stdout)
		logger.WithError(err).Warn("⚠️ Failed to open log file, logging to console only")
	} else {
		logger.SetOutput(io.MultiWriter(os.Stdout, file))
		result.file = file
	}

	if isDebug {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	return result, nil
}
