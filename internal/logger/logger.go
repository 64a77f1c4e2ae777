package logger

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

var logFile *os.File

// Init configures the process-wide logger from the loaded configuration.
// Log lines go to the configured log file; if the file cannot be opened
// logging falls back to stderr.
func Init() error {
	level, err := logrus.ParseLevel(viper.GetString("log_level"))
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	path := viper.GetString("log_file")
	if path == "" {
		return nil
	}

	logFile, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return err
	}
	logrus.SetOutput(logFile)

	return nil
}

// RotateLog truncates the current log file and starts fresh
func RotateLog() error {
	if logFile != nil {
		logFile.Close() // Close the current log file before rotating
	}

	var err error
	logFile, err = os.OpenFile(viper.GetString("log_file"), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0666)
	if err != nil {
		return err
	}
	logrus.SetOutput(logFile)

	return nil
}

// Cleanup closes the log file when the application is done using it
func Cleanup() {
	if logFile != nil {
		logFile.Close()
	}
}
