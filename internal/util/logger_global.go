package util

import (
	"os"
	"sync"
)

var (
	globalLogger *Logger
	loggerOnce   sync.Once
)

// InitLogger initializes the global logger instance. When debugToConsole is
// set, entries are mirrored to stderr in addition to the log file.
func InitLogger(logLevel, logFile string, debugToConsole bool) {
	loggerOnce.Do(func() {
		outputs := make([]Output, 0, 2)
		if debugToConsole {
			outputs = append(outputs, NewConsoleOutput(os.Stderr))
		}
		if logFile != "" {
			if fileOutput, err := NewFileOutput(logFile); err == nil {
				outputs = append(outputs, fileOutput)
			}
		}
		globalLogger = NewLogger(logLevel, outputs...)
	})
}

// LogDebug and friends are convenience wrappers around the global logger.
// They are safe to call before InitLogger; entries are dropped.
func LogDebug(msg string) {
	if globalLogger != nil {
		globalLogger.Debug(msg)
	}
}

func LogDebugf(format string, args ...interface{}) {
	if globalLogger != nil {
		globalLogger.Debugf(format, args...)
	}
}

func LogInfo(msg string) {
	if globalLogger != nil {
		globalLogger.Info(msg)
	}
}

func LogInfof(format string, args ...interface{}) {
	if globalLogger != nil {
		globalLogger.Infof(format, args...)
	}
}

func LogWarn(msg string) {
	if globalLogger != nil {
		globalLogger.Warn(msg)
	}
}

func LogWarnf(format string, args ...interface{}) {
	if globalLogger != nil {
		globalLogger.Warnf(format, args...)
	}
}

func LogError(msg string) {
	if globalLogger != nil {
		globalLogger.Error(msg)
	}
}

func LogErrorf(format string, args ...interface{}) {
	if globalLogger != nil {
		globalLogger.Errorf(format, args...)
	}
}
