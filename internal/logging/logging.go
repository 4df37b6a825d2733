package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarning
	LevelError
)

var current atomic.Int32

func init() {
	current.Store(int32(LevelInfo))
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarning:
		return "WARNING"
	case LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug, nil
	case "", "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarning, nil
	case "ERROR":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

func SetLevel(l Level) {
	current.Store(int32(l))
}

func Enabled(l Level) bool {
	return l >= Level(current.Load())
}

// Setup points the standard logger at stdout and, when file is set, a rotating log file.
// The returned closer flushes the file.
func Setup(level, file string) (io.Closer, error) {
	l, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	SetLevel(l)

	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	if file == "" {
		log.SetOutput(os.Stdout)
		return nopCloser{}, nil
	}

	rotating := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    10, // megabytes
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stdout, rotating))
	return rotating, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func Debugf(format string, args ...interface{}) {
	logf(LevelDebug, format, args...)
}

func Infof(format string, args ...interface{}) {
	logf(LevelInfo, format, args...)
}

func Warnf(format string, args ...interface{}) {
	logf(LevelWarning, format, args...)
}

func Errorf(format string, args ...interface{}) {
	logf(LevelError, format, args...)
}

func logf(l Level, format string, args ...interface{}) {
	if !Enabled(l) {
		return
	}
	log.Output(3, l.String()+" "+fmt.Sprintf(format, args...))
}
