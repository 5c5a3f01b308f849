package util

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a leveled logger.  Messages are formatted the way the
// fmt.Print family does and handed to a zap core.
type Logger struct {
	logLevel int
	atom     zap.AtomicLevel
	sugar    *zap.SugaredLogger
	lock     sync.Mutex
}

const (
	// error levels that should almost always be printed
	LevelFatal = iota // error that must stop the program
	LevelError        // error that does not need to stop execution

	// debugging levels, okay to disable
	LevelWarn // something may be wrong, but not necessarily an error
	LevelInfo // nothing wrong, informational only

	// Production code by default only shows warnings and above.
	LogLevelDefault = LevelWarn

	// min, max levels for setting print level
	levelMin = LevelFatal
	levelMax = LevelInfo
)

var levelToZap = []zapcore.Level{
	zapcore.FatalLevel,
	zapcore.ErrorLevel,
	zapcore.WarnLevel,
	zapcore.InfoLevel,
}

// NewLogger returns a logger writing console-encoded lines to stderr.
func NewLogger(name string) *Logger {
	atom := zap.NewAtomicLevelAt(levelToZap[LogLevelDefault])
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.Lock(os.Stderr),
		atom)
	return &Logger{
		logLevel: LogLevelDefault,
		atom:     atom,
		sugar:    zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Named(name).Sugar(),
	}
}

// SetZapLogger replaces the destination of the logger.  The logger's own level
// still filters messages before they reach l.
func (l *Logger) SetZapLogger(zl *zap.Logger) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.sugar = zl.WithOptions(zap.AddCallerSkip(1)).Sugar()
}

func (l *Logger) LogLevel() int {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.logLevel
}

// SetLogLevel returns the old level
func (l *Logger) SetLogLevel(level int) int {
	if level < levelMin || level > levelMax {
		panic("trying to set invalid log level")
	}
	l.lock.Lock()
	defer l.lock.Unlock()
	old := l.logLevel
	l.logLevel = level
	l.atom.SetLevel(levelToZap[level])
	return old
}

func (l *Logger) enabled(level int) (*zap.SugaredLogger, bool) {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.sugar, level <= l.logLevel
}

func (l *Logger) output(level int, s string) {
	sugar, ok := l.enabled(level)
	if !ok {
		return
	}
	switch level {
	case LevelFatal:
		sugar.Fatal(s)
	case LevelError:
		sugar.Error(s)
	case LevelWarn:
		sugar.Warn(s)
	default:
		sugar.Info(s)
	}
}

func (l *Logger) Info(v ...any)                 { l.output(LevelInfo, sprintln(v...)) }
func (l *Logger) Infof(format string, v ...any) { l.output(LevelInfo, fmt.Sprintf(format, v...)) }

func (l *Logger) Warn(v ...any)                 { l.output(LevelWarn, sprintln(v...)) }
func (l *Logger) Warnf(format string, v ...any) { l.output(LevelWarn, fmt.Sprintf(format, v...)) }

func (l *Logger) Error(v ...any)                 { l.output(LevelError, sprintln(v...)) }
func (l *Logger) Errorf(format string, v ...any) { l.output(LevelError, fmt.Sprintf(format, v...)) }

func (l *Logger) Fatal(v ...any)                 { l.output(LevelFatal, sprintln(v...)) }
func (l *Logger) Fatalf(format string, v ...any) { l.output(LevelFatal, fmt.Sprintf(format, v...)) }

// sprintln is fmt.Sprintln without the trailing newline, which zap adds itself.
func sprintln(v ...any) string {
	s := fmt.Sprintln(v...)
	return s[:len(s)-1]
}
