// Package log provides leveled line logging for all synchrosm components.
//
// Records carry their level as a [level] tag inside the message. A filter
// in front of the output drops records below the configured minimum level.
// Components accept an injected Logger and fall back to the process-wide
// DefaultLogger, which keeps the matching engine and the service clients
// free of hidden global state in tests.
package log

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"time"
)

// Logger is the sink interface components depend on.
type Logger interface {
	Println(v ...interface{})
	Printf(format string, v ...interface{})
}

var DefaultLogger *log.Logger
var defaultFilter *logFilter

type Level string

const (
	LDebug = Level("debug")
	LStep  = Level("step")
	LInfo  = Level("info")
	LWarn  = Level("warn")
	LError = Level("error")
	LFatal = Level("fatal")
)

func init() {
	defaultFilter = &logFilter{
		start:    time.Now(),
		writer:   os.Stderr,
		levels:   []Level{LDebug, LStep, LInfo, LWarn, LError, LFatal},
		minLevel: LStep,
	}
	defaultFilter.init()
	DefaultLogger = log.New(defaultFilter, "", 0)
}

type logFilter struct {
	start     time.Time
	writer    io.Writer
	badLevels map[Level]struct{}
	minLevel  Level
	levels    []Level
}

func (f *logFilter) SetMinLevel(lvl Level) {
	f.minLevel = lvl
	f.init()
}

func (f *logFilter) init() {
	badLevels := make(map[Level]struct{})
	for _, level := range f.levels {
		if level == f.minLevel {
			break
		}
		badLevels[level] = struct{}{}
	}
	f.badLevels = badLevels
}

func (f *logFilter) check(line []byte) bool {
	var level Level
	x := bytes.IndexByte(line, '[')
	if x >= 0 {
		y := bytes.IndexByte(line[x:], ']')
		if y >= 0 {
			level = Level(line[x+1 : x+y])
		}
	}

	_, ok := f.badLevels[level]
	return !ok
}

func (f *logFilter) Write(p []byte) (n int, err error) {
	if !f.check(p) {
		return 0, nil
	}
	// The Go log package always guarantees that we only
	// get a single line.
	b := bytes.Buffer{}
	now := time.Now()

	d := now.Sub(f.start)
	fmt.Fprintf(&b, "[%s] %d:%02d:%02d ",
		now.Format(time.RFC3339),
		int(d.Hours()),
		int(math.Mod(d.Minutes(), 60)),
		int(math.Mod(d.Seconds(), 60)),
	)
	b.Write(p)

	return f.writer.Write(b.Bytes())
}

// SetMinLevel changes the lowest level that is still written out.
func SetMinLevel(lvl Level) {
	defaultFilter.SetMinLevel(lvl)
}

// SetQuiet restricts output to warnings and errors.
func SetQuiet(quiet bool) {
	if quiet {
		SetMinLevel(LWarn)
	} else {
		SetMinLevel(LStep)
	}
}

func Println(v ...interface{}) {
	DefaultLogger.Println(v...)
}

func Printf(format string, v ...interface{}) {
	DefaultLogger.Printf(format, v...)
}

func Warnf(format string, v ...interface{}) {
	DefaultLogger.Printf("[warn] "+format, v...)
}

func Errorf(format string, v ...interface{}) {
	DefaultLogger.Printf("[error] "+format, v...)
}

func Fatal(v ...interface{}) {
	DefaultLogger.Fatal(v...)
}

func Fatalf(format string, v ...interface{}) {
	DefaultLogger.Fatalf(format, v...)
}

// Step logs the start of a named step and returns a func that logs
// its completion together with the elapsed time.
func Step(name string) func() {
	start := time.Now()
	Println("[step] Starting:", name)
	return func() {
		Printf("[step] Finished: %s in %s", name, time.Since(start))
	}
}
