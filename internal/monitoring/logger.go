package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

var debug bool

// SetDebug enables or disables debug logging. Off by default.
func SetDebug(on bool) { debug = on }

// Debugf logs through Logf only when debug logging is enabled. Hot paths
// (per-frame session work) use this so production logs stay quiet.
func Debugf(format string, v ...interface{}) {
	if debug {
		Logf("[debug] "+format, v...)
	}
}
