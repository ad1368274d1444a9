package app

import (
	"fmt"
	"runtime/debug"
	"strings"
)

// logPanic writes a panic and its stack through the HAL logger before
// letting it propagate. On hardware the logger is the only place a crash
// leaves a trace.
func (a *App) logPanic() {
	v := recover()
	if v == nil {
		return
	}

	l := a.h.Logger()
	if l != nil {
		l.WriteLineString(fmt.Sprintf("panic: %v", v))
		for _, line := range strings.Split(string(debug.Stack()), "\n") {
			if line != "" {
				l.WriteLineString(line)
			}
		}
	}
	panic(v)
}
