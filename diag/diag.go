// Package diag formats a fatal condition's call stack for the UART
// console: symbol resolution and Itanium demangling via runtime.Callers,
// generalizing the teacher's Callerdump into a structured Frame slice.
package diag

import (
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/ianlancetaylor/demangle"
)

/// Frame is one resolved stack entry.
type Frame struct {
	Function string
	File     string
	Line     int
}

/// Backtrace walks runtime.Callers starting skip frames up from its own
/// caller, demangling any Itanium-mangled function name it encounters
/// (present only for cgo/C++ symbols reachable from host tooling; kernel
/// Go symbols fail demangle.ToString and are kept unchanged).
func Backtrace(skip int) []Frame {
	pcs := make([]uintptr, 64)
	n := runtime.Callers(skip+2, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	var out []Frame
	for {
		fr, more := frames.Next()
		out = append(out, Frame{
			Function: demangleName(fr.Function),
			File:     fr.File,
			Line:     fr.Line,
		})
		if !more || strings.HasSuffix(fr.Function, "goexit") {
			break
		}
	}
	return out
}

func demangleName(name string) string {
	if d, err := demangle.ToString(name, demangle.NoParams); err == nil {
		return d
	}
	return name
}

/// Write renders frames as the teacher's tab-nested "<-file:line" chain.
func Write(w io.Writer, frames []Frame) {
	var b strings.Builder
	for i, f := range frames {
		if i == 0 {
			fmt.Fprintf(&b, "%s (%s:%d)\n", f.Function, f.File, f.Line)
		} else {
			fmt.Fprintf(&b, "\t<-%s (%s:%d)\n", f.Function, f.File, f.Line)
		}
	}
	io.WriteString(w, b.String())
}

/// InstallPanicHandler sets w as the writer LogPanic logs to. It installs
/// no handler by itself: a panic is logged only where LogPanic is
/// deferred. Per base spec §7, LogPanic never swallows a panic: it logs,
/// then re-panics, since a panic here is an architectural invariant
/// violation, not a condition to paper over.
func InstallPanicHandler(w io.Writer) {
	logWriter = w
}

var logWriter io.Writer = discard{}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

/// LogPanic is deferred by boot.Init's caller (or any top-level entry
/// point) as `defer diag.LogPanic()`; it must be paired with a bare
/// `panic(r)` re-raise, never a swallowed recover.
func LogPanic() {
	if r := recover(); r != nil {
		fmt.Fprintf(logWriter, "panic: %v\n", r)
		Write(logWriter, Backtrace(1))
		panic(r)
	}
}
