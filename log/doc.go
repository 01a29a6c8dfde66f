// Package log provides a small leveled logging interface shared by every
// component of the kernel: the link-graph backend's phase recorder, the
// reactor, the file watcher, and the kernel itself all take a
// log.Logger rather than reaching for a package-level default.
//
// Two implementations ship here: DefaultLogger wraps the standard
// library's log.Logger, and GologLogger wraps github.com/kataras/golog
// for callers who want structured/colored output. Both honor the same
// four-level filter (Debug/Info/Warn/Error, or None to disable).
//
// The package-level SetDefaultLogger/GetDefaultLogger pair exists for the
// one process-wide default used by components that are not explicitly
// wired with a logger; everything else should take one as a constructor
// argument.
package log
