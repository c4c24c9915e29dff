package archiver

// Logger is the minimal diagnostic surface the engine writes to while
// walking a tree (spec.md §7: warnings on per-entry failures that
// don't abort the run, debug detail on the tree-matching decisions the
// Parent Cursor makes). Callers wire this to whatever structured
// logger the rest of the program uses; NopLogger is the zero-dependency
// default for tests and library use.
type Logger interface {
	Debugf(format string, args ...any)
	Warnf(format string, args ...any)
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debugf(format string, args ...any) {}
func (NopLogger) Warnf(format string, args ...any)  {}
