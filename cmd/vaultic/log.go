package main

import "log"

// stdLogger adapts the standard library logger to archiver.Logger and
// source.Logger. Debug output is gated behind --verbose so a normal
// run only prints warnings.
type stdLogger struct {
	verbose bool
}

func (l stdLogger) Debugf(format string, args ...any) {
	if l.verbose {
		log.Printf("debug: "+format, args...)
	}
}

func (l stdLogger) Warnf(format string, args ...any) {
	log.Printf("warning: "+format, args...)
}
