package blink

import "github.com/ardnew/softusb/pkg"

// Level is a digital output level.
type Level uint8

// Output levels.
const (
	Low Level = iota
	High
)

// String returns "low" or "high".
func (l Level) String() string {
	if l == High {
		return "high"
	}
	return "low"
}

// Pin is a digital output.
type Pin interface {
	Set(level Level)
}

// LogPin is a Pin for hosted builds that logs every transition.
type LogPin struct {
	name  string
	level Level
	set   bool
}

// NewLogPin returns a LogPin identified by name in log output.
func NewLogPin(name string) *LogPin {
	return &LogPin{name: name}
}

// Set drives the pin and logs the change.
func (p *LogPin) Set(level Level) {
	if p.set && p.level == level {
		return
	}
	p.level, p.set = level, true
	pkg.LogInfo(pkg.ComponentApp, "pin", "pin", p.name, "level", level)
}

// Level returns the last level driven.
func (p *LogPin) Level() Level { return p.level }
