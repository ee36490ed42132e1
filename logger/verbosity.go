package logger

import "go.uber.org/zap/zapcore"

// Verbosity level constants for CLI flag counts.
const (
	VerbosityUser  = 0 // No flags: results and errors only
	VerbosityInfo  = 1 // -v: + per-job progress
	VerbosityDebug = 2 // -vv: + lock and store details
)

// VerbosityToLevel maps verbosity flags (-v, -vv) to zap log levels
//
// Mapping:
//
//	0 (none)  -> WarnLevel
//	1 (-v)    -> InfoLevel
//	2+ (-vv)  -> DebugLevel
func VerbosityToLevel(verbosity int) zapcore.Level {
	switch {
	case verbosity <= VerbosityUser:
		return zapcore.WarnLevel
	case verbosity == VerbosityInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

// ParseLevel maps a config string ("debug", "info", "warn", "error") to a
// verbosity count. Unknown values fall back to info.
func ParseLevel(s string) int {
	lvl, err := zapcore.ParseLevel(s)
	if err != nil {
		return VerbosityInfo
	}
	switch {
	case lvl <= zapcore.DebugLevel:
		return VerbosityDebug
	case lvl == zapcore.InfoLevel:
		return VerbosityInfo
	default:
		return VerbosityUser
	}
}
