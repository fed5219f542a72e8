package logging

// Func is a function used by runtime components to emit a log line at the
// given level.
type Func func(level Level, format string, a ...interface{})

// None is a Func that discards everything. It's the default used by
// components that are not given an explicit logging.Func.
func None(Level, string, ...interface{}) {}
