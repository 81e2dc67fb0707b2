package ingest

import "errors"

// Sentinel errors for typed error checking. All of them are translation
// failures: the whole batch aborts and the raw payload is dead-lettered.
var (
	ErrUnrecognizedLogType = errors.New("unrecognized log type")
	ErrNoCurrentExecution  = errors.New("event arrived before any execution event")
	ErrRunIndexOutOfRange  = errors.New("run index out of range")
	ErrNoInstanceContext   = errors.New("no instance to attach notification to")
	ErrMalformedFilename   = errors.New("malformed filename")
)
