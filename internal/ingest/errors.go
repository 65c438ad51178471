package ingest

import (
	"fmt"
	"strings"
)

// MissingHostNameError is returned when a heartbeat carries none of the
// accepted host-name fields. ReceivedFields lists what the payload did carry.
type MissingHostNameError struct {
	ReceivedFields []string
}

func (e *MissingHostNameError) Error() string {
	return fmt.Sprintf("no host name field in payload (received: %s)",
		strings.Join(e.ReceivedFields, ", "))
}

// ValidationError collects per-field problems with a backup report.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, field+": "+msg)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
