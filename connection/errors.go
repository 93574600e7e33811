package connection

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectionClosed is returned for calls that cannot complete because the
	// connection terminated. The cause is wrapped alongside.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrObjectDisposed is returned when a remote object was disposed by the driver.
	ErrObjectDisposed = errors.New("object disposed")
)

// DesyncError reports a protocol desynchronization between client and driver.
// It always terminates the connection.
type DesyncError struct {
	Reason string
	GUID   string
	ID     int
	Err    error
}

func (e *DesyncError) Error() string {
	msg := "protocol desync: " + e.Reason
	if e.GUID != "" {
		msg += fmt.Sprintf(" (guid %q)", e.GUID)
	}
	if e.ID != 0 {
		msg += fmt.Sprintf(" (id %d)", e.ID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DesyncError) Unwrap() error {
	return e.Err
}
