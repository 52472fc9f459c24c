package events

import (
	"context"
	"errors"
	"net"

	mssqldb "github.com/denisenkom/go-mssqldb"
)

// ErrorClass groups failures so downstream consumers and retry policy can
// react without parsing message text.
type ErrorClass string

const (
	ClassConfig     ErrorClass = "config"     // invalid block or connection config
	ClassConnection ErrorClass = "connection" // network / login / pool failures
	ClassSQL        ErrorClass = "sql"        // server rejected the statement
	ClassCanceled   ErrorClass = "canceled"   // context canceled or deadline hit
	ClassInternal   ErrorClass = "internal"   // everything else
)

// ConfigError marks validation failures so Classify can pick them out of a
// wrapped chain.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string { return e.Err.Error() }
func (e *ConfigError) Unwrap() error { return e.Err }

// Classify maps an error to its class and, for server errors, the SQL Server
// error number.
func Classify(err error) (ErrorClass, int32) {
	if err == nil {
		return "", 0
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ClassCanceled, 0
	}
	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) {
		return ClassConfig, 0
	}
	var sqlErr mssqldb.Error
	if errors.As(err, &sqlErr) {
		// 18456 = login failed, 4060 = cannot open database: connection-level
		// problems even though they arrive as server errors.
		switch sqlErr.SQLErrorNumber() {
		case 18456, 4060, 233:
			return ClassConnection, sqlErr.SQLErrorNumber()
		}
		return ClassSQL, sqlErr.SQLErrorNumber()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassConnection, 0
	}
	return ClassInternal, 0
}

// NewErrorEvent wraps a failure into an error event for the given block.
func NewErrorEvent(block, run string, err error) (*Event, error) {
	class, number := Classify(err)
	return New(KindError, block, run, ErrorPayload{
		Class:   string(class),
		Message: err.Error(),
		Number:  number,
	})
}
