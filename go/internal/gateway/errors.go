package gateway

import "fmt"

// ProtocolError ends the connection. Reason is shown to the client.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

func protocolError(reason string, err error) error {
	return &ProtocolError{Reason: reason, Err: err}
}
