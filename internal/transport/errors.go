package transport

import "fmt"

// TransportError is a network or HTTP failure talking to the service.
type TransportError struct {
	Op     string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: http %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Rejection is a well-formed response with success set to false.
type Rejection struct {
	Op      string
	Message string
}

func (e *Rejection) Error() string {
	if e.Message == "" {
		return e.Op + ": rejected by server"
	}
	return e.Op + ": " + e.Message
}
