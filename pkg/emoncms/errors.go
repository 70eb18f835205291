package emoncms

import "fmt"

// TransportError is a network- or HTTP-level failure: the request never
// produced a usable response. These are the retryable kind.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("emoncms %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RemoteError is a logical failure the source reported inside an
// otherwise successful response, or a response body the source produced
// that cannot be decoded. Retrying the same request will fail the same
// way.
type RemoteError struct {
	Op      string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("emoncms %s: remote failure: %s", e.Op, e.Message)
}
