package isochrone

import (
	"context"
	"errors"
	"net"
)

var (
	// ErrTimeout marks a provider that did not answer in time or could not be reached.
	ErrTimeout = errors.New("isochrone: upstream timeout")
	// ErrUpstream marks a malformed or failed provider response.
	ErrUpstream = errors.New("isochrone: upstream error")
)

// IsTimeout reports whether err belongs to the timeout class, which covers
// deadlines and connection failures.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	var oerr *net.OpError
	return errors.As(err, &oerr) && oerr.Op == "dial"
}
