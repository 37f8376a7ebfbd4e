package http

import (
	"context"
	"errors"
	"net"
	"os"
)

// IsTimeout reports whether err was caused by a request or read deadline
// expiring.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
