package dynamixel

import (
	"io"
	"time"
)

// Transport is the byte-level connection a Bus drives. Implementations live
// in the transports package.
type Transport interface {
	io.ReadWriteCloser

	// SetReadTimeout bounds how long a single Read may block.
	SetReadTimeout(t time.Duration) error

	// Flush discards any unread input.
	Flush() error
}
