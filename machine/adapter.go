package machine

import (
	"context"
	"io"
)

// An Adapter represents the minimal CNC controller interface.
type Adapter interface {
	// Poll returns the latest controller status.
	Poll(ctx context.Context) (Status, error)

	// ReadFrom sends every line from the reader and returns after
	// the controller has acknowledged all of them.
	ReadFrom(io.Reader) (int64, error)
}
