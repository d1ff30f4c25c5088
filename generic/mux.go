// Package generic declares the stream-multiplexing abstraction transport
// links are built against, so transport.Link's wiring (smux today) isn't
// baked into the rest of the module.
package generic

import (
	"io"
	"net"
)

// Mux is one multiplexed session between two peers: Open starts a new
// logical stream on it, Accept receives one the far side opened.
type Mux interface {
	Open() (Stream, error)
	Accept() (Stream, error)
	IsClosed() bool
	NumStreams() int
	RemoteAddr() net.Addr
	Close() error
}

// Stream is one logical, independently-flow-controlled byte stream
// carried over a Mux - one (sender, topic) RBC link, in transport's use.
type Stream interface {
	io.ReadWriteCloser
	ID() int
	RemoteAddr() net.Addr
}
