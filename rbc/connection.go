// The MIT License (MIT)
//
// # Copyright (c) 2016 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package rbc

import (
	"sync"

	"github.com/pkg/errors"
)

// Connection is the write side of the per-peer link the host provides.
// Send is expected to be a non-blocking enqueue; a real blocking
// transport must be wrapped by the host so Feed and Broadcast never
// suspend.
type Connection interface {
	Send(msg []byte) error
}

// Sink is the output collaborator a delivered payload is handed to.
// Deliver is called at most once per round.
type Sink interface {
	Deliver(payload []byte)
}

// FuncSink adapts a plain function to Sink.
type FuncSink func(payload []byte)

// Deliver implements Sink.
func (f FuncSink) Deliver(payload []byte) { f(payload) }

// ErrEmpty is returned by MemoryConnection.Receive when the queue has
// nothing buffered.
var ErrEmpty = errors.New("rbc: connection queue is empty")

// MemoryConnection is an in-process FIFO link: Send enqueues, Receive
// dequeues. It implements Connection directly and gives the host a pull
// side for draining it - useful for loopback and for driving a simulated
// network to quiescence in tests.
type MemoryConnection struct {
	mu  sync.Mutex
	buf [][]byte
}

// NewMemoryConnection returns an empty queue.
func NewMemoryConnection() *MemoryConnection {
	return &MemoryConnection{}
}

// Send enqueues msg. It never blocks and never fails.
func (c *MemoryConnection) Send(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]byte, len(msg))
	copy(cp, msg)
	c.buf = append(c.buf, cp)
	return nil
}

// Receive dequeues the oldest buffered message, or ErrEmpty.
func (c *MemoryConnection) Receive() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.buf) == 0 {
		return nil, ErrEmpty
	}
	msg := c.buf[0]
	c.buf = c.buf[1:]
	return msg, nil
}

// Size reports how many messages are currently queued.
func (c *MemoryConnection) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buf)
}
