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

// Package transport wires kcp-go, smux, snappy and pbkdf2 into a
// reliable-ordered Connection for package rbc: one KCP session per peer,
// multiplexed by smux into one stream per (sender, topic) Instance.
package transport

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/pkg/errors"
	kcp "github.com/xtaci/kcp-go/v5"
	"github.com/xtaci/smux"

	"github.com/conclave-net/rbc/generic"
)

// lengthPrefix is the framing width Link imposes on top of smux's byte
// stream, since wire.Message.Encode output has no self-delimiting
// trailer and smux streams do not preserve write boundaries.
const lengthPrefix = 4

// Link is one KCP+smux session to a single remote peer. It satisfies
// generic.Mux over smux.Session, and opens one smux stream per topic the
// first time TopicConnection is called for that topic.
type Link struct {
	sess *smux.Session
	cfg  Config

	mu      sync.Mutex
	streams map[string]*topicStream
}

type topicStream struct {
	stream *smux.Stream
	bw     *bufio.Writer // wraps the stream directly, or through compStream
}

func newLink(sess *smux.Session, cfg Config) *Link {
	return &Link{sess: sess, cfg: cfg, streams: make(map[string]*topicStream)}
}

// Open implements generic.Mux.
func (l *Link) Open() (generic.Stream, error) {
	s, err := l.sess.OpenStream()
	if err != nil {
		return nil, errors.Wrap(err, "transport: open stream")
	}
	return l.wrap(s), nil
}

// Accept implements generic.Mux.
func (l *Link) Accept() (generic.Stream, error) {
	s, err := l.sess.AcceptStream()
	if err != nil {
		return nil, errors.Wrap(err, "transport: accept stream")
	}
	return l.wrap(s), nil
}

func (l *Link) wrap(s *smux.Stream) generic.Stream {
	if l.cfg.NoComp {
		return &streamConn{ReadWriteCloser: s, id: int(s.ID()), remoteAddr: s.RemoteAddr()}
	}
	return &streamConn{ReadWriteCloser: newCompStream(s), id: int(s.ID()), remoteAddr: s.RemoteAddr()}
}

// IsClosed implements generic.Mux.
func (l *Link) IsClosed() bool { return l.sess.IsClosed() }

// NumStreams implements generic.Mux.
func (l *Link) NumStreams() int { return l.sess.NumStreams() }

// RemoteAddr implements generic.Mux.
func (l *Link) RemoteAddr() net.Addr { return l.sess.RemoteAddr() }

// Close implements generic.Mux.
func (l *Link) Close() error { return l.sess.Close() }

// AcceptTopicStream accepts the next smux stream opened by the remote
// peer and returns a bufio.Reader over it (through compStream when
// compression is enabled), ready for ReadTopicFrame followed by a loop
// of ReadMessageFrame.
func (l *Link) AcceptTopicStream() (*bufio.Reader, error) {
	s, err := l.sess.AcceptStream()
	if err != nil {
		return nil, errors.Wrap(err, "transport: accept topic stream")
	}
	if l.cfg.NoComp {
		return bufio.NewReader(s), nil
	}
	return bufio.NewReader(newCompStream(s)), nil
}

// TopicConnection returns an rbc.Connection (the Send-only half of one
// (sender, topic) link). The first call for a topic opens the underlying
// smux stream and writes its header; later calls for the same topic reuse
// that stream. The topic string is sent once as a
// length-prefixed header so the accepting side can route the stream to
// the right rbc.Instance.
func (l *Link) TopicConnection(topic string) (*TopicConnection, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ts, ok := l.streams[topic]
	if !ok {
		s, err := l.sess.OpenStream()
		if err != nil {
			return nil, errors.Wrapf(err, "transport: open stream for topic %q", topic)
		}
		var w io.Writer = s
		if !l.cfg.NoComp {
			w = newCompStream(s)
		}
		ts = &topicStream{stream: s, bw: bufio.NewWriter(w)}
		if err := writeTopicHeader(ts.bw, topic); err != nil {
			return nil, err
		}
		l.streams[topic] = ts
	}
	return &TopicConnection{ts: ts}, nil
}

func writeTopicHeader(w *bufio.Writer, topic string) error {
	var hdr [2]byte
	binary.BigEndian.PutUint16(hdr[:], uint16(len(topic)))
	if _, err := w.Write(hdr[:]); err != nil {
		return errors.Wrap(err, "transport: write topic header")
	}
	if _, err := w.WriteString(topic); err != nil {
		return errors.Wrap(err, "transport: write topic name")
	}
	return w.Flush()
}

// TopicConnection implements rbc.Connection over one Link stream.
type TopicConnection struct {
	ts *topicStream
}

// Send implements rbc.Connection: it writes msg length-prefixed and
// flushes immediately, since RBC messages are small and latency-
// sensitive relative to smux's default buffering.
func (c *TopicConnection) Send(msg []byte) error {
	var hdr [lengthPrefix]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(msg)))
	if _, err := c.ts.bw.Write(hdr[:]); err != nil {
		return errors.Wrap(err, "transport: write length prefix")
	}
	if _, err := c.ts.bw.Write(msg); err != nil {
		return errors.Wrap(err, "transport: write message body")
	}
	return errors.Wrap(c.ts.bw.Flush(), "transport: flush message")
}

// ReadTopicFrame reads one topic header off a freshly accepted stream,
// for the listening side to learn which (sender, topic) Instance a new
// stream belongs to before handing it off to a reader loop.
func ReadTopicFrame(r *bufio.Reader) (string, error) {
	var hdr [2]byte
	if _, err := ioReadFull(r, hdr[:]); err != nil {
		return "", errors.Wrap(err, "transport: read topic header")
	}
	n := binary.BigEndian.Uint16(hdr[:])
	buf := make([]byte, n)
	if _, err := ioReadFull(r, buf); err != nil {
		return "", errors.Wrap(err, "transport: read topic name")
	}
	return string(buf), nil
}

// ReadMessageFrame reads one length-prefixed wire.Message payload off a
// stream reader, for a host's per-stream read loop to hand to
// rbc.Instance.Feed.
func ReadMessageFrame(r *bufio.Reader) ([]byte, error) {
	var hdr [lengthPrefix]byte
	if _, err := ioReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > 64<<20 {
		return nil, fmt.Errorf("transport: message frame of %d bytes exceeds sanity limit", n)
	}
	buf := make([]byte, n)
	if _, err := ioReadFull(r, buf); err != nil {
		return nil, errors.Wrap(err, "transport: read message body")
	}
	return buf, nil
}

func ioReadFull(r *bufio.Reader, buf []byte) (int, error) {
	read := 0
	for read < len(buf) {
		n, err := r.Read(buf[read:])
		read += n
		if err != nil {
			return read, err
		}
	}
	return read, nil
}

// dialSession opens one KCP session and negotiates it into a client-side
// smux.Session, applying Config's window, mode, and crypt settings.
func dialSession(addr string, cfg Config) (*smux.Session, string, error) {
	block, cipherName := selectBlockCrypt(cfg.Crypt, cfg.Key)
	conn, err := kcp.DialWithOptions(addr, block, 0, 0)
	if err != nil {
		return nil, "", errors.Wrapf(err, "transport: dial %s", addr)
	}
	conn.SetStreamMode(true)
	conn.SetWindowSize(cfg.SndWnd, cfg.RcvWnd)
	conn.SetNoDelay(cfg.NoDelay, cfg.Interval, cfg.Resend, cfg.NoCongestion)
	conn.SetMtu(cfg.MTU)

	smuxCfg, err := buildSmuxConfig(cfg)
	if err != nil {
		return nil, "", errors.Wrap(err, "transport: build smux config")
	}
	sess, err := smux.Client(conn, smuxCfg)
	if err != nil {
		return nil, "", errors.Wrap(err, "transport: negotiate smux client session")
	}
	return sess, cipherName, nil
}

// Dial opens a Link to a single remote peer.
func Dial(addr string, cfg Config) (*Link, error) {
	sess, _, err := dialSession(addr, cfg)
	if err != nil {
		return nil, err
	}
	return newLink(sess, cfg), nil
}

// Listener accepts inbound KCP sessions and negotiates each into a Link.
type Listener struct {
	kl  *kcp.Listener
	cfg Config
}

// Listen opens a KCP listener on cfg.Listen.
func Listen(cfg Config) (*Listener, error) {
	block, _ := selectBlockCrypt(cfg.Crypt, cfg.Key)
	kl, err := kcp.ListenWithOptions(cfg.Listen, block, 0, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "transport: listen on %s", cfg.Listen)
	}
	return &Listener{kl: kl, cfg: cfg}, nil
}

// Accept blocks for the next inbound peer session and negotiates it into
// a Link as the smux server side.
func (l *Listener) Accept() (*Link, error) {
	conn, err := l.kl.AcceptKCP()
	if err != nil {
		return nil, errors.Wrap(err, "transport: accept kcp session")
	}
	conn.SetStreamMode(true)
	conn.SetWindowSize(l.cfg.SndWnd, l.cfg.RcvWnd)
	conn.SetNoDelay(l.cfg.NoDelay, l.cfg.Interval, l.cfg.Resend, l.cfg.NoCongestion)

	smuxCfg, err := buildSmuxConfig(l.cfg)
	if err != nil {
		return nil, errors.Wrap(err, "transport: build smux config")
	}
	sess, err := smux.Server(conn, smuxCfg)
	if err != nil {
		return nil, errors.Wrap(err, "transport: negotiate smux server session")
	}
	return newLink(sess, l.cfg), nil
}

// Close stops accepting new sessions.
func (l *Listener) Close() error { return l.kl.Close() }

// Addr reports the listener's bound address.
func (l *Listener) Addr() net.Addr { return l.kl.Addr() }
