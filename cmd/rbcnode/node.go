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

package main

import (
	"bufio"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/conclave-net/rbc/rbc"
	"github.com/conclave-net/rbc/transport"
)

// node wires one rbcnode process: it owns one outbound transport.Link
// per remote peer, one rbc.Instance per topic it has joined, and a
// listener goroutine that routes inbound frames by (sender, topic).
type node struct {
	cfg Config

	mu        sync.Mutex
	outbound  map[string]*transport.Link // peer name -> dialed link
	instances map[string]*rbc.Instance[string]
}

func newNode(cfg Config) *node {
	return &node{
		cfg:       cfg,
		outbound:  make(map[string]*transport.Link),
		instances: make(map[string]*rbc.Instance[string]),
	}
}

// dialPeers opens an outbound Link to every configured peer but self.
func (n *node) dialPeers() error {
	for name, addr := range n.cfg.Peers {
		if name == n.cfg.Self {
			continue
		}
		link, err := transport.Dial(addr, n.cfg.Config)
		if err != nil {
			return errors.Wrapf(err, "rbcnode: dial peer %s at %s", name, addr)
		}
		n.outbound[name] = link
	}
	return nil
}

// joinTopic builds an rbc.Instance for topic, wiring a Connection per
// peer: the node's own outbound Link for remote peers, and a direct
// loopback for self.
func (n *node) joinTopic(topic string, sink rbc.Sink) (*rbc.Instance[string], error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if inst, ok := n.instances[topic]; ok {
		return inst, nil
	}

	conns := make(map[string]rbc.Connection, len(n.cfg.Peers))
	for name := range n.cfg.Peers {
		if name == n.cfg.Self {
			conns[name] = loopbackConnection{node: n, topic: topic}
			continue
		}
		link, ok := n.outbound[name]
		if !ok {
			return nil, fmt.Errorf("rbcnode: no outbound link to peer %s", name)
		}
		tc, err := link.TopicConnection(routingKey(n.cfg.Self, topic))
		if err != nil {
			return nil, errors.Wrapf(err, "rbcnode: open topic connection to %s", name)
		}
		conns[name] = tc
	}

	inst, err := rbc.New(n.cfg.Self, conns, rbc.DefaultHash, sink)
	if err != nil {
		return nil, errors.Wrap(err, "rbcnode: construct instance")
	}
	n.instances[topic] = inst
	return inst, nil
}

// routingKey is the string carried in a topic stream's header: it lets
// the accepting side recover both who sent it and which topic/Instance
// it belongs to from one length-prefixed frame.
func routingKey(sender, topic string) string { return sender + "|" + topic }

func splitRoutingKey(key string) (sender, topic string, ok bool) {
	sender, topic, ok = strings.Cut(key, "|")
	return
}

// loopbackConnection implements rbc.Connection by feeding straight back
// into the same node's Instance for topic, without touching the network
// - the path a node's messages to itself take.
type loopbackConnection struct {
	node  *node
	topic string
}

func (c loopbackConnection) Send(msg []byte) error {
	n := c.node
	n.mu.Lock()
	inst, ok := n.instances[c.topic]
	n.mu.Unlock()
	if !ok {
		return fmt.Errorf("rbcnode: loopback send to unjoined topic %s", c.topic)
	}
	return inst.Feed(n.cfg.Self, msg)
}

// serve accepts inbound sessions on l forever, spawning a reader
// goroutine per accepted topic stream.
func (n *node) serve(l *transport.Listener) {
	for {
		link, err := l.Accept()
		if err != nil {
			log.Printf("rbcnode: accept: %v", err)
			return
		}
		go n.serveLink(link)
	}
}

func (n *node) serveLink(link *transport.Link) {
	for {
		r, err := link.AcceptTopicStream()
		if err != nil {
			log.Printf("rbcnode: accept topic stream: %v", err)
			return
		}
		go n.serveTopicStream(r)
	}
}

func (n *node) serveTopicStream(r *bufio.Reader) {
	key, err := transport.ReadTopicFrame(r)
	if err != nil {
		log.Printf("rbcnode: read topic frame: %v", err)
		return
	}
	sender, topic, ok := splitRoutingKey(key)
	if !ok {
		log.Printf("rbcnode: malformed routing key %q", key)
		return
	}

	for {
		msg, err := transport.ReadMessageFrame(r)
		if err != nil {
			log.Printf("rbcnode: read message frame from %s on %s: %v", sender, topic, err)
			return
		}
		n.mu.Lock()
		inst, ok := n.instances[topic]
		n.mu.Unlock()
		if !ok {
			log.Printf("rbcnode: message for unjoined topic %s from %s dropped", topic, sender)
			continue
		}
		if err := inst.Feed(sender, msg); err != nil {
			log.Printf("rbcnode: feed from %s on %s: %v", sender, topic, err)
		}
	}
}
