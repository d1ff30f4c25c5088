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

// Package rbc implements the Bracha-style three-phase reliable broadcast
// state machine: per-(sender, peers) it accepts inbound VALUE/ECHO/READY
// messages through Feed, multicasts the derived messages, and delivers at
// most one value per root hash to a Sink. There is no internal scheduler
// or timer - Feed and Broadcast run synchronously to completion on the
// calling goroutine and return.
package rbc

import (
	"cmp"
	"encoding/binary"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/conclave-net/rbc/ec"
	"github.com/conclave-net/rbc/wire"
)

// ErrUnknownPeer is returned when the caller addressed a peer that isn't
// part of the configured set - a programmer error, not a protocol fault.
var ErrUnknownPeer = errors.New("rbc: peer not in configured set")

// lengthPrefixSize is the width of the length prefix Broadcast adds ahead
// of the caller's payload: the payload's true length travels inside the
// erasure-coded data itself, so peers never need to agree on padding out
// of band.
const lengthPrefixSize = 4

// Instance is one RBC protocol run for a fixed (sender, peers, hash)
// triple. It is safe for concurrent Feed/Broadcast calls - a single
// mutex serialises all state mutation, so the host may call them from
// whatever goroutine drains its transport.
type Instance[P cmp.Ordered] struct {
	sender      P
	peers       []P // ascending; index defines idx(P)
	index       map[P]int
	connections map[P]Connection
	hash        Hash
	sink        Sink
	coder       *ec.Coder
	n, f        int

	mu     sync.Mutex
	rounds map[string]*round[P]

	Snmp Snmp
}

// New constructs an RBC instance. peers must be non-empty and must
// contain sender. hash must produce a constant-length digest for the
// lifetime of the instance. A nil sink is a programmer error.
func New[P cmp.Ordered](sender P, peers map[P]Connection, hash Hash, sink Sink) (*Instance[P], error) {
	if len(peers) == 0 {
		return nil, errors.New("rbc: peers must not be empty")
	}
	if _, ok := peers[sender]; !ok {
		return nil, errors.New("rbc: sender must be a configured peer")
	}
	if hash == nil {
		return nil, errors.New("rbc: hash function must not be nil")
	}
	if sink == nil {
		return nil, errors.New("rbc: sink must not be nil")
	}

	ordered := make([]P, 0, len(peers))
	for p := range peers {
		ordered = append(ordered, p)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })

	index := make(map[P]int, len(ordered))
	for i, p := range ordered {
		index[p] = i
	}

	n := len(ordered)
	f := (n - 1) / 3
	k := n - 2*f

	coder, err := ec.New(k, n)
	if err != nil {
		return nil, errors.Wrap(err, "rbc: construct erasure coder")
	}

	return &Instance[P]{
		sender:      sender,
		peers:       ordered,
		index:       index,
		connections: peers,
		hash:        hash,
		sink:        sink,
		coder:       coder,
		n:           n,
		f:           f,
		rounds:      make(map[string]*round[P]),
	}, nil
}

// N returns the configured peer count.
func (inst *Instance[P]) N() int { return inst.n }

// F returns the maximum tolerated number of Byzantine peers.
func (inst *Instance[P]) F() int { return inst.f }

// SnmpSnapshot returns a copy of the counters collected so far. Safe to
// call from any goroutine, including concurrently with Feed/Broadcast.
func (inst *Instance[P]) SnmpSnapshot() Snmp {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.Snmp
}

// Broadcast is the sender-role entry point. It erasure-codes v, computes
// the block hashes and root hash, and sends one VALUE message per peer
// carrying that peer's shard.
func (inst *Instance[P]) Broadcast(v []byte) error {
	payload := padPayload(v, inst.coder.K())
	shards, err := inst.coder.Encode(payload)
	if err != nil {
		return errors.Wrap(err, "rbc: encode broadcast payload")
	}

	blockHashes := make([][]byte, len(shards))
	for i, s := range shards {
		blockHashes[i] = inst.hash(s)
	}
	rootHash := inst.hash(concatAll(blockHashes))

	for _, p := range inst.peers {
		i := inst.index[p]
		msg := wire.Message{
			Type:        wire.Value,
			BlockNumber: uint16(i),
			RootHash:    rootHash,
			BlockHashes: blockHashes,
			Block:       shards[i],
		}
		if err := inst.connections[p].Send(msg.Encode()); err != nil {
			return errors.Wrapf(err, "rbc: send VALUE to peer %d", i)
		}
	}
	return nil
}

// Feed is the inbound handler for bytes arriving on a peer's link. peer
// must be one of the configured peers; data is the raw bytes received on
// that peer's link.
func (inst *Instance[P]) Feed(peer P, data []byte) error {
	if _, ok := inst.index[peer]; !ok {
		return ErrUnknownPeer
	}

	msg, err := wire.Decode(data)

	inst.mu.Lock()
	defer inst.mu.Unlock()

	if err != nil {
		inst.Snmp.DroppedMalformed++
		log.Printf("rbc: dropping malformed message from %v: %v", peer, err)
		return nil
	}

	switch msg.Type {
	case wire.Value:
		inst.Snmp.ValueRecv++
		return inst.handleValue(peer, msg)
	case wire.Echo:
		inst.Snmp.EchoRecv++
		return inst.handleEcho(peer, msg)
	case wire.Ready:
		inst.Snmp.ReadyRecv++
		return inst.handleReady(peer, msg)
	default:
		inst.Snmp.DroppedMalformed++
		log.Printf("rbc: dropping message of unknown type %d from %v", msg.Type, peer)
		return nil
	}
}

func (inst *Instance[P]) handleValue(peer P, msg wire.Message) error {
	if peer != inst.sender {
		inst.Snmp.DroppedAuth++
		log.Printf("rbc: dropping VALUE from non-sender peer %v", peer)
		return nil
	}

	if len(msg.BlockHashes) != inst.n {
		inst.Snmp.DroppedMalformed++
		return nil
	}
	i := int(msg.BlockNumber)
	if i < 0 || i >= len(msg.BlockHashes) {
		inst.Snmp.DroppedMalformed++
		return nil
	}
	if !bytesEqual(inst.hash(msg.Block), msg.BlockHashes[i]) {
		inst.Snmp.DroppedIntegrity++
		return nil
	}
	if !bytesEqual(inst.hash(concatAll(msg.BlockHashes)), msg.RootHash) {
		inst.Snmp.DroppedIntegrity++
		return nil
	}

	echo := wire.Message{
		Type:        wire.Echo,
		BlockNumber: msg.BlockNumber,
		RootHash:    msg.RootHash,
		BlockHashes: msg.BlockHashes,
		Block:       msg.Block,
	}
	return inst.multicast(echo.Encode())
}

func (inst *Instance[P]) handleEcho(peer P, msg wire.Message) error {
	peerIdx := inst.index[peer]
	if int(msg.BlockNumber) != peerIdx {
		inst.Snmp.DroppedAuth++
		log.Printf("rbc: dropping ECHO with block number mismatch from %v", peer)
		return nil
	}
	if len(msg.BlockHashes) != inst.n {
		inst.Snmp.DroppedMalformed++
		return nil
	}
	if peerIdx >= len(msg.BlockHashes) {
		inst.Snmp.DroppedMalformed++
		return nil
	}
	if !bytesEqual(inst.hash(msg.Block), msg.BlockHashes[peerIdx]) {
		inst.Snmp.DroppedIntegrity++
		return nil
	}
	if !bytesEqual(inst.hash(concatAll(msg.BlockHashes)), msg.RootHash) {
		inst.Snmp.DroppedIntegrity++
		return nil
	}

	key := string(msg.RootHash)
	r, ok := inst.rounds[key]
	if !ok {
		r = newRound[P](msg.BlockHashes, inst.n, time.Now())
		inst.rounds[key] = r
	}
	r.feedBlock(peerIdx, msg.Block)

	return inst.evaluateTransitions(msg.RootHash, r)
}

func (inst *Instance[P]) handleReady(peer P, msg wire.Message) error {
	key := string(msg.RootHash)
	r, ok := inst.rounds[key]
	if !ok {
		// READY without a known block-hash vector cannot be validated,
		// so it is dropped and not buffered. A peer sends READY at most
		// once per round, so a dropped READY is not seen again; the round
		// counts only READYs that arrive after its first valid ECHO.
		return nil
	}
	r.addReady(peer)
	return inst.evaluateTransitions(msg.RootHash, r)
}

// evaluateTransitions applies the amplify-on-echo-quorum, amplify-on-
// ready-quorum, and deliver predicates, in that order, after any
// mutating ECHO or READY event.
func (inst *Instance[P]) evaluateTransitions(rootHash []byte, r *round[P]) error {
	e := r.blockCount
	readyN := r.readyCount()

	if e >= inst.n-inst.f && !r.readySent {
		if _, ok := inst.tryReconstruct(r); ok {
			r.readySent = true
			inst.Snmp.AmplifyOnEcho++
			if err := inst.sendReady(rootHash); err != nil {
				return err
			}
		} else {
			log.Printf("rbc: could not decode data for round %x at ECHO quorum", rootHash)
		}
	}

	if readyN >= inst.f+1 && !r.readySent {
		r.readySent = true
		inst.Snmp.AmplifyOnReady++
		if err := inst.sendReady(rootHash); err != nil {
			return err
		}
	}

	if e >= inst.n-2*inst.f && readyN >= 2*inst.f+1 && !r.delivered {
		if payload, ok := inst.tryReconstruct(r); ok {
			r.delivered = true
			inst.Snmp.Delivered++
			stripped, err := stripPayload(payload)
			if err != nil {
				log.Printf("rbc: delivered payload failed to unpad for round %x: %v", rootHash, err)
				return nil
			}
			inst.sink.Deliver(stripped)
		}
	}

	return nil
}

// tryReconstruct attempts to decode the round's current shard set and
// verifies the round trip by re-encoding and comparing hashes, per the
// "decode... re-encode, hash, and compare" rule shared by both the
// ECHO-quorum amplification predicate and the deliver predicate.
func (inst *Instance[P]) tryReconstruct(r *round[P]) ([]byte, bool) {
	payload, err := inst.coder.Decode(r.blocks)
	if err != nil {
		return nil, false
	}
	shards, err := inst.coder.Encode(payload)
	if err != nil {
		return nil, false
	}
	for i, s := range shards {
		if !bytesEqual(inst.hash(s), r.blockHashes[i]) {
			return nil, false
		}
	}
	return payload, true
}

func (inst *Instance[P]) sendReady(rootHash []byte) error {
	msg := wire.Message{Type: wire.Ready, RootHash: rootHash}
	return inst.multicast(msg.Encode())
}

func (inst *Instance[P]) multicast(buf []byte) error {
	for _, p := range inst.peers {
		if err := inst.connections[p].Send(buf); err != nil {
			return errors.Wrapf(err, "rbc: multicast to peer %v", p)
		}
	}
	return nil
}

// ExpireRounds discards rounds older than maxAge that have either
// delivered already or never reached ready_sent within that window. The
// host is responsible for calling this periodically; the core never
// schedules this itself.
func (inst *Instance[P]) ExpireRounds(maxAge time.Duration) int {
	inst.mu.Lock()
	defer inst.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for key, r := range inst.rounds {
		if r.createdAt.After(cutoff) {
			continue
		}
		if r.delivered || !r.readySent {
			delete(inst.rounds, key)
			removed++
		}
	}
	return removed
}

func padPayload(v []byte, k int) []byte {
	out := make([]byte, lengthPrefixSize+len(v))
	binary.BigEndian.PutUint32(out, uint32(len(v)))
	copy(out[lengthPrefixSize:], v)

	if rem := len(out) % k; rem != 0 {
		out = append(out, make([]byte, k-rem)...)
	}
	return out
}

func stripPayload(padded []byte) ([]byte, error) {
	if len(padded) < lengthPrefixSize {
		return nil, errors.New("rbc: reconstructed payload shorter than length prefix")
	}
	l := binary.BigEndian.Uint32(padded[:lengthPrefixSize])
	rest := padded[lengthPrefixSize:]
	if uint64(l) > uint64(len(rest)) {
		return nil, errors.New("rbc: length prefix exceeds reconstructed payload")
	}
	return rest[:l], nil
}

func concatAll(parts [][]byte) []byte {
	total := 0
	for _, p := range parts {
		total += len(p)
	}
	out := make([]byte, 0, total)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
