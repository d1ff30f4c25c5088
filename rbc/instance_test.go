package rbc

import (
	"bytes"
	"crypto/sha256"
	"sort"
	"testing"
)

func testHash(b []byte) []byte {
	sum := sha256.Sum256(b)
	return sum[:]
}

// network wires N named instances together over MemoryConnections and
// drains them to quiescence - no connection has pending bytes.
type network struct {
	t         *testing.T
	conns     map[string]map[string]*MemoryConnection // conns[from][to]
	instances map[string]*Instance[string]
	delivered map[string][][]byte
}

func newNetwork(t *testing.T, names []string) *network {
	net := &network{
		t:         t,
		conns:     make(map[string]map[string]*MemoryConnection),
		instances: make(map[string]*Instance[string]),
		delivered: make(map[string][][]byte),
	}
	for _, from := range names {
		net.conns[from] = make(map[string]*MemoryConnection)
		for _, to := range names {
			net.conns[from][to] = NewMemoryConnection()
		}
	}
	return net
}

// connView is owner's outbound view of the network: owner.Send(p,
// msg) enqueues into conns[owner][p], which the peer p's instance drains
// by pulling from conns[owner][p] and calling Feed(owner, msg).
type connView struct {
	net   *network
	owner string
	peer  string
}

func (c connView) Send(msg []byte) error {
	c.net.conns[c.owner][c.peer].Send(msg)
	return nil
}

func (net *network) addInstance(t *testing.T, name string, sender string, names []string) *Instance[string] {
	peers := make(map[string]Connection, len(names))
	for _, p := range names {
		peers[p] = connView{net: net, owner: name, peer: p}
	}
	name_ := name
	inst, err := New(sender, peers, testHash, FuncSink(func(payload []byte) {
		net.delivered[name_] = append(net.delivered[name_], payload)
	}))
	if err != nil {
		t.Fatalf("New(%s): %v", name, err)
	}
	net.instances[name] = inst
	return inst
}

// drain repeatedly feeds every pending message on every link until none
// remain - runs the simulated network to quiescence.
func (net *network) drain(skip map[string]bool) {
	for {
		progressed := false
		for from, peers := range net.conns {
			for to, conn := range peers {
				if skip[to] {
					continue
				}
				for {
					msg, err := conn.Receive()
					if err != nil {
						break
					}
					progressed = true
					if err := net.instances[to].Feed(from, msg); err != nil {
						net.t.Fatalf("Feed(%s -> %s): %v", from, to, err)
					}
				}
			}
		}
		if !progressed {
			return
		}
	}
}

func TestSingleNodeLoopback(t *testing.T) {
	names := []string{"the one"}
	net := newNetwork(t, names)
	inst := net.addInstance(t, "the one", "the one", names)

	if err := inst.Broadcast([]byte("A message I'd like to broadcast.")); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if err := inst.Broadcast([]byte("Thank you for cooperation.")); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}

	net.drain(nil)

	got := net.delivered["the one"]
	if len(got) != 2 {
		t.Fatalf("delivered %d payloads, want 2: %q", len(got), got)
	}
	want := map[string]bool{
		"A message I'd like to broadcast.": true,
		"Thank you for cooperation.":       true,
	}
	for _, g := range got {
		if !want[string(g)] {
			t.Errorf("unexpected delivery: %q", g)
		}
		delete(want, string(g))
	}
	if len(want) != 0 {
		t.Errorf("missing deliveries: %v", want)
	}
}

func TestFourPeersOneSilent(t *testing.T) {
	names := []string{"p0", "p1", "p2", "p3"}
	net := newNetwork(t, names)
	for _, n := range names {
		net.addInstance(t, n, "p0", names)
	}

	if err := net.instances["p0"].Broadcast([]byte("A message I'd like to broadcast.")); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}

	net.drain(map[string]bool{"p3": true})

	for _, p := range []string{"p0", "p1", "p2"} {
		got := net.delivered[p]
		if len(got) != 1 || string(got[0]) != "A message I'd like to broadcast." {
			t.Errorf("peer %s delivered %q, want exactly [%q]", p, got, "A message I'd like to broadcast.")
		}
	}
}

func TestByzantineEquivocationNoDelivery(t *testing.T) {
	names := []string{"p0", "p1", "p2", "p3"}
	net := newNetwork(t, names)
	for _, n := range names {
		net.addInstance(t, n, "p0", names)
	}

	// p0 (sender) hand-crafts four distinct VALUE messages, one per
	// root hash, so that no 2 ECHOes (n-2f=2) can ever share a root.
	k := net.instances["p0"].coder.K()
	for i, p := range names {
		payload := padPayload([]byte{byte('A' + i)}, k)
		shards, err := net.instances["p0"].coder.Encode(payload)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		blockHashes := make([][]byte, len(shards))
		for j, s := range shards {
			blockHashes[j] = testHash(s)
		}
		rootHash := testHash(concatAll(blockHashes))
		encodeAndSend(t, net, p, i, rootHash, blockHashes, shards[i])
	}

	net.drain(nil)

	for _, p := range names {
		if len(net.delivered[p]) != 0 {
			t.Errorf("peer %s delivered %q, want none", p, net.delivered[p])
		}
	}
}

// encodeAndSend crafts one VALUE message by hand and injects it directly
// into peer p's inbound queue from the sender, bypassing Instance.Broadcast
// so distinct peers can be made to see distinct root hashes.
func encodeAndSend(t *testing.T, net *network, to string, blockNumber int, rootHash []byte, blockHashes [][]byte, block []byte) {
	t.Helper()
	m := valueMessage(blockNumber, rootHash, blockHashes, block)
	net.conns["p0"][to].Send(m)
}

func TestDuplicateEchoIsIdempotent(t *testing.T) {
	names := []string{"p0", "p1", "p2", "p3"}
	net := newNetwork(t, names)
	for _, n := range names {
		net.addInstance(t, n, "p0", names)
	}

	if err := net.instances["p0"].Broadcast([]byte("dup test")); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}

	// drain VALUE -> ECHO for p0 only, once.
	msg, err := net.conns["p0"]["p0"].Receive()
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if err := net.instances["p0"].Feed("p0", msg); err != nil {
		t.Fatalf("Feed: %v", err)
	}

	// Now p0 has sent itself an ECHO (loopback); drain it twice.
	echoMsg, err := net.conns["p0"]["p0"].Receive()
	if err != nil {
		t.Fatalf("Receive ECHO: %v", err)
	}

	if err := net.instances["p0"].Feed("p0", echoMsg); err != nil {
		t.Fatalf("Feed ECHO: %v", err)
	}
	r := firstRound(net.instances["p0"])
	if r.blockCount != 1 {
		t.Fatalf("blockCount after first ECHO = %d, want 1", r.blockCount)
	}

	if err := net.instances["p0"].Feed("p0", echoMsg); err != nil {
		t.Fatalf("Feed duplicate ECHO: %v", err)
	}
	if r.blockCount != 1 {
		t.Fatalf("blockCount after duplicate ECHO = %d, want 1", r.blockCount)
	}
}

func TestReadyBeforeEchoIsDropped(t *testing.T) {
	names := []string{"p0", "p1", "p2", "p3"}
	net := newNetwork(t, names)
	for _, n := range names {
		net.addInstance(t, n, "p0", names)
	}

	bogusRoot := testHash([]byte("no such round"))
	ready := readyMessage(bogusRoot)
	if err := net.instances["p1"].Feed("p2", ready); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(net.instances["p1"].rounds) != 0 {
		t.Fatalf("a READY for an unknown root hash must not create round state")
	}

	// subsequent legitimate broadcast still delivers.
	if err := net.instances["p0"].Broadcast([]byte("after bogus ready")); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	net.drain(nil)
	for _, p := range names {
		if len(net.delivered[p]) != 1 || string(net.delivered[p][0]) != "after bogus ready" {
			t.Errorf("peer %s delivered %q", p, net.delivered[p])
		}
	}
}

func firstRound(inst *Instance[string]) *round[string] {
	for _, r := range inst.rounds {
		return r
	}
	return nil
}

func TestFeedUnknownPeerIsProgrammerError(t *testing.T) {
	names := []string{"p0", "p1"}
	net := newNetwork(t, names)
	inst := net.addInstance(t, "p0", "p0", names)

	if err := inst.Feed("intruder", []byte{0}); err != ErrUnknownPeer {
		t.Fatalf("Feed from unconfigured peer = %v, want ErrUnknownPeer", err)
	}
}

func TestSortedIndexIsStable(t *testing.T) {
	names := []string{"zzz", "aaa", "mmm"}
	net := newNetwork(t, names)
	inst := net.addInstance(t, "zzz", "zzz", names)

	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	for i, p := range sorted {
		if inst.index[p] != i {
			t.Errorf("index[%s] = %d, want %d", p, inst.index[p], i)
		}
	}
}

func TestExpireRounds(t *testing.T) {
	names := []string{"p0", "p1", "p2", "p3"}
	net := newNetwork(t, names)
	for _, n := range names {
		net.addInstance(t, n, "p0", names)
	}

	if err := net.instances["p0"].Broadcast([]byte("expire me")); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	net.drain(nil)

	if len(net.instances["p1"].rounds) == 0 {
		t.Fatal("expected at least one round to exist before expiry")
	}
	removed := net.instances["p1"].ExpireRounds(0)
	if removed == 0 {
		t.Error("ExpireRounds(0) should remove the already-delivered round")
	}
	if len(net.instances["p1"].rounds) != 0 {
		t.Errorf("rounds remaining after ExpireRounds(0): %d", len(net.instances["p1"].rounds))
	}
}

func TestBroadcastArbitraryLength(t *testing.T) {
	names := []string{"p0", "p1", "p2", "p3", "p4", "p5", "p6"}
	net := newNetwork(t, names)
	for _, n := range names {
		net.addInstance(t, n, "p0", names)
	}

	payloads := [][]byte{
		{},
		[]byte("x"),
		bytes.Repeat([]byte("y"), 97),
	}
	for _, p := range payloads {
		if err := net.instances["p0"].Broadcast(p); err != nil {
			t.Fatalf("Broadcast(%d bytes): %v", len(p), err)
		}
	}
	net.drain(nil)

	for _, n := range names {
		got := net.delivered[n]
		if len(got) != len(payloads) {
			t.Fatalf("peer %s delivered %d payloads, want %d", n, len(got), len(payloads))
		}
		for i, want := range payloads {
			if !bytes.Equal(got[i], want) {
				t.Errorf("peer %s payload %d = %q, want %q", n, i, got[i], want)
			}
		}
	}
}
