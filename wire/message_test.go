package wire

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeValue(t *testing.T) {
	root := []byte("0123456789abcdef")
	hashes := [][]byte{
		[]byte("hash#0.........."),
		[]byte("hash#1.........."),
		[]byte("hash#2.........."),
	}
	m := Message{
		Type:        Value,
		BlockNumber: 1,
		RootHash:    root,
		BlockHashes: hashes,
		Block:       []byte("shard payload"),
	}

	got, err := Decode(m.Encode())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Type != Value {
		t.Errorf("Type = %v, want Value", got.Type)
	}
	if got.BlockNumber != 1 {
		t.Errorf("BlockNumber = %d, want 1", got.BlockNumber)
	}
	if !bytes.Equal(got.RootHash, root) {
		t.Errorf("RootHash = %q, want %q", got.RootHash, root)
	}
	if len(got.BlockHashes) != len(hashes) {
		t.Fatalf("len(BlockHashes) = %d, want %d", len(got.BlockHashes), len(hashes))
	}
	for i := range hashes {
		if !bytes.Equal(got.BlockHashes[i], hashes[i]) {
			t.Errorf("BlockHashes[%d] = %q, want %q", i, got.BlockHashes[i], hashes[i])
		}
	}
	if !bytes.Equal(got.Block, []byte("shard payload")) {
		t.Errorf("Block = %q", got.Block)
	}
}

func TestEncodeDecodeReady(t *testing.T) {
	root := []byte("root-hash-bytes!")
	m := Message{Type: Ready, RootHash: root}

	got, err := Decode(m.Encode())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Type != Ready {
		t.Errorf("Type = %v, want Ready", got.Type)
	}
	if len(got.BlockHashes) != 0 {
		t.Errorf("BlockHashes = %v, want empty", got.BlockHashes)
	}
	if len(got.Block) != 0 {
		t.Errorf("Block = %v, want empty", got.Block)
	}
	if !bytes.Equal(got.RootHash, root) {
		t.Errorf("RootHash = %q, want %q", got.RootHash, root)
	}
}

func TestDecodeTruncatedHeader(t *testing.T) {
	if _, err := Decode([]byte{0, 1, 2}); err == nil {
		t.Fatal("Decode of a 3-byte buffer should fail")
	}
}

func TestDecodeTruncatedHashVector(t *testing.T) {
	m := Message{
		Type:        Echo,
		BlockNumber: 0,
		RootHash:    []byte("0123456789abcdef"),
		BlockHashes: [][]byte{[]byte("0123456789abcdef"), []byte("0123456789abcdef")},
	}
	buf := m.Encode()
	// truncate after the root hash, before the block-hash vector is complete.
	truncated := buf[:headerSize+16+8]
	if _, err := Decode(truncated); err == nil {
		t.Fatal("Decode of a truncated hash vector should fail")
	}
}

func TestDecodeEmptyBuffer(t *testing.T) {
	if _, err := Decode(nil); err == nil {
		t.Fatal("Decode(nil) should fail")
	}
}
