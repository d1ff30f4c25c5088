package ec

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	c, err := New(3, 5)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	data := []byte("012345678")
	shards, err := c.Encode(data)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(shards) != 5 {
		t.Fatalf("got %d shards, want 5", len(shards))
	}
	for _, s := range shards {
		if len(s) != 3 {
			t.Fatalf("shard length = %d, want 3", len(s))
		}
	}

	shards[0] = nil
	shards[1] = nil
	got, err := c.Decode(shards)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("Decode = %q, want %q", got, data)
	}
}

func TestDecodeAnyErasureSet(t *testing.T) {
	c, err := New(4, 7)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	data := []byte("sixteen-byte-msg")

	for erased := 0; erased <= 3; erased++ {
		shards, err := c.Encode(data)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		for i := 0; i < erased; i++ {
			shards[i] = nil
		}
		got, err := c.Decode(shards)
		if err != nil {
			t.Fatalf("erasing %d shards: Decode: %v", erased, err)
		}
		if !bytes.Equal(got, data) {
			t.Fatalf("erasing %d shards: Decode = %q, want %q", erased, got, data)
		}
	}
}

func TestDecodeTooFewShards(t *testing.T) {
	c, err := New(4, 7)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	data := []byte("sixteen-byte-msg")
	shards, err := c.Encode(data)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	for i := 0; i < 4; i++ {
		shards[i] = nil
	}
	if _, err := c.Decode(shards); err != ErrShardMismatch {
		t.Fatalf("Decode with too few shards = %v, want ErrShardMismatch", err)
	}
}

func TestDegenerateNoRedundancy(t *testing.T) {
	c, err := New(3, 3)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	data := []byte("abcdef")
	shards, err := c.Encode(data)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(shards) != 3 {
		t.Fatalf("got %d shards, want 3", len(shards))
	}

	got, err := c.Decode(shards)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("Decode = %q, want %q", got, data)
	}

	shards[0] = nil
	if _, err := c.Decode(shards); err != ErrShardMismatch {
		t.Fatalf("Decode with an erasure at nsym=0 = %v, want ErrShardMismatch", err)
	}
}

func TestEncodeMisaligned(t *testing.T) {
	c, err := New(3, 5)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Encode([]byte("ab")); err != ErrMisalignedPayload {
		t.Fatalf("Encode misaligned payload = %v, want ErrMisalignedPayload", err)
	}
}

func TestNewInvalidShardCount(t *testing.T) {
	cases := []struct{ k, n int }{
		{0, 5},
		{-1, 5},
		{5, 3},
		{3, 300},
	}
	for _, tc := range cases {
		if _, err := New(tc.k, tc.n); err != ErrInvalidShardCount {
			t.Errorf("New(%d, %d) = %v, want ErrInvalidShardCount", tc.k, tc.n, err)
		}
	}
}
