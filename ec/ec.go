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

// Package ec implements the (k, n) Reed-Solomon dispersal used by the RBC
// protocol: a payload is split into n equal shards, any k of which are
// enough to reconstruct it. Unlike a plain striping scheme, the shards are
// laid out column-major over GF(2^8) codewords so that shard i always
// carries exactly one byte of every codeword - the "block-transposed"
// layout that lets a single missing shard be recovered from any k
// survivors regardless of which ones they are.
package ec

import (
	"github.com/klauspost/reedsolomon"
	"github.com/pkg/errors"
)

// ErrInvalidShardCount is returned by New when k or n are out of range.
var ErrInvalidShardCount = errors.New("ec: invalid shard count")

// ErrMisalignedPayload is returned by Encode when the payload length is
// not a multiple of k.
var ErrMisalignedPayload = errors.New("ec: payload length is not a multiple of k")

// ErrShardMismatch is returned by Decode when the shard slice has the
// wrong length, too few shards are present, or present shards disagree on
// length.
var ErrShardMismatch = errors.New("ec: shard slice malformed")

// Coder encodes a payload into n shards, any k of which reconstruct it.
type Coder struct {
	k, n int
	rs   reedsolomon.Encoder // nil in the degenerate k == n case
}

// New builds a Coder for the (k, n) dispersal regime: k data shards, n-k
// parity shards. k and n are fixed for the lifetime of the Coder.
func New(k, n int) (*Coder, error) {
	if k <= 0 || n < k || n > 256 {
		return nil, ErrInvalidShardCount
	}

	c := &Coder{k: k, n: n}
	if n == k {
		// zero redundancy: klauspost/reedsolomon refuses parityShards==0,
		// and erasure-only decoding at nsym=0 is a known defect in RS
		// codecs generally, so the library is skipped entirely in this
		// regime - every shard is mandatory and concatenation suffices.
		return c, nil
	}

	rs, err := reedsolomon.New(k, n-k)
	if err != nil {
		return nil, errors.Wrap(err, "ec: construct reed-solomon codec")
	}
	c.rs = rs
	return c, nil
}

// K returns the payload width: k shards suffice to reconstruct.
func (c *Coder) K() int { return c.k }

// N returns the total shard count.
func (c *Coder) N() int { return c.n }

// Encode splits data into n equal shards. len(data) must be a multiple of
// k; the caller is responsible for padding (see rbc.Broadcast).
func (c *Coder) Encode(data []byte) ([][]byte, error) {
	if len(data)%c.k != 0 {
		return nil, ErrMisalignedPayload
	}

	stripes := len(data) / c.k
	shards := make([][]byte, c.n)
	buf := make([]byte, c.n*stripes)
	for i := range shards {
		shards[i] = buf[i*stripes : (i+1)*stripes]
	}

	// column-major layout: shards[i][j] = data[j*k+i] for i < k. Feeding
	// the RS encoder these columns directly, instead of the contiguous
	// k-byte chunks a naive reading of "encode each chunk" suggests,
	// produces the already-transposed output shards in one pass - the
	// matrix multiplication that computes parity is applied per byte
	// column independently, so transposing before encoding and
	// transposing the codeword afterwards are the same operation.
	for j := 0; j < stripes; j++ {
		for i := 0; i < c.k; i++ {
			shards[i][j] = data[j*c.k+i]
		}
	}

	if c.rs == nil {
		return shards, nil
	}
	if err := c.rs.Encode(shards); err != nil {
		return nil, errors.Wrap(err, "ec: encode")
	}
	return shards, nil
}

// Decode reconstructs the original payload from a slice of exactly n
// shard slots, where missing shards are nil. At least k slots must be
// present, and all present shards must share the same length.
func (c *Coder) Decode(shards [][]byte) ([]byte, error) {
	if len(shards) != c.n {
		return nil, ErrShardMismatch
	}

	stripes := -1
	present := 0
	for _, s := range shards {
		if s == nil {
			continue
		}
		present++
		if stripes == -1 {
			stripes = len(s)
		} else if len(s) != stripes {
			return nil, ErrShardMismatch
		}
	}
	if present < c.k {
		return nil, ErrShardMismatch
	}

	if c.rs == nil {
		// degenerate case: no parity, so no erasures are tolerable.
		if present != c.n {
			return nil, ErrShardMismatch
		}
	} else if present < c.n {
		work := make([][]byte, c.n)
		copy(work, shards)
		// ReconstructData treats a nil slot as missing and allocates it;
		// a zero-length-but-non-nil slot would instead read as present
		// and be left as all-zero data.
		if err := c.rs.ReconstructData(work); err != nil {
			return nil, errors.Wrap(err, "ec: reconstruct")
		}
		shards = work
	}

	data := make([]byte, stripes*c.k)
	for j := 0; j < stripes; j++ {
		for i := 0; i < c.k; i++ {
			data[j*c.k+i] = shards[i][j]
		}
	}
	return data, nil
}
