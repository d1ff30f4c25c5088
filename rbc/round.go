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

import "time"

// round holds the state tracked for one root hash: which shards have
// arrived, which peers have sent READY, and whether delivery has already
// happened. It is created lazily on the first well-formed ECHO carrying
// its root hash and is never mutated by anything outside the owning
// Instance.
type round[P comparable] struct {
	blockHashes [][]byte
	blocks      [][]byte // len n; nil entries are unfilled slots
	blockCount  int

	readySent     bool
	readyReceived map[P]struct{}

	delivered bool
	createdAt time.Time
}

func newRound[P comparable](blockHashes [][]byte, n int, now time.Time) *round[P] {
	return &round[P]{
		blockHashes:   blockHashes,
		blocks:        make([][]byte, n),
		readyReceived: make(map[P]struct{}),
		createdAt:     now,
	}
}

// feedBlock records shard at slot i, ignoring duplicates.
func (r *round[P]) feedBlock(i int, shard []byte) {
	if r.blocks[i] != nil {
		return
	}
	r.blocks[i] = shard
	r.blockCount++
}

// addReady records peer as having sent READY for this round. Returns
// whether the set grew (it is idempotent on duplicates).
func (r *round[P]) addReady(peer P) bool {
	if _, ok := r.readyReceived[peer]; ok {
		return false
	}
	r.readyReceived[peer] = struct{}{}
	return true
}

func (r *round[P]) readyCount() int { return len(r.readyReceived) }
