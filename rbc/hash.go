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

import "golang.org/x/crypto/blake2b"

// Hash is the pluggable hash function used throughout one Instance. A
// conforming implementation must produce a constant-length output for
// every input, for the lifetime of one Instance.
type Hash func([]byte) []byte

// DefaultHash is BLAKE2b-256, a ready-made Hash for callers that don't
// need a specific digest. New does not substitute it for a nil hash; a
// nil hash is rejected. x/crypto is already part of the dependency graph for transport-level
// key derivation, so this avoids reaching for a second hash package for
// no reason.
func DefaultHash(b []byte) []byte {
	sum := blake2b.Sum256(b)
	return sum[:]
}
