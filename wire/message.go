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

// Package wire encodes and decodes the three RBC protocol messages
// (VALUE, ECHO, READY) to and from a single self-describing byte string.
package wire

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Type is the one-byte message tag. It maps to a closed sum type with
// three variants - there is no fourth kind and no subclassing.
type Type uint8

const (
	Value Type = iota
	Echo
	Ready
)

func (t Type) String() string {
	switch t {
	case Value:
		return "VALUE"
	case Echo:
		return "ECHO"
	case Ready:
		return "READY"
	default:
		return "UNKNOWN"
	}
}

// headerSize is the width of the fixed-layout prefix: type(1) + m(2) + i(2) + |H|(2).
const headerSize = 1 + 2 + 2 + 2

// ErrMalformed is returned by Decode when buf is truncated or internally
// inconsistent. Decode never panics on attacker-controlled input.
var ErrMalformed = errors.New("wire: malformed message")

// Message is the decoded shape of one RBC protocol message.
type Message struct {
	Type        Type
	BlockNumber uint16   // i: block_number / peer index
	RootHash    []byte   // R
	BlockHashes [][]byte // h_0 .. h_{n-1}; empty for READY
	Block       []byte   // sigma; empty for READY
}

// Encode serialises m to its wire format:
//
//	type(1) | m(2) | i(2) | |H|(2) | R(|H|) | h_0..h_{m-1}(m*|H|) | block(rest)
func (m Message) Encode() []byte {
	hashLen := len(m.RootHash)
	buf := make([]byte, 0, headerSize+hashLen+len(m.BlockHashes)*hashLen+len(m.Block))

	var hdr [headerSize]byte
	hdr[0] = byte(m.Type)
	binary.BigEndian.PutUint16(hdr[1:3], uint16(len(m.BlockHashes)))
	binary.BigEndian.PutUint16(hdr[3:5], m.BlockNumber)
	binary.BigEndian.PutUint16(hdr[5:7], uint16(hashLen))
	buf = append(buf, hdr[:]...)

	buf = append(buf, m.RootHash...)
	for _, h := range m.BlockHashes {
		buf = append(buf, h...)
	}
	buf = append(buf, m.Block...)
	return buf
}

// Decode parses buf into a Message. It is pure and total: well-formed
// input decodes to an equivalent Message, and any truncated or
// internally inconsistent buffer yields ErrMalformed rather than a panic
// or an out-of-bounds read.
func Decode(buf []byte) (Message, error) {
	if len(buf) < headerSize {
		return Message{}, errors.Wrap(ErrMalformed, "truncated header")
	}

	t := Type(buf[0])
	blockCount := int(binary.BigEndian.Uint16(buf[1:3]))
	blockNumber := binary.BigEndian.Uint16(buf[3:5])
	hashLen := int(binary.BigEndian.Uint16(buf[5:7]))

	rest := buf[headerSize:]
	needed := hashLen + blockCount*hashLen
	if needed < 0 || len(rest) < needed {
		return Message{}, errors.Wrap(ErrMalformed, "truncated hash vector")
	}

	rootHash := rest[:hashLen]
	rest = rest[hashLen:]

	var blockHashes [][]byte
	if blockCount > 0 {
		blockHashes = make([][]byte, blockCount)
		for i := 0; i < blockCount; i++ {
			blockHashes[i] = rest[i*hashLen : (i+1)*hashLen]
		}
		rest = rest[blockCount*hashLen:]
	}

	return Message{
		Type:        t,
		BlockNumber: blockNumber,
		RootHash:    rootHash,
		BlockHashes: blockHashes,
		Block:       rest,
	}, nil
}
