package rbc

import "github.com/conclave-net/rbc/wire"

func valueMessage(blockNumber int, rootHash []byte, blockHashes [][]byte, block []byte) []byte {
	m := wire.Message{
		Type:        wire.Value,
		BlockNumber: uint16(blockNumber),
		RootHash:    rootHash,
		BlockHashes: blockHashes,
		Block:       block,
	}
	return m.Encode()
}

func readyMessage(rootHash []byte) []byte {
	m := wire.Message{Type: wire.Ready, RootHash: rootHash}
	return m.Encode()
}
