// Package block defines blocks as seen by the service node subsystem: a
// header, the miner transaction, and the hashes of the other transactions.
package block

import (
	"encoding/binary"

	"github.com/Klingon-tech/klingnet-snode/pkg/crypto"
	"github.com/Klingon-tech/klingnet-snode/pkg/tx"
	"github.com/Klingon-tech/klingnet-snode/pkg/types"
)

// Header contains block metadata. MajorVersion is the hard fork version the
// block was produced under.
type Header struct {
	MajorVersion uint8      `json:"major_version"`
	MinorVersion uint8      `json:"minor_version"`
	Timestamp    uint64     `json:"timestamp"`
	PrevHash     types.Hash `json:"prev_hash"`
	Nonce        uint32     `json:"nonce"`
}

// Bytes returns the canonical header serialization.
// Format: major(1) | minor(1) | timestamp(8) | prev_hash(32) | nonce(4)
func (h *Header) Bytes() []byte {
	buf := make([]byte, 0, 46)
	buf = append(buf, h.MajorVersion, h.MinorVersion)
	buf = binary.LittleEndian.AppendUint64(buf, h.Timestamp)
	buf = append(buf, h.PrevHash[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, h.Nonce)
	return buf
}

// Block represents a block in the chain. Only the miner transaction is
// embedded; other transactions are referenced by hash and stored separately.
type Block struct {
	Header   Header          `json:"header"`
	MinerTx  *tx.Transaction `json:"miner_tx"`
	TxHashes []types.Hash    `json:"tx_hashes"`
}

// NewBlock creates a block from a header, miner transaction and the
// remaining transactions.
func NewBlock(header Header, minerTx *tx.Transaction, txs []*tx.Transaction) *Block {
	hashes := make([]types.Hash, len(txs))
	for i, t := range txs {
		hashes[i] = t.Hash()
	}
	return &Block{Header: header, MinerTx: minerTx, TxHashes: hashes}
}

// Height returns the height carried by the miner transaction's gen input.
func (b *Block) Height() (uint64, bool) {
	if b.MinerTx == nil {
		return 0, false
	}
	return b.MinerTx.GenHeight()
}

// Hash computes the block ID over the header, the tx tree hash and the
// transaction count.
func (b *Block) Hash() types.Hash {
	buf := b.Header.Bytes()
	root := b.TxTreeHash()
	buf = append(buf, root[:]...)
	buf = binary.AppendUvarint(buf, uint64(len(b.TxHashes)+1))
	return crypto.Hash(buf)
}
