package block

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-snode/pkg/types"
)

// Validation errors.
var (
	ErrNoMinerTx       = errors.New("block has no miner transaction")
	ErrBadMinerTx      = errors.New("miner transaction must have a single gen input")
	ErrZeroTimestamp   = errors.New("block timestamp is zero")
	ErrDuplicateTx     = errors.New("duplicate transaction hash in block")
	ErrMinerTxReferred = errors.New("block references its own miner transaction")
)

// Validate checks block structure. Consensus rules (heights, rewards,
// service node payments) are enforced by the ledger and its hooks.
func (b *Block) Validate() error {
	if b.MinerTx == nil {
		return ErrNoMinerTx
	}
	if !b.MinerTx.IsMinerTx() {
		return ErrBadMinerTx
	}
	if b.Header.Timestamp == 0 {
		return ErrZeroTimestamp
	}

	minerHash := b.MinerTx.Hash()
	seen := make(map[types.Hash]struct{}, len(b.TxHashes))
	for i, h := range b.TxHashes {
		if h == minerHash {
			return fmt.Errorf("tx %d: %w", i, ErrMinerTxReferred)
		}
		if _, ok := seen[h]; ok {
			return fmt.Errorf("tx %d: %w: %s", i, ErrDuplicateTx, h)
		}
		seen[h] = struct{}{}
	}
	return nil
}
