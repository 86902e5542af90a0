package node

import (
	"github.com/Klingon-tech/klingnet-snode/internal/mempool"
	"github.com/Klingon-tech/klingnet-snode/pkg/block"
	"github.com/Klingon-tech/klingnet-snode/pkg/tx"
	"github.com/Klingon-tech/klingnet-snode/pkg/types"
)

// poolHook keeps the pool in step with the chain: confirmed transactions
// leave the pool and registrations built for a past height are dropped.
type poolHook struct {
	pool *mempool.Pool
}

func (h *poolHook) Init() error { return nil }

func (h *poolHook) BlockAdded(blk *block.Block, txs []*tx.Transaction) error {
	h.pool.RemoveConfirmed(txs)
	if height, ok := blk.Height(); ok {
		h.pool.PruneStale(height + 1)
	}
	return nil
}

func (h *poolHook) BlockchainDetached(uint64) error { return nil }

func (h *poolHook) ValidateMinerTx(types.Hash, *tx.Transaction, uint64) bool { return true }
