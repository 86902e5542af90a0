package chain

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-snode/internal/log"
	"github.com/Klingon-tech/klingnet-snode/pkg/block"
	"github.com/Klingon-tech/klingnet-snode/pkg/tx"
)

// MaxReorgDepth is the maximum number of blocks that can be reverted in a reorg.
const MaxReorgDepth = 1000

// Entry pairs a block with its non-miner transactions.
type Entry struct {
	Block *block.Block
	Txs   []*tx.Transaction
}

// DetachTo removes every main-chain block at height >= height, then fires
// BlockchainDetached on each hook. Detaching to the current height is a
// no-op.
func (c *Chain) DetachTo(height uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.detachLocked(height)
	return err
}

// PopBlocks removes the top n blocks.
func (c *Chain) PopBlocks(n uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.State().Height
	if n > h {
		return fmt.Errorf("%w: pop %d of %d blocks", ErrHeightOutOfRange, n, h)
	}
	_, err := c.detachLocked(h - n)
	return err
}

// detachLocked removes blocks down to height and returns them (lowest
// first) with their transactions.
func (c *Chain) detachLocked(height uint64) ([]Entry, error) {
	st := c.State()
	if height == 0 && st.Height > 0 {
		return nil, ErrDetachGenesis
	}
	if height > st.Height {
		return nil, fmt.Errorf("%w: detach to %d, chain has %d blocks", ErrHeightOutOfRange, height, st.Height)
	}
	if height == st.Height {
		return nil, nil
	}

	removed := make([]Entry, st.Height-height)
	for h := st.Height; h > height; h-- {
		top := h - 1
		blk, err := c.blocks.GetBlockByHeight(top)
		if err != nil {
			return nil, fmt.Errorf("load block %d: %w", top, err)
		}
		txs, missed, err := c.GetTransactions(blk.TxHashes)
		if err != nil {
			return nil, fmt.Errorf("load txs of block %d: %w", top, err)
		}
		if len(missed) > 0 {
			return nil, fmt.Errorf("block %d: %d transactions missing from store", top, len(missed))
		}
		if err := c.blocks.RemoveTop(top, blk.Header.PrevHash); err != nil {
			return nil, fmt.Errorf("remove block %d: %w", top, err)
		}
		c.setState(State{Height: top, TipHash: blk.Header.PrevHash})
		removed[top-height] = Entry{Block: blk, Txs: txs}
	}

	log.Chain.Info().
		Uint64("from", st.Height).
		Uint64("to", height).
		Msg("Blockchain detached")

	for _, h := range c.hooks {
		if err := h.BlockchainDetached(height); err != nil {
			log.Chain.Error().Err(err).Uint64("height", height).Msg("Detach hook failed")
			return removed, fmt.Errorf("%w: detached to %d: %w", ErrHookFailed, height, err)
		}
	}
	return removed, nil
}

// Reorg replaces the main chain above forkHeight with branch. If any branch
// block is rejected the original blocks are restored and the rejection is
// returned.
func (c *Chain) Reorg(forkHeight uint64, branch []Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.State()
	if forkHeight > st.Height {
		return fmt.Errorf("%w: fork at %d, chain has %d blocks", ErrHeightOutOfRange, forkHeight, st.Height)
	}
	if depth := st.Height - forkHeight; depth > MaxReorgDepth {
		return fmt.Errorf("reorg depth %d exceeds %d", depth, MaxReorgDepth)
	}

	old, err := c.detachLocked(forkHeight)
	if err != nil {
		return fmt.Errorf("detach: %w", err)
	}

	for i, e := range branch {
		if err := c.addBlockLocked(e.Block, e.Txs); err != nil {
			log.Chain.Warn().Err(err).Int("index", i).Msg("Reorg branch rejected, restoring main chain")
			if _, rerr := c.detachLocked(forkHeight); rerr != nil {
				return fmt.Errorf("branch block %d: %w (restore detach failed: %v)", i, err, rerr)
			}
			for _, o := range old {
				if rerr := c.addBlockLocked(o.Block, o.Txs); rerr != nil {
					return fmt.Errorf("branch block %d: %w (restore failed: %v)", i, err, rerr)
				}
			}
			return fmt.Errorf("branch block %d: %w", i, err)
		}
	}

	log.Chain.Info().
		Uint64("fork_height", forkHeight).
		Int("reverted", len(old)).
		Int("applied", len(branch)).
		Msg("Reorg complete")
	return nil
}
