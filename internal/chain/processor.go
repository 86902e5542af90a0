package chain

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-snode/internal/log"
	"github.com/Klingon-tech/klingnet-snode/pkg/block"
	"github.com/Klingon-tech/klingnet-snode/pkg/tx"
)

// Block processing errors.
var (
	ErrBlockKnown          = errors.New("block already known")
	ErrBadPrevHash         = errors.New("prev_hash does not match current tip")
	ErrBadHeight           = errors.New("block height does not follow parent")
	ErrBadVersion          = errors.New("block version does not match hard fork")
	ErrTxMismatch          = errors.New("transactions do not match block tx hashes")
	ErrRewardExceeded      = errors.New("miner tx pays more than the block reward")
	ErrMinerTxRejected     = errors.New("miner tx rejected by consensus hook")
	ErrHookFailed          = errors.New("consensus hook failed")
	ErrHeightOutOfRange    = errors.New("height out of range")
	ErrDetachGenesis       = errors.New("cannot detach the genesis block")
	ErrMinerTxInBlockTxSet = errors.New("miner tx listed among block transactions")
)

// AddBlock validates blk against the current tip and appends it to the main
// chain. txs must be the block's non-miner transactions in TxHashes order.
//
// Checks run in order: structure, prev hash, height, version, tx set, total
// reward, then every hook's ValidateMinerTx. On success the block is stored
// and BlockAdded hooks fire. A hook error is returned wrapped in
// ErrHookFailed; the block stays on the chain.
func (c *Chain) AddBlock(blk *block.Block, txs []*tx.Transaction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addBlockLocked(blk, txs)
}

func (c *Chain) addBlockLocked(blk *block.Block, txs []*tx.Transaction) error {
	if blk == nil {
		return fmt.Errorf("nil block")
	}
	if err := blk.Validate(); err != nil {
		return fmt.Errorf("validate: %w", err)
	}

	hash := blk.Hash()
	known, err := c.blocks.HasBlock(hash)
	if err != nil {
		return fmt.Errorf("check block: %w", err)
	}
	if known {
		return ErrBlockKnown
	}

	st := c.State()
	if blk.Header.PrevHash != st.TipHash {
		return fmt.Errorf("%w: got %s, tip %s", ErrBadPrevHash, blk.Header.PrevHash, st.TipHash)
	}
	height, _ := blk.Height()
	if height != st.Height {
		return fmt.Errorf("%w: got %d, want %d", ErrBadHeight, height, st.Height)
	}
	if want := c.protocol.HardForkVersion(height); blk.Header.MajorVersion != want {
		return fmt.Errorf("%w: got v%d, want v%d at height %d", ErrBadVersion, blk.Header.MajorVersion, want, height)
	}
	if err := checkTxSet(blk, txs); err != nil {
		return err
	}

	total, err := blk.MinerTx.TotalOutputValue()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRewardExceeded, err)
	}
	baseReward := c.protocol.BaseReward
	if total > baseReward {
		return fmt.Errorf("%w: %d > %d", ErrRewardExceeded, total, baseReward)
	}

	for _, h := range c.hooks {
		if !h.ValidateMinerTx(blk.Header.PrevHash, blk.MinerTx, baseReward) {
			return fmt.Errorf("%w: block %s at height %d", ErrMinerTxRejected, hash, height)
		}
	}

	if err := c.blocks.PutBlock(blk, height, txs); err != nil {
		return fmt.Errorf("store block: %w", err)
	}
	c.setState(State{Height: height + 1, TipHash: hash})

	log.Chain.Debug().
		Uint64("height", height).
		Str("hash", hash.String()).
		Int("txs", len(txs)).
		Msg("Block added")

	for _, h := range c.hooks {
		if err := h.BlockAdded(blk, txs); err != nil {
			log.Chain.Error().Err(err).Uint64("height", height).Msg("Block added hook failed")
			return fmt.Errorf("%w: block added at %d: %w", ErrHookFailed, height, err)
		}
	}
	return nil
}

// checkTxSet verifies txs are exactly the transactions blk references.
func checkTxSet(blk *block.Block, txs []*tx.Transaction) error {
	if len(txs) != len(blk.TxHashes) {
		return fmt.Errorf("%w: %d transactions for %d hashes", ErrTxMismatch, len(txs), len(blk.TxHashes))
	}
	for i, t := range txs {
		if t == nil {
			return fmt.Errorf("%w: tx %d is nil", ErrTxMismatch, i)
		}
		if t.IsMinerTx() {
			return fmt.Errorf("tx %d: %w", i, ErrMinerTxInBlockTxSet)
		}
		if h := t.Hash(); h != blk.TxHashes[i] {
			return fmt.Errorf("%w: tx %d hash %s, block lists %s", ErrTxMismatch, i, h, blk.TxHashes[i])
		}
	}
	return nil
}

// NextHeader returns a header template for a block extending the tip.
func (c *Chain) NextHeader(timestamp uint64) block.Header {
	st := c.State()
	return block.Header{
		MajorVersion: c.protocol.HardForkVersion(st.Height),
		Timestamp:    timestamp,
		PrevHash:     st.TipHash,
	}
}
