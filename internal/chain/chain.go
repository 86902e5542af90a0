// Package chain implements the block ledger the service node list hooks
// into: it stores main-chain blocks, validates their structure and miner
// rewards, and notifies registered hooks of additions and detaches.
package chain

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Klingon-tech/klingnet-snode/config"
	"github.com/Klingon-tech/klingnet-snode/internal/storage"
	"github.com/Klingon-tech/klingnet-snode/pkg/block"
	"github.com/Klingon-tech/klingnet-snode/pkg/tx"
	"github.com/Klingon-tech/klingnet-snode/pkg/types"
)

// Hooks is the capability set a consensus subsystem registers with the
// ledger. All methods are called while the ledger's mutation lock is held;
// implementations may call the ledger's read methods.
type Hooks interface {
	// Init is called once after the ledger has loaded its tip.
	Init() error

	// BlockAdded is called after blk and its non-miner transactions have
	// been stored on the main chain.
	BlockAdded(blk *block.Block, txs []*tx.Transaction) error

	// BlockchainDetached is called after every block at height >= height
	// has been removed from the main chain.
	BlockchainDetached(height uint64) error

	// ValidateMinerTx reports whether minerTx may be accepted in a block
	// building on prevID with the given base reward.
	ValidateMinerTx(prevID types.Hash, minerTx *tx.Transaction, baseReward uint64) bool
}

// Chain represents the main chain and its block store.
type Chain struct {
	mu       sync.Mutex // Serializes AddBlock, DetachTo, Reorg and Init.
	protocol *config.Protocol
	blocks   *BlockStore

	stateMu sync.RWMutex // Guards state; never held while hooks run.
	state   State

	hooks []Hooks
}

// New creates a chain over db and recovers its tip from the block store.
func New(protocol *config.Protocol, db storage.DB) (*Chain, error) {
	if protocol == nil {
		return nil, fmt.Errorf("protocol is nil")
	}
	if db == nil {
		return nil, fmt.Errorf("storage db is nil")
	}
	if err := protocol.Validate(); err != nil {
		return nil, fmt.Errorf("protocol: %w", err)
	}

	blocks := NewBlockStore(db)
	tipHash, height, err := blocks.GetTip()
	if err != nil {
		return nil, fmt.Errorf("recover tip: %w", err)
	}

	return &Chain{
		protocol: protocol,
		blocks:   blocks,
		state:    State{Height: height, TipHash: tipHash},
	}, nil
}

// RegisterHooks adds hooks to be notified of chain events, in registration
// order.
func (c *Chain) RegisterHooks(h ...Hooks) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, h...)
}

// Init calls Init on every registered hook.
func (c *Chain) Init() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, h := range c.hooks {
		if err := h.Init(); err != nil {
			return fmt.Errorf("%w: init: %w", ErrHookFailed, err)
		}
	}
	return nil
}

// Protocol returns the chain's consensus rules.
func (c *Chain) Protocol() *config.Protocol {
	return c.protocol
}

// State returns a copy of the current chain state.
func (c *Chain) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

func (c *Chain) setState(s State) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}

// Height returns the number of blocks on the main chain, which is also the
// height of the next block.
func (c *Chain) Height() uint64 {
	return c.State().Height
}

// TipHash returns the hash of the current chain tip.
func (c *Chain) TipHash() types.Hash {
	return c.State().TipHash
}

// HardForkVersion returns the block major version in force at height.
func (c *Chain) HardForkVersion(height uint64) uint8 {
	return c.protocol.HardForkVersion(height)
}

// CurrentHardForkVersion returns the version that applies to the next block.
func (c *Chain) CurrentHardForkVersion() uint8 {
	return c.protocol.HardForkVersion(c.Height())
}

// StakingRequirement returns the minimum service node stake at height.
func (c *Chain) StakingRequirement(height uint64) uint64 {
	return c.protocol.StakingRequirement(height)
}

// GetBlock retrieves a block by its hash.
func (c *Chain) GetBlock(hash types.Hash) (*block.Block, error) {
	return c.blocks.GetBlock(hash)
}

// GetBlockByHeight retrieves a main-chain block by its height.
func (c *Chain) GetBlockByHeight(height uint64) (*block.Block, error) {
	if height >= c.Height() {
		return nil, fmt.Errorf("%w: %d >= %d", ErrHeightOutOfRange, height, c.Height())
	}
	return c.blocks.GetBlockByHeight(height)
}

// GetBlocks returns up to count main-chain blocks starting at start.
func (c *Chain) GetBlocks(start, count uint64) ([]*block.Block, error) {
	height := c.Height()
	if start >= height {
		return nil, fmt.Errorf("%w: start %d, chain has %d blocks", ErrHeightOutOfRange, start, height)
	}
	end := min(start+count, height)
	blks := make([]*block.Block, 0, end-start)
	for h := start; h < end; h++ {
		blk, err := c.blocks.GetBlockByHeight(h)
		if err != nil {
			return nil, err
		}
		blks = append(blks, blk)
	}
	return blks, nil
}

// GetTransactions looks up main-chain transactions by hash. Unknown hashes
// are returned in missed; other storage failures are returned as an error.
func (c *Chain) GetTransactions(hashes []types.Hash) ([]*tx.Transaction, []types.Hash, error) {
	txs := make([]*tx.Transaction, 0, len(hashes))
	var missed []types.Hash
	for _, h := range hashes {
		t, err := c.blocks.GetTx(h)
		if errors.Is(err, storage.ErrNotFound) {
			missed = append(missed, h)
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		txs = append(txs, t)
	}
	return txs, missed, nil
}

// GetTransaction looks up a single main-chain transaction.
func (c *Chain) GetTransaction(hash types.Hash) (*tx.Transaction, error) {
	return c.blocks.GetTx(hash)
}
