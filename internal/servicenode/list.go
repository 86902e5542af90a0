// Package servicenode tracks collateral-backed service nodes, rotates the
// block reward between them, and validates that miner transactions pay the
// selected winner.
package servicenode

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Klingon-tech/klingnet-snode/config"
	"github.com/Klingon-tech/klingnet-snode/internal/log"
	"github.com/Klingon-tech/klingnet-snode/pkg/block"
	"github.com/Klingon-tech/klingnet-snode/pkg/device"
	"github.com/Klingon-tech/klingnet-snode/pkg/tx"
	"github.com/Klingon-tech/klingnet-snode/pkg/types"
)

// rebuildBatchSize is the number of blocks fetched per ledger call during a
// rebuild.
const rebuildBatchSize = 1000

// Service node list errors.
var (
	ErrRebuild      = errors.New("service node list rebuild failed")
	ErrExpiryLookup = errors.New("service node expiry lookup failed")
	ErrNoHeight     = errors.New("block has no height")
)

// Blockchain is the ledger view the list pulls history from.
type Blockchain interface {
	GetBlocks(start, count uint64) ([]*block.Block, error)
	GetTransactions(hashes []types.Hash) ([]*tx.Transaction, []types.Hash, error)
	Height() uint64
	HardForkVersion(height uint64) uint8
	CurrentHardForkVersion() uint8
	StakingRequirement(height uint64) uint64
}

// List is the service node registry together with the ledger hooks that
// keep it in step with the main chain.
type List struct {
	mu sync.RWMutex

	bc       Blockchain
	protocol *config.Protocol
	dev      device.Device
	verifier *Verifier

	reg     *registry
	quorums map[uint64]*QuorumState

	// stale is set while the registry is missing a block's changes. Miner
	// txs are rejected until a rescan succeeds; validation and the next
	// block-added both retry it.
	stale bool
}

// New creates an empty list. Call Init, or register it with the ledger, to
// populate it.
func New(bc Blockchain, protocol *config.Protocol, dev device.Device) *List {
	return &List{
		bc:       bc,
		protocol: protocol,
		dev:      dev,
		verifier: NewVerifier(protocol.LockBlocks, bc.StakingRequirement, dev),
		reg:      newRegistry(),
		quorums:  make(map[uint64]*QuorumState),
	}
}

// Init rebuilds the registry from the blocks that can still hold an active
// registration.
func (l *List) Init() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rebuild()
}

// BlockAdded folds a newly connected block into the registry. If the block
// cannot be applied the list rescans the chain, which already holds blk; if
// that fails too the list stays stale and rejects miner txs.
func (l *List) BlockAdded(blk *block.Block, txs []*tx.Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stale {
		log.ServiceNodes.Warn().Msg("Service node list incomplete, rescanning")
		return l.rebuild()
	}
	err := l.processBlock(blk, txs)
	if err == nil {
		return nil
	}
	if rerr := l.rebuild(); rerr != nil {
		return errors.Join(err, rerr)
	}
	return err
}

// BlockchainDetached discards the registry and rescans the lock and relock
// windows ending at the new tip. Even a single popped block triggers a full rescan.
func (l *List) BlockchainDetached(height uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	log.ServiceNodes.Info().Uint64("height", height).Msg("Blockchain detached, rescanning service nodes")
	return l.rebuild()
}

// VerifyRegistration checks whether t, confirmed at height, is a valid
// registration and returns its keys.
func (l *List) VerifyRegistration(t *tx.Transaction, height uint64) (*Registration, bool) {
	return l.verifier.Verify(t, height)
}

func (l *List) rebuild() error {
	defer log.Benchmark(log.ServiceNodes, "service node rebuild")()

	l.reset()

	// A registration at r is active until block r+Lock+Relock, so every
	// active node registered at or after height-Lock-Relock.
	height := l.bc.Height()
	window := l.protocol.LockBlocks + l.protocol.RelockWindowBlocks
	var start uint64
	if height > window {
		start = height - window
	}
	log.ServiceNodes.Info().
		Uint64("from", start).
		Uint64("to", height).
		Msg("Recalculating service node list")

	for h := start; h < height; h += rebuildBatchSize {
		blocks, err := l.bc.GetBlocks(h, rebuildBatchSize)
		if err != nil {
			return l.rebuildFailed(fmt.Errorf("%w: get blocks from %d: %v", ErrRebuild, h, err))
		}
		for _, blk := range blocks {
			txs, err := l.blockTransactions(blk)
			if err != nil {
				return l.rebuildFailed(fmt.Errorf("%w: %v", ErrRebuild, err))
			}
			if err := l.processBlock(blk, txs); err != nil {
				return l.rebuildFailed(fmt.Errorf("%w: %w", ErrRebuild, err))
			}
		}
	}

	l.stale = false
	log.ServiceNodes.Info().Int("nodes", l.reg.len()).Msg("Service node list ready")
	return nil
}

func (l *List) rebuildFailed(err error) error {
	log.ServiceNodes.Error().Err(err).Msg("Unable to initialize service node list")
	l.reset()
	l.stale = true
	return err
}

func (l *List) reset() {
	l.reg.reset()
	l.quorums = make(map[uint64]*QuorumState)
}

// blockTransactions fetches the non-miner transactions of blk. A missing
// transaction is an error.
func (l *List) blockTransactions(blk *block.Block) ([]*tx.Transaction, error) {
	txs, missed, err := l.bc.GetTransactions(blk.TxHashes)
	if err != nil {
		return nil, fmt.Errorf("get transactions for block %s: %w", blk.Hash(), err)
	}
	if len(missed) > 0 {
		return nil, fmt.Errorf("block %s: %d transactions missing", blk.Hash(), len(missed))
	}
	return txs, nil
}

// processBlock applies expiry, the reward advance and new registrations for
// one block, in that order. Nothing is applied if the expiry lookup fails.
func (l *List) processBlock(blk *block.Block, txs []*tx.Transaction) error {
	height, ok := blk.Height()
	if !ok {
		return ErrNoHeight
	}
	if l.bc.HardForkVersion(height) < config.ServiceNodeVersion {
		return nil
	}

	expired, expiredHeight, err := l.expiredNodes(height)
	if err != nil {
		log.ServiceNodes.Error().Err(err).Uint64("height", height).Msg("Unable to get expired service nodes")
		return err
	}
	for _, key := range expired {
		if info, ok := l.reg.get(key); ok && info.RegistrationHeight == expiredHeight {
			l.reg.remove(key)
			log.ServiceNodes.Debug().
				Str("key", key.String()).
				Uint64("height", height).
				Msg("Service node expired")
		}
	}

	winner, found, err := l.reg.findPaidNode(l.dev, blk.MinerTx)
	switch {
	case err != nil:
		log.ServiceNodes.Debug().Err(err).Uint64("height", height).Msg("No service node output in miner tx")
	case found:
		l.reg.advanceReward(winner, height)
	}

	for _, t := range txs {
		reg, ok := l.verifier.Verify(t, height)
		if !ok {
			continue
		}
		l.reg.insert(reg, height)
		log.ServiceNodes.Info().
			Str("key", reg.SpendPublicKey.String()).
			Uint64("height", height).
			Msg("Service node registered")
	}

	l.storeQuorumState(height, blk.Hash())
	return nil
}

// expiredNodes returns the spend keys registered at the height whose
// registrations expire at height.
func (l *List) expiredNodes(height uint64) ([]types.PublicKey, uint64, error) {
	window := l.protocol.LockBlocks + l.protocol.RelockWindowBlocks
	if height < window {
		return nil, 0, nil
	}
	expiredHeight := height - window

	blocks, err := l.bc.GetBlocks(expiredHeight, 1)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: block %d: %v", ErrExpiryLookup, expiredHeight, err)
	}
	if len(blocks) == 0 {
		return nil, 0, fmt.Errorf("%w: block %d not found", ErrExpiryLookup, expiredHeight)
	}
	txs, err := l.blockTransactions(blocks[0])
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrExpiryLookup, err)
	}

	var keys []types.PublicKey
	for _, t := range txs {
		if reg, ok := l.verifier.Verify(t, expiredHeight); ok {
			keys = append(keys, reg.SpendPublicKey)
		}
	}
	return keys, expiredHeight, nil
}

// SelectWinner returns the node owed the next service node reward. It
// returns false when no node is registered.
func (l *List) SelectWinner() (types.PublicKey, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.reg.selectWinner()
}

// WinnerAddress returns the primary address of the next winner, for block
// template construction.
func (l *List) WinnerAddress() (tx.Address, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	key, ok := l.reg.selectWinner()
	if !ok {
		return tx.Address{}, false
	}
	return l.reg.address(key), true
}

// IsServiceNode reports whether key is an active service node.
func (l *List) IsServiceNode(key types.PublicKey) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.reg.get(key)
	return ok
}

// ServiceNodeKeys returns the active spend keys in registration order.
func (l *List) ServiceNodeKeys() []types.PublicKey {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.reg.keys()
}

// Get returns a copy of key's record.
func (l *List) Get(key types.PublicKey) (Info, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	info, ok := l.reg.get(key)
	if !ok {
		return Info{}, false
	}
	cp := *info
	cp.subaddresses = nil
	return cp, true
}

// Count returns the number of active service nodes.
func (l *List) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.reg.len()
}
