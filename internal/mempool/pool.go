// Package mempool holds transactions waiting for block inclusion. The
// ledger has no fee market, so entries are served in arrival order;
// registrations are only offered at the height their unlock time was
// built for.
package mempool

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Klingon-tech/klingnet-snode/config"
	"github.com/Klingon-tech/klingnet-snode/pkg/tx"
	"github.com/Klingon-tech/klingnet-snode/pkg/types"
)

// DefaultMaxSize is the pool capacity used when New is given zero.
const DefaultMaxSize = 5000

// Mempool errors.
var (
	ErrAlreadyExists = errors.New("transaction already in mempool")
	ErrConflict      = errors.New("transaction conflicts with existing mempool entry")
	ErrMinerTx       = errors.New("miner transactions are not relayed")
	ErrStale         = errors.New("transaction targets a height already mined")
)

// entry wraps a transaction with its metadata.
type entry struct {
	tx     *tx.Transaction
	txHash types.Hash
	seq    uint64 // arrival order

	// target is the only height the transaction can be mined at; zero
	// with hasTarget false means any height.
	target    uint64
	hasTarget bool
}

// Pool holds unconfirmed transactions.
type Pool struct {
	mu         sync.RWMutex
	txs        map[types.Hash]*entry
	keyImages  map[types.PublicKey]types.Hash // key image -> txHash (conflict index)
	maxSize    int
	lockBlocks uint64
	policy     *Policy
	nextSeq    uint64
}

// New creates a pool for a network whose registrations lock stake for
// lockBlocks.
func New(lockBlocks uint64, maxSize int) *Pool {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Pool{
		txs:        make(map[types.Hash]*entry),
		keyImages:  make(map[types.PublicKey]types.Hash),
		maxSize:    maxSize,
		lockBlocks: lockBlocks,
		policy:     DefaultPolicy(),
	}
}

// SetPolicy replaces the acceptance policy.
func (p *Pool) SetPolicy(policy *Policy) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.policy = policy
}

// targetHeight returns the height a height-locked transaction was built
// for. Timestamp locks and locks shorter than a registration have none.
func (p *Pool) targetHeight(t *tx.Transaction) (uint64, bool) {
	if t.UnlockTime >= config.MaxBlockNumber || t.UnlockTime < p.lockBlocks {
		return 0, false
	}
	return t.UnlockTime - p.lockBlocks, true
}

// Add checks and adds a transaction to the pool. nextHeight is the height
// of the next block; transactions built for an earlier height are rejected.
func (p *Pool) Add(transaction *tx.Transaction, nextHeight uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if transaction.IsMinerTx() {
		return ErrMinerTx
	}
	if p.policy != nil {
		if err := p.policy.Check(transaction); err != nil {
			return err
		}
	}

	txHash := transaction.Hash()
	if _, exists := p.txs[txHash]; exists {
		return ErrAlreadyExists
	}
	for _, in := range transaction.Inputs {
		if in.Type != tx.InputToKey {
			continue
		}
		if conflictHash, exists := p.keyImages[in.KeyImage]; exists {
			return fmt.Errorf("%w: key image %s already used by %s", ErrConflict, in.KeyImage, conflictHash)
		}
	}

	e := &entry{tx: transaction, txHash: txHash, seq: p.nextSeq}
	e.target, e.hasTarget = p.targetHeight(transaction)
	if e.hasTarget && e.target < nextHeight {
		return fmt.Errorf("%w: built for %d, next block is %d", ErrStale, e.target, nextHeight)
	}
	p.nextSeq++

	// Full pool drops its oldest entry.
	if len(p.txs) >= p.maxSize {
		p.removeLocked(p.oldestLocked())
	}

	p.txs[txHash] = e
	for _, in := range transaction.Inputs {
		if in.Type == tx.InputToKey {
			p.keyImages[in.KeyImage] = txHash
		}
	}
	return nil
}

// Remove removes a transaction from the pool by hash.
func (p *Pool) Remove(txHash types.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeLocked(txHash)
}

func (p *Pool) removeLocked(txHash types.Hash) {
	e, exists := p.txs[txHash]
	if !exists {
		return
	}
	for _, in := range e.tx.Inputs {
		if in.Type == tx.InputToKey {
			delete(p.keyImages, in.KeyImage)
		}
	}
	delete(p.txs, txHash)
}

// oldestLocked returns the hash of the earliest arrival.
// Must be called with p.mu held.
func (p *Pool) oldestLocked() types.Hash {
	var oldest *entry
	for _, e := range p.txs {
		if oldest == nil || e.seq < oldest.seq {
			oldest = e
		}
	}
	if oldest == nil {
		return types.Hash{}
	}
	return oldest.txHash
}

// RemoveConfirmed removes all transactions that were included in a block.
func (p *Pool) RemoveConfirmed(transactions []*tx.Transaction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range transactions {
		p.removeLocked(t.Hash())
	}
}

// Has checks if a transaction exists in the pool.
func (p *Pool) Has(txHash types.Hash) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, exists := p.txs[txHash]
	return exists
}

// Get retrieves a transaction from the pool.
func (p *Pool) Get(txHash types.Hash) *tx.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, exists := p.txs[txHash]
	if !exists {
		return nil
	}
	return e.tx
}

// Count returns the number of transactions in the pool.
func (p *Pool) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.txs)
}

// SelectForBlock returns up to limit transactions that may be mined at
// height, in arrival order.
func (p *Pool) SelectForBlock(height uint64, limit int) []*tx.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()

	entries := make([]*entry, 0, len(p.txs))
	for _, e := range p.txs {
		if e.hasTarget && e.target != height {
			continue
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].seq < entries[j].seq
	})

	if limit > len(entries) {
		limit = len(entries)
	}
	result := make([]*tx.Transaction, limit)
	for i := 0; i < limit; i++ {
		result[i] = entries[i].tx
	}
	return result
}
