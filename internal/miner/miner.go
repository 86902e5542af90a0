// Package miner builds block templates for the ledger. The miner
// transaction splits the base reward into the network fee, the service
// node share paid to the current winner and the producer's remainder.
package miner

import (
	"errors"
	"fmt"
	"time"

	"github.com/Klingon-tech/klingnet-snode/config"
	"github.com/Klingon-tech/klingnet-snode/pkg/block"
	"github.com/Klingon-tech/klingnet-snode/pkg/crypto"
	"github.com/Klingon-tech/klingnet-snode/pkg/tx"
)

// DefaultMaxBlockTxs caps the non-miner transactions in a template.
const DefaultMaxBlockTxs = 256

// ErrFeeExceedsReward is returned when the network fee and service node
// share do not fit in the base reward.
var ErrFeeExceedsReward = errors.New("network fee and service node share exceed base reward")

// ChainState provides read-only access to the current chain state.
type ChainState interface {
	Height() uint64
	CurrentHardForkVersion() uint8
	NextHeader(timestamp uint64) block.Header
}

// WinnerSource names the service node owed the next reward.
type WinnerSource interface {
	WinnerAddress() (tx.Address, bool)
}

// TxSelector selects transactions for block inclusion.
type TxSelector interface {
	SelectForBlock(height uint64, limit int) []*tx.Transaction
}

// Config holds the payout addresses and amounts of a block producer.
type Config struct {
	FeeAddress      tx.Address
	ProducerAddress tx.Address
	BaseReward      uint64
	NetworkFee      uint64
	MaxBlockTxs     int
}

// Miner produces new block templates.
type Miner struct {
	chain   ChainState
	winners WinnerSource
	pool    TxSelector // may be nil
	cfg     Config
}

// New creates a new block producer.
func New(chain ChainState, winners WinnerSource, pool TxSelector, cfg Config) *Miner {
	if cfg.MaxBlockTxs <= 0 {
		cfg.MaxBlockTxs = DefaultMaxBlockTxs
	}
	return &Miner{chain: chain, winners: winners, pool: pool, cfg: cfg}
}

// ProduceBlock builds a block on the current tip using the current time.
// The block is NOT applied to the chain; the caller passes it and the
// returned transactions to AddBlock.
func (m *Miner) ProduceBlock() (*block.Block, []*tx.Transaction, error) {
	return m.ProduceBlockAt(uint64(time.Now().Unix()))
}

// ProduceBlockAt builds a block with the given timestamp.
func (m *Miner) ProduceBlockAt(timestamp uint64) (*block.Block, []*tx.Transaction, error) {
	height := m.chain.Height()

	var selected []*tx.Transaction
	if m.pool != nil {
		selected = m.pool.SelectForBlock(height, m.cfg.MaxBlockTxs)
	}

	snAmount := config.ServiceNodeReward(m.cfg.BaseReward, m.chain.CurrentHardForkVersion())
	snAddr, ok := m.winners.WinnerAddress()
	if !ok {
		// Nobody is owed the share; the producer keeps it.
		snAddr = m.cfg.ProducerAddress
	}

	minerTx, err := BuildMinerTx(height, m.cfg, snAddr, snAmount)
	if err != nil {
		return nil, nil, err
	}
	blk := block.NewBlock(m.chain.NextHeader(timestamp), minerTx, selected)
	return blk, selected, nil
}

// BuildMinerTx creates the three-output miner transaction for height:
// network fee, service node share, producer remainder.
func BuildMinerTx(height uint64, cfg Config, snAddr tx.Address, snAmount uint64) (*tx.Transaction, error) {
	if cfg.NetworkFee > cfg.BaseReward || snAmount > cfg.BaseReward-cfg.NetworkFee {
		return nil, fmt.Errorf("%w: fee %d + share %d > %d", ErrFeeExceedsReward, cfg.NetworkFee, snAmount, cfg.BaseReward)
	}
	txSec, _, err := crypto.GenerateKeys()
	if err != nil {
		return nil, fmt.Errorf("miner tx key: %w", err)
	}
	return tx.NewMinerTx(height, config.MinerUnlockWindow, txSec, []tx.Destination{
		{Address: cfg.FeeAddress, Amount: cfg.NetworkFee},
		{Address: snAddr, Amount: snAmount},
		{Address: cfg.ProducerAddress, Amount: cfg.BaseReward - cfg.NetworkFee - snAmount},
	})
}
