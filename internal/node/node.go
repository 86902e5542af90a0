// Package node assembles a service node daemon that can be embedded in any
// binary: block storage, the ledger, the crypto device and the service node
// list hooked into it.
package node

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingnet-snode/config"
	"github.com/Klingon-tech/klingnet-snode/internal/chain"
	klog "github.com/Klingon-tech/klingnet-snode/internal/log"
	"github.com/Klingon-tech/klingnet-snode/internal/mempool"
	"github.com/Klingon-tech/klingnet-snode/internal/miner"
	"github.com/Klingon-tech/klingnet-snode/internal/servicenode"
	"github.com/Klingon-tech/klingnet-snode/internal/storage"
	"github.com/Klingon-tech/klingnet-snode/internal/wallet"
	"github.com/Klingon-tech/klingnet-snode/pkg/block"
	"github.com/Klingon-tech/klingnet-snode/pkg/device"
	"github.com/Klingon-tech/klingnet-snode/pkg/tx"
	"github.com/Klingon-tech/klingnet-snode/pkg/types"
)

// ErrKeyFileNetwork is returned when the configured key file was written
// for another network.
var ErrKeyFileNetwork = errors.New("key file network mismatch")

// Node is a fully-initialized service node daemon.
type Node struct {
	cfg      *config.Config
	protocol *config.Protocol
	logger   zerolog.Logger

	db   storage.DB
	ch   *chain.Chain
	list *servicenode.List
	pool *mempool.Pool

	// Operator keys from the configured key file, if any.
	operator *wallet.KeyFileInfo

	closeOnce sync.Once
}

// Status is a point-in-time view of the ledger and the service node list.
type Status struct {
	Network         config.NetworkType
	Height          uint64
	HardForkVersion uint8
	ServiceNodes    int

	// ActivationHeight is the first height at which service nodes are
	// tracked and paid.
	ActivationHeight uint64

	Winner    types.PublicKey
	HasWinner bool

	// Operator fields are set only when a key file is configured.
	Operator   *types.PublicKey
	Registered bool
	Info       servicenode.Info
}

// New creates and wires a node: logger, storage, chain and service node
// list. It does not scan the chain; call Start for that.
func New(cfg *config.Config) (*Node, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// ── 1. Init logger ──────────────────────────────────────────────
	if err := initLogger(cfg); err != nil {
		return nil, err
	}
	logger := klog.Node

	// ── 2. Protocol rules ───────────────────────────────────────────
	protocol, err := config.ProtocolFor(cfg.Network)
	if err != nil {
		return nil, err
	}
	logger.Info().
		Str("network", string(cfg.Network)).
		Uint64("lock_blocks", protocol.LockBlocks).
		Msg("Starting Klingnet service node")

	// ── 3. Open storage ─────────────────────────────────────────────
	db, err := openStorage(cfg)
	if err != nil {
		return nil, err
	}

	n := &Node{
		cfg:      cfg,
		protocol: protocol,
		logger:   logger,
		db:       db,
	}
	if err := n.setup(); err != nil {
		n.Stop()
		return nil, err
	}
	return n, nil
}

// setup builds the chain and the service node list over n.db.
func (n *Node) setup() error {
	// ── 4. Chain ────────────────────────────────────────────────────
	ch, err := chain.New(n.protocol, n.db)
	if err != nil {
		return fmt.Errorf("create chain: %w", err)
	}
	if st := ch.State(); st.IsEmpty() {
		if err := ch.InitFromGenesis(); err != nil {
			return fmt.Errorf("init genesis: %w", err)
		}
	}
	n.ch = ch

	// ── 5. Service node list ────────────────────────────────────────
	dev := device.NewSoftware()
	n.list = servicenode.New(ch, n.protocol, dev)
	ch.RegisterHooks(n.list)
	n.logger.Info().Str("device", dev.Name()).Msg("Service node list registered")

	// ── 6. Transaction pool ─────────────────────────────────────────
	n.pool = mempool.New(n.protocol.LockBlocks, 0)
	ch.RegisterHooks(&poolHook{pool: n.pool})

	// ── 7. Operator key file ────────────────────────────────────────
	if n.cfg.ServiceNode.KeyFile != "" {
		info, err := loadOperator(n.cfg.ServiceNode.KeyFile, n.cfg.Network)
		if err != nil {
			return err
		}
		n.operator = info
		n.logger.Info().
			Str("spend_key", info.SpendPublicKey.String()).
			Msg("Service node operator key loaded")
	}
	return nil
}

// Start runs the ledger's init hooks, which rebuild the service node list
// from chain history, and logs the resulting status.
func (n *Node) Start() error {
	if err := n.ch.Init(); err != nil {
		return fmt.Errorf("init hooks: %w", err)
	}
	n.logStatus()
	return nil
}

// Stop closes storage. Safe to call more than once.
func (n *Node) Stop() {
	n.closeOnce.Do(func() {
		if n.db == nil {
			return
		}
		if err := n.db.Close(); err != nil {
			n.logger.Error().Err(err).Msg("Failed to close database")
			return
		}
		n.logger.Info().Msg("Database closed")
	})
}

// Chain returns the node's ledger.
func (n *Node) Chain() *chain.Chain {
	return n.ch
}

// ServiceNodes returns the service node list.
func (n *Node) ServiceNodes() *servicenode.List {
	return n.list
}

// Pool returns the transaction pool.
func (n *Node) Pool() *mempool.Pool {
	return n.pool
}

// SubmitTx adds a transaction to the pool for the next block.
func (n *Node) SubmitTx(t *tx.Transaction) error {
	if err := n.pool.Add(t, n.ch.Height()); err != nil {
		return fmt.Errorf("submit tx %s: %w", t.Hash(), err)
	}
	n.logger.Debug().Str("tx", t.Hash().String()).Msg("Transaction accepted to pool")
	return nil
}

// NewMiner returns a block producer over the node's chain, service node
// list and pool.
func (n *Node) NewMiner(cfg miner.Config) *miner.Miner {
	if cfg.BaseReward == 0 {
		cfg.BaseReward = n.protocol.BaseReward
	}
	return miner.New(n.ch, n.list, n.pool, cfg)
}

// MineBlock produces a block with m and adds it to the chain.
func (n *Node) MineBlock(m *miner.Miner, timestamp uint64) (*block.Block, error) {
	blk, txs, err := m.ProduceBlockAt(timestamp)
	if err != nil {
		return nil, fmt.Errorf("produce block: %w", err)
	}
	if err := n.ch.AddBlock(blk, txs); err != nil {
		return nil, fmt.Errorf("add block: %w", err)
	}
	return blk, nil
}

// Protocol returns the consensus rules of the node's network.
func (n *Node) Protocol() *config.Protocol {
	return n.protocol
}

// Height returns the number of blocks on the main chain.
func (n *Node) Height() uint64 {
	return n.ch.Height()
}

// Status reports the ledger tip, the registry size, the next winner and,
// with a key file, whether the operator is registered.
func (n *Node) Status() Status {
	st := Status{
		Network:         n.cfg.Network,
		Height:          n.ch.Height(),
		HardForkVersion: n.ch.CurrentHardForkVersion(),
		ServiceNodes:    n.list.Count(),
	}
	st.ActivationHeight, _ = n.protocol.ForkHeight(config.ServiceNodeVersion)
	st.Winner, st.HasWinner = n.list.SelectWinner()
	if n.operator != nil {
		key := n.operator.SpendPublicKey
		st.Operator = &key
		st.Info, st.Registered = n.list.Get(key)
	}
	return st
}

func (n *Node) logStatus() {
	st := n.Status()
	ev := n.logger.Info().
		Uint64("height", st.Height).
		Uint8("hard_fork", st.HardForkVersion).
		Int("service_nodes", st.ServiceNodes).
		Uint64("activation_height", st.ActivationHeight)
	if st.HasWinner {
		ev = ev.Str("next_winner", st.Winner.String())
	}
	ev.Msg("Service node list ready")

	if st.Operator == nil {
		return
	}
	if !st.Registered {
		n.logger.Warn().
			Str("spend_key", st.Operator.String()).
			Msg("Operator is not a registered service node")
		return
	}
	n.logger.Info().
		Str("spend_key", st.Operator.String()).
		Uint64("registered_at", st.Info.RegistrationHeight).
		Uint64("expires_at", st.Info.RegistrationHeight+n.protocol.LockBlocks+n.protocol.RelockWindowBlocks).
		Uint64("last_reward", st.Info.LastRewardHeight).
		Msg("Operator is a registered service node")
}

// initLogger sets up global logging from cfg. Without an explicit log file
// nothing is written to disk.
func initLogger(cfg *config.Config) error {
	logFile := cfg.Log.File
	if logFile != "" {
		logFile = expandHome(logFile)
		if err := os.MkdirAll(filepath.Dir(logFile), 0755); err != nil {
			return fmt.Errorf("creating logs dir: %w", err)
		}
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	return nil
}
