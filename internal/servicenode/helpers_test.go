package servicenode

import (
	"testing"

	"github.com/Klingon-tech/klingnet-snode/config"
	"github.com/Klingon-tech/klingnet-snode/internal/chain"
	"github.com/Klingon-tech/klingnet-snode/internal/storage"
	"github.com/Klingon-tech/klingnet-snode/pkg/block"
	"github.com/Klingon-tech/klingnet-snode/pkg/crypto"
	"github.com/Klingon-tech/klingnet-snode/pkg/device"
	"github.com/Klingon-tech/klingnet-snode/pkg/tx"
	"github.com/Klingon-tech/klingnet-snode/pkg/types"
)

// testNode is a service node operator's key set.
type testNode struct {
	keys tx.RegistrationKeys
}

func newTestNode(t *testing.T) testNode {
	t.Helper()
	_, spendPub, err := crypto.GenerateKeys()
	if err != nil {
		t.Fatalf("GenerateKeys: %v", err)
	}
	viewSec, viewPub, err := crypto.GenerateKeys()
	if err != nil {
		t.Fatalf("GenerateKeys: %v", err)
	}
	return testNode{
		keys: tx.RegistrationKeys{
			SpendPublicKey: spendPub,
			ViewPublicKey:  viewPub,
			ViewSecretKey:  viewSec,
		},
	}
}

func (n testNode) id() types.PublicKey {
	return n.keys.SpendPublicKey
}

func newSecret(t *testing.T) types.SecretKey {
	t.Helper()
	sec, _, err := crypto.GenerateKeys()
	if err != nil {
		t.Fatalf("GenerateKeys: %v", err)
	}
	return sec
}

func randomAddress(t *testing.T) tx.Address {
	t.Helper()
	return newTestNode(t).keys.Address()
}

// registrationTx builds a registration for n at height with the given
// stake and lock window.
func registrationTx(t *testing.T, n testNode, height, lockBlocks, stake uint64) *tx.Transaction {
	t.Helper()
	regTx, err := tx.NewRegistrationTx(height, lockBlocks, n.keys, stake, newSecret(t))
	if err != nil {
		t.Fatalf("NewRegistrationTx: %v", err)
	}
	return regTx
}

// testNet is a fakechain ledger with a service node list hooked in.
type testNet struct {
	t        *testing.T
	protocol *config.Protocol
	chain    *chain.Chain
	list     *List
}

func newTestNet(t *testing.T) *testNet {
	t.Helper()
	return newTestNetWithProtocol(t, config.FakechainProtocol())
}

func newTestNetWithProtocol(t *testing.T, p *config.Protocol) *testNet {
	t.Helper()
	return newTestNetWithDevice(t, p, device.NewSoftware())
}

func newTestNetWithDevice(t *testing.T, p *config.Protocol, dev device.Device) *testNet {
	t.Helper()
	c, err := chain.New(p, storage.NewMemory())
	if err != nil {
		t.Fatalf("chain.New: %v", err)
	}
	if err := c.InitFromGenesis(); err != nil {
		t.Fatalf("InitFromGenesis: %v", err)
	}
	l := New(c, p, dev)
	c.RegisterHooks(l)
	if err := c.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return &testNet{t: t, protocol: p, chain: c, list: l}
}

// serviceNodeReward is the mandated service node output at the next height.
func (n *testNet) serviceNodeReward() uint64 {
	return config.ServiceNodeReward(n.protocol.BaseReward, n.chain.CurrentHardForkVersion())
}

// minerTx builds a three-output miner tx for the next height paying snAmount
// to sn.
func (n *testNet) minerTx(sn tx.Address, snAmount uint64) *tx.Transaction {
	n.t.Helper()
	fee := uint64(config.Coin)
	rest := n.protocol.BaseReward - snAmount - fee
	minerTx, err := tx.NewMinerTx(n.chain.Height(), config.MinerUnlockWindow, newSecret(n.t), []tx.Destination{
		{Address: randomAddress(n.t), Amount: fee},
		{Address: sn, Amount: snAmount},
		{Address: randomAddress(n.t), Amount: rest},
	})
	if err != nil {
		n.t.Fatalf("NewMinerTx: %v", err)
	}
	return minerTx
}

// winnerMinerTx pays the current winner, or a random address if there is
// none.
func (n *testNet) winnerMinerTx() *tx.Transaction {
	n.t.Helper()
	addr, ok := n.list.WinnerAddress()
	if !ok {
		addr = randomAddress(n.t)
	}
	return n.minerTx(addr, n.serviceNodeReward())
}

func (n *testNet) blockWith(minerTx *tx.Transaction, txs ...*tx.Transaction) *block.Block {
	return block.NewBlock(n.chain.NextHeader(1700000000+n.chain.Height()), minerTx, txs)
}

// mine adds a block paying the current winner and containing txs.
func (n *testNet) mine(txs ...*tx.Transaction) *block.Block {
	n.t.Helper()
	blk := n.blockWith(n.winnerMinerTx(), txs...)
	if err := n.chain.AddBlock(blk, txs); err != nil {
		n.t.Fatalf("AddBlock at %d: %v", n.chain.Height(), err)
	}
	return blk
}

// mineTo adds empty blocks until the next block height is height.
func (n *testNet) mineTo(height uint64) {
	n.t.Helper()
	for n.chain.Height() < height {
		n.mine()
	}
}

// register mines a block at the next height containing a registration for
// node and returns that height.
func (n *testNet) register(nodes ...testNode) uint64 {
	n.t.Helper()
	height := n.chain.Height()
	stake := n.chain.StakingRequirement(height)
	txs := make([]*tx.Transaction, 0, len(nodes))
	for _, node := range nodes {
		txs = append(txs, registrationTx(n.t, node, height, n.protocol.LockBlocks, stake))
	}
	n.mine(txs...)
	return height
}

// entries returns the main-chain blocks at heights >= from with their
// transactions.
func (n *testNet) entries(from uint64) []chain.Entry {
	n.t.Helper()
	blocks, err := n.chain.GetBlocks(from, n.chain.Height()-from)
	if err != nil {
		n.t.Fatalf("GetBlocks: %v", err)
	}
	out := make([]chain.Entry, 0, len(blocks))
	for _, blk := range blocks {
		txs, missed, err := n.chain.GetTransactions(blk.TxHashes)
		if err != nil || len(missed) > 0 {
			n.t.Fatalf("GetTransactions: err=%v missed=%d", err, len(missed))
		}
		out = append(out, chain.Entry{Block: blk, Txs: txs})
	}
	return out
}

func (n *testNet) snapshot() map[types.PublicKey]Info {
	n.list.mu.RLock()
	defer n.list.mu.RUnlock()
	return n.list.reg.snapshot()
}

func equalSnapshots(a, b map[types.PublicKey]Info) bool {
	if len(a) != len(b) {
		return false
	}
	for k, va := range a {
		vb, ok := b[k]
		if !ok || !sameInfo(va, vb) {
			return false
		}
	}
	return true
}

func sameInfo(a, b Info) bool {
	return a.ViewPublicKey == b.ViewPublicKey &&
		a.ViewSecretKey == b.ViewSecretKey &&
		a.RegistrationHeight == b.RegistrationHeight &&
		a.LastRewardHeight == b.LastRewardHeight
}
