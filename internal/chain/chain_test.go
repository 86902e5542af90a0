package chain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/Klingon-tech/klingnet-snode/config"
	"github.com/Klingon-tech/klingnet-snode/internal/storage"
	"github.com/Klingon-tech/klingnet-snode/pkg/block"
	"github.com/Klingon-tech/klingnet-snode/pkg/crypto"
	"github.com/Klingon-tech/klingnet-snode/pkg/tx"
	"github.com/Klingon-tech/klingnet-snode/pkg/types"
)

// recordingHooks records every hook call.
type recordingHooks struct {
	events   []string
	reject   bool
	addedErr error
	chain    *Chain // optional; read back during callbacks
	seenTip  []uint64
}

func (r *recordingHooks) Init() error {
	r.events = append(r.events, "init")
	return nil
}

func (r *recordingHooks) BlockAdded(blk *block.Block, txs []*tx.Transaction) error {
	h, _ := blk.Height()
	r.events = append(r.events, fmt.Sprintf("added %d txs=%d", h, len(txs)))
	if r.chain != nil {
		r.seenTip = append(r.seenTip, r.chain.Height())
	}
	return r.addedErr
}

func (r *recordingHooks) BlockchainDetached(height uint64) error {
	r.events = append(r.events, fmt.Sprintf("detached %d", height))
	return nil
}

func (r *recordingHooks) ValidateMinerTx(prevID types.Hash, minerTx *tx.Transaction, baseReward uint64) bool {
	h, _ := minerTx.GenHeight()
	r.events = append(r.events, fmt.Sprintf("validate %d", h))
	return !r.reject
}

func newTestChain(t *testing.T) *Chain {
	t.Helper()
	c, err := New(config.FakechainProtocol(), storage.NewMemory())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.InitFromGenesis(); err != nil {
		t.Fatalf("InitFromGenesis: %v", err)
	}
	return c
}

func randomAddress(t *testing.T) tx.Address {
	t.Helper()
	_, spend, err := crypto.GenerateKeys()
	if err != nil {
		t.Fatal(err)
	}
	_, view, err := crypto.GenerateKeys()
	if err != nil {
		t.Fatal(err)
	}
	return tx.Address{SpendPublicKey: spend, ViewPublicKey: view}
}

// nextBlock builds a block extending c's tip paying reward to a random
// address, referencing txs.
func nextBlock(t *testing.T, c *Chain, reward uint64, txs ...*tx.Transaction) *block.Block {
	t.Helper()
	txSec, _, err := crypto.GenerateKeys()
	if err != nil {
		t.Fatal(err)
	}
	minerTx, err := tx.NewMinerTx(c.Height(), config.MinerUnlockWindow, txSec,
		[]tx.Destination{{Address: randomAddress(t), Amount: reward}})
	if err != nil {
		t.Fatalf("NewMinerTx: %v", err)
	}
	return block.NewBlock(c.NextHeader(1700000000+c.Height()), minerTx, txs)
}

func someTx(t *testing.T, unlock uint64) *tx.Transaction {
	t.Helper()
	txSec, _, _ := crypto.GenerateKeys()
	out, err := tx.NewBuilder(txSec).SetUnlockTime(unlock).AddOutput(randomAddress(t), 1).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return out
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(nil, storage.NewMemory()); err == nil {
		t.Error("nil protocol should fail")
	}
	if _, err := New(config.FakechainProtocol(), nil); err == nil {
		t.Error("nil db should fail")
	}
}

func TestInitFromGenesis(t *testing.T) {
	c := newTestChain(t)
	if c.Height() != 1 {
		t.Fatalf("Height = %d, want 1", c.Height())
	}
	genesis, err := c.GetBlockByHeight(0)
	if err != nil {
		t.Fatalf("GetBlockByHeight(0): %v", err)
	}
	if genesis.Hash() != c.TipHash() {
		t.Error("tip should be genesis")
	}
	if err := c.InitFromGenesis(); err == nil {
		t.Error("second InitFromGenesis should fail")
	}

	again, _ := CreateGenesisBlock(config.FakechainProtocol())
	if again.Hash() != genesis.Hash() {
		t.Error("genesis should be deterministic")
	}
}

func TestAddBlock_HookOrder(t *testing.T) {
	c := newTestChain(t)
	rec := &recordingHooks{chain: c}
	c.RegisterHooks(rec)
	if err := c.Init(); err != nil {
		t.Fatal(err)
	}

	t1 := someTx(t, 0)
	if err := c.AddBlock(nextBlock(t, c, 10, t1), []*tx.Transaction{t1}); err != nil {
		t.Fatalf("AddBlock: %v", err)
	}

	want := []string{"init", "validate 1", "added 1 txs=1"}
	if fmt.Sprint(rec.events) != fmt.Sprint(want) {
		t.Errorf("events = %v, want %v", rec.events, want)
	}
	if len(rec.seenTip) != 1 || rec.seenTip[0] != 2 {
		t.Errorf("BlockAdded should see the new tip, saw %v", rec.seenTip)
	}
}

func TestAddBlock_Rejections(t *testing.T) {
	c := newTestChain(t)
	base := c.Protocol().BaseReward

	t.Run("bad prev hash", func(t *testing.T) {
		blk := nextBlock(t, c, 1)
		blk.Header.PrevHash = types.Hash{0x01}
		if err := c.AddBlock(blk, nil); !errors.Is(err, ErrBadPrevHash) {
			t.Errorf("got %v", err)
		}
	})

	t.Run("bad height", func(t *testing.T) {
		txSec, _, _ := crypto.GenerateKeys()
		minerTx, _ := tx.NewMinerTx(5, 60, txSec, []tx.Destination{{Address: randomAddress(t), Amount: 1}})
		blk := block.NewBlock(c.NextHeader(1), minerTx, nil)
		if err := c.AddBlock(blk, nil); !errors.Is(err, ErrBadHeight) {
			t.Errorf("got %v", err)
		}
	})

	t.Run("bad version", func(t *testing.T) {
		blk := nextBlock(t, c, 1)
		blk.Header.MajorVersion = 7
		if err := c.AddBlock(blk, nil); !errors.Is(err, ErrBadVersion) {
			t.Errorf("got %v", err)
		}
	})

	t.Run("tx mismatch", func(t *testing.T) {
		t1, t2 := someTx(t, 1), someTx(t, 2)
		blk := nextBlock(t, c, 1, t1)
		if err := c.AddBlock(blk, []*tx.Transaction{t2}); !errors.Is(err, ErrTxMismatch) {
			t.Errorf("got %v", err)
		}
		if err := c.AddBlock(blk, nil); !errors.Is(err, ErrTxMismatch) {
			t.Errorf("missing tx: got %v", err)
		}
	})

	t.Run("reward exceeded", func(t *testing.T) {
		blk := nextBlock(t, c, base+1)
		if err := c.AddBlock(blk, nil); !errors.Is(err, ErrRewardExceeded) {
			t.Errorf("got %v", err)
		}
	})

	t.Run("hook rejects", func(t *testing.T) {
		c := newTestChain(t)
		c.RegisterHooks(&recordingHooks{reject: true})
		if err := c.AddBlock(nextBlock(t, c, 1), nil); !errors.Is(err, ErrMinerTxRejected) {
			t.Errorf("got %v", err)
		}
		if c.Height() != 1 {
			t.Errorf("rejected block stored, height %d", c.Height())
		}
	})

	if c.Height() != 1 {
		t.Errorf("Height = %d after rejections, want 1", c.Height())
	}
}

func TestAddBlock_Known(t *testing.T) {
	c := newTestChain(t)
	blk := nextBlock(t, c, 1)
	if err := c.AddBlock(blk, nil); err != nil {
		t.Fatal(err)
	}
	if err := c.AddBlock(blk, nil); !errors.Is(err, ErrBlockKnown) {
		t.Errorf("got %v", err)
	}
}

func TestAddBlock_HookErrorKeepsBlock(t *testing.T) {
	c := newTestChain(t)
	c.RegisterHooks(&recordingHooks{addedErr: errors.New("boom")})
	err := c.AddBlock(nextBlock(t, c, 1), nil)
	if !errors.Is(err, ErrHookFailed) {
		t.Fatalf("got %v", err)
	}
	if c.Height() != 2 {
		t.Errorf("Height = %d, want 2", c.Height())
	}
}

func TestGetBlocksAndTransactions(t *testing.T) {
	c := newTestChain(t)
	var stored []*tx.Transaction
	for i := 0; i < 5; i++ {
		t1 := someTx(t, uint64(i))
		stored = append(stored, t1)
		if err := c.AddBlock(nextBlock(t, c, 1, t1), []*tx.Transaction{t1}); err != nil {
			t.Fatalf("AddBlock %d: %v", i, err)
		}
	}

	blks, err := c.GetBlocks(2, 10)
	if err != nil {
		t.Fatalf("GetBlocks: %v", err)
	}
	if len(blks) != 4 {
		t.Fatalf("GetBlocks returned %d blocks, want 4", len(blks))
	}
	for i, b := range blks {
		if h, _ := b.Height(); h != uint64(2+i) {
			t.Errorf("block %d has height %d", i, h)
		}
	}
	if _, err := c.GetBlocks(6, 1); !errors.Is(err, ErrHeightOutOfRange) {
		t.Errorf("GetBlocks past tip: %v", err)
	}

	unknown := types.Hash{0xde, 0xad}
	txs, missed, err := c.GetTransactions([]types.Hash{stored[0].Hash(), unknown, stored[4].Hash()})
	if err != nil {
		t.Fatalf("GetTransactions: %v", err)
	}
	if len(txs) != 2 || txs[0].Hash() != stored[0].Hash() || txs[1].Hash() != stored[4].Hash() {
		t.Error("wrong transactions returned")
	}
	if len(missed) != 1 || missed[0] != unknown {
		t.Errorf("missed = %v", missed)
	}
}

func TestChain_ReopenRecoversTip(t *testing.T) {
	db := storage.NewMemory()
	c, _ := New(config.FakechainProtocol(), db)
	if err := c.InitFromGenesis(); err != nil {
		t.Fatal(err)
	}
	if err := c.AddBlock(nextBlock(t, c, 1), nil); err != nil {
		t.Fatal(err)
	}

	reopened, err := New(config.FakechainProtocol(), db)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if reopened.State() != c.State() {
		t.Errorf("state = %+v, want %+v", reopened.State(), c.State())
	}
}

func TestChain_PullInterface(t *testing.T) {
	c := newTestChain(t)
	if c.CurrentHardForkVersion() != config.ServiceNodeVersion {
		t.Errorf("fakechain height 1 should be v%d", config.ServiceNodeVersion)
	}
	if c.HardForkVersion(0) != 7 {
		t.Errorf("genesis version = %d", c.HardForkVersion(0))
	}
	if c.StakingRequirement(10) != 100*config.Coin {
		t.Errorf("StakingRequirement = %d", c.StakingRequirement(10))
	}
}
