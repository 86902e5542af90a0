package chain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/Klingon-tech/klingnet-snode/config"
	"github.com/Klingon-tech/klingnet-snode/internal/storage"
	"github.com/Klingon-tech/klingnet-snode/pkg/tx"
)

func buildChain(t *testing.T, c *Chain, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		t1 := someTx(t, uint64(1000+i))
		if err := c.AddBlock(nextBlock(t, c, 1, t1), []*tx.Transaction{t1}); err != nil {
			t.Fatalf("AddBlock: %v", err)
		}
	}
}

func TestDetachTo(t *testing.T) {
	c := newTestChain(t)
	buildChain(t, c, 5)
	rec := &recordingHooks{}
	c.RegisterHooks(rec)

	top, _ := c.GetBlockByHeight(5)
	if err := c.DetachTo(3); err != nil {
		t.Fatalf("DetachTo: %v", err)
	}
	if c.Height() != 3 {
		t.Errorf("Height = %d, want 3", c.Height())
	}
	b2, _ := c.GetBlockByHeight(2)
	if c.TipHash() != b2.Hash() {
		t.Error("tip should be block 2")
	}
	if _, err := c.GetBlock(top.Hash()); err == nil {
		t.Error("detached block should be removed")
	}
	_, missed, _ := c.GetTransactions(top.TxHashes)
	if len(missed) != 1 {
		t.Error("detached block's transactions should be removed")
	}
	if fmt.Sprint(rec.events) != "[detached 3]" {
		t.Errorf("events = %v", rec.events)
	}

	// The chain accepts a new block at the detach height.
	if err := c.AddBlock(nextBlock(t, c, 1), nil); err != nil {
		t.Errorf("AddBlock after detach: %v", err)
	}
}

func TestDetachTo_Errors(t *testing.T) {
	c := newTestChain(t)
	buildChain(t, c, 2)
	if err := c.DetachTo(0); !errors.Is(err, ErrDetachGenesis) {
		t.Errorf("detach genesis: %v", err)
	}
	if err := c.DetachTo(10); !errors.Is(err, ErrHeightOutOfRange) {
		t.Errorf("detach above tip: %v", err)
	}

	rec := &recordingHooks{}
	c.RegisterHooks(rec)
	if err := c.DetachTo(c.Height()); err != nil {
		t.Errorf("no-op detach: %v", err)
	}
	if len(rec.events) != 0 {
		t.Errorf("no-op detach fired hooks: %v", rec.events)
	}
}

func TestPopBlocks(t *testing.T) {
	c := newTestChain(t)
	buildChain(t, c, 3)
	if err := c.PopBlocks(2); err != nil {
		t.Fatalf("PopBlocks: %v", err)
	}
	if c.Height() != 2 {
		t.Errorf("Height = %d, want 2", c.Height())
	}
	if err := c.PopBlocks(5); !errors.Is(err, ErrHeightOutOfRange) {
		t.Errorf("PopBlocks too many: %v", err)
	}
}

func TestReorg_SwitchesBranch(t *testing.T) {
	db := storage.NewMemory()
	c, _ := New(config.FakechainProtocol(), db)
	c.InitFromGenesis()
	buildChain(t, c, 4)

	// Build an alternative branch from height 3 on a copy of the chain.
	alt, _ := New(config.FakechainProtocol(), storage.NewMemory())
	alt.InitFromGenesis()
	for h := uint64(1); h < 3; h++ {
		blk, _ := c.GetBlockByHeight(h)
		txs, _, _ := c.GetTransactions(blk.TxHashes)
		if err := alt.AddBlock(blk, txs); err != nil {
			t.Fatalf("copy block %d: %v", h, err)
		}
	}
	var branch []Entry
	for i := 0; i < 3; i++ {
		t1 := someTx(t, uint64(2000+i))
		blk := nextBlock(t, alt, 2, t1)
		if err := alt.AddBlock(blk, []*tx.Transaction{t1}); err != nil {
			t.Fatal(err)
		}
		branch = append(branch, Entry{Block: blk, Txs: []*tx.Transaction{t1}})
	}

	rec := &recordingHooks{}
	c.RegisterHooks(rec)
	if err := c.Reorg(3, branch); err != nil {
		t.Fatalf("Reorg: %v", err)
	}
	if c.TipHash() != alt.TipHash() || c.Height() != 6 {
		t.Errorf("tip = %s@%d, want %s@%d", c.TipHash(), c.Height(), alt.TipHash(), alt.Height())
	}
	if rec.events[0] != "detached 3" {
		t.Errorf("first event = %s, want detach", rec.events[0])
	}
}

func TestReorg_RestoresOnFailure(t *testing.T) {
	c := newTestChain(t)
	buildChain(t, c, 3)
	tip := c.TipHash()

	bad := nextBlock(t, c, 1) // built on the current tip, not the fork point
	err := c.Reorg(2, []Entry{{Block: bad}})
	if !errors.Is(err, ErrBadPrevHash) {
		t.Fatalf("Reorg error = %v, want ErrBadPrevHash", err)
	}
	if c.TipHash() != tip || c.Height() != 4 {
		t.Errorf("main chain not restored: %s@%d", c.TipHash(), c.Height())
	}
}
