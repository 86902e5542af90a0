package chain

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-snode/config"
	"github.com/Klingon-tech/klingnet-snode/internal/log"
	"github.com/Klingon-tech/klingnet-snode/pkg/block"
	"github.com/Klingon-tech/klingnet-snode/pkg/crypto"
	"github.com/Klingon-tech/klingnet-snode/pkg/tx"
)

// Genesis timestamps per network.
var genesisTimestamps = map[config.NetworkType]uint64{
	config.Mainnet:   1525306361,
	config.Testnet:   1525306362,
	config.Fakechain: 1525306363,
}

// CreateGenesisBlock builds the genesis block for a network: height 0, a
// zero PrevHash and a miner transaction without outputs whose key is derived
// from the network name.
func CreateGenesisBlock(p *config.Protocol) (*block.Block, error) {
	if p == nil {
		return nil, fmt.Errorf("protocol is nil")
	}
	txSec := crypto.HashToScalar([]byte("klingnet-snode genesis " + string(p.Network)))
	minerTx, err := tx.NewMinerTx(0, config.MinerUnlockWindow, txSec, nil)
	if err != nil {
		return nil, fmt.Errorf("genesis miner tx: %w", err)
	}
	header := block.Header{
		MajorVersion: p.HardForkVersion(0),
		Timestamp:    genesisTimestamps[p.Network],
	}
	return block.NewBlock(header, minerTx, nil), nil
}

// InitFromGenesis stores the genesis block on an empty chain. It does not
// fire hooks. Returns an error if the chain already has blocks.
func (c *Chain) InitFromGenesis() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if st := c.State(); !st.IsEmpty() {
		return fmt.Errorf("chain already initialized with %d blocks", st.Height)
	}
	blk, err := CreateGenesisBlock(c.protocol)
	if err != nil {
		return err
	}
	if err := c.blocks.PutBlock(blk, 0, nil); err != nil {
		return fmt.Errorf("store genesis: %w", err)
	}
	hash := blk.Hash()
	c.setState(State{Height: 1, TipHash: hash})

	log.Chain.Info().
		Str("network", string(c.protocol.Network)).
		Str("hash", hash.String()).
		Msg("Genesis block stored")
	return nil
}
