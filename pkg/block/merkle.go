package block

import (
	"github.com/Klingon-tech/klingnet-snode/pkg/crypto"
	"github.com/Klingon-tech/klingnet-snode/pkg/types"
)

// TxTreeHash returns the tree hash committing to every transaction of the
// block. Leaf 0 is the miner tx, followed by TxHashes in block order.
func (b *Block) TxTreeHash() types.Hash {
	leaves := make([]types.Hash, 0, len(b.TxHashes)+1)
	if b.MinerTx != nil {
		leaves = append(leaves, b.MinerTx.Hash())
	}
	return TreeHash(append(leaves, b.TxHashes...))
}

// TreeHash folds ordered leaves into a root by hashing adjacent pairs level
// by level. A level of odd length pairs its last hash with itself. A single
// leaf is its own root and no leaves give the zero hash. leaves is not
// modified.
func TreeHash(leaves []types.Hash) types.Hash {
	switch len(leaves) {
	case 0:
		return types.Hash{}
	case 1:
		return leaves[0]
	}

	level := append([]types.Hash(nil), leaves...)
	for n := len(level); n > 1; n = (n + 1) / 2 {
		for i := 0; i < n; i += 2 {
			right := level[min(i+1, n-1)]
			level[i/2] = crypto.HashConcat(level[i], right)
		}
	}
	return level[0]
}
