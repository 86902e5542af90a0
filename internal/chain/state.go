package chain

import "github.com/Klingon-tech/klingnet-snode/pkg/types"

// State holds the current chain tip state.
type State struct {
	Height  uint64     // Number of blocks on the main chain (next block's height).
	TipHash types.Hash // Hash of the block at Height-1.
}

// IsEmpty returns true if no blocks have been stored yet.
func (s *State) IsEmpty() bool {
	return s.Height == 0
}
