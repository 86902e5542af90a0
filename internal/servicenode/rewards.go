package servicenode

import (
	"errors"

	"github.com/Klingon-tech/klingnet-snode/pkg/device"
	"github.com/Klingon-tech/klingnet-snode/pkg/tx"
	"github.com/Klingon-tech/klingnet-snode/pkg/types"
)

// Miner transaction layout from the service node fork on.
const (
	minerTxOutputs      = 3
	serviceNodeOutIndex = 1
)

// Miner tx shape errors.
var (
	errMinerTxOutputs   = errors.New("miner tx must have exactly 3 outputs")
	errMinerTxTarget    = errors.New("service node output must be to-key")
	errNoTxPublicKey    = errors.New("miner tx has no public key")
	errNotWinnerAddress = errors.New("service node output does not pay the winner")
)

// selectWinner returns the node with the lowest LastRewardHeight. Equal
// heights resolve to the smallest spend key.
func (r *registry) selectWinner() (types.PublicKey, bool) {
	var (
		winner types.PublicKey
		best   uint64
		found  bool
	)
	for key, info := range r.nodes {
		if !found ||
			info.LastRewardHeight < best ||
			(info.LastRewardHeight == best && key.Compare(winner) < 0) {
			winner, best, found = key, info.LastRewardHeight, true
		}
	}
	return winner, found
}

// serviceNodeOutput returns the service node output key and the miner tx
// public key.
func serviceNodeOutput(minerTx *tx.Transaction) (types.PublicKey, types.PublicKey, error) {
	if len(minerTx.Outputs) != minerTxOutputs {
		return types.PublicKey{}, types.PublicKey{}, errMinerTxOutputs
	}
	out := minerTx.Outputs[serviceNodeOutIndex]
	if out.Target.Type != tx.TargetToKey {
		return types.PublicKey{}, types.PublicKey{}, errMinerTxTarget
	}
	txPub := minerTx.PublicKey()
	if txPub.IsZero() {
		return types.PublicKey{}, types.PublicKey{}, errNoTxPublicKey
	}
	return out.Target.Key, txPub, nil
}

// paysNode reports whether outKey, at the service node output index of a tx
// with public key txPub, is addressed to one of info's subaddresses.
func paysNode(dev device.Device, info *Info, outKey, txPub types.PublicKey) bool {
	d, err := dev.KeyDerivation(txPub, info.ViewSecretKey)
	if err != nil {
		return false
	}
	spend, err := dev.DeriveSubaddressPublicKey(outKey, d, serviceNodeOutIndex)
	if err != nil {
		return false
	}
	return containsKey(info.subaddresses, spend)
}

// findPaidNode returns the registered node paid by a miner tx. Nodes are
// tried in byte order so the result does not depend on map iteration.
func (r *registry) findPaidNode(dev device.Device, minerTx *tx.Transaction) (types.PublicKey, bool, error) {
	outKey, txPub, err := serviceNodeOutput(minerTx)
	if err != nil {
		return types.PublicKey{}, false, err
	}
	for _, key := range r.sortedKeys() {
		if paysNode(dev, r.nodes[key], outKey, txPub) {
			return key, true, nil
		}
	}
	return types.PublicKey{}, false, nil
}

// advanceReward moves key's reward pointer to height.
func (r *registry) advanceReward(key types.PublicKey, height uint64) {
	if info, ok := r.nodes[key]; ok && height > info.LastRewardHeight {
		info.LastRewardHeight = height
	}
}
