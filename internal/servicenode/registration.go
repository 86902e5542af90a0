package servicenode

import (
	"github.com/Klingon-tech/klingnet-snode/config"
	"github.com/Klingon-tech/klingnet-snode/internal/log"
	"github.com/Klingon-tech/klingnet-snode/pkg/crypto"
	"github.com/Klingon-tech/klingnet-snode/pkg/device"
	"github.com/Klingon-tech/klingnet-snode/pkg/tx"
	"github.com/Klingon-tech/klingnet-snode/pkg/types"
)

// Registration is the key set embedded in a valid registration transaction.
type Registration struct {
	SpendPublicKey types.PublicKey
	ViewPublicKey  types.PublicKey
	ViewSecretKey  types.SecretKey

	// Subaddresses are the spend keys of minor indexes [0, lookahead) of
	// account 0. Index 0 is SpendPublicKey itself.
	Subaddresses []types.PublicKey
}

// Address returns the primary address of the registering account.
func (r *Registration) Address() tx.Address {
	return tx.Address{SpendPublicKey: r.SpendPublicKey, ViewPublicKey: r.ViewPublicKey}
}

// StakingRequirementFunc returns the minimum collateral at a height.
type StakingRequirementFunc func(height uint64) uint64

// Verifier recognises registration transactions. It holds no registry state.
type Verifier struct {
	lockBlocks  uint64
	requirement StakingRequirementFunc
	dev         device.Device
}

// NewVerifier creates a verifier for the given lock window.
func NewVerifier(lockBlocks uint64, requirement StakingRequirementFunc, dev device.Device) *Verifier {
	return &Verifier{lockBlocks: lockBlocks, requirement: requirement, dev: dev}
}

// Verify reports whether t, confirmed at height, registers a service node.
// The returned keys are the ones embedded in t. A false result carries no
// error: most transactions are simply not registrations.
func (v *Verifier) Verify(t *tx.Transaction, height uint64) (*Registration, bool) {
	if !v.hasCorrectUnlockTime(t, height) {
		return nil, false
	}

	reg, txPub, ok := extractFields(t)
	if !ok {
		return nil, false
	}

	d, err := v.dev.KeyDerivation(txPub, reg.ViewSecretKey)
	if err != nil {
		log.ServiceNodes.Debug().Err(err).Str("tx", t.Hash().String()).Msg("Registration key derivation failed")
		return nil, false
	}

	reg.Subaddresses, err = subaddressKeys(v.dev, reg.SpendPublicKey, reg.ViewSecretKey)
	if err != nil {
		log.ServiceNodes.Debug().Err(err).Str("tx", t.Hash().String()).Msg("Subaddress derivation failed")
		return nil, false
	}

	for i := range t.Outputs {
		if v.isStakingOutput(t, i, height, d, reg.Subaddresses) {
			return reg, true
		}
	}
	return nil, false
}

func (v *Verifier) hasCorrectUnlockTime(t *tx.Transaction, height uint64) bool {
	return t.UnlockTime < config.MaxBlockNumber && t.UnlockTime == height+v.lockBlocks
}

// extractFields reads the service node keys and tx public key from the extra
// field and checks the view secret key against its public key.
func extractFields(t *tx.Transaction) (*Registration, types.PublicKey, bool) {
	extra, err := tx.ParseExtra(t.Extra)
	if err != nil {
		return nil, types.PublicKey{}, false
	}
	if !crypto.CheckSecretKey(extra.ServiceNodeViewSecret) ||
		!crypto.CheckKey(extra.ServiceNodeSpendKey) ||
		!crypto.CheckKey(extra.ServiceNodeViewKey) ||
		!crypto.CheckKey(extra.TxPubKey) {
		return nil, types.PublicKey{}, false
	}

	derived, err := crypto.SecretKeyToPublicKey(extra.ServiceNodeViewSecret)
	if err != nil || derived != extra.ServiceNodeViewKey {
		return nil, types.PublicKey{}, false
	}

	return &Registration{
		SpendPublicKey: extra.ServiceNodeSpendKey,
		ViewPublicKey:  extra.ServiceNodeViewKey,
		ViewSecretKey:  extra.ServiceNodeViewSecret,
	}, extra.TxPubKey, true
}

// isStakingOutput reports whether output i pays one of the account's
// subaddresses at least the staking requirement. Decode failures only
// disqualify the output.
func (v *Verifier) isStakingOutput(t *tx.Transaction, i int, height uint64, d types.KeyDerivation, subaddresses []types.PublicKey) bool {
	out := t.Outputs[i]
	if out.Target.Type != tx.TargetToKey {
		return false
	}

	spend, err := v.dev.DeriveSubaddressPublicKey(out.Target.Key, d, uint64(i))
	if err != nil || !containsKey(subaddresses, spend) {
		return false
	}

	amount, err := v.dev.DecodeConfidentialAmount(&t.RCT, v.dev.DerivationToScalar(d, uint64(i)), i)
	if err != nil {
		log.ServiceNodes.Debug().Err(err).
			Str("tx", t.Hash().String()).
			Int("output", i).
			Msg("Skipping undecodable stake output")
		return false
	}

	return amount >= v.requirement(height)
}

func subaddressKeys(dev device.Device, spendPub types.PublicKey, viewSec types.SecretKey) ([]types.PublicKey, error) {
	return dev.SubaddressSpendPublicKeys(spendPub, viewSec, 0, 0, config.SubaddressLookahead)
}

func containsKey(keys []types.PublicKey, k types.PublicKey) bool {
	for _, key := range keys {
		if key == k {
			return true
		}
	}
	return false
}
