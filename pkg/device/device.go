// Package device abstracts the key-derivation backend used to check
// registrations and reward outputs. A software device is provided; hardware
// backends can satisfy the same interface.
package device

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-snode/pkg/crypto"
	"github.com/Klingon-tech/klingnet-snode/pkg/ringct"
	"github.com/Klingon-tech/klingnet-snode/pkg/types"
)

// Device performs the secret-key operations needed to recognise outputs
// addressed to an account.
type Device interface {
	// Name identifies the backend in logs.
	Name() string

	// KeyDerivation computes the shared derivation between a transaction
	// public key and a view secret key.
	KeyDerivation(txPub types.PublicKey, viewSec types.SecretKey) (types.KeyDerivation, error)

	// DerivationToScalar computes the per-output shared scalar.
	DerivationToScalar(d types.KeyDerivation, index uint64) types.SecretKey

	// DeriveSubaddressPublicKey recovers the subaddress spend key an output
	// key was derived from: outKey - Hs(d, index)G.
	DeriveSubaddressPublicKey(outKey types.PublicKey, d types.KeyDerivation, index uint64) (types.PublicKey, error)

	// SubaddressSpendPublicKeys derives spend keys for minor indexes
	// [begin, end) of a major account.
	SubaddressSpendPublicKeys(spendPub types.PublicKey, viewSec types.SecretKey, major, begin, end uint32) ([]types.PublicKey, error)

	// DecodeConfidentialAmount opens the amount of output index. It fails on
	// unsupported signature types and malformed or mismatching data.
	DecodeConfidentialAmount(sigs *ringct.Signatures, shared types.SecretKey, index int) (uint64, error)
}

// Software is the default in-process Device.
type Software struct{}

// NewSoftware returns the software device.
func NewSoftware() *Software {
	return &Software{}
}

// Name returns "default".
func (*Software) Name() string { return "default" }

// KeyDerivation computes viewSec * txPub.
func (*Software) KeyDerivation(txPub types.PublicKey, viewSec types.SecretKey) (types.KeyDerivation, error) {
	return crypto.GenerateKeyDerivation(txPub, viewSec)
}

// DerivationToScalar computes Hs(d || index).
func (*Software) DerivationToScalar(d types.KeyDerivation, index uint64) types.SecretKey {
	return crypto.DerivationToScalar(d, index)
}

// DeriveSubaddressPublicKey computes outKey - Hs(d || index)G.
func (*Software) DeriveSubaddressPublicKey(outKey types.PublicKey, d types.KeyDerivation, index uint64) (types.PublicKey, error) {
	return crypto.DeriveSubaddressPublicKey(outKey, d, index)
}

// SubaddressSpendPublicKeys derives a contiguous range of subaddress spend keys.
func (*Software) SubaddressSpendPublicKeys(spendPub types.PublicKey, viewSec types.SecretKey, major, begin, end uint32) ([]types.PublicKey, error) {
	return crypto.SubaddressSpendPublicKeys(spendPub, viewSec, major, begin, end)
}

// DecodeConfidentialAmount opens one output amount.
func (*Software) DecodeConfidentialAmount(sigs *ringct.Signatures, shared types.SecretKey, index int) (uint64, error) {
	if sigs == nil {
		return 0, fmt.Errorf("%w: no rct section", ringct.ErrUnsupportedType)
	}
	amount, _, err := ringct.Decode(sigs, shared, index)
	if err != nil {
		return 0, fmt.Errorf("decode output %d: %w", index, err)
	}
	return amount, nil
}
