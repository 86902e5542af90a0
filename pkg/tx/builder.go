package tx

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-snode/pkg/crypto"
	"github.com/Klingon-tech/klingnet-snode/pkg/ringct"
	"github.com/Klingon-tech/klingnet-snode/pkg/types"
)

// Transaction versions.
const (
	VersionMinerTx = 1
	VersionRingCT  = 2
)

// ErrMixedOutputs is returned when a RingCT transaction mixes cleartext and
// confidential outputs.
var ErrMixedOutputs = errors.New("rct transaction mixes cleartext and confidential outputs")

// Address is a standard (primary) account address.
type Address struct {
	SpendPublicKey types.PublicKey `json:"spend_public_key"`
	ViewPublicKey  types.PublicKey `json:"view_public_key"`
}

// IsZero returns true for the null address.
func (a Address) IsZero() bool {
	return a.SpendPublicKey.IsZero() && a.ViewPublicKey.IsZero()
}

// Destination pairs an address with an amount.
type Destination struct {
	Address Address
	Amount  uint64
}

// Builder constructs transactions incrementally. Every output is derived
// from a single transaction secret key r, published as R = rG in the extra
// field. The first error sticks and is returned by Build.
type Builder struct {
	tx    *Transaction
	txSec types.SecretKey
	extra Extra
	err   error
}

// NewBuilder creates a builder using txSec as the transaction secret key.
func NewBuilder(txSec types.SecretKey) *Builder {
	b := &Builder{
		tx:    &Transaction{Version: VersionRingCT},
		txSec: txSec,
	}
	pub, err := crypto.SecretKeyToPublicKey(txSec)
	if err != nil {
		b.err = fmt.Errorf("tx secret key: %w", err)
		return b
	}
	b.extra.TxPubKey = pub
	return b
}

// SetVersion sets the transaction version.
func (b *Builder) SetVersion(v uint32) *Builder {
	b.tx.Version = v
	return b
}

// SetUnlockTime sets the height before which outputs cannot be spent.
func (b *Builder) SetUnlockTime(height uint64) *Builder {
	b.tx.UnlockTime = height
	return b
}

// SetRCTType sets the RingCT signature type for confidential outputs.
func (b *Builder) SetRCTType(t ringct.Type) *Builder {
	b.tx.RCT.Type = t
	return b
}

// AddGenInput adds the coinbase input for a block at height.
func (b *Builder) AddGenInput(height uint64) *Builder {
	b.tx.Inputs = append(b.tx.Inputs, Input{Type: InputGen, Height: height})
	return b
}

// AddKeyInput adds a key input.
func (b *Builder) AddKeyInput(keyImage types.PublicKey, offsets []uint64) *Builder {
	b.tx.Inputs = append(b.tx.Inputs, Input{
		Type:       InputToKey,
		KeyOffsets: append([]uint64(nil), offsets...),
		KeyImage:   keyImage,
	})
	return b
}

// SetServiceNodeKeys embeds a service node registration key set in extra.
func (b *Builder) SetServiceNodeKeys(spendPub, viewPub types.PublicKey, viewSec types.SecretKey) *Builder {
	b.extra.ServiceNodeSpendKey = spendPub
	b.extra.ServiceNodeViewKey = viewPub
	b.extra.ServiceNodeViewSecret = viewSec
	return b
}

// oneTimeKey derives the output key for the next output index.
func (b *Builder) oneTimeKey(to Address) (types.PublicKey, types.KeyDerivation, uint64, error) {
	index := uint64(len(b.tx.Outputs))
	d, err := crypto.GenerateKeyDerivation(to.ViewPublicKey, b.txSec)
	if err != nil {
		return types.PublicKey{}, types.KeyDerivation{}, 0, fmt.Errorf("output %d derivation: %w", index, err)
	}
	key, err := crypto.DerivePublicKey(d, index, to.SpendPublicKey)
	if err != nil {
		return types.PublicKey{}, types.KeyDerivation{}, 0, fmt.Errorf("output %d key: %w", index, err)
	}
	return key, d, index, nil
}

// AddOutput adds a cleartext-amount output to a primary address.
func (b *Builder) AddOutput(to Address, amount uint64) *Builder {
	if b.err != nil {
		return b
	}
	key, _, _, err := b.oneTimeKey(to)
	if err != nil {
		b.err = err
		return b
	}
	b.tx.Outputs = append(b.tx.Outputs, Output{
		Amount: amount,
		Target: OutputTarget{Type: TargetToKey, Key: key},
	})
	return b
}

// AddConfidentialOutput adds an output whose amount is hidden in the RingCT
// section and can be opened only by the recipient.
func (b *Builder) AddConfidentialOutput(to Address, amount uint64) *Builder {
	if b.err != nil {
		return b
	}
	key, d, index, err := b.oneTimeKey(to)
	if err != nil {
		b.err = err
		return b
	}
	if err := b.tx.RCT.AddOutput(amount, crypto.DerivationToScalar(d, index)); err != nil {
		b.err = fmt.Errorf("output %d commitment: %w", index, err)
		return b
	}
	b.tx.Outputs = append(b.tx.Outputs, Output{
		Target: OutputTarget{Type: TargetToKey, Key: key},
	})
	return b
}

// Build returns the finished transaction.
func (b *Builder) Build() (*Transaction, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.tx.RCT.Type != ringct.TypeNull && len(b.tx.RCT.EcdhInfo) != len(b.tx.Outputs) {
		return nil, ErrMixedOutputs
	}
	if b.tx.RCT.Type == ringct.TypeNull && len(b.tx.RCT.EcdhInfo) > 0 {
		return nil, fmt.Errorf("confidential outputs require an rct type")
	}
	b.tx.Extra = b.extra.Bytes()
	return b.tx, nil
}

// NewMinerTx builds a coinbase transaction for height paying each
// destination in order with cleartext amounts.
func NewMinerTx(height, unlockWindow uint64, txSec types.SecretKey, dests []Destination) (*Transaction, error) {
	b := NewBuilder(txSec).
		SetVersion(VersionMinerTx).
		SetUnlockTime(height + unlockWindow).
		AddGenInput(height)
	for _, d := range dests {
		b.AddOutput(d.Address, d.Amount)
	}
	t, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("miner tx: %w", err)
	}
	return t, nil
}

// RegistrationKeys is the key set a service node publishes when it
// registers: its identity (spend) key and the view key pair needed to
// recognise its reward outputs.
type RegistrationKeys struct {
	SpendPublicKey types.PublicKey
	ViewPublicKey  types.PublicKey
	ViewSecretKey  types.SecretKey
}

// Address returns the primary address of the registering account.
func (k RegistrationKeys) Address() Address {
	return Address{SpendPublicKey: k.SpendPublicKey, ViewPublicKey: k.ViewPublicKey}
}

// NewRegistrationTx builds a transaction that locks stake to the registering
// account's primary address until height + lockBlocks.
func NewRegistrationTx(height, lockBlocks uint64, keys RegistrationKeys, stake uint64, txSec types.SecretKey) (*Transaction, error) {
	txPub, err := crypto.SecretKeyToPublicKey(txSec)
	if err != nil {
		return nil, fmt.Errorf("registration tx: %w", err)
	}
	t, err := NewBuilder(txSec).
		SetUnlockTime(height+lockBlocks).
		SetRCTType(ringct.TypeSimple).
		AddKeyInput(crypto.HashToPoint(txPub[:]), []uint64{0}).
		SetServiceNodeKeys(keys.SpendPublicKey, keys.ViewPublicKey, keys.ViewSecretKey).
		AddConfidentialOutput(keys.Address(), stake).
		Build()
	if err != nil {
		return nil, fmt.Errorf("registration tx: %w", err)
	}
	return t, nil
}
