// Package ringct implements the confidential amount scheme carried by
// transactions: Pedersen commitments C = mask*G + amount*H with the mask and
// amount ECDH-encoded for the recipient.
package ringct

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-snode/pkg/crypto"
	"github.com/Klingon-tech/klingnet-snode/pkg/types"
)

// Type identifies the signature scheme of a transaction's RingCT section.
type Type uint8

// Supported signature types. Null carries no confidential outputs.
const (
	TypeNull              Type = 0
	TypeFull              Type = 1
	TypeSimple            Type = 2
	TypeFullBulletproof   Type = 3
	TypeSimpleBulletproof Type = 4
)

// String returns a human-readable name for the type.
func (t Type) String() string {
	switch t {
	case TypeNull:
		return "null"
	case TypeFull:
		return "full"
	case TypeSimple:
		return "simple"
	case TypeFullBulletproof:
		return "full_bulletproof"
	case TypeSimpleBulletproof:
		return "simple_bulletproof"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Decode errors.
var (
	ErrUnsupportedType    = errors.New("unsupported rct type")
	ErrIndexOutOfRange    = errors.New("output index out of range")
	ErrCommitmentMismatch = errors.New("commitment does not open to decoded amount")
	ErrAmountOverflow     = errors.New("decoded amount overflows 64 bits")
)

// EcdhTuple holds the encoded blinding mask and amount of one output.
type EcdhTuple struct {
	Mask   types.SecretKey `json:"mask"`
	Amount types.SecretKey `json:"amount"`
}

// Signatures is the confidential section of a transaction. Only the parts
// needed to open output amounts are modeled: per-output ECDH tuples and
// output commitments.
type Signatures struct {
	Type     Type              `json:"type"`
	EcdhInfo []EcdhTuple       `json:"ecdh_info,omitempty"`
	OutPk    []types.PublicKey `json:"out_pk,omitempty"`
}

var generatorH = crypto.HashToPoint([]byte("klingnet ringct H"))

// H returns the amount generator.
func H() types.PublicKey {
	return generatorH
}

// amountToScalar encodes a 64-bit amount as a big-endian scalar.
func amountToScalar(amount uint64) types.SecretKey {
	var s types.SecretKey
	binary.BigEndian.PutUint64(s[types.SecretKeySize-8:], amount)
	return s
}

func scalarToAmount(s types.SecretKey) (uint64, error) {
	for _, b := range s[:types.SecretKeySize-8] {
		if b != 0 {
			return 0, ErrAmountOverflow
		}
	}
	return binary.BigEndian.Uint64(s[types.SecretKeySize-8:]), nil
}

// Commit computes mask*G + amount*H.
func Commit(amount uint64, mask types.SecretKey) (types.PublicKey, error) {
	maskG, err := crypto.ScalarMultBase(mask)
	if err != nil {
		return types.PublicKey{}, fmt.Errorf("mask term: %w", err)
	}
	if amount == 0 {
		return maskG, nil
	}
	amountH, err := crypto.ScalarMultKey(amountToScalar(amount), generatorH)
	if err != nil {
		return types.PublicKey{}, fmt.Errorf("amount term: %w", err)
	}
	return crypto.AddKeys(maskG, amountH)
}

func maskPad(shared types.SecretKey) types.SecretKey {
	return crypto.HashToScalar(shared[:])
}

func amountPad(shared types.SecretKey) types.SecretKey {
	first := crypto.HashToScalar(shared[:])
	return crypto.HashToScalar(first[:])
}

// EncodeEcdh hides mask and amount for a recipient sharing the given
// per-output scalar.
func EncodeEcdh(mask types.SecretKey, amount uint64, shared types.SecretKey) EcdhTuple {
	return EcdhTuple{
		Mask:   crypto.ScalarAdd(mask, maskPad(shared)),
		Amount: crypto.ScalarAdd(amountToScalar(amount), amountPad(shared)),
	}
}

// DecodeEcdh reverses EncodeEcdh.
func DecodeEcdh(t EcdhTuple, shared types.SecretKey) (mask types.SecretKey, amount uint64, err error) {
	mask = crypto.ScalarSub(t.Mask, maskPad(shared))
	amount, err = scalarToAmount(crypto.ScalarSub(t.Amount, amountPad(shared)))
	return mask, amount, err
}

// Decode opens output index of sigs with the recipient's shared scalar and
// verifies the commitment. The returned mask is the output's blinding factor.
func Decode(sigs *Signatures, shared types.SecretKey, index int) (uint64, types.SecretKey, error) {
	switch sigs.Type {
	case TypeFull, TypeSimple, TypeFullBulletproof, TypeSimpleBulletproof:
	default:
		return 0, types.SecretKey{}, fmt.Errorf("%w: %s", ErrUnsupportedType, sigs.Type)
	}
	if index < 0 || index >= len(sigs.EcdhInfo) || index >= len(sigs.OutPk) {
		return 0, types.SecretKey{}, fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}

	mask, amount, err := DecodeEcdh(sigs.EcdhInfo[index], shared)
	if err != nil {
		return 0, types.SecretKey{}, err
	}
	c, err := Commit(amount, mask)
	if err != nil {
		return 0, types.SecretKey{}, fmt.Errorf("%w: %v", ErrCommitmentMismatch, err)
	}
	if c != sigs.OutPk[index] {
		return 0, types.SecretKey{}, ErrCommitmentMismatch
	}
	return amount, mask, nil
}

// AddOutput commits to amount with a fresh mask derived from the shared
// scalar and appends the encoded tuple and commitment.
func (s *Signatures) AddOutput(amount uint64, shared types.SecretKey) error {
	mask := crypto.HashToScalar(append([]byte("commitment_mask"), shared[:]...))
	c, err := Commit(amount, mask)
	if err != nil {
		return err
	}
	s.EcdhInfo = append(s.EcdhInfo, EncodeEcdh(mask, amount, shared))
	s.OutPk = append(s.OutPk, c)
	return nil
}
