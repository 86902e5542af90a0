// Package tx defines transaction types, the tx extra field, and builders for
// miner and service node registration transactions.
package tx

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"

	"github.com/Klingon-tech/klingnet-snode/pkg/crypto"
	"github.com/Klingon-tech/klingnet-snode/pkg/ringct"
	"github.com/Klingon-tech/klingnet-snode/pkg/types"
)

// InputType distinguishes coinbase inputs from key (spend) inputs.
type InputType uint8

// Input types.
const (
	InputToKey InputType = 0x02
	InputGen   InputType = 0xff
)

// TargetType identifies how an output is locked.
type TargetType uint8

// Output target types.
const (
	TargetToScript TargetType = 0x01
	TargetToKey    TargetType = 0x02
)

// Transaction represents a blockchain transaction.
type Transaction struct {
	Version    uint32            `json:"version"`
	UnlockTime uint64            `json:"unlock_time"`
	Inputs     []Input           `json:"inputs"`
	Outputs    []Output          `json:"outputs"`
	Extra      []byte            `json:"-"`
	RCT        ringct.Signatures `json:"rct"`
}

// Input is either a coinbase marker carrying the block height, or a key
// input spending a ring of previous outputs.
type Input struct {
	Type       InputType       `json:"type"`
	Height     uint64          `json:"height,omitempty"`      // InputGen only
	Amount     uint64          `json:"amount,omitempty"`      // InputToKey only
	KeyOffsets []uint64        `json:"key_offsets,omitempty"` // InputToKey only
	KeyImage   types.PublicKey `json:"key_image"`             // InputToKey only
}

// OutputTarget locks an output to a one-time public key.
type OutputTarget struct {
	Type TargetType      `json:"type"`
	Key  types.PublicKey `json:"key"`
}

// Output defines a new spendable output. Amount is zero for confidential
// outputs; the value then lives in the RingCT section.
type Output struct {
	Amount uint64       `json:"amount"`
	Target OutputTarget `json:"target"`
}

// transactionJSON carries Extra as hex.
type transactionJSON struct {
	Version    uint32            `json:"version"`
	UnlockTime uint64            `json:"unlock_time"`
	Inputs     []Input           `json:"inputs"`
	Outputs    []Output          `json:"outputs"`
	Extra      string            `json:"extra"`
	RCT        ringct.Signatures `json:"rct"`
}

// MarshalJSON encodes the transaction with a hex-encoded extra field.
func (tx *Transaction) MarshalJSON() ([]byte, error) {
	return json.Marshal(transactionJSON{
		Version:    tx.Version,
		UnlockTime: tx.UnlockTime,
		Inputs:     tx.Inputs,
		Outputs:    tx.Outputs,
		Extra:      hex.EncodeToString(tx.Extra),
		RCT:        tx.RCT,
	})
}

// UnmarshalJSON decodes a transaction with a hex-encoded extra field.
func (tx *Transaction) UnmarshalJSON(data []byte) error {
	var j transactionJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	extra, err := hex.DecodeString(j.Extra)
	if err != nil {
		return fmt.Errorf("invalid extra hex: %w", err)
	}
	tx.Version = j.Version
	tx.UnlockTime = j.UnlockTime
	tx.Inputs = j.Inputs
	tx.Outputs = j.Outputs
	tx.Extra = extra
	tx.RCT = j.RCT
	return nil
}

// Hash computes the transaction ID (BLAKE3 of the canonical serialization).
func (tx *Transaction) Hash() types.Hash {
	return crypto.Hash(tx.Bytes())
}

// Bytes returns the canonical byte representation.
// Format: version(4) | unlock(8) | n_in(4) | inputs... | n_out(4) | outputs... |
// extra_len(4) | extra | rct_type(1) | n_ecdh(4) | ecdh... | n_outpk(4) | outpk...
func (tx *Transaction) Bytes() []byte {
	var buf []byte
	buf = binary.LittleEndian.AppendUint32(buf, tx.Version)
	buf = binary.LittleEndian.AppendUint64(buf, tx.UnlockTime)

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(tx.Inputs)))
	for _, in := range tx.Inputs {
		buf = append(buf, byte(in.Type))
		switch in.Type {
		case InputGen:
			buf = binary.LittleEndian.AppendUint64(buf, in.Height)
		default:
			buf = binary.LittleEndian.AppendUint64(buf, in.Amount)
			buf = binary.LittleEndian.AppendUint32(buf, uint32(len(in.KeyOffsets)))
			for _, off := range in.KeyOffsets {
				buf = binary.LittleEndian.AppendUint64(buf, off)
			}
			buf = append(buf, in.KeyImage[:]...)
		}
	}

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(tx.Outputs)))
	for _, out := range tx.Outputs {
		buf = binary.LittleEndian.AppendUint64(buf, out.Amount)
		buf = append(buf, byte(out.Target.Type))
		buf = append(buf, out.Target.Key[:]...)
	}

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(tx.Extra)))
	buf = append(buf, tx.Extra...)

	buf = append(buf, byte(tx.RCT.Type))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(tx.RCT.EcdhInfo)))
	for _, e := range tx.RCT.EcdhInfo {
		buf = append(buf, e.Mask[:]...)
		buf = append(buf, e.Amount[:]...)
	}
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(tx.RCT.OutPk)))
	for _, c := range tx.RCT.OutPk {
		buf = append(buf, c[:]...)
	}
	return buf
}

// IsMinerTx reports whether the transaction has exactly one coinbase input.
func (tx *Transaction) IsMinerTx() bool {
	return len(tx.Inputs) == 1 && tx.Inputs[0].Type == InputGen
}

// GenHeight returns the block height carried by a miner transaction.
func (tx *Transaction) GenHeight() (uint64, bool) {
	if !tx.IsMinerTx() {
		return 0, false
	}
	return tx.Inputs[0].Height, true
}

// TotalOutputValue returns the sum of all cleartext output amounts.
// Returns an error if the sum overflows uint64.
func (tx *Transaction) TotalOutputValue() (uint64, error) {
	var total uint64
	for _, out := range tx.Outputs {
		if total > math.MaxUint64-out.Amount {
			return 0, fmt.Errorf("output value overflow")
		}
		total += out.Amount
	}
	return total, nil
}

// PublicKey returns the transaction public key from the extra field, or the
// null key if it is missing or the extra field is malformed.
func (tx *Transaction) PublicKey() types.PublicKey {
	e, err := ParseExtra(tx.Extra)
	if err != nil {
		return types.NullPublicKey
	}
	return e.TxPubKey
}
