package tx

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-snode/pkg/types"
)

// Extra field tags. Each field is encoded as tag(1) | uvarint(len) | payload.
const (
	ExtraTagPubKey                   byte = 0x01
	ExtraTagNonce                    byte = 0x02
	ExtraTagServiceNodePubSpendKey   byte = 0x70
	ExtraTagServiceNodePubViewKey    byte = 0x71
	ExtraTagServiceNodeViewSecretKey byte = 0x72
)

// MaxExtraNonceSize bounds the free-form nonce field.
const MaxExtraNonceSize = 255

// Extra parsing errors.
var (
	ErrExtraTruncated = errors.New("tx extra truncated")
	ErrExtraFieldSize = errors.New("tx extra field has wrong size")
)

// Extra is the decoded form of a transaction's extra field. Unknown tags are
// skipped when parsing and dropped when re-encoding.
type Extra struct {
	TxPubKey              types.PublicKey
	ServiceNodeSpendKey   types.PublicKey
	ServiceNodeViewKey    types.PublicKey
	ServiceNodeViewSecret types.SecretKey
	Nonce                 []byte
}

// ParseExtra decodes an extra field. Later duplicates of a tag overwrite
// earlier ones.
func ParseExtra(b []byte) (*Extra, error) {
	e := &Extra{}
	for pos := 0; pos < len(b); {
		tag := b[pos]
		pos++
		n, read := binary.Uvarint(b[pos:])
		if read <= 0 {
			return nil, fmt.Errorf("%w: bad length for tag 0x%02x", ErrExtraTruncated, tag)
		}
		pos += read
		if n > uint64(len(b)-pos) {
			return nil, fmt.Errorf("%w: tag 0x%02x wants %d bytes, %d left", ErrExtraTruncated, tag, n, len(b)-pos)
		}
		payload := b[pos : pos+int(n)]
		pos += int(n)

		switch tag {
		case ExtraTagPubKey:
			if err := copyFixed(e.TxPubKey[:], payload, tag); err != nil {
				return nil, err
			}
		case ExtraTagServiceNodePubSpendKey:
			if err := copyFixed(e.ServiceNodeSpendKey[:], payload, tag); err != nil {
				return nil, err
			}
		case ExtraTagServiceNodePubViewKey:
			if err := copyFixed(e.ServiceNodeViewKey[:], payload, tag); err != nil {
				return nil, err
			}
		case ExtraTagServiceNodeViewSecretKey:
			if err := copyFixed(e.ServiceNodeViewSecret[:], payload, tag); err != nil {
				return nil, err
			}
		case ExtraTagNonce:
			if len(payload) > MaxExtraNonceSize {
				return nil, fmt.Errorf("%w: nonce is %d bytes", ErrExtraFieldSize, len(payload))
			}
			e.Nonce = append([]byte(nil), payload...)
		}
	}
	return e, nil
}

func copyFixed(dst, payload []byte, tag byte) error {
	if len(payload) != len(dst) {
		return fmt.Errorf("%w: tag 0x%02x is %d bytes, want %d", ErrExtraFieldSize, tag, len(payload), len(dst))
	}
	copy(dst, payload)
	return nil
}

// Bytes encodes the non-empty fields in tag order.
func (e *Extra) Bytes() []byte {
	var buf []byte
	put := func(tag byte, payload []byte) {
		buf = append(buf, tag)
		buf = binary.AppendUvarint(buf, uint64(len(payload)))
		buf = append(buf, payload...)
	}
	if !e.TxPubKey.IsZero() {
		put(ExtraTagPubKey, e.TxPubKey[:])
	}
	if len(e.Nonce) > 0 {
		put(ExtraTagNonce, e.Nonce)
	}
	if !e.ServiceNodeSpendKey.IsZero() {
		put(ExtraTagServiceNodePubSpendKey, e.ServiceNodeSpendKey[:])
	}
	if !e.ServiceNodeViewKey.IsZero() {
		put(ExtraTagServiceNodePubViewKey, e.ServiceNodeViewKey[:])
	}
	if !e.ServiceNodeViewSecret.IsZero() {
		put(ExtraTagServiceNodeViewSecretKey, e.ServiceNodeViewSecret[:])
	}
	return buf
}
