package crypto

import (
	"encoding/binary"
	"fmt"

	"github.com/Klingon-tech/klingnet-snode/pkg/types"
)

// subaddressPrefix domain-separates subaddress secret derivation.
var subaddressPrefix = []byte("SubAddr\x00")

// SubaddressSecretKey computes m = Hs("SubAddr\0" || a || major || minor).
func SubaddressSecretKey(viewSec types.SecretKey, major, minor uint32) types.SecretKey {
	buf := make([]byte, 0, len(subaddressPrefix)+types.SecretKeySize+8)
	buf = append(buf, subaddressPrefix...)
	buf = append(buf, viewSec[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, major)
	buf = binary.LittleEndian.AppendUint32(buf, minor)
	return HashToScalar(buf)
}

// SubaddressSpendPublicKey returns B + mG for the (major, minor) subaddress.
// Index (0, 0) is the primary address and returns B unchanged.
func SubaddressSpendPublicKey(spendPub types.PublicKey, viewSec types.SecretKey, major, minor uint32) (types.PublicKey, error) {
	if major == 0 && minor == 0 {
		if !CheckKey(spendPub) {
			return types.PublicKey{}, ErrInvalidPublicKey
		}
		return spendPub, nil
	}
	mG, err := ScalarMultBase(SubaddressSecretKey(viewSec, major, minor))
	if err != nil {
		return types.PublicKey{}, fmt.Errorf("subaddress %d/%d: %w", major, minor, err)
	}
	return AddKeys(spendPub, mG)
}

// SubaddressSpendPublicKeys derives the spend keys of minor indexes
// [begin, end) under one major account.
func SubaddressSpendPublicKeys(spendPub types.PublicKey, viewSec types.SecretKey, major, begin, end uint32) ([]types.PublicKey, error) {
	if end < begin {
		return nil, fmt.Errorf("invalid subaddress range [%d, %d)", begin, end)
	}
	out := make([]types.PublicKey, 0, end-begin)
	for minor := begin; minor < end; minor++ {
		k, err := SubaddressSpendPublicKey(spendPub, viewSec, major, minor)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, nil
}
