package crypto

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-snode/pkg/types"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// Key errors.
var (
	ErrInvalidSecretKey = errors.New("invalid secret key")
	ErrInvalidPublicKey = errors.New("invalid public key")
	ErrPointAtInfinity  = errors.New("point at infinity")
)

// GenerateKeys creates a random key pair.
func GenerateKeys() (types.SecretKey, types.PublicKey, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return types.SecretKey{}, types.PublicKey{}, fmt.Errorf("generate key: %w", err)
	}
	defer priv.Zero()

	sec := types.SecretKey(priv.Key.Bytes())
	var pub types.PublicKey
	copy(pub[:], priv.PubKey().SerializeCompressed())
	return sec, pub, nil
}

// SecretKeyToPublicKey computes aG. The null scalar and scalars >= n are
// rejected.
func SecretKeyToPublicKey(sec types.SecretKey) (types.PublicKey, error) {
	s, err := parseScalar(sec)
	if err != nil {
		return types.PublicKey{}, err
	}
	var p secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(s, &p)
	return serializePoint(&p)
}

// CheckKey reports whether pub is a valid, non-null curve point.
func CheckKey(pub types.PublicKey) bool {
	_, err := parsePoint(pub)
	return err == nil
}

// CheckSecretKey reports whether sec is a usable non-zero scalar.
func CheckSecretKey(sec types.SecretKey) bool {
	_, err := parseScalar(sec)
	return err == nil
}

// GenerateKeyDerivation computes the shared point D = aR from a transaction
// public key R and a view secret key a.
func GenerateKeyDerivation(txPub types.PublicKey, viewSec types.SecretKey) (types.KeyDerivation, error) {
	r, err := parsePoint(txPub)
	if err != nil {
		return types.KeyDerivation{}, err
	}
	a, err := parseScalar(viewSec)
	if err != nil {
		return types.KeyDerivation{}, err
	}
	var d secp256k1.JacobianPoint
	secp256k1.ScalarMultNonConst(a, r, &d)
	out, err := serializePoint(&d)
	if err != nil {
		return types.KeyDerivation{}, err
	}
	return types.KeyDerivation(out), nil
}

// DerivationToScalar computes Hs(D || uvarint(index)), the per-output shared
// scalar.
func DerivationToScalar(d types.KeyDerivation, index uint64) types.SecretKey {
	s := derivationScalar(d, index)
	return s.Bytes()
}

func derivationScalar(d types.KeyDerivation, index uint64) *secp256k1.ModNScalar {
	buf := make([]byte, 0, types.KeyDerivationSize+binary.MaxVarintLen64)
	buf = append(buf, d[:]...)
	buf = binary.AppendUvarint(buf, index)
	return hashToModN(buf)
}

// DerivePublicKey computes the one-time output key Hs(D, index)G + B.
func DerivePublicKey(d types.KeyDerivation, index uint64, base types.PublicKey) (types.PublicKey, error) {
	b, err := parsePoint(base)
	if err != nil {
		return types.PublicKey{}, err
	}
	var sG, out secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(derivationScalar(d, index), &sG)
	secp256k1.AddNonConst(&sG, b, &out)
	return serializePoint(&out)
}

// DeriveSubaddressPublicKey recovers the recipient spend key P - Hs(D, index)G
// from a one-time output key P.
func DeriveSubaddressPublicKey(outKey types.PublicKey, d types.KeyDerivation, index uint64) (types.PublicKey, error) {
	p, err := parsePoint(outKey)
	if err != nil {
		return types.PublicKey{}, err
	}
	s := derivationScalar(d, index)
	s.Negate()
	var negSG, out secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(s, &negSG)
	secp256k1.AddNonConst(p, &negSG, &out)
	return serializePoint(&out)
}

// ScalarMultBase computes sG.
func ScalarMultBase(sec types.SecretKey) (types.PublicKey, error) {
	var s secp256k1.ModNScalar
	if overflow := s.SetBytes((*[32]byte)(&sec)); overflow != 0 {
		return types.PublicKey{}, ErrInvalidSecretKey
	}
	var p secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(&s, &p)
	return serializePoint(&p)
}

// ScalarMultKey computes sP.
func ScalarMultKey(sec types.SecretKey, pub types.PublicKey) (types.PublicKey, error) {
	p, err := parsePoint(pub)
	if err != nil {
		return types.PublicKey{}, err
	}
	var s secp256k1.ModNScalar
	if overflow := s.SetBytes((*[32]byte)(&sec)); overflow != 0 {
		return types.PublicKey{}, ErrInvalidSecretKey
	}
	var out secp256k1.JacobianPoint
	secp256k1.ScalarMultNonConst(&s, p, &out)
	return serializePoint(&out)
}

// AddKeys computes A + B.
func AddKeys(a, b types.PublicKey) (types.PublicKey, error) {
	pa, err := parsePoint(a)
	if err != nil {
		return types.PublicKey{}, err
	}
	pb, err := parsePoint(b)
	if err != nil {
		return types.PublicKey{}, err
	}
	var out secp256k1.JacobianPoint
	secp256k1.AddNonConst(pa, pb, &out)
	return serializePoint(&out)
}

// ScalarAdd returns a + b mod n.
func ScalarAdd(a, b types.SecretKey) types.SecretKey {
	var sa, sb secp256k1.ModNScalar
	sa.SetBytes((*[32]byte)(&a))
	sb.SetBytes((*[32]byte)(&b))
	return sa.Add(&sb).Bytes()
}

// ScalarSub returns a - b mod n.
func ScalarSub(a, b types.SecretKey) types.SecretKey {
	var sa, sb secp256k1.ModNScalar
	sa.SetBytes((*[32]byte)(&a))
	sb.SetBytes((*[32]byte)(&b))
	return sa.Add(sb.Negate()).Bytes()
}

func parseScalar(sec types.SecretKey) (*secp256k1.ModNScalar, error) {
	var s secp256k1.ModNScalar
	if overflow := s.SetBytes((*[32]byte)(&sec)); overflow != 0 {
		return nil, fmt.Errorf("%w: scalar overflows group order", ErrInvalidSecretKey)
	}
	if s.IsZero() {
		return nil, fmt.Errorf("%w: zero scalar", ErrInvalidSecretKey)
	}
	return &s, nil
}

func parsePoint(pub types.PublicKey) (*secp256k1.JacobianPoint, error) {
	if pub.IsZero() {
		return nil, fmt.Errorf("%w: null key", ErrInvalidPublicKey)
	}
	pk, err := secp256k1.ParsePubKey(pub[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	var p secp256k1.JacobianPoint
	pk.AsJacobian(&p)
	return &p, nil
}

func serializePoint(p *secp256k1.JacobianPoint) (types.PublicKey, error) {
	if p.Z.Normalize().IsZero() {
		return types.PublicKey{}, ErrPointAtInfinity
	}
	p.ToAffine()
	var out types.PublicKey
	copy(out[:], secp256k1.NewPublicKey(&p.X, &p.Y).SerializeCompressed())
	return out, nil
}
