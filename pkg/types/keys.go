package types

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
)

// Key sizes in bytes.
const (
	PublicKeySize     = 33 // compressed secp256k1 point
	SecretKeySize     = 32 // scalar mod n, big-endian
	KeyDerivationSize = PublicKeySize
)

// PublicKey is a compressed curve point. The all-zero value is the null key.
type PublicKey [PublicKeySize]byte

// SecretKey is a scalar. The all-zero value is the null key.
type SecretKey [SecretKeySize]byte

// KeyDerivation is the shared point a*R between a view secret and a
// transaction public key.
type KeyDerivation [KeyDerivationSize]byte

// NullPublicKey is the null point.
var NullPublicKey PublicKey

// NullSecretKey is the null scalar.
var NullSecretKey SecretKey

// IsZero returns true if the key is the null point.
func (k PublicKey) IsZero() bool {
	return k == PublicKey{}
}

// String returns the hex-encoded key.
func (k PublicKey) String() string {
	return hex.EncodeToString(k[:])
}

// Bytes returns a copy of the key.
func (k PublicKey) Bytes() []byte {
	b := make([]byte, PublicKeySize)
	copy(b, k[:])
	return b
}

// Compare orders keys by their bytes. Used to break ties deterministically.
func (k PublicKey) Compare(other PublicKey) int {
	return bytes.Compare(k[:], other[:])
}

// MarshalJSON encodes the key as a hex string.
func (k PublicKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON decodes a hex string into a key.
func (k *PublicKey) UnmarshalJSON(data []byte) error {
	return unmarshalHexJSON(data, k[:], "public key")
}

// HexToPublicKey parses a 66-character hex string.
func HexToPublicKey(s string) (PublicKey, error) {
	var k PublicKey
	if err := decodeHexFixed(s, k[:], "public key"); err != nil {
		return PublicKey{}, err
	}
	return k, nil
}

// IsZero returns true if the key is the null scalar.
func (k SecretKey) IsZero() bool {
	return k == SecretKey{}
}

// String returns the hex-encoded scalar.
func (k SecretKey) String() string {
	return hex.EncodeToString(k[:])
}

// MarshalJSON encodes the key as a hex string.
func (k SecretKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON decodes a hex string into a key.
func (k *SecretKey) UnmarshalJSON(data []byte) error {
	return unmarshalHexJSON(data, k[:], "secret key")
}

// HexToSecretKey parses a 64-character hex string.
func HexToSecretKey(s string) (SecretKey, error) {
	var k SecretKey
	if err := decodeHexFixed(s, k[:], "secret key"); err != nil {
		return SecretKey{}, err
	}
	return k, nil
}

// Zero wipes the scalar.
func (k *SecretKey) Zero() {
	for i := range k {
		k[i] = 0
	}
}

// IsZero returns true if the derivation is all zeros.
func (d KeyDerivation) IsZero() bool {
	return d == KeyDerivation{}
}

// String returns the hex-encoded derivation.
func (d KeyDerivation) String() string {
	return hex.EncodeToString(d[:])
}
