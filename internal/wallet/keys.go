package wallet

import (
	"fmt"

	"github.com/tyler-smith/go-bip32"

	"github.com/Klingon-tech/klingnet-snode/pkg/crypto"
	"github.com/Klingon-tech/klingnet-snode/pkg/tx"
	"github.com/Klingon-tech/klingnet-snode/pkg/types"
)

// Derivation path m/44'/CoinType'/account'/0'/0' yields the spend key of a
// service node account. The view key is Hs(spend secret).
const (
	PurposeBIP44 = bip32.FirstHardenedChild + 44

	// CoinType is the hardened coin type used for service node keys.
	CoinType = bip32.FirstHardenedChild + 8888
)

// viewKeyDomain separates view key hashing from other scalar derivations.
const viewKeyDomain = "snode view key"

// ServiceNodeKeys is the full key set of a service node operator.
type ServiceNodeKeys struct {
	Account        uint32
	SpendSecretKey types.SecretKey
	SpendPublicKey types.PublicKey
	ViewSecretKey  types.SecretKey
	ViewPublicKey  types.PublicKey
}

// Address returns the primary address rewards are paid to.
func (k *ServiceNodeKeys) Address() tx.Address {
	return tx.Address{SpendPublicKey: k.SpendPublicKey, ViewPublicKey: k.ViewPublicKey}
}

// RegistrationKeys returns the key set embedded in a registration tx.
func (k *ServiceNodeKeys) RegistrationKeys() tx.RegistrationKeys {
	return tx.RegistrationKeys{
		SpendPublicKey: k.SpendPublicKey,
		ViewPublicKey:  k.ViewPublicKey,
		ViewSecretKey:  k.ViewSecretKey,
	}
}

// Zero wipes the secret keys.
func (k *ServiceNodeKeys) Zero() {
	k.SpendSecretKey.Zero()
	k.ViewSecretKey.Zero()
}

// DeriveServiceNodeKeys derives the key set for account from a BIP-39 seed.
func DeriveServiceNodeKeys(seed []byte, account uint32) (*ServiceNodeKeys, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", SeedSize, len(seed))
	}
	master, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("create master key: %w", err)
	}

	key := master
	for _, idx := range []uint32{
		PurposeBIP44,
		CoinType,
		bip32.FirstHardenedChild + account,
		bip32.FirstHardenedChild,
		bip32.FirstHardenedChild,
	} {
		key, err = key.NewChildKey(idx)
		if err != nil {
			return nil, fmt.Errorf("derive child %d: %w", idx, err)
		}
	}

	keys := &ServiceNodeKeys{Account: account}
	priv := privateKeyBytes(key)
	if len(priv) > len(keys.SpendSecretKey) {
		return nil, fmt.Errorf("unexpected private key length %d", len(priv))
	}
	copy(keys.SpendSecretKey[len(keys.SpendSecretKey)-len(priv):], priv)
	keys.SpendPublicKey, err = crypto.SecretKeyToPublicKey(keys.SpendSecretKey)
	if err != nil {
		return nil, fmt.Errorf("spend public key: %w", err)
	}

	keys.ViewSecretKey = crypto.HashToScalar(append([]byte(viewKeyDomain), keys.SpendSecretKey[:]...))
	keys.ViewPublicKey, err = crypto.SecretKeyToPublicKey(keys.ViewSecretKey)
	if err != nil {
		return nil, fmt.Errorf("view public key: %w", err)
	}
	return keys, nil
}

// privateKeyBytes returns the big-endian private key without the leading
// zero byte of the serialized form.
func privateKeyBytes(k *bip32.Key) []byte {
	raw := k.Key
	if len(raw) == 33 && raw[0] == 0 {
		return raw[1:]
	}
	return raw
}
