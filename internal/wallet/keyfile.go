package wallet

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Klingon-tech/klingnet-snode/internal/log"
	"github.com/Klingon-tech/klingnet-snode/pkg/types"
)

// keyFileVersion is the current on-disk format.
const keyFileVersion = 1

// Key file errors.
var (
	ErrKeyFileExists   = errors.New("key file already exists")
	ErrKeyFileVersion  = errors.New("unsupported key file version")
	ErrKeyFileMismatch = errors.New("key file public keys do not match its seed")
)

// KeyFileInfo is the unencrypted part of a key file.
type KeyFileInfo struct {
	Version        int             `json:"version"`
	Network        string          `json:"network"`
	CreatedAt      time.Time       `json:"created_at"`
	Account        uint32          `json:"account"`
	SpendPublicKey types.PublicKey `json:"spend_public_key"`
	ViewPublicKey  types.PublicKey `json:"view_public_key"`
}

// keyFile is the on-disk JSON format.
type keyFile struct {
	KeyFileInfo
	EncryptedSeed []byte `json:"encrypted_seed"`
}

// WriteKeyFile encrypts seed under password and writes it to path together
// with the public keys of account. An existing file is never overwritten.
func WriteKeyFile(path, network string, seed []byte, account uint32, password []byte, params EncryptionParams) (*ServiceNodeKeys, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrKeyFileExists, path)
	}

	keys, err := DeriveServiceNodeKeys(seed, account)
	if err != nil {
		return nil, err
	}
	sealed, err := Encrypt(seed, password, params)
	if err != nil {
		return nil, fmt.Errorf("encrypt seed: %w", err)
	}

	kf := keyFile{
		KeyFileInfo: KeyFileInfo{
			Version:        keyFileVersion,
			Network:        network,
			CreatedAt:      time.Now().UTC(),
			Account:        account,
			SpendPublicKey: keys.SpendPublicKey,
			ViewPublicKey:  keys.ViewPublicKey,
		},
		EncryptedSeed: sealed,
	}
	data, err := json.MarshalIndent(&kf, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal key file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create key file dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return nil, fmt.Errorf("write key file: %w", err)
	}

	log.Wallet.Info().
		Str("path", path).
		Str("spend_key", keys.SpendPublicKey.String()).
		Msg("Service node key file written")
	return keys, nil
}

// ReadKeyFileInfo reads the public part of a key file without a password.
func ReadKeyFileInfo(path string) (*KeyFileInfo, error) {
	kf, err := readKeyFile(path)
	if err != nil {
		return nil, err
	}
	return &kf.KeyFileInfo, nil
}

// ReadKeyFile decrypts a key file and re-derives its key set. The stored
// public keys must match the derived ones.
func ReadKeyFile(path string, password []byte) (*ServiceNodeKeys, *KeyFileInfo, error) {
	kf, err := readKeyFile(path)
	if err != nil {
		return nil, nil, err
	}
	seed, err := Decrypt(kf.EncryptedSeed, password)
	if err != nil {
		return nil, nil, fmt.Errorf("decrypt key file: %w", err)
	}
	defer zero(seed)

	keys, err := DeriveServiceNodeKeys(seed, kf.Account)
	if err != nil {
		return nil, nil, err
	}
	if keys.SpendPublicKey != kf.SpendPublicKey || keys.ViewPublicKey != kf.ViewPublicKey {
		keys.Zero()
		return nil, nil, ErrKeyFileMismatch
	}
	return keys, &kf.KeyFileInfo, nil
}

func readKeyFile(path string) (*keyFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("parse key file: %w", err)
	}
	if kf.Version != keyFileVersion {
		return nil, fmt.Errorf("%w: %d", ErrKeyFileVersion, kf.Version)
	}
	return &kf, nil
}
