package tx

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/Klingon-tech/klingnet-snode/pkg/crypto"
	"github.com/Klingon-tech/klingnet-snode/pkg/ringct"
	"github.com/Klingon-tech/klingnet-snode/pkg/types"
)

type account struct {
	spendSec, viewSec types.SecretKey
	addr              Address
}

func newAccount(t *testing.T) account {
	t.Helper()
	spendSec, spendPub, err := crypto.GenerateKeys()
	if err != nil {
		t.Fatalf("GenerateKeys: %v", err)
	}
	viewSec, viewPub, err := crypto.GenerateKeys()
	if err != nil {
		t.Fatalf("GenerateKeys: %v", err)
	}
	return account{
		spendSec: spendSec,
		viewSec:  viewSec,
		addr:     Address{SpendPublicKey: spendPub, ViewPublicKey: viewPub},
	}
}

func txSecret(t *testing.T) types.SecretKey {
	t.Helper()
	sec, _, err := crypto.GenerateKeys()
	if err != nil {
		t.Fatalf("GenerateKeys: %v", err)
	}
	return sec
}

func TestNewMinerTx(t *testing.T) {
	miner, node := newAccount(t), newAccount(t)
	mtx, err := NewMinerTx(10, 60, txSecret(t), []Destination{
		{Address: miner.addr, Amount: 25},
		{Address: node.addr, Amount: 20},
		{Address: miner.addr, Amount: 5},
	})
	if err != nil {
		t.Fatalf("NewMinerTx: %v", err)
	}
	if !mtx.IsMinerTx() {
		t.Fatal("expected miner tx")
	}
	if h, ok := mtx.GenHeight(); !ok || h != 10 {
		t.Errorf("GenHeight = %d, %v", h, ok)
	}
	if mtx.UnlockTime != 70 {
		t.Errorf("UnlockTime = %d, want 70", mtx.UnlockTime)
	}
	total, err := mtx.TotalOutputValue()
	if err != nil || total != 50 {
		t.Errorf("TotalOutputValue = %d, %v", total, err)
	}

	// The recipient of output 1 recovers its spend key from the output key.
	d, err := crypto.GenerateKeyDerivation(mtx.PublicKey(), node.viewSec)
	if err != nil {
		t.Fatalf("derivation: %v", err)
	}
	spend, err := crypto.DeriveSubaddressPublicKey(mtx.Outputs[1].Target.Key, d, 1)
	if err != nil {
		t.Fatalf("DeriveSubaddressPublicKey: %v", err)
	}
	if spend != node.addr.SpendPublicKey {
		t.Error("output 1 not addressed to node")
	}
	other, _ := crypto.DeriveSubaddressPublicKey(mtx.Outputs[0].Target.Key, d, 0)
	if other == node.addr.SpendPublicKey {
		t.Error("output 0 should not be addressed to node")
	}
}

func TestNewRegistrationTx(t *testing.T) {
	node := newAccount(t)
	keys := RegistrationKeys{
		SpendPublicKey: node.addr.SpendPublicKey,
		ViewPublicKey:  node.addr.ViewPublicKey,
		ViewSecretKey:  node.viewSec,
	}
	rtx, err := NewRegistrationTx(5, 30, keys, 1234, txSecret(t))
	if err != nil {
		t.Fatalf("NewRegistrationTx: %v", err)
	}
	if rtx.IsMinerTx() {
		t.Error("registration must not be a miner tx")
	}
	if rtx.UnlockTime != 35 {
		t.Errorf("UnlockTime = %d, want 35", rtx.UnlockTime)
	}
	if rtx.RCT.Type != ringct.TypeSimple {
		t.Errorf("RCT type = %s", rtx.RCT.Type)
	}
	if rtx.Outputs[0].Amount != 0 {
		t.Error("stake output amount should be hidden")
	}

	extra, err := ParseExtra(rtx.Extra)
	if err != nil {
		t.Fatalf("ParseExtra: %v", err)
	}
	if extra.ServiceNodeSpendKey != keys.SpendPublicKey ||
		extra.ServiceNodeViewKey != keys.ViewPublicKey ||
		extra.ServiceNodeViewSecret != keys.ViewSecretKey {
		t.Error("registration keys not embedded")
	}

	d, err := crypto.GenerateKeyDerivation(extra.TxPubKey, keys.ViewSecretKey)
	if err != nil {
		t.Fatalf("derivation: %v", err)
	}
	amount, _, err := ringct.Decode(&rtx.RCT, crypto.DerivationToScalar(d, 0), 0)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if amount != 1234 {
		t.Errorf("stake = %d, want 1234", amount)
	}
}

func TestBuilder_MixedOutputs(t *testing.T) {
	acc := newAccount(t)
	_, err := NewBuilder(txSecret(t)).
		SetRCTType(ringct.TypeSimple).
		AddConfidentialOutput(acc.addr, 1).
		AddOutput(acc.addr, 2).
		Build()
	if !errors.Is(err, ErrMixedOutputs) {
		t.Errorf("expected ErrMixedOutputs, got %v", err)
	}
}

func TestBuilder_BadSecret(t *testing.T) {
	acc := newAccount(t)
	_, err := NewBuilder(types.NullSecretKey).AddOutput(acc.addr, 1).Build()
	if !errors.Is(err, crypto.ErrInvalidSecretKey) {
		t.Errorf("expected ErrInvalidSecretKey, got %v", err)
	}
}

func TestTransaction_HashChanges(t *testing.T) {
	acc := newAccount(t)
	sec := txSecret(t)
	a, _ := NewMinerTx(1, 60, sec, []Destination{{Address: acc.addr, Amount: 1}})
	b, _ := NewMinerTx(1, 60, sec, []Destination{{Address: acc.addr, Amount: 1}})
	if a.Hash() != b.Hash() {
		t.Error("identical transactions should hash equally")
	}
	b.Outputs[0].Amount = 2
	if a.Hash() == b.Hash() {
		t.Error("amount change should change hash")
	}
	b.Outputs[0].Amount = 1
	b.Extra = append(b.Extra, 0x00)
	if a.Hash() == b.Hash() {
		t.Error("extra change should change hash")
	}
}

func TestTransaction_JSONRoundtrip(t *testing.T) {
	node := newAccount(t)
	keys := RegistrationKeys{
		SpendPublicKey: node.addr.SpendPublicKey,
		ViewPublicKey:  node.addr.ViewPublicKey,
		ViewSecretKey:  node.viewSec,
	}
	rtx, err := NewRegistrationTx(1, 30, keys, 100, txSecret(t))
	if err != nil {
		t.Fatalf("NewRegistrationTx: %v", err)
	}
	data, err := json.Marshal(rtx)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var got Transaction
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Hash() != rtx.Hash() {
		t.Error("hash changed across JSON roundtrip")
	}
}

func TestTotalOutputValue_Overflow(t *testing.T) {
	tx := &Transaction{Outputs: []Output{{Amount: ^uint64(0)}, {Amount: 1}}}
	if _, err := tx.TotalOutputValue(); err == nil {
		t.Error("expected overflow error")
	}
}
