package ringct

import (
	"errors"
	"testing"

	"github.com/Klingon-tech/klingnet-snode/pkg/crypto"
	"github.com/Klingon-tech/klingnet-snode/pkg/types"
)

func sharedScalar(seed string) types.SecretKey {
	return crypto.HashToScalar([]byte(seed))
}

func TestEcdhRoundtrip(t *testing.T) {
	shared := sharedScalar("shared")
	mask := crypto.HashToScalar([]byte("mask"))
	for _, amount := range []uint64{0, 1, 100_000_000_000, ^uint64(0)} {
		enc := EncodeEcdh(mask, amount, shared)
		gotMask, gotAmount, err := DecodeEcdh(enc, shared)
		if err != nil {
			t.Fatalf("DecodeEcdh(%d): %v", amount, err)
		}
		if gotAmount != amount {
			t.Errorf("amount: got %d, want %d", gotAmount, amount)
		}
		if gotMask != mask {
			t.Errorf("mask mismatch for amount %d", amount)
		}
	}
}

func TestDecode(t *testing.T) {
	sigs := &Signatures{Type: TypeSimple}
	shared0 := sharedScalar("out0")
	shared1 := sharedScalar("out1")
	if err := sigs.AddOutput(42, shared0); err != nil {
		t.Fatalf("AddOutput: %v", err)
	}
	if err := sigs.AddOutput(7_000, shared1); err != nil {
		t.Fatalf("AddOutput: %v", err)
	}

	amount, _, err := Decode(sigs, shared1, 1)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if amount != 7_000 {
		t.Errorf("amount = %d, want 7000", amount)
	}
}

func TestDecode_WrongSharedScalar(t *testing.T) {
	sigs := &Signatures{Type: TypeFull}
	if err := sigs.AddOutput(42, sharedScalar("right")); err != nil {
		t.Fatalf("AddOutput: %v", err)
	}
	_, _, err := Decode(sigs, sharedScalar("wrong"), 0)
	if err == nil {
		t.Fatal("decoding with the wrong scalar should fail")
	}
	if !errors.Is(err, ErrCommitmentMismatch) && !errors.Is(err, ErrAmountOverflow) {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestDecode_UnsupportedType(t *testing.T) {
	shared := sharedScalar("s")
	sigs := &Signatures{Type: TypeSimple}
	if err := sigs.AddOutput(1, shared); err != nil {
		t.Fatalf("AddOutput: %v", err)
	}
	for _, typ := range []Type{TypeNull, Type(9)} {
		sigs.Type = typ
		if _, _, err := Decode(sigs, shared, 0); !errors.Is(err, ErrUnsupportedType) {
			t.Errorf("type %s: expected ErrUnsupportedType, got %v", typ, err)
		}
	}
}

func TestDecode_IndexOutOfRange(t *testing.T) {
	sigs := &Signatures{Type: TypeSimpleBulletproof}
	if _, _, err := Decode(sigs, sharedScalar("s"), 0); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("expected ErrIndexOutOfRange, got %v", err)
	}
	if _, _, err := Decode(sigs, sharedScalar("s"), -1); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("expected ErrIndexOutOfRange, got %v", err)
	}
}

func TestDecode_TamperedCommitment(t *testing.T) {
	shared := sharedScalar("s")
	sigs := &Signatures{Type: TypeSimple}
	if err := sigs.AddOutput(1_000, shared); err != nil {
		t.Fatalf("AddOutput: %v", err)
	}
	other, err := Commit(2_000, crypto.HashToScalar([]byte("m")))
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	sigs.OutPk[0] = other
	if _, _, err := Decode(sigs, shared, 0); !errors.Is(err, ErrCommitmentMismatch) {
		t.Errorf("expected ErrCommitmentMismatch, got %v", err)
	}
}

func TestCommit_Homomorphic(t *testing.T) {
	m1 := crypto.HashToScalar([]byte("m1"))
	m2 := crypto.HashToScalar([]byte("m2"))
	c1, _ := Commit(10, m1)
	c2, _ := Commit(32, m2)
	sum, err := crypto.AddKeys(c1, c2)
	if err != nil {
		t.Fatalf("AddKeys: %v", err)
	}
	want, err := Commit(42, crypto.ScalarAdd(m1, m2))
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if sum != want {
		t.Error("commitments should add homomorphically")
	}
}
