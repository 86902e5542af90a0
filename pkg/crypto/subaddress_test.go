package crypto

import "testing"

func TestSubaddressSpendPublicKey_PrimaryIsSpendKey(t *testing.T) {
	a, _ := mustKeys(t)
	_, B := mustKeys(t)

	got, err := SubaddressSpendPublicKey(B, a, 0, 0)
	if err != nil {
		t.Fatalf("SubaddressSpendPublicKey: %v", err)
	}
	if got != B {
		t.Error("subaddress (0,0) should be the primary spend key")
	}
}

func TestSubaddressSpendPublicKeys(t *testing.T) {
	a, _ := mustKeys(t)
	_, B := mustKeys(t)

	keys, err := SubaddressSpendPublicKeys(B, a, 0, 0, 16)
	if err != nil {
		t.Fatalf("SubaddressSpendPublicKeys: %v", err)
	}
	if len(keys) != 16 {
		t.Fatalf("got %d keys, want 16", len(keys))
	}
	seen := make(map[string]bool)
	for i, k := range keys {
		if !CheckKey(k) {
			t.Errorf("key %d is not a valid point", i)
		}
		if seen[k.String()] {
			t.Errorf("duplicate subaddress key at minor %d", i)
		}
		seen[k.String()] = true
	}

	single, err := SubaddressSpendPublicKey(B, a, 0, 5)
	if err != nil {
		t.Fatalf("SubaddressSpendPublicKey: %v", err)
	}
	if single != keys[5] {
		t.Error("range derivation should match single derivation")
	}
}

func TestSubaddressSpendPublicKeys_DependsOnViewKey(t *testing.T) {
	a1, _ := mustKeys(t)
	a2, _ := mustKeys(t)
	_, B := mustKeys(t)

	k1, _ := SubaddressSpendPublicKey(B, a1, 0, 1)
	k2, _ := SubaddressSpendPublicKey(B, a2, 0, 1)
	if k1 == k2 {
		t.Error("subaddresses should depend on the view secret")
	}
}

func TestSubaddressSpendPublicKeys_BadRange(t *testing.T) {
	a, _ := mustKeys(t)
	_, B := mustKeys(t)
	if _, err := SubaddressSpendPublicKeys(B, a, 0, 5, 1); err == nil {
		t.Error("inverted range should fail")
	}
}
