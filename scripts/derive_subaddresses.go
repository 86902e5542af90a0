// derive_subaddresses.go prints the subaddress spend keys a service node
// registration is matched against.
// Usage: go run scripts/derive_subaddresses.go <spend-pubkey-hex> <view-seckey-hex> [count]
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Klingon-tech/klingnet-snode/config"
	"github.com/Klingon-tech/klingnet-snode/pkg/crypto"
	"github.com/Klingon-tech/klingnet-snode/pkg/types"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "usage: derive_subaddresses <spend-pubkey-hex> <view-seckey-hex> [count]")
		os.Exit(1)
	}
	var spendPub types.PublicKey
	if err := decodeHex(os.Args[1], spendPub[:]); err != nil {
		fail(fmt.Errorf("spend pubkey: %w", err))
	}
	var viewSec types.SecretKey
	if err := decodeHex(os.Args[2], viewSec[:]); err != nil {
		fail(fmt.Errorf("view seckey: %w", err))
	}
	count := uint64(config.SubaddressLookahead)
	if len(os.Args) > 3 {
		n, err := strconv.ParseUint(os.Args[3], 10, 32)
		if err != nil {
			fail(fmt.Errorf("count: %w", err))
		}
		count = n
	}

	viewPub, err := crypto.SecretKeyToPublicKey(viewSec)
	if err != nil {
		fail(err)
	}
	keys, err := crypto.SubaddressSpendPublicKeys(spendPub, viewSec, 0, 0, uint32(count))
	if err != nil {
		fail(err)
	}
	fmt.Printf("view pubkey: %s\n", viewPub)
	for i, k := range keys {
		fmt.Printf("0/%d %s\n", i, k)
	}
}

func decodeHex(s string, dst []byte) error {
	b, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return err
	}
	if len(b) != len(dst) {
		return fmt.Errorf("want %d bytes, got %d", len(dst), len(b))
	}
	copy(dst, b)
	return nil
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
