package mempool

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-snode/pkg/tx"
)

// Policy defaults.
const (
	DefaultMaxTxSize  = 100_000
	DefaultMaxOutputs = 16
	DefaultMaxExtra   = 1024
)

// Policy defines transaction acceptance rules.
type Policy struct {
	MaxTxSize  int // Maximum serialized transaction size in bytes.
	MaxOutputs int
	MaxExtra   int // Maximum tx extra length in bytes.
}

// DefaultPolicy returns a policy with sensible defaults.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxTxSize:  DefaultMaxTxSize,
		MaxOutputs: DefaultMaxOutputs,
		MaxExtra:   DefaultMaxExtra,
	}
}

// Check validates a transaction against policy rules. Policy can vary per
// node; consensus checks happen when the block is added.
func (p *Policy) Check(transaction *tx.Transaction) error {
	if len(transaction.Inputs) == 0 {
		return fmt.Errorf("transaction has no inputs")
	}
	if len(transaction.Outputs) == 0 {
		return fmt.Errorf("transaction has no outputs")
	}
	if p.MaxOutputs > 0 && len(transaction.Outputs) > p.MaxOutputs {
		return fmt.Errorf("too many outputs: %d, max %d", len(transaction.Outputs), p.MaxOutputs)
	}
	if p.MaxExtra > 0 && len(transaction.Extra) > p.MaxExtra {
		return fmt.Errorf("extra too large: %d bytes, max %d", len(transaction.Extra), p.MaxExtra)
	}
	if _, err := tx.ParseExtra(transaction.Extra); err != nil {
		return fmt.Errorf("malformed extra: %w", err)
	}
	if size := len(transaction.Bytes()); p.MaxTxSize > 0 && size > p.MaxTxSize {
		return fmt.Errorf("transaction too large: %d bytes, max %d", size, p.MaxTxSize)
	}
	return nil
}
